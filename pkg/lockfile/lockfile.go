// Package lockfile implements git-style "<path>.lock" files: an exclusive
// lock taken by creating the lock file with O_EXCL, written in place of the
// target, and committed by renaming it over the target.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// Suffix is appended to the target path to name its lock file.
	Suffix = ".lock"

	DefaultTimeout    = 2 * time.Second
	DefaultRetryDelay = 5 * time.Millisecond

	// maxDirRetries bounds how often Acquire recreates a parent directory
	// that a concurrent prune removed.
	maxDirRetries = 8
)

// ErrTimeout is returned when a lock is still held by someone else after
// the acquisition timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// Options bound how long Acquire waits for a contended lock.
type Options struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Lock is a held lock file. Writes go to the lock file; Commit publishes
// them over the target and Unlock abandons them. Unlock after Commit is a
// no-op, so a deferred Unlock is always safe.
type Lock struct {
	target string
	path   string
	f      *os.File
	done   bool
}

// Acquire creates target+".lock" exclusively, creating parent directories
// as needed. A parent directory removed between its creation and the lock
// file's is created again. While another holder has the lock it retries
// every RetryDelay until Timeout elapses, then fails with ErrTimeout.
// Cancellation of ctx stops the wait early.
func Acquire(ctx context.Context, target string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()
	lockPath := target + Suffix
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("lock %s: mkdir: %w", target, err)
	}

	deadline := time.Now().Add(opts.Timeout)
	dirRetries := 0
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &Lock{target: target, path: lockPath, f: f}, nil
		}
		if os.IsNotExist(err) && dirRetries < maxDirRetries {
			dirRetries++
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("lock %s: mkdir: %w", target, err)
			}
			continue
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock %s: %w", target, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s held for more than %s", ErrTimeout, lockPath, opts.Timeout)
		}
		timer := time.NewTimer(opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %s: %w", target, ctx.Err())
		case <-timer.C:
		}
	}
}

// Target returns the path the lock protects.
func (l *Lock) Target() string {
	return l.target
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Write appends to the pending content of the lock file.
func (l *Lock) Write(p []byte) (int, error) {
	if l.done {
		return 0, fmt.Errorf("lock %s: already released", l.target)
	}
	return l.f.Write(p)
}

// Commit flushes the lock file and renames it over the target, releasing
// the lock.
func (l *Lock) Commit() error {
	if l.done {
		return fmt.Errorf("lock %s: already released", l.target)
	}
	l.done = true
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		os.Remove(l.path)
		return fmt.Errorf("lock %s: sync: %w", l.target, err)
	}
	if err := l.f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("lock %s: close: %w", l.target, err)
	}
	if err := os.Rename(l.path, l.target); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("lock %s: rename: %w", l.target, err)
	}
	return nil
}

// Unlock discards the lock file without touching the target.
func (l *Lock) Unlock() error {
	if l == nil || l.done {
		return nil
	}
	l.done = true
	closeErr := l.f.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", l.target, err)
	}
	if closeErr != nil {
		return fmt.Errorf("unlock %s: close: %w", l.target, closeErr)
	}
	return nil
}
