package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/odvcencio/gitcore/pkg/lockfile"
)

// File is the on-disk index, usually .git/index.
type File struct {
	path string
}

// Open returns a handle for the index file at path. The file need not exist.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the index file path.
func (f *File) Path() string {
	return f.path
}

// Read loads the last persisted snapshot. A missing file reads as an empty
// index.
func (f *File) Read() (*Index, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	idx, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", f.path, err)
	}
	if info, err := os.Stat(f.path); err == nil {
		idx.Stamp = info.ModTime()
	}
	return idx, nil
}

// Lock takes the whole-index write lock, waiting up to timeout (zero means
// the lockfile default) for a concurrent holder to finish.
func (f *File) Lock(ctx context.Context, timeout time.Duration) (*Locked, error) {
	lk, err := lockfile.Acquire(ctx, f.path, lockfile.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("lock index: %w", err)
	}
	return &Locked{file: f, lock: lk}, nil
}

// Locked is a held index lock. Every read-modify-write of the index happens
// through it; Unlock must run on every exit path and is safe to defer.
type Locked struct {
	file *File
	lock *lockfile.Lock
}

// File returns the index file the lock guards.
func (l *Locked) File() *File {
	return l.file
}

// Read loads the snapshot as it stands under the lock.
func (l *Locked) Read() (*Index, error) {
	if l.lock == nil {
		return nil, fmt.Errorf("read index: lock already released")
	}
	return l.file.Read()
}

// Replace atomically swaps the persisted snapshot for idx. The lock stays
// held, so a caller may replace more than once before unlocking. On return
// idx.Stamp reflects the new file.
func (l *Locked) Replace(idx *Index) error {
	if l.lock == nil {
		return fmt.Errorf("replace index: lock already released")
	}
	data, err := Marshal(idx)
	if err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	// Atomic write via temp file + rename.
	tmp, err := os.CreateTemp(filepath.Dir(l.file.path), ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("replace index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("replace index: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("replace index: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: close: %w", err)
	}
	if err := os.Rename(tmpName, l.file.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: rename: %w", err)
	}
	if info, err := os.Stat(l.file.path); err == nil {
		idx.Stamp = info.ModTime()
	}
	return nil
}

// Unlock releases the lock. Calling it again is a no-op.
func (l *Locked) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	err := l.lock.Unlock()
	l.lock = nil
	return err
}
