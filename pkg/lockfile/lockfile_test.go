package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCommitReplacesTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "refs", "heads", "main")
	l, err := Acquire(context.Background(), target, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Unlock()

	if _, err := os.Stat(l.Path()); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
	if _, err := l.Write([]byte("content\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("target visible before Commit: %v", err)
	}
	if err := l.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "content\n" {
		t.Fatalf("target = %q", got)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Fatalf("lock file still present after Commit: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock after Commit: %v", err)
	}
}

func TestUnlockLeavesTargetIntact(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := Acquire(context.Background(), target, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Write([]byte("new")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("second Unlock: %v", err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "old" {
		t.Fatalf("target = %q, want old", got)
	}
	if err := l.Commit(); err == nil {
		t.Fatal("Commit after Unlock succeeded")
	}
}

func TestAcquireTimesOut(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file")
	held, err := Acquire(context.Background(), target, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Unlock()

	start := time.Now()
	_, err = Acquire(context.Background(), target, Options{Timeout: 30 * time.Millisecond, RetryDelay: time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire error = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("Acquire gave up before the timeout")
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file")
	held, err := Acquire(context.Background(), target, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, target, Options{Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire error = %v, want context.Canceled", err)
	}
}

func TestAcquireSerializesHolders(t *testing.T) {
	target := filepath.Join(t.TempDir(), "counter")
	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Acquire(context.Background(), target, Options{Timeout: 5 * time.Second})
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			if err := l.Unlock(); err != nil {
				t.Errorf("Unlock: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Fatal("two holders held the lock at once")
	}
}
