package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var benchmarkStatusEntrySink int

func BenchmarkStatus_CleanTree(b *testing.B) {
	dir := b.TempDir()
	r, err := Init(dir)
	if err != nil {
		b.Fatalf("Init: %v", err)
	}
	defer r.Close()

	const fileCount = 200
	for i := 0; i < fileCount; i++ {
		relPath := fmt.Sprintf("bench/file-%03d.txt", i)
		absPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			b.Fatalf("MkdirAll(%q): %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte("line 1\nline 2\n"), 0o644); err != nil {
			b.Fatalf("WriteFile(%q): %v", relPath, err)
		}
		// Out of the racy window so the stat shortcut applies.
		old := time.Now().Add(-10 * time.Second)
		if err := os.Chtimes(absPath, old, old); err != nil {
			b.Fatalf("Chtimes(%q): %v", relPath, err)
		}
	}

	ctx := context.Background()
	if err := r.Add(ctx, []string{"bench"}); err != nil {
		b.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "seed", Author: testSig, Committer: testSig}); err != nil {
		b.Fatalf("Commit: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		entries, err := r.Status(ctx)
		if err != nil {
			b.Fatalf("Status: %v", err)
		}
		benchmarkStatusEntrySink = len(entries)
	}
}
