package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitcore/pkg/object"
)

func indexPaths(t *testing.T, r *Repo) []string {
	t.Helper()
	idx, err := r.Index.Read()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var out []string
	for _, e := range idx.Entries {
		out = append(out, e.Path)
	}
	return out
}

func TestAdd_File(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "alpha\n")
	if err := r.Add(context.Background(), []string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	idx, err := r.Index.Read()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	e, ok := idx.Stage0("a.txt")
	if !ok {
		t.Fatal("a.txt missing from index")
	}
	want := object.HashObject(object.TypeBlob, []byte("alpha\n"))
	if e.Hash != want {
		t.Errorf("hash = %s, want %s", e.Hash, want)
	}
	if e.Mode != object.ModeRegular {
		t.Errorf("mode = %o", e.Mode)
	}
	if e.Size != 6 {
		t.Errorf("size = %d, want 6", e.Size)
	}
	if !r.Objects.Has(want) {
		t.Error("blob not written to the object store")
	}
}

func TestAdd_DirectorySkipsIgnored(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, ".gitignore", "*.log\nout/\n")
	writeFile(t, r, "src/main.go", "package main\n")
	writeFile(t, r, "src/debug.log", "noise\n")
	writeFile(t, r, "out/bin", "binary\n")

	if err := r.Add(context.Background(), []string{"."}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := indexPaths(t, r)
	want := []string{".gitignore", "src/main.go"}
	if len(got) != len(want) {
		t.Fatalf("index = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index = %v, want %v", got, want)
		}
	}
}

func TestAdd_IgnoredFileNamedExplicitly(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, ".gitignore", "*.log\n")
	writeFile(t, r, "debug.log", "noise\n")
	if err := r.Add(context.Background(), []string{"debug.log"}); err == nil {
		t.Fatal("Add of an ignored file succeeded")
	}
}

func TestAdd_RemovesDeletedPath(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	writeFile(t, r, "keep.txt", "keep\n")
	writeFile(t, r, "gone.txt", "gone\n")
	writeFile(t, r, "dir/inner.txt", "inner\n")
	commitAll(t, r, "first")

	if err := os.Remove(filepath.Join(r.WorkDir, "gone.txt")); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, []string{"gone.txt"}); err != nil {
		t.Fatalf("Add(gone.txt): %v", err)
	}
	if err := os.RemoveAll(filepath.Join(r.WorkDir, "dir")); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, []string{"."}); err != nil {
		t.Fatalf("Add(.): %v", err)
	}
	got := indexPaths(t, r)
	if len(got) != 1 || got[0] != "keep.txt" {
		t.Fatalf("index = %v, want [keep.txt]", got)
	}
}

func TestAdd_Pathspec(t *testing.T) {
	r := initRepo(t)
	err := r.Add(context.Background(), []string{"missing.txt"})
	if !errors.Is(err, ErrPathspec) {
		t.Fatalf("err = %v, want ErrPathspec", err)
	}
}

func TestAdd_OutsideRepository(t *testing.T) {
	r := initRepo(t)
	outside := filepath.Join(filepath.Dir(r.WorkDir), "elsewhere.txt")
	if err := r.Add(context.Background(), []string{outside}); err == nil {
		t.Fatal("Add outside the working tree succeeded")
	}
	if err := r.Add(context.Background(), []string{"../x"}); err == nil {
		t.Fatal("Add of ../x succeeded")
	}
}

func TestAdd_FileReplacesDirectory(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	writeFile(t, r, "thing/a.txt", "a\n")
	writeFile(t, r, "thing/b.txt", "b\n")
	commitAll(t, r, "dir")

	if err := os.RemoveAll(filepath.Join(r.WorkDir, "thing")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, r, "thing", "now a file\n")
	if err := r.Add(ctx, []string{"thing"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := indexPaths(t, r)
	if len(got) != 1 || got[0] != "thing" {
		t.Fatalf("index = %v, want [thing]", got)
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "file", Author: testSig, Committer: testSig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRemove_CachedKeepsFile(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	writeFile(t, r, "a.txt", "a\n")
	writeFile(t, r, "b.txt", "b\n")
	commitAll(t, r, "first")

	if err := r.Remove(ctx, []string{"a.txt"}, true); err != nil {
		t.Fatalf("Remove cached: %v", err)
	}
	if !fileExists(r, "a.txt") {
		t.Error("cached remove deleted the working file")
	}
	if err := r.Remove(ctx, []string{"b.txt"}, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fileExists(r, "b.txt") {
		t.Error("remove kept the working file")
	}
	if got := indexPaths(t, r); len(got) != 0 {
		t.Errorf("index = %v, want empty", got)
	}
	if err := r.Remove(ctx, []string{"b.txt"}, false); !errors.Is(err, ErrPathspec) {
		t.Fatalf("second remove: err = %v, want ErrPathspec", err)
	}
}
