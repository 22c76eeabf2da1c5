package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitcore/pkg/object"
)

func TestVerify_CountsReachable(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	commitAll(t, r, "first")

	report, err := r.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// commit, tree, blob
	if report.Reachable != 3 {
		t.Errorf("reachable = %d, want 3", report.Reachable)
	}
	if report.Objects.LooseObjects != 3 {
		t.Errorf("loose objects = %d, want 3", report.Objects.LooseObjects)
	}
}

func TestVerify_EmptyRepository(t *testing.T) {
	r := initRepo(t)
	report, err := r.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Reachable != 0 {
		t.Errorf("reachable = %d, want 0", report.Reachable)
	}
}

func TestVerify_MissingObject(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	commitAll(t, r, "first")

	blob := object.HashObject(object.TypeBlob, []byte("a\n")).String()
	if err := os.Remove(filepath.Join(r.GitDir, "objects", blob[:2], blob[2:])); err != nil {
		t.Fatalf("remove blob: %v", err)
	}
	_, err := r.Verify(context.Background())
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerify_CorruptObject(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	commitAll(t, r, "first")

	blob := object.HashObject(object.TypeBlob, []byte("a\n")).String()
	p := filepath.Join(r.GitDir, "objects", blob[:2], blob[2:])
	raw, err := object.EncodeLoose(object.TypeBlob, []byte("b\n"))
	if err != nil {
		t.Fatalf("EncodeLoose: %v", err)
	}
	if err := os.Chmod(p, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = r.Verify(context.Background())
	if !errors.Is(err, object.ErrHashMismatch) {
		t.Fatalf("err = %v, want ErrHashMismatch", err)
	}
}
