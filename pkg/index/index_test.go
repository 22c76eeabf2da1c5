package index

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/gitcore/pkg/object"
)

func hashOf(s string) object.Hash {
	return object.HashObject(object.TypeBlob, []byte(s))
}

func entry(path, content string) Entry {
	return Entry{Path: path, Mode: object.ModeRegular, Hash: hashOf(content)}
}

func paths(idx *Index) []string {
	var out []string
	for _, e := range idx.Entries {
		out = append(out, e.Path)
	}
	return out
}

func TestAddKeepsOrder(t *testing.T) {
	idx := New()
	for _, p := range []string{"b", "a/z", "a.txt", "a/b", "c"} {
		if err := idx.Add(entry(p, p)); err != nil {
			t.Fatalf("Add(%q): %v", p, err)
		}
	}
	want := []string{"a.txt", "a/b", "a/z", "b", "c"}
	if diff := cmp.Diff(want, paths(idx)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if err := idx.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestAddReplacesExisting(t *testing.T) {
	idx := New()
	idx.Add(entry("f", "one"))
	idx.Add(entry("f", "two"))
	if len(idx.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(idx.Entries))
	}
	e, ok := idx.Stage0("f")
	if !ok || e.Hash != hashOf("two") {
		t.Fatalf("Stage0(f) = %+v, %v", e, ok)
	}
}

func TestAddRejectsBadPaths(t *testing.T) {
	idx := New()
	for _, p := range []string{"", "/abs", "dir/", "a//b", "a/./b", "../x", ".git/config", "a/.git/x", "nul\x00"} {
		if err := idx.Add(entry(p, "x")); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Add(%q) = %v, want ErrInvalidEntry", p, err)
		}
	}
}

func TestSetConflictAndResolve(t *testing.T) {
	idx := New()
	idx.Add(entry("a", "a"))
	idx.Add(entry("conflict", "base"))
	idx.Add(entry("z", "z"))

	base, ours, theirs := entry("", "base"), entry("", "ours"), entry("", "theirs")
	if err := idx.SetConflict("conflict", &base, &ours, &theirs); err != nil {
		t.Fatalf("SetConflict: %v", err)
	}
	if err := idx.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, ok := idx.Stage0("conflict"); ok {
		t.Fatal("stage 0 entry survived SetConflict")
	}
	for stage, want := range map[Stage]string{StageBase: "base", StageOurs: "ours", StageTheirs: "theirs"} {
		e, ok := idx.Entry("conflict", stage)
		if !ok || e.Hash != hashOf(want) {
			t.Fatalf("Entry(conflict, %s) = %+v, %v", stage, e, ok)
		}
	}
	if diff := cmp.Diff([]string{"conflict"}, idx.Conflicted()); diff != "" {
		t.Fatalf("Conflicted mismatch (-want +got):\n%s", diff)
	}

	idx.Add(entry("conflict", "resolved"))
	if got := idx.Conflicted(); len(got) != 0 {
		t.Fatalf("Conflicted after Add = %v, want none", got)
	}
	if len(idx.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(idx.Entries))
	}
}

func TestSetConflictPartialSides(t *testing.T) {
	idx := New()
	ours := entry("", "ours")
	if err := idx.SetConflict("deleted-by-them", nil, &ours, nil); err != nil {
		t.Fatalf("SetConflict: %v", err)
	}
	if _, ok := idx.Entry("deleted-by-them", StageOurs); !ok {
		t.Fatal("missing stage 2 entry")
	}
	if _, ok := idx.Entry("deleted-by-them", StageBase); ok {
		t.Fatal("unexpected stage 1 entry")
	}
	if err := idx.SetConflict("x", nil, nil, nil); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("SetConflict with no sides = %v, want ErrInvalidEntry", err)
	}
}

func TestRemove(t *testing.T) {
	idx := New()
	idx.Add(entry("keep", "k"))
	ours, theirs := entry("", "o"), entry("", "t")
	idx.SetConflict("gone", nil, &ours, &theirs)

	if !idx.Remove("gone") {
		t.Fatal("Remove(gone) = false")
	}
	if idx.Remove("gone") {
		t.Fatal("second Remove(gone) = true")
	}
	if diff := cmp.Diff([]string{"keep"}, paths(idx)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if idx.Has("gone") || !idx.Has("keep") {
		t.Fatal("Has disagrees with entries")
	}
}

func TestValidateRejectsMixedStages(t *testing.T) {
	idx := &Index{Version: 2, Entries: []Entry{
		{Path: "f", Stage: StageNormal},
		{Path: "f", Stage: StageOurs},
	}}
	if err := idx.Validate(); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Validate = %v, want ErrInvalidEntry", err)
	}
}

func TestValidateRejectsUnsorted(t *testing.T) {
	idx := &Index{Version: 2, Entries: []Entry{entry("b", "b"), entry("a", "a")}}
	if err := idx.Validate(); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Validate = %v, want ErrInvalidEntry", err)
	}
	idx.Sort()
	if err := idx.Validate(); err != nil {
		t.Fatalf("Validate after Sort: %v", err)
	}
}

func TestValidateRejectsFileDirCollision(t *testing.T) {
	idx := New()
	idx.Add(entry("a", "file"))
	idx.Add(entry("a/b", "nested"))
	if err := idx.Validate(); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Validate = %v, want ErrInvalidEntry", err)
	}
}
