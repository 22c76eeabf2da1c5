package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// storeTree writes a flat tree of name -> content and returns its id.
func storeTree(t *testing.T, r *Repo, files map[string]string) object.Hash {
	t.Helper()
	tree := &object.TreeObj{}
	for name, content := range files {
		h, err := r.Objects.Write(object.TypeBlob, []byte(content))
		if err != nil {
			t.Fatalf("write blob: %v", err)
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: object.ModeRegular, Hash: h})
	}
	h, err := r.Objects.WriteTree(tree)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return h
}

func blobEntry(r *Repo, t *testing.T, content string) *index.Entry {
	t.Helper()
	h, err := r.Objects.Write(object.TypeBlob, []byte(content))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return &index.Entry{Mode: object.ModeRegular, Hash: h}
}

func TestApplyMerge_Clean(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	writeFile(t, r, "a.txt", "a\n")
	commitAll(t, r, "base")

	merged := storeTree(t, r, map[string]string{"a.txt": "a\n", "b.txt": "from theirs\n"})
	res, err := r.ApplyMerge(ctx, MergeOutcome{Tree: merged})
	if err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}
	if diff := cmp.Diff([]string{"b.txt"}, res.Updated); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
	if got := readFile(t, r, "b.txt"); got != "from theirs\n" {
		t.Errorf("b.txt = %q", got)
	}
	if diff := cmp.Diff([]string{"A  b.txt"}, statusLines(t, r)); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyMerge_ConflictsBlockCommit(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	writeFile(t, r, "a.txt", "base\n")
	writeFile(t, r, "other.txt", "other\n")
	commitAll(t, r, "base")

	merged := storeTree(t, r, map[string]string{"a.txt": "base\n", "other.txt": "other merged\n"})
	outcome := MergeOutcome{
		Tree: merged,
		Conflicts: []MergeConflict{{
			Path:   "a.txt",
			Base:   blobEntry(r, t, "base\n"),
			Ours:   blobEntry(r, t, "ours\n"),
			Theirs: blobEntry(r, t, "theirs\n"),
		}},
	}
	if outcome.Clean() {
		t.Fatal("outcome with conflicts reports clean")
	}
	if _, err := r.ApplyMerge(ctx, outcome); err != nil {
		t.Fatalf("ApplyMerge: %v", err)
	}

	want := []string{"UU a.txt", "M  other.txt"}
	if diff := cmp.Diff(want, statusLines(t, r)); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	_, err := r.Commit(ctx, CommitOptions{Message: "merge", Author: testSig, Committer: testSig})
	if !errors.Is(err, index.ErrUnmergedPath) {
		t.Fatalf("commit with conflicts: err = %v, want ErrUnmergedPath", err)
	}

	writeFile(t, r, "a.txt", "resolved by hand\n")
	if err := r.Add(ctx, []string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "merge", Author: testSig, Committer: testSig}); err != nil {
		t.Fatalf("commit after resolving: %v", err)
	}
}

func TestApplyMerge_DirtyWorktreeAborts(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "base\n")
	commitAll(t, r, "base")
	writeFile(t, r, "a.txt", "uncommitted work\n")

	merged := storeTree(t, r, map[string]string{"a.txt": "merged\n"})
	_, err := r.ApplyMerge(context.Background(), MergeOutcome{Tree: merged})
	if !errors.Is(err, checkout.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got := readFile(t, r, "a.txt"); got != "uncommitted work\n" {
		t.Errorf("a.txt = %q, local work lost", got)
	}
}
