package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/odvcencio/gitcore/pkg/object"
)

// graphCommit stores an empty-tree commit with the given parents.
func graphCommit(t *testing.T, r *Repo, msg string, parents ...object.Hash) object.Hash {
	t.Helper()
	tree, err := r.Objects.WriteTree(&object.TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	h, err := r.Objects.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    testSig,
		Committer: testSig,
		Message:   msg + "\n",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	return h
}

func TestMergeBase_Diverged(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	root := graphCommit(t, r, "root")
	base := graphCommit(t, r, "base", root)
	left := graphCommit(t, r, "left 1", base)
	left = graphCommit(t, r, "left 2", left)
	right := graphCommit(t, r, "right 1", base)

	got, err := r.MergeBase(ctx, left, right)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if got != base {
		t.Errorf("MergeBase = %s, want %s", got.Short(), base.Short())
	}
	rev, err := r.MergeBase(ctx, right, left)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if rev != base {
		t.Errorf("MergeBase reversed = %s, want %s", rev.Short(), base.Short())
	}
}

func TestMergeBase_Ancestor(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	a := graphCommit(t, r, "a")
	b := graphCommit(t, r, "b", a)
	c := graphCommit(t, r, "c", b)

	for _, pair := range [][2]object.Hash{{a, c}, {c, a}} {
		got, err := r.MergeBase(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("MergeBase: %v", err)
		}
		if got != a {
			t.Errorf("MergeBase(%s, %s) = %s, want %s", pair[0].Short(), pair[1].Short(), got.Short(), a.Short())
		}
	}
	if got, _ := r.MergeBase(ctx, b, b); got != b {
		t.Errorf("MergeBase(b, b) = %s", got.Short())
	}
}

func TestMergeBase_PrefersNewestAfterMerge(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	root := graphCommit(t, r, "root")
	side := graphCommit(t, r, "side", root)
	main := graphCommit(t, r, "main", root)
	merged := graphCommit(t, r, "merge side into main", main, side)
	left := graphCommit(t, r, "left", merged)
	right := graphCommit(t, r, "right", side)

	got, err := r.MergeBase(ctx, left, right)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if got != side {
		t.Errorf("MergeBase = %s, want side %s", got.Short(), side.Short())
	}
}

func TestMergeBase_Disjoint(t *testing.T) {
	r := initRepo(t)
	a := graphCommit(t, r, "a")
	b := graphCommit(t, r, "b")
	got, err := r.MergeBase(context.Background(), a, b)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("MergeBase = %s, want zero", got)
	}
}

func TestMergeBase_LongHistory(t *testing.T) {
	r := initRepo(t)
	base := graphCommit(t, r, "base")
	tip := base
	for i := 0; i < 2000; i++ {
		tip = graphCommit(t, r, fmt.Sprintf("commit %d", i), tip)
	}
	other := graphCommit(t, r, "other", base)

	got, err := r.MergeBase(context.Background(), tip, other)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if got != base {
		t.Errorf("MergeBase = %s, want %s", got.Short(), base.Short())
	}
	if gen, err := r.graph.generation(tip); err != nil || gen != 2001 {
		t.Errorf("generation(tip) = %d, %v, want 2001", gen, err)
	}
}
