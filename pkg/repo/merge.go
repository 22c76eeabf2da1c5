package repo

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// MergeConflict is one path an external merge engine could not resolve.
// A nil side means the path is absent on that side.
type MergeConflict struct {
	Path   string
	Base   *index.Entry
	Ours   *index.Entry
	Theirs *index.Entry
}

// MergeOutcome is what an external merge engine produces: the merged tree
// and, when the merge is not clean, the conflicted paths. With conflicts,
// Tree holds the cleanly merged paths; it may be zero to leave the working
// tree as it is.
type MergeOutcome struct {
	Tree      object.Hash
	Conflicts []MergeConflict
}

// Clean reports whether the merge resolved every path.
func (o MergeOutcome) Clean() bool {
	return len(o.Conflicts) == 0
}

// ApplyMerge materializes a merge result. The tree is checked out with
// failOnConflict, so local changes in the way abort before anything is
// touched. Conflicts are then written into the index exactly as given, as
// stage 1/2/3 entries, where they block the next commit until resolved.
//
// ApplyMerge does not commit or move HEAD; recording the merge commit is
// left to the caller once the index is clean.
func (r *Repo) ApplyMerge(ctx context.Context, outcome MergeOutcome) (*checkout.Result, error) {
	locked, err := r.lockIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply merge: %w", err)
	}
	defer locked.Unlock()

	res := &checkout.Result{}
	if !outcome.Tree.IsZero() {
		res, err = r.checkout.Checkout(ctx, locked, outcome.Tree, true)
		if err != nil {
			return res, fmt.Errorf("apply merge: %w", err)
		}
	}
	if outcome.Clean() {
		return res, nil
	}

	idx, err := locked.Read()
	if err != nil {
		return res, fmt.Errorf("apply merge: %w", err)
	}
	for _, c := range outcome.Conflicts {
		if err := idx.SetConflict(c.Path, c.Base, c.Ours, c.Theirs); err != nil {
			return res, fmt.Errorf("apply merge: %w", err)
		}
	}
	if err := locked.Replace(idx); err != nil {
		return res, fmt.Errorf("apply merge: %w", err)
	}
	r.log.Info("merge applied with conflicts", "paths", len(outcome.Conflicts))
	return res, nil
}

// MergeBase returns a best common ancestor of commits a and b, the input an
// external merge engine diffs both sides against. It returns the zero id
// when the histories are disjoint.
//
// Commits are visited highest generation first, carrying which side reached
// them. A commit is only popped after all its descendants, so the first one
// reached from both sides is a common ancestor that no other common
// ancestor descends from.
func (r *Repo) MergeBase(ctx context.Context, a, b object.Hash) (object.Hash, error) {
	if a.IsZero() || b.IsZero() {
		return object.ZeroHash, nil
	}
	if a == b {
		return a, nil
	}

	paints := map[object.Hash]paint{a: paintLeft, b: paintRight}
	q := &generationHeap{}
	for _, h := range []object.Hash{a, b} {
		gen, err := r.graph.generation(h)
		if err != nil {
			return object.ZeroHash, err
		}
		heap.Push(q, generationItem{hash: h, generation: gen})
	}

	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return object.ZeroHash, err
		}
		item := heap.Pop(q).(generationItem)
		color := paints[item.hash]
		if color == paintBoth {
			return item.hash, nil
		}
		parents, err := r.graph.parentsOf(item.hash)
		if err != nil {
			return object.ZeroHash, err
		}
		for _, p := range parents {
			if paints[p]|color == paints[p] {
				continue
			}
			paints[p] |= color
			gen, err := r.graph.generation(p)
			if err != nil {
				return object.ZeroHash, err
			}
			heap.Push(q, generationItem{hash: p, generation: gen})
		}
	}
	return object.ZeroHash, nil
}
