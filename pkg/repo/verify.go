package repo

import (
	"context"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/object"
)

// VerifyReport summarizes Verify.
type VerifyReport struct {
	Objects *object.VerifySummary
	// Reachable is the number of objects reachable from refs and HEAD.
	Reachable int
}

// Verify re-hashes every stored object and checks that everything the refs
// reach is present. It returns the first integrity failure as an error
// wrapping object.ErrHashMismatch, object.ErrCorruptObject or
// object.ErrNotFound.
func (r *Repo) Verify(ctx context.Context) (*VerifyReport, error) {
	summary, err := r.Objects.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	list, err := r.Refs.List("refs/")
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	var roots []object.Hash
	for _, ref := range list {
		if !ref.IsSymbolic() {
			roots = append(roots, ref.Hash)
		}
	}
	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	roots = append(roots, head)

	reach, err := r.Objects.ReachableSet(ctx, roots, nil)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if n := len(reach.Missing); n > 0 {
		return nil, fmt.Errorf("verify: %d reachable objects missing, first %s: %w", n, reach.Missing[0], object.ErrNotFound)
	}
	return &VerifyReport{Objects: summary, Reachable: len(reach.Objects)}, nil
}
