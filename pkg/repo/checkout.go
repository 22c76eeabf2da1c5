package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// Checkout switches the working directory to target: a branch name, in
// which case HEAD follows the branch, or any other revision ResolveRef
// accepts, which detaches HEAD.
func (r *Repo) Checkout(ctx context.Context, target string, failOnConflict bool) (*checkout.Result, error) {
	if _, err := r.Refs.Read(refs.HeadsPrefix + target); err == nil {
		return r.CheckoutBranch(ctx, target, failOnConflict)
	} else if !errors.Is(err, refs.ErrNotFound) && !errors.Is(err, refs.ErrInvalidName) {
		return nil, fmt.Errorf("checkout %q: %w", target, err)
	}

	h, err := r.ResolveRef(target)
	if err != nil {
		return nil, fmt.Errorf("checkout %q: %w", target, err)
	}
	return r.CheckoutDetached(ctx, h, failOnConflict)
}
