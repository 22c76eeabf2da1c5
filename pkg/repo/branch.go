package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// CreateBranch creates refs/heads/<name> pointing at target, or at HEAD
// when target is zero. It fails if the branch already exists.
func (r *Repo) CreateBranch(ctx context.Context, name string, target object.Hash) error {
	refName := refs.HeadsPrefix + name
	if err := refs.ValidateName(refName); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	from := "HEAD"
	if target.IsZero() {
		head, err := r.Head()
		if err != nil {
			return fmt.Errorf("create branch %q: %w", name, err)
		}
		if head.IsZero() {
			return fmt.Errorf("create branch %q: HEAD has no commits yet", name)
		}
		target = head
	} else {
		from = target.Short()
	}

	_, err := r.Refs.Update(ctx, refs.RefUpdate{
		Name:     refName,
		New:      target,
		Expected: refs.ExpectOld(object.ZeroHash),
		Message:  "branch: Created from " + from,
		Who:      r.who(),
	})
	if errors.Is(err, refs.ErrCASMismatch) {
		return fmt.Errorf("create branch %q: already exists", name)
	}
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name>. The current branch cannot be
// deleted.
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch %q: cannot delete the current branch", name)
	}
	refName := refs.HeadsPrefix + name
	old, err := r.Refs.Resolve(refName)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	if _, err := r.Refs.Delete(ctx, refs.RefDelete{
		Name:     refName,
		Expected: refs.ExpectOld(old),
		Message:  "branch: deleted",
		Who:      r.who(),
	}); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// ListBranches returns the short names of all branches, sorted.
func (r *Repo) ListBranches() ([]string, error) {
	list, err := r.Refs.List(refs.HeadsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(list))
	for _, ref := range list {
		names = append(names, refs.BranchName(ref.Name))
	}
	return names, nil
}

// CurrentBranch returns the short name of the branch HEAD points to, or ""
// when HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	target, err := r.Refs.Symbolic(refs.HEAD)
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return refs.BranchName(target), nil
}

// CheckoutBranch switches the working tree and index to the tip of branch
// name and then points HEAD at it.
//
// With failOnConflict set a conflicting path aborts the switch before
// anything is touched and HEAD stays put. Otherwise conflicting paths keep
// their local state, are listed in the result, and HEAD still moves.
func (r *Repo) CheckoutBranch(ctx context.Context, name string, failOnConflict bool) (*checkout.Result, error) {
	refName := refs.HeadsPrefix + name
	target, err := r.Refs.Resolve(refName)
	if err != nil {
		return nil, fmt.Errorf("checkout %q: %w", name, err)
	}
	from, err := r.headLabel()
	if err != nil {
		return nil, fmt.Errorf("checkout %q: %w", name, err)
	}

	res, err := r.checkoutTree(ctx, target, failOnConflict)
	if err != nil {
		return res, err
	}
	if err := r.Refs.Link(ctx, refs.HEAD, refName, fmt.Sprintf("checkout: moving from %s to %s", from, name)); err != nil {
		return res, fmt.Errorf("checkout %q: %w", name, err)
	}
	return res, nil
}

// CheckoutDetached checks out commit and detaches HEAD at it.
func (r *Repo) CheckoutDetached(ctx context.Context, commit object.Hash, failOnConflict bool) (*checkout.Result, error) {
	from, err := r.headLabel()
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", commit.Short(), err)
	}
	res, err := r.checkoutTree(ctx, commit, failOnConflict)
	if err != nil {
		return res, err
	}
	_, err = r.Refs.Update(ctx, refs.RefUpdate{
		Name:    refs.HEAD,
		New:     commit,
		Force:   true,
		NoDeref: true,
		Message: fmt.Sprintf("checkout: moving from %s to %s", from, commit),
		Who:     r.who(),
	})
	if err != nil {
		return res, fmt.Errorf("checkout %s: detach HEAD: %w", commit.Short(), err)
	}
	return res, nil
}

// checkoutTree runs the checkout engine against target under the index
// lock.
func (r *Repo) checkoutTree(ctx context.Context, target object.Hash, failOnConflict bool) (*checkout.Result, error) {
	locked, err := r.lockIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	defer locked.Unlock()
	return r.checkout.Checkout(ctx, locked, target, failOnConflict)
}

// headLabel names what HEAD points at for reflog messages: the branch, or
// the commit id when detached.
func (r *Repo) headLabel() (string, error) {
	branch, err := r.CurrentBranch()
	if err != nil {
		return "", err
	}
	if branch != "" {
		return branch, nil
	}
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	return head.String(), nil
}
