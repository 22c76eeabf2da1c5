package repo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// ErrIncompleteFetch is returned when a proposed ref would point at history
// that is not in the object store after ingesting the fetched objects.
var ErrIncompleteFetch = errors.New("fetched objects are incomplete")

// ProposedUpdate is one ref change advertised by a remote. A zero New asks
// for the ref to be deleted (a pruned remote branch).
type ProposedUpdate struct {
	Name  string
	New   object.Hash
	Force bool
}

// FetchResult is what a transport hands over after talking to a remote:
// a pack stream and/or individual objects, plus the ref changes they
// support.
type FetchResult struct {
	Pack    io.Reader
	Objects []object.Object
	Updates []ProposedUpdate
	// Message is recorded in the reflog of every updated ref.
	Message string
}

// RefUpdateResult reports what happened to one proposed update.
type RefUpdateResult struct {
	Name   string
	Old    object.Hash
	New    object.Hash
	Result refs.Result
	Err    error
}

// ApplyFetch ingests the fetched objects and then applies each proposed ref
// update as a compare-and-swap against the value this repository holds.
//
// Objects are ingested first (the pack through IndexPack, loose objects
// through one inserter flush) and every proposed target is checked for
// connectivity before any ref moves; a gap fails the whole fetch with
// ErrIncompleteFetch and leaves every ref untouched. Individual updates
// can still be rejected (for example as non-fast-forward) without
// affecting the others; their outcomes are in the returned slice.
func (r *Repo) ApplyFetch(ctx context.Context, fr FetchResult) ([]RefUpdateResult, error) {
	if fr.Pack != nil {
		summary, err := r.Objects.IndexPack(ctx, fr.Pack)
		if err != nil {
			return nil, fmt.Errorf("fetch: index pack: %w", err)
		}
		r.log.Info("fetch: pack indexed", "pack", summary.Name.Short(), "objects", summary.Objects)
	}
	if len(fr.Objects) > 0 {
		if err := r.insertObjects(fr.Objects); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	if err := r.checkConnected(ctx, fr.Updates); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	msg := fr.Message
	if msg == "" {
		msg = "fetch"
	}
	results := make([]RefUpdateResult, 0, len(fr.Updates))
	for _, u := range fr.Updates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.applyProposed(ctx, u, msg))
	}
	return results, nil
}

func (r *Repo) insertObjects(objs []object.Object) error {
	in := r.Objects.NewInserter()
	defer in.Release()
	for _, obj := range objs {
		if _, err := in.Insert(obj); err != nil {
			return err
		}
	}
	return in.Flush()
}

// checkConnected walks from every proposed target, stopping at objects the
// current refs already reach, and fails if anything is missing.
func (r *Repo) checkConnected(ctx context.Context, updates []ProposedUpdate) error {
	var roots []object.Hash
	for _, u := range updates {
		if !u.New.IsZero() {
			roots = append(roots, u.New)
		}
	}
	if len(roots) == 0 {
		return nil
	}
	existing, err := r.Refs.List("refs/")
	if err != nil {
		return err
	}
	stop := make(map[object.Hash]struct{}, len(existing))
	for _, ref := range existing {
		if !ref.Hash.IsZero() && r.Objects.Has(ref.Hash) {
			stop[ref.Hash] = struct{}{}
		}
	}
	reach, err := r.Objects.ReachableSet(ctx, roots, stop)
	if err != nil {
		return err
	}
	if n := len(reach.Missing); n > 0 {
		return fmt.Errorf("%w: %d objects missing, first %s", ErrIncompleteFetch, n, reach.Missing[0])
	}
	return nil
}

func (r *Repo) applyProposed(ctx context.Context, u ProposedUpdate, msg string) RefUpdateResult {
	res := RefUpdateResult{Name: u.Name, New: u.New}
	old, err := r.Refs.Resolve(u.Name)
	switch {
	case errors.Is(err, refs.ErrNotFound):
	case err != nil:
		res.Result, res.Err = refs.ResultIOFailure, err
		return res
	default:
		res.Old = old
	}

	if u.New.IsZero() {
		res.Result, res.Err = r.Refs.Delete(ctx, refs.RefDelete{
			Name:     u.Name,
			Expected: refs.ExpectOld(res.Old),
			Message:  msg,
		})
	} else {
		res.Result, res.Err = r.Refs.Update(ctx, refs.RefUpdate{
			Name:     u.Name,
			New:      u.New,
			Expected: refs.ExpectOld(res.Old),
			Force:    u.Force,
			Message:  msg,
		})
	}
	r.log.Debug("fetch: ref", "ref", u.Name, "result", res.Result)
	return res
}
