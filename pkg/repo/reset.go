package repo

import (
	"context"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// ResetMode selects how much of the repository Reset rewinds.
type ResetMode int

const (
	// ResetSoft moves HEAD only.
	ResetSoft ResetMode = iota
	// ResetMixed moves HEAD and rewrites the index; the working tree stays.
	ResetMixed
	// ResetHard moves HEAD and forces the index and working tree to match.
	ResetHard
)

func (m ResetMode) String() string {
	switch m {
	case ResetSoft:
		return "soft"
	case ResetMixed:
		return "mixed"
	case ResetHard:
		return "hard"
	}
	return "unknown"
}

// Reset moves the current branch (or detached HEAD) to commit. A hard reset
// returns what the forced checkout changed.
func (r *Repo) Reset(ctx context.Context, commit object.Hash, mode ResetMode) (*checkout.Result, error) {
	tree, err := r.Objects.PeelToTree(commit)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	res := &checkout.Result{}
	if mode != ResetSoft {
		locked, err := r.lockIndex(ctx)
		if err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		defer locked.Unlock()

		if mode == ResetHard {
			res, err = r.checkout.Force(ctx, locked, tree)
		} else {
			err = r.readTreeIntoIndex(locked, tree)
		}
		if err != nil {
			return res, fmt.Errorf("reset: %w", err)
		}
	}

	_, err = r.Refs.Update(ctx, refs.RefUpdate{
		Name:    refs.HEAD,
		New:     commit,
		Force:   true,
		Message: "reset: moving to " + commit.String(),
		Who:     r.who(),
	})
	if err != nil {
		return res, fmt.Errorf("reset: %w", err)
	}
	return res, nil
}

// ResetPaths restores the index entries of paths from HEAD, leaving the
// working tree alone. Paths HEAD does not have are unstaged.
func (r *Repo) ResetPaths(ctx context.Context, paths []string) error {
	headTree, err := r.headTree()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	files, err := r.treeFiles(headTree)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	locked, err := r.lockIndex(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer locked.Unlock()
	idx, err := locked.Read()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		removeTracked(idx, rel, nil)
		for _, f := range files {
			if within(f.Path, rel) {
				if err := idx.Add(index.Entry{Path: f.Path, Mode: f.Mode, Hash: f.Hash}); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
			}
		}
	}
	return locked.Replace(idx)
}

// readTreeIntoIndex replaces the index held by locked with the contents of
// tree. Entries whose id and mode are unchanged keep their cached stat
// data, so the working tree does not look modified afterwards.
func (r *Repo) readTreeIntoIndex(locked *index.Locked, tree object.Hash) error {
	files, err := r.treeFiles(tree)
	if err != nil {
		return err
	}
	old, err := locked.Read()
	if err != nil {
		return err
	}
	next := index.FromTree(files)
	for i := range next.Entries {
		e := &next.Entries[i]
		if prev, ok := old.Stage0(e.Path); ok && prev.Hash == e.Hash && prev.Mode == e.Mode {
			*e = *prev
		}
	}
	return locked.Replace(next)
}
