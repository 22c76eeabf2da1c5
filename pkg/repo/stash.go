package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// ErrNoStash is returned when the requested stash entry does not exist.
var ErrNoStash = errors.New("no such stash entry")

// StashCreate saves the index and the tracked working files as a stash
// entry and resets the working tree to HEAD. It returns the zero id, and
// changes nothing, when there is nothing to save.
//
// An entry is a commit whose tree is the working-tree snapshot and whose
// parents are HEAD and a second commit holding the index snapshot. The
// entry is pushed by force-updating refs/stash, so the stash stack is the
// reflog of refs/stash. Untracked files are neither saved nor removed.
func (r *Repo) StashCreate(ctx context.Context, message string) (object.Hash, error) {
	head, err := r.Head()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	if head.IsZero() {
		return object.ZeroHash, fmt.Errorf("stash: HEAD has no commits yet")
	}
	headCommit, err := r.Objects.ReadCommit(head)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}

	locked, err := r.lockIndex(ctx)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	defer locked.Unlock()
	idx, err := locked.Read()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}

	in := r.Objects.NewInserter()
	defer in.Release()

	indexTree, err := index.WriteTree(idx, in)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	wt, err := r.snapshotWorktree(idx, in)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	worktreeTree, err := index.WriteTree(wt, in)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	if indexTree == headCommit.TreeHash && worktreeTree == headCommit.TreeHash {
		return object.ZeroHash, nil
	}

	label, err := r.headLabel()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	base := fmt.Sprintf("%s %s", head.Short(), subject(headCommit.Message))
	if message == "" {
		message = fmt.Sprintf("WIP on %s: %s", label, base)
	} else {
		message = fmt.Sprintf("On %s: %s", label, message)
	}

	who := r.who()
	indexCommit, err := in.Insert(&object.CommitObj{
		TreeHash:  indexTree,
		Parents:   []object.Hash{head},
		Author:    who,
		Committer: who,
		Message:   fmt.Sprintf("index on %s: %s\n", label, base),
	})
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	stash, err := in.Insert(&object.CommitObj{
		TreeHash:  worktreeTree,
		Parents:   []object.Hash{head, indexCommit},
		Author:    who,
		Committer: who,
		Message:   message + "\n",
	})
	if err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}
	if err := in.Flush(); err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}

	if _, err := r.Refs.Update(ctx, refs.RefUpdate{
		Name:    refs.Stash,
		New:     stash,
		Force:   true,
		Message: message,
		Who:     who,
	}); err != nil {
		return object.ZeroHash, fmt.Errorf("stash: %w", err)
	}

	if _, err := r.checkout.Force(ctx, locked, head); err != nil {
		return stash, fmt.Errorf("stash: reset to HEAD: %w", err)
	}
	r.log.Info("stash saved", "id", stash.Short(), "message", message)
	return stash, nil
}

// snapshotWorktree returns a copy of idx's entries updated to what the
// tracked working files hold now. Missing files are left out.
func (r *Repo) snapshotWorktree(idx *index.Index, in *object.Inserter) (*index.Index, error) {
	wt := index.New()
	for i := range idx.Entries {
		e := idx.Entries[i]
		if e.Mode.IsGitlink() {
			wt.Entries = append(wt.Entries, e)
			continue
		}
		abs := r.absPath(e.Path)
		info, err := os.Lstat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
				continue
			}
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		if !e.StatMatches(info) || idx.Racy(&e) || object.ModeFromFileInfo(info) != e.Mode {
			var data []byte
			if info.Mode()&os.ModeSymlink != 0 {
				target, err := os.Readlink(abs)
				if err != nil {
					return nil, err
				}
				data = []byte(target)
			} else if data, err = os.ReadFile(abs); err != nil {
				return nil, err
			}
			if e.Hash, err = in.Write(object.TypeBlob, data); err != nil {
				return nil, err
			}
			e.Mode = object.ModeFromFileInfo(info)
		}
		wt.Entries = append(wt.Entries, e)
	}
	return wt, nil
}

// StashEntry is one element of the stash stack, newest first.
type StashEntry struct {
	Commit  object.Hash
	Message string
}

// StashList returns the stash stack from the reflog of refs/stash.
func (r *Repo) StashList() ([]StashEntry, error) {
	log, err := r.Refs.ReadReflog(refs.Stash, 0)
	if err != nil {
		return nil, fmt.Errorf("stash list: %w", err)
	}
	out := make([]StashEntry, 0, len(log))
	for _, e := range log {
		if e.New.IsZero() {
			continue
		}
		out = append(out, StashEntry{Commit: e.New, Message: e.Message})
	}
	return out, nil
}

// StashApply restores stash entry n (0 is the newest) by checking out its
// working-tree snapshot with failOnConflict, so local changes in the way
// abort the apply untouched. The index is then set to HEAD for the
// restored paths, leaving the changes unstaged, or to the stashed index
// snapshot when restoreIndex is set.
func (r *Repo) StashApply(ctx context.Context, n int, restoreIndex bool) (*checkout.Result, error) {
	entries, err := r.StashList()
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(entries) {
		return nil, fmt.Errorf("stash@{%d}: %w", n, ErrNoStash)
	}
	stash, err := r.Objects.ReadCommit(entries[n].Commit)
	if err != nil {
		return nil, fmt.Errorf("stash@{%d}: %w", n, err)
	}
	if len(stash.Parents) != 2 {
		return nil, fmt.Errorf("stash@{%d}: %s is not a stash commit", n, entries[n].Commit.Short())
	}

	locked, err := r.lockIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("stash apply: %w", err)
	}
	defer locked.Unlock()

	res, err := r.checkout.Checkout(ctx, locked, stash.TreeHash, true)
	if err != nil {
		return res, fmt.Errorf("stash apply: %w", err)
	}

	indexTree, err := r.headTree()
	if err != nil {
		return res, fmt.Errorf("stash apply: %w", err)
	}
	if restoreIndex {
		ic, err := r.Objects.ReadCommit(stash.Parents[1])
		if err != nil {
			return res, fmt.Errorf("stash apply: index commit: %w", err)
		}
		indexTree = ic.TreeHash
	}
	if err := r.readTreeIntoIndex(locked, indexTree); err != nil {
		return res, fmt.Errorf("stash apply: %w", err)
	}
	return res, nil
}
