package refs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"syscall"

	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// RefUpdate asks for name to be set to New.
type RefUpdate struct {
	Name string
	New  object.Hash
	// Expected, when non-nil, is the value the ref must hold for the
	// update to proceed. A zero id requires the ref to be absent.
	Expected *object.Hash
	// Force allows a non-fast-forward update.
	Force bool
	// NoDeref writes the named slot itself even if it is currently a
	// symbolic ref (detaching HEAD, for example).
	NoDeref bool
	Message string
	// Who is recorded in the reflog; the store identity is used when empty.
	Who object.Signature
}

// RefDelete asks for name to be removed.
type RefDelete struct {
	Name     string
	Expected *object.Hash
	NoDeref  bool
	Message  string
	Who      object.Signature
}

// ExpectOld returns a pointer suitable for RefUpdate.Expected.
func ExpectOld(h object.Hash) *object.Hash {
	return &h
}

// maxChainRetries bounds how often a transaction re-locks when a symbolic
// chain changes between reading it and locking it.
const maxChainRetries = 3

// refTx holds the locks of one update: every name on the symbolic chain
// from the requested name to its leaf.
type refTx struct {
	names   []string
	locks   map[string]*lockfile.Lock
	slot    string
	current object.Hash
	exists  bool
	// symbolic is set when a NoDeref transaction targets a slot that
	// currently holds a symbolic ref.
	symbolic bool
}

func (tx *refTx) release() {
	for _, l := range tx.locks {
		_ = l.Unlock()
	}
}

// begin locks the chain of name. With noDeref only name itself is locked
// and written, but the current value is still the resolved one.
func (s *Store) begin(ctx context.Context, name string, noDeref bool) (*refTx, Result, error) {
	for attempt := 0; attempt < maxChainRetries; attempt++ {
		names, _, err := s.chain(name)
		if err != nil {
			return nil, ResultIOFailure, err
		}
		lockNames := names
		if noDeref {
			lockNames = []string{name}
		}

		tx := &refTx{names: lockNames, locks: make(map[string]*lockfile.Lock, len(lockNames))}
		// Lock in name order so concurrent updaters through different
		// symbolic names cannot deadlock.
		ordered := slices.Clone(lockNames)
		sort.Strings(ordered)
		for _, n := range ordered {
			l, err := lockfile.Acquire(ctx, s.refPath(n), s.opts.lock)
			if err != nil {
				tx.release()
				if errors.Is(err, lockfile.ErrTimeout) {
					s.log.Warn("ref lock contended", "ref", n, "err", err)
					return nil, ResultLockFailure, fmt.Errorf("lock ref %q: %w: %w", n, ErrLockFailure, err)
				}
				return nil, ResultIOFailure, fmt.Errorf("lock ref %q: %w", n, err)
			}
			tx.locks[n] = l
		}

		again, leafAgain, err := s.chain(name)
		if err != nil {
			tx.release()
			return nil, ResultIOFailure, err
		}
		if !slices.Equal(names, again) {
			tx.release()
			continue
		}
		tx.current = leafAgain.Hash
		tx.slot = again[len(again)-1]
		tx.exists = !leafAgain.Hash.IsZero()
		if noDeref {
			tx.slot = name
			ref, err := s.Read(name)
			tx.exists = err == nil
			tx.symbolic = err == nil && ref.IsSymbolic()
		}
		return tx, ResultNone, nil
	}
	return nil, ResultLockFailure, fmt.Errorf("lock ref %q: %w: symbolic chain kept changing", name, ErrLockFailure)
}

// Update runs one compare-and-swap ref update: lock, validate the expected
// old value, classify the move, write, and append the reflog. Rejections
// and failures leave the ref untouched and return the terminal Result with
// an error wrapping ErrCASMismatch, ErrNonFastForward or ErrLockFailure.
// NoChange writes nothing and logs nothing.
func (s *Store) Update(ctx context.Context, u RefUpdate) (Result, error) {
	if err := ValidateName(u.Name); err != nil {
		return ResultNone, err
	}
	if u.New.IsZero() {
		return ResultNone, fmt.Errorf("update ref %q: new value is the zero id", u.Name)
	}
	if err := ctx.Err(); err != nil {
		return ResultNone, err
	}

	tx, res, err := s.begin(ctx, u.Name, u.NoDeref)
	if err != nil {
		return res, fmt.Errorf("update ref %q: %w", u.Name, err)
	}
	defer tx.release()

	cur := tx.current
	if u.Expected != nil && *u.Expected != cur {
		return ResultRejectedCASMismatch, fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			u.Name,
			ErrCASMismatch,
			*u.Expected,
			cur,
		)
	}
	if cur == u.New && !cur.IsZero() && !tx.symbolic {
		return ResultNoChange, nil
	}
	if s.objects != nil && !s.objects.Has(u.New) {
		return ResultIOFailure, fmt.Errorf("update ref %q: new value %s: %w", u.Name, u.New, object.ErrNotFound)
	}

	var result Result
	switch {
	case cur.IsZero():
		result = ResultNew
	default:
		ff, err := s.isFastForward(cur, u.New)
		if err != nil {
			return ResultIOFailure, fmt.Errorf("update ref %q: %w", u.Name, err)
		}
		switch {
		case ff:
			result = ResultFastForward
		case u.Force:
			result = ResultForced
		default:
			return ResultRejectedNonFastForward, fmt.Errorf(
				"update ref %q: %w (%s is not an ancestor of %s)",
				u.Name,
				ErrNonFastForward,
				cur,
				u.New,
			)
		}
	}

	lock := tx.locks[tx.slot]
	if _, err := lock.Write([]byte(u.New.String() + "\n")); err != nil {
		return ResultIOFailure, fmt.Errorf("update ref %q: write: %w", u.Name, err)
	}
	if err := s.commit(lock); err != nil {
		return ResultIOFailure, fmt.Errorf("update ref %q: %w", u.Name, err)
	}
	s.log.Info("ref updated", "ref", tx.slot, "result", result, "old", cur, "new", u.New)

	if err := s.appendReflogs(tx.names, cur, u.New, u.Who, u.Message); err != nil {
		return result, &ReflogError{Ref: u.Name, OldHash: cur, NewHash: u.New, Err: err}
	}
	return result, nil
}

func (s *Store) isFastForward(cur, next object.Hash) (bool, error) {
	if s.objects == nil {
		return false, nil
	}
	for _, h := range []object.Hash{cur, next} {
		ok, err := s.objects.IsCommit(h)
		if errors.Is(err, object.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return s.objects.IsAncestor(cur, next)
}

func (s *Store) appendReflogs(names []string, oldHash, newHash object.Hash, who object.Signature, message string) error {
	var errs []error
	for _, n := range names {
		if err := s.appendReflog(n, oldHash, newHash, who, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes a ref under the same lock and validation protocol as
// Update. The loose file is removed and packed-refs is rewritten without
// the name. Deleting an absent ref without an expected value is NoChange.
func (s *Store) Delete(ctx context.Context, d RefDelete) (Result, error) {
	if err := ValidateName(d.Name); err != nil {
		return ResultNone, err
	}
	if err := ctx.Err(); err != nil {
		return ResultNone, err
	}

	tx, res, err := s.begin(ctx, d.Name, d.NoDeref)
	if err != nil {
		return res, fmt.Errorf("delete ref %q: %w", d.Name, err)
	}
	defer tx.release()

	cur := tx.current
	if d.Expected != nil && *d.Expected != cur {
		return ResultRejectedCASMismatch, fmt.Errorf(
			"delete ref %q: %w (expected %s, found %s)",
			d.Name,
			ErrCASMismatch,
			*d.Expected,
			cur,
		)
	}
	if !tx.exists {
		return ResultNoChange, nil
	}

	// Packed entry first: a failure between the two steps must not
	// uncover an older packed value.
	if err := s.removePacked(ctx, tx.slot); err != nil {
		return ResultIOFailure, fmt.Errorf("delete ref %q: packed-refs: %w", d.Name, err)
	}
	path := s.refPath(tx.slot)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ResultIOFailure, fmt.Errorf("delete ref %q: %w", d.Name, err)
	}
	// Drop our lock before pruning so its file does not keep the
	// directory non-empty. A concurrent writer that loses its directory
	// to the prune recreates it in lockfile.Acquire, and one whose lock
	// file already exists makes the prune stop.
	tx.locks[tx.slot].Unlock()
	s.pruneEmptyDirs(filepath.Dir(path))
	s.log.Info("ref deleted", "ref", tx.slot, "old", cur)

	if err := s.appendReflogs(tx.names, cur, object.ZeroHash, d.Who, d.Message); err != nil {
		return ResultDeleted, &ReflogError{Ref: d.Name, OldHash: cur, NewHash: object.ZeroHash, Err: err}
	}
	return ResultDeleted, nil
}

// pruneEmptyDirs removes empty directories from dir upward, stopping at
// the refs/ root. A directory that is not empty, or already gone, ends the
// walk; other failures are logged.
func (s *Store) pruneEmptyDirs(dir string) {
	stop := filepath.Join(s.gitDir, "refs")
	for dir != stop && len(dir) > len(stop) {
		if err := os.Remove(dir); err != nil {
			if !errors.Is(err, syscall.ENOTEMPTY) && !errors.Is(err, syscall.EEXIST) && !errors.Is(err, fs.ErrNotExist) {
				s.log.Debug("prune ref directory", "dir", dir, "err", err)
			}
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Link points the symbolic slot name at target, for example HEAD at
// refs/heads/topic. The target need not exist yet. The reflog of name
// records the move between the resolved values.
func (s *Store) Link(ctx context.Context, name, target, message string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateName(target); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, _, err := s.begin(ctx, name, true)
	if err != nil {
		return fmt.Errorf("link %q: %w", name, err)
	}
	defer tx.release()

	lock := tx.locks[name]
	if _, err := lock.Write([]byte(symrefPrefix + target + "\n")); err != nil {
		return fmt.Errorf("link %q: write: %w", name, err)
	}
	if err := s.commit(lock); err != nil {
		return fmt.Errorf("link %q: %w", name, err)
	}
	s.log.Info("symbolic ref updated", "ref", name, "target", target)

	// Unborn, dangling or looping targets are logged as the zero id.
	next, err := s.Resolve(target)
	if err != nil {
		next = object.ZeroHash
	}
	if tx.current.IsZero() && next.IsZero() {
		return nil
	}
	if err := s.appendReflog(name, tx.current, next, object.Signature{}, message); err != nil {
		return &ReflogError{Ref: name, OldHash: tx.current, NewHash: next, Err: err}
	}
	return nil
}
