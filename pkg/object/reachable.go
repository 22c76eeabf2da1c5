package object

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Reachability is the result of a connectivity walk.
type Reachability struct {
	Objects map[Hash]struct{}
	// Missing lists ids referenced by a walked object but absent from the
	// store, in id order.
	Missing []Hash
}

// ReachableSet walks from roots through commit parents and trees, tag
// targets, and tree entries. Walking stops at ids in stop, which the caller
// already knows to be complete. Gitlink entries name commits in another
// repository and are not followed. Context cancellation is checked once per
// object.
func (s *Store) ReachableSet(ctx context.Context, roots []Hash, stop map[Hash]struct{}) (*Reachability, error) {
	out := &Reachability{Objects: make(map[Hash]struct{}, len(roots))}
	missing := make(map[Hash]struct{})

	stack := uniqueHashes(roots)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.IsZero() {
			continue
		}
		if _, ok := out.Objects[h]; ok {
			continue
		}
		if _, ok := stop[h]; ok {
			continue
		}

		objType, data, err := s.Read(h)
		if errors.Is(err, ErrNotFound) {
			missing[h] = struct{}{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", h, err)
		}
		out.Objects[h] = struct{}{}

		refs, err := referencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("reachable set parse %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	for h := range missing {
		out.Missing = append(out.Missing, h)
	}
	sort.Slice(out.Missing, func(i, j int) bool { return out.Missing[i].Compare(out.Missing[j]) < 0 })
	return out, nil
}

func referencedHashes(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := UnmarshalTag(data)
		if err != nil {
			return nil, err
		}
		return []Hash{tag.Target}, nil
	case TypeCommit:
		commit, err := UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.TreeHash)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		tree, err := UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			if e.Mode.IsGitlink() {
				continue
			}
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", objType)
	}
}

// IsAncestor reports whether ancestor is reachable from descendant through
// commit parent links. A commit is its own ancestor.
func (s *Store) IsAncestor(ancestor, descendant Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	visited := map[Hash]struct{}{descendant: {}}
	queue := []Hash{descendant}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		c, err := s.ReadCommit(h)
		if err != nil {
			return false, fmt.Errorf("ancestry walk: %w", err)
		}
		for _, p := range c.Parents {
			if p == ancestor {
				return true, nil
			}
			if _, ok := visited[p]; ok {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false, nil
}

// IsCommit reports whether h names a commit object in the store.
func (s *Store) IsCommit(h Hash) (bool, error) {
	objType, _, err := s.Read(h)
	if err != nil {
		return false, err
	}
	return objType == TypeCommit, nil
}

func uniqueHashes(in []Hash) []Hash {
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		if h.IsZero() {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
