package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/refs"
)

// Reflog returns up to limit entries of the log of ref, newest first. An
// empty ref or "HEAD" reads HEAD's own log; a short name is taken as a
// branch.
func (r *Repo) Reflog(ref string, limit int) ([]refs.ReflogEntry, error) {
	name := resolveReflogRefName(ref)
	entries, err := r.Refs.ReadReflog(name, limit)
	if err != nil {
		return nil, fmt.Errorf("reflog %q: %w", name, err)
	}
	return entries, nil
}

func resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "" || ref == refs.HEAD:
		return refs.HEAD
	case strings.HasPrefix(ref, "refs/"):
		return ref
	default:
		return refs.HeadsPrefix + ref
	}
}
