package repo

import (
	"fmt"

	"github.com/odvcencio/gitcore/pkg/refs"
)

// ListRefs lists references whose full name starts with prefix, sorted by
// name. An empty prefix lists everything under refs/.
func (r *Repo) ListRefs(prefix string) ([]refs.Ref, error) {
	if prefix == "" {
		prefix = "refs/"
	}
	list, err := r.Refs.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return list, nil
}
