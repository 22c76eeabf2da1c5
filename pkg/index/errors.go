package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorruptIndex marks an index file that cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrUnmergedPath is returned when a tree is requested while conflict
	// stages remain.
	ErrUnmergedPath = errors.New("unmerged path")
	// ErrInvalidEntry marks an entry that breaks the path or stage rules.
	ErrInvalidEntry = errors.New("invalid index entry")
)

// UnmergedPathError lists the paths that still carry conflict stages.
type UnmergedPathError struct {
	Paths []string
}

func (e *UnmergedPathError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("%s: %s", ErrUnmergedPath, e.Paths[0])
	}
	return fmt.Sprintf("%s: %d paths (%s)", ErrUnmergedPath, len(e.Paths), strings.Join(e.Paths, ", "))
}

func (e *UnmergedPathError) Unwrap() error { return ErrUnmergedPath }

func (e *UnmergedPathError) Is(target error) bool { return target == ErrUnmergedPath }
