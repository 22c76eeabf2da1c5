package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("checkout conflict")

// ConflictError lists the paths whose local state would be lost by the
// checkout.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	const shown = 10
	list := e.Paths
	more := ""
	if len(list) > shown {
		more = fmt.Sprintf(" and %d more", len(list)-shown)
		list = list[:shown]
	}
	return fmt.Sprintf("%s: local changes would be overwritten in %s%s", ErrConflict, strings.Join(list, ", "), more)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
