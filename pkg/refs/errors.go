package refs

import (
	"errors"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/object"
)

var (
	ErrNotFound       = errors.New("reference not found")
	ErrInvalidName    = errors.New("invalid reference name")
	ErrTooManyLinks   = errors.New("too many levels of symbolic references")
	ErrCASMismatch    = errors.New("ref compare-and-swap mismatch")
	ErrNonFastForward = errors.New("non-fast-forward ref update")
	ErrLockFailure    = errors.New("ref lock failure")
	ErrMalformed      = errors.New("malformed reference")

	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// ReflogError indicates the ref file update succeeded, but appending the
// corresponding reflog entry failed.
type ReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *ReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *ReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}
