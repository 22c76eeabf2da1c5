package object

import "errors"

var (
	// ErrNotFound is returned when no loose or packed object has the id.
	ErrNotFound = errors.New("object not found")
	// ErrCorruptObject marks undecodable stored data: bad headers, length
	// mismatches, broken deltas, and overlong delta chains.
	ErrCorruptObject = errors.New("corrupt object")
	// ErrHashMismatch is returned when decoded content does not hash to the
	// id it was looked up under.
	ErrHashMismatch = errors.New("object hash mismatch")
)
