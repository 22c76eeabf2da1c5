package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	// HashSize is the length of a raw object id in bytes.
	HashSize = sha1.Size
	// HashHexSize is the length of a hex-encoded object id.
	HashHexSize = HashSize * 2
)

// Hash is a 20-byte SHA-1 object id. The all-zero value is reserved and
// means "absent".
type Hash [HashSize]byte

// ZeroHash is the reserved absent id.
var ZeroHash Hash

// ParseHash parses a 40-character lowercase or uppercase hex id.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashHexSize {
		return h, fmt.Errorf("parse hash %q: must be %d hex characters", s, HashHexSize)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return h, nil
}

// HashFromBytes copies a raw 20-byte id.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex form of the id.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 7 hex characters.
func (h Hash) Short() string {
	return h.String()[:7]
}

// IsZero reports whether h is the absent sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Compare orders ids byte-wise.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// AppendPrefix appends the "type size\0" envelope that precedes every
// object body in its hashed and loose forms.
func AppendPrefix(dst []byte, objType ObjectType, size int64) []byte {
	dst = append(dst, objType...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, size, 10)
	dst = append(dst, 0)
	return dst
}

// HashObject computes the SHA-1 of the envelope "type len\0content".
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	h.Write(AppendPrefix(nil, objType, int64(len(data))))
	h.Write(data)
	var out Hash
	h.Sum(out[:0])
	return out
}

// HashBytes computes the raw SHA-1 of data, with no envelope.
func HashBytes(data []byte) Hash {
	return Hash(sha1.Sum(data))
}
