package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
)

const (
	signature      = "DIRC"
	headerSize     = 12
	entryFixedSize = 62
	trailerSize    = sha1.Size

	flagAssumeValid = 0x8000
	flagExtended    = 0x4000
	flagStageMask   = 0x3000
	flagStageShift  = 12
	flagNameMask    = 0x0fff

	extSkipWorktree = 0x4000
	extIntentToAdd  = 0x2000
)

// Marshal encodes idx as an index file, checksum included. The version is
// idx.Version (2 or 3), raised to 3 when any entry carries extended flags.
// Entries are validated first; extensions are not written.
func Marshal(idx *Index) ([]byte, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	version := uint32(2)
	if idx.Version == 3 {
		version = 3
	}
	for i := range idx.Entries {
		if idx.Entries[i].extended() {
			version = 3
			break
		}
	}
	buf := make([]byte, 0, headerSize+len(idx.Entries)*(entryFixedSize+32)+trailerSize)
	buf = append(buf, signature...)
	buf = binary.BigEndian.AppendUint32(buf, version)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(idx.Entries)))

	for i := range idx.Entries {
		e := &idx.Entries[i]
		start := len(buf)
		buf = appendTime(buf, e.CTime)
		buf = appendTime(buf, e.ModTime)
		buf = binary.BigEndian.AppendUint32(buf, e.Dev)
		buf = binary.BigEndian.AppendUint32(buf, e.Ino)
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.Mode))
		buf = binary.BigEndian.AppendUint32(buf, e.UID)
		buf = binary.BigEndian.AppendUint32(buf, e.GID)
		buf = binary.BigEndian.AppendUint32(buf, e.Size)
		buf = append(buf, e.Hash[:]...)

		nameLen := len(e.Path)
		if nameLen > flagNameMask {
			nameLen = flagNameMask
		}
		flags := uint16(nameLen) | uint16(e.Stage)<<flagStageShift
		if e.AssumeValid {
			flags |= flagAssumeValid
		}
		fixed := entryFixedSize
		if e.extended() {
			flags |= flagExtended
			fixed += 2
		}
		buf = binary.BigEndian.AppendUint16(buf, flags)
		if e.extended() {
			var ext uint16
			if e.SkipWorktree {
				ext |= extSkipWorktree
			}
			if e.IntentToAdd {
				ext |= extIntentToAdd
			}
			buf = binary.BigEndian.AppendUint16(buf, ext)
		}
		buf = append(buf, e.Path...)

		// One to eight NULs, padding the entry to a multiple of eight.
		padded := (fixed + len(e.Path) + 8) &^ 7
		for len(buf)-start < padded {
			buf = append(buf, 0)
		}
	}

	sum := sha1.Sum(buf)
	return append(buf, sum[:]...), nil
}

func appendTime(buf []byte, t time.Time) []byte {
	if t.IsZero() {
		return append(buf, 0, 0, 0, 0, 0, 0, 0, 0)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.Unix()))
	return binary.BigEndian.AppendUint32(buf, uint32(t.Nanosecond()))
}

func readTime(b []byte) time.Time {
	sec := binary.BigEndian.Uint32(b)
	nsec := binary.BigEndian.Uint32(b[4:])
	if sec == 0 && nsec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(nsec))
}

// Unmarshal decodes an index file of version 2 or 3. Optional extensions
// (signature starting with an upper-case letter) are skipped; any other
// extension is rejected.
func Unmarshal(data []byte) (*Index, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrCorruptIndex, len(data))
	}
	body := data[:len(data)-trailerSize]
	if sum := sha1.Sum(body); !bytes.Equal(sum[:], data[len(body):]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}
	if string(body[:4]) != signature {
		return nil, fmt.Errorf("%w: bad signature %q", ErrCorruptIndex, body[:4])
	}
	version := binary.BigEndian.Uint32(body[4:])
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	}
	count := binary.BigEndian.Uint32(body[8:])

	idx := &Index{Version: version, Entries: make([]Entry, 0, min(int(count), len(body)/entryFixedSize))}
	off := headerSize
	for n := uint32(0); n < count; n++ {
		e, size, err := decodeEntry(body[off:], version)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", n, err)
		}
		idx.Entries = append(idx.Entries, e)
		off += size
	}

	for off < len(body) {
		if len(body)-off < 8 {
			return nil, fmt.Errorf("%w: truncated extension header", ErrCorruptIndex)
		}
		sig := body[off : off+4]
		size := int(binary.BigEndian.Uint32(body[off+4:]))
		if sig[0] < 'A' || sig[0] > 'Z' {
			return nil, fmt.Errorf("%w: unsupported required extension %q", ErrCorruptIndex, sig)
		}
		if size < 0 || size > len(body)-off-8 {
			return nil, fmt.Errorf("%w: extension %q overruns the file", ErrCorruptIndex, sig)
		}
		off += 8 + size
	}

	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return idx, nil
}

func decodeEntry(b []byte, version uint32) (Entry, int, error) {
	if len(b) < entryFixedSize {
		return Entry{}, 0, fmt.Errorf("%w: truncated entry", ErrCorruptIndex)
	}
	var e Entry
	e.CTime = readTime(b[0:])
	e.ModTime = readTime(b[8:])
	e.Dev = binary.BigEndian.Uint32(b[16:])
	e.Ino = binary.BigEndian.Uint32(b[20:])
	e.Mode = object.FileMode(binary.BigEndian.Uint32(b[24:]))
	e.UID = binary.BigEndian.Uint32(b[28:])
	e.GID = binary.BigEndian.Uint32(b[32:])
	e.Size = binary.BigEndian.Uint32(b[36:])
	copy(e.Hash[:], b[40:60])
	flags := binary.BigEndian.Uint16(b[60:])
	e.Stage = Stage((flags & flagStageMask) >> flagStageShift)
	e.AssumeValid = flags&flagAssumeValid != 0

	fixed := entryFixedSize
	if flags&flagExtended != 0 {
		if version < 3 {
			return Entry{}, 0, fmt.Errorf("%w: extended flags in a version %d index", ErrCorruptIndex, version)
		}
		fixed += 2
		if len(b) < fixed {
			return Entry{}, 0, fmt.Errorf("%w: truncated entry", ErrCorruptIndex)
		}
		ext := binary.BigEndian.Uint16(b[entryFixedSize:])
		e.SkipWorktree = ext&extSkipWorktree != 0
		e.IntentToAdd = ext&extIntentToAdd != 0
	}

	nameLen := int(flags & flagNameMask)
	if nameLen == flagNameMask {
		nul := bytes.IndexByte(b[fixed:], 0)
		if nul < 0 {
			return Entry{}, 0, fmt.Errorf("%w: unterminated long path", ErrCorruptIndex)
		}
		nameLen = nul
	}
	size := (fixed + nameLen + 8) &^ 7
	if len(b) < size {
		return Entry{}, 0, fmt.Errorf("%w: truncated path", ErrCorruptIndex)
	}
	e.Path = string(b[fixed : fixed+nameLen])
	if b[fixed+nameLen] != 0 {
		return Entry{}, 0, fmt.Errorf("%w: path %q is not NUL terminated", ErrCorruptIndex, e.Path)
	}
	return e, size, nil
}
