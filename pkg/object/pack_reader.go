package object

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PackEntry is one fully resolved object decoded from a pack stream.
type PackEntry struct {
	Offset uint64
	Hash   Hash
	Type   ObjectType
	CRC32  uint32
	Data   []byte
	// Depth is the delta chain length above the base object (0 for a full
	// entry).
	Depth int
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// IndexEntries returns idx rows for every entry.
func (p *PackFile) IndexEntries() []PackIndexEntry {
	out := make([]PackIndexEntry, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = PackIndexEntry{Hash: e.Hash, Offset: e.Offset, CRC32: e.CRC32}
	}
	return out
}

// rawPackEntry is an entry as stored: either a full object or an unapplied
// delta naming its base by offset or id.
type rawPackEntry struct {
	offset     uint64
	typ        PackObjectType
	baseOffset uint64
	baseHash   Hash
	crc        uint32
	data       []byte
}

var errDeltaBaseUnknown = errors.New("delta base not yet resolved")

// ReadPack parses a complete pack, verifies its trailer checksum, and
// resolves every delta within the pack. Chains deeper than maxDepth and
// bases absent from the pack fail with ErrCorruptObject.
func ReadPack(data []byte, maxDepth int) (*PackFile, error) {
	if len(data) < packHeaderSize+packTrailerSize {
		return nil, fmt.Errorf("pack too short: %d", len(data))
	}

	payload := data[:len(data)-packTrailerSize]
	trailer := data[len(data)-packTrailerSize:]
	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("%w: pack checksum mismatch", ErrCorruptObject)
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	raws, err := scanPackEntries(payload, header.NumObjects)
	if err != nil {
		return nil, err
	}

	r := &packStreamResolver{
		raws:     raws,
		byOffset: make(map[uint64]int, len(raws)),
		byHash:   make(map[Hash]int, len(raws)),
		resolved: make([]*PackEntry, len(raws)),
		maxDepth: maxDepth,
	}
	for i, raw := range raws {
		r.byOffset[raw.offset] = i
	}
	if err := r.resolveAll(); err != nil {
		return nil, err
	}

	entries := make([]PackEntry, len(raws))
	for i, e := range r.resolved {
		entries[i] = *e
	}
	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(sum),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack.
func ReadPackFromReader(r io.Reader, maxDepth int) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data, maxDepth)
}

func scanPackEntries(payload []byte, count uint32) ([]rawPackEntry, error) {
	offset := packHeaderSize
	raws := make([]rawPackEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		start := offset
		objType, size, n, err := decodePackEntryHeader(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		raw := rawPackEntry{offset: uint64(start), typ: objType}
		switch objType {
		case PackCommit, PackTree, PackBlob, PackTag:
		case PackOfsDelta:
			dist, n, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptObject, i, err)
			}
			if dist == 0 || dist > uint64(start) {
				return nil, fmt.Errorf("%w: entry %d: ofs-delta base outside pack", ErrCorruptObject, i)
			}
			raw.baseOffset = uint64(start) - dist
			offset += n
		case PackRefDelta:
			if offset+HashSize > len(payload) {
				return nil, fmt.Errorf("%w: entry %d: ref-delta base truncated", ErrCorruptObject, i)
			}
			copy(raw.baseHash[:], payload[offset:])
			offset += HashSize
		default:
			return nil, fmt.Errorf("%w: entry %d: invalid type %d", ErrCorruptObject, i, objType)
		}
		if offset >= len(payload) {
			return nil, fmt.Errorf("%w: entry %d: missing compressed payload", ErrCorruptObject, i)
		}

		sub := bytes.NewReader(payload[offset:])
		inflated, err := inflateEntry(sub, size)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += len(payload[offset:]) - sub.Len()

		raw.data = inflated
		raw.crc = crc32.ChecksumIEEE(payload[start:offset])
		raws = append(raws, raw)
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("%w: pack has trailing undecoded bytes: %d", ErrCorruptObject, len(payload)-offset)
	}
	return raws, nil
}

// inflateEntry decompresses exactly one zlib stream from r and checks its
// length against the entry header.
func inflateEntry(r io.Reader, size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib reader: %v", ErrCorruptObject, err)
	}
	raw, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptObject, err)
	}
	if uint64(len(raw)) != size {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: size mismatch header=%d decoded=%d", ErrCorruptObject, size, len(raw))
	}
	// Drain to the end of the stream so the checksum is consumed.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptObject, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: close zlib stream: %v", ErrCorruptObject, err)
	}
	return raw, nil
}

type packStreamResolver struct {
	raws     []rawPackEntry
	byOffset map[uint64]int
	byHash   map[Hash]int
	resolved []*PackEntry
	maxDepth int
}

// resolveAll repeats passes until every entry is resolved. REF_DELTA bases
// may appear later in the stream, so a pass that makes no progress means a
// base is missing from the pack.
func (r *packStreamResolver) resolveAll() error {
	for {
		progress, pending := false, -1
		for i := range r.raws {
			if r.resolved[i] != nil {
				continue
			}
			err := r.resolve(i, 0)
			if errors.Is(err, errDeltaBaseUnknown) {
				pending = i
				continue
			}
			if err != nil {
				return err
			}
			progress = true
		}
		if pending < 0 {
			return nil
		}
		if !progress {
			return fmt.Errorf("%w: delta base %s for entry at offset %d is not in the pack",
				ErrCorruptObject, r.raws[pending].baseHash, r.raws[pending].offset)
		}
	}
}

func (r *packStreamResolver) resolve(i, depth int) error {
	if r.resolved[i] != nil {
		return nil
	}
	if depth > r.maxDepth {
		return fmt.Errorf("%w: delta chain exceeds maximum depth %d", ErrCorruptObject, r.maxDepth)
	}
	raw := r.raws[i]

	if !raw.typ.isDelta() {
		objType, err := raw.typ.objectType()
		if err != nil {
			return err
		}
		r.store(i, objType, raw.data, 0)
		return nil
	}

	var baseIdx int
	if raw.typ == PackOfsDelta {
		idx, ok := r.byOffset[raw.baseOffset]
		if !ok {
			return fmt.Errorf("%w: no entry at ofs-delta base offset %d", ErrCorruptObject, raw.baseOffset)
		}
		baseIdx = idx
	} else {
		idx, ok := r.byHash[raw.baseHash]
		if !ok {
			return errDeltaBaseUnknown
		}
		baseIdx = idx
	}
	if err := r.resolve(baseIdx, depth+1); err != nil {
		return err
	}
	base := r.resolved[baseIdx]
	if base.Depth+1 > r.maxDepth {
		return fmt.Errorf("%w: delta chain exceeds maximum depth %d", ErrCorruptObject, r.maxDepth)
	}
	data, err := applyDelta(base.Data, raw.data)
	if err != nil {
		return fmt.Errorf("entry at offset %d: %w", raw.offset, err)
	}
	r.store(i, base.Type, data, base.Depth+1)
	return nil
}

func (r *packStreamResolver) store(i int, objType ObjectType, data []byte, depth int) {
	h := HashObject(objType, data)
	r.resolved[i] = &PackEntry{
		Offset: r.raws[i].offset,
		Hash:   h,
		Type:   objType,
		CRC32:  r.raws[i].crc,
		Data:   data,
		Depth:  depth,
	}
	r.byHash[h] = i
}
