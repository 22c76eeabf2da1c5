package object

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxPackEntryHeaderSize bounds the bytes read to decode an entry header
// plus an ofs-delta distance or ref-delta base id.
const maxPackEntryHeaderSize = 10 + 10 + HashSize

// packEntryInfo locates one stored entry inside an on-disk pack.
type packEntryInfo struct {
	offset     uint64
	typ        PackObjectType
	size       uint64
	dataOffset uint64
	baseOffset uint64
	baseHash   Hash
}

// packFile is an open pack paired with its parsed index. Entries are read
// by offset; the pack acts as an arena in which deltas name their bases by
// offset or by id.
type packFile struct {
	packPath string
	idx      *PackIndex
	f        *os.File
	size     int64
}

func openPackFile(packPath string, idx *PackIndex) (*packFile, error) {
	f, err := os.Open(packPath)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	p := &packFile{packPath: packPath, idx: idx, f: f, size: st.Size()}
	if err := p.checkEnvelope(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return p, nil
}

// checkEnvelope validates the header and that the trailer matches the
// checksum recorded in the index.
func (p *packFile) checkEnvelope() error {
	if p.size < packHeaderSize+packTrailerSize {
		return fmt.Errorf("%w: pack %s too short", ErrCorruptObject, p.packPath)
	}
	var header [packHeaderSize]byte
	if _, err := p.f.ReadAt(header[:], 0); err != nil {
		return fmt.Errorf("read pack header %s: %w", p.packPath, err)
	}
	h, err := UnmarshalPackHeader(header[:])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptObject, p.packPath, err)
	}
	if int(h.NumObjects) != p.idx.Len() {
		return fmt.Errorf("%w: pack %s has %d objects, index has %d", ErrCorruptObject, p.packPath, h.NumObjects, p.idx.Len())
	}
	var trailer Hash
	if _, err := p.f.ReadAt(trailer[:], p.size-packTrailerSize); err != nil {
		return fmt.Errorf("read pack trailer %s: %w", p.packPath, err)
	}
	if trailer != p.idx.PackChecksum {
		return fmt.Errorf("%w: pack %s checksum does not match its index", ErrCorruptObject, p.packPath)
	}
	return nil
}

func (p *packFile) Close() error {
	return p.f.Close()
}

func (p *packFile) entryAt(offset uint64) (packEntryInfo, error) {
	limit := uint64(p.size - packTrailerSize)
	if offset < packHeaderSize || offset >= limit {
		return packEntryInfo{}, fmt.Errorf("%w: offset %d outside pack %s", ErrCorruptObject, offset, p.packPath)
	}
	buf := make([]byte, maxPackEntryHeaderSize)
	if remaining := limit - offset; remaining < uint64(len(buf)) {
		buf = buf[:remaining]
	}
	if _, err := p.f.ReadAt(buf, int64(offset)); err != nil && err != io.EOF {
		return packEntryInfo{}, fmt.Errorf("read pack entry at %d: %w", offset, err)
	}

	objType, size, n, err := decodePackEntryHeader(buf)
	if err != nil {
		return packEntryInfo{}, err
	}
	info := packEntryInfo{offset: offset, typ: objType, size: size}
	switch objType {
	case PackCommit, PackTree, PackBlob, PackTag:
	case PackOfsDelta:
		dist, m, err := decodeOfsDeltaDistance(buf[n:])
		if err != nil {
			return packEntryInfo{}, fmt.Errorf("%w: %v", ErrCorruptObject, err)
		}
		if dist == 0 || dist > offset {
			return packEntryInfo{}, fmt.Errorf("%w: ofs-delta at %d points outside pack", ErrCorruptObject, offset)
		}
		info.baseOffset = offset - dist
		n += m
	case PackRefDelta:
		if len(buf) < n+HashSize {
			return packEntryInfo{}, fmt.Errorf("%w: ref-delta base truncated at %d", ErrCorruptObject, offset)
		}
		copy(info.baseHash[:], buf[n:])
		n += HashSize
	default:
		return packEntryInfo{}, fmt.Errorf("%w: invalid entry type %d at %d", ErrCorruptObject, objType, offset)
	}
	info.dataOffset = offset + uint64(n)
	return info, nil
}

func (p *packFile) inflate(info packEntryInfo) ([]byte, error) {
	section := io.NewSectionReader(p.f, int64(info.dataOffset), p.size-packTrailerSize-int64(info.dataOffset))
	data, err := inflateEntry(section, info.size)
	if err != nil {
		return nil, fmt.Errorf("pack %s offset %d: %w", p.packPath, info.offset, err)
	}
	return data, nil
}

type packCacheKey struct {
	pack   string
	offset uint64
}

type packCacheValue struct {
	typ  ObjectType
	data []byte
}

// readAt materializes the object stored at offset, following its delta
// chain down to a full entry and applying deltas bottom-up. The chain is
// bounded by maxDepth; a base missing from this pack is corruption.
func (p *packFile) readAt(offset uint64, maxDepth int, cache *deltaBaseCache) (ObjectType, []byte, error) {
	var chain []packEntryInfo
	cur := offset
	var (
		baseType ObjectType
		baseData []byte
	)
	for {
		if v, ok := cache.get(packCacheKey{pack: p.packPath, offset: cur}); ok {
			baseType, baseData = v.typ, v.data
			break
		}
		info, err := p.entryAt(cur)
		if err != nil {
			return "", nil, err
		}
		if !info.typ.isDelta() {
			objType, err := info.typ.objectType()
			if err != nil {
				return "", nil, err
			}
			data, err := p.inflate(info)
			if err != nil {
				return "", nil, err
			}
			baseType, baseData = objType, data
			if len(chain) > 0 {
				cache.add(packCacheKey{pack: p.packPath, offset: cur}, packCacheValue{typ: objType, data: data})
			}
			break
		}

		chain = append(chain, info)
		if len(chain) > maxDepth {
			return "", nil, fmt.Errorf("%w: delta chain at offset %d exceeds maximum depth %d", ErrCorruptObject, offset, maxDepth)
		}
		if info.typ == PackOfsDelta {
			cur = info.baseOffset
			continue
		}
		baseEntry, ok := p.idx.Find(info.baseHash)
		if !ok {
			return "", nil, fmt.Errorf("%w: delta base %s missing from pack %s", ErrCorruptObject, info.baseHash, p.packPath)
		}
		cur = baseEntry.Offset
	}

	data := baseData
	for i := len(chain) - 1; i >= 0; i-- {
		delta, err := p.inflate(chain[i])
		if err != nil {
			return "", nil, err
		}
		data, err = applyDelta(data, delta)
		if err != nil {
			return "", nil, fmt.Errorf("pack %s offset %d: %w", p.packPath, chain[i].offset, err)
		}
		if i > 0 {
			cache.add(packCacheKey{pack: p.packPath, offset: chain[i].offset}, packCacheValue{typ: baseType, data: data})
		}
	}
	return baseType, bytes.Clone(data), nil
}
