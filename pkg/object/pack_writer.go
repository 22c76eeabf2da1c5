package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func (cw *packCountedWriter) Count() uint64 {
	return cw.n
}

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type packWrittenObject struct {
	hash   Hash
	typ    ObjectType
	offset uint64
}

// PackWriter writes pack v2 streams with zlib-compressed entries. The
// trailer is the SHA-1 of all preceding bytes. It records an index entry
// (id, offset, CRC32) for every object it writes.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool

	entries  []PackIndexEntry
	byOffset map[uint64]packWrittenObject
	byHash   map[Hash]packWrittenObject
}

// NewPackWriter initializes a new writer and writes the fixed pack header.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
		byOffset: make(map[uint64]packWrittenObject),
		byHash:   make(map[Hash]packWrittenObject),
	}

	header := PackHeader{
		Version:    supportedPackVersion,
		NumObjects: numObjects,
	}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset returns the current byte offset in the pack stream,
// excluding the trailing checksum written by Finish.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.Count()
}

func (p *PackWriter) checkWritable() error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}
	return nil
}

func (p *PackWriter) writeRaw(parts ...[]byte) (uint32, error) {
	crc := crc32.NewIEEE()
	for _, part := range parts {
		crc.Write(part)
		if _, err := p.hashedW.Write(part); err != nil {
			return 0, err
		}
	}
	return crc.Sum32(), nil
}

func (p *PackWriter) record(objType ObjectType, data []byte, offset uint64, crc uint32) Hash {
	h := HashObject(objType, data)
	obj := packWrittenObject{hash: h, typ: objType, offset: offset}
	p.byOffset[offset] = obj
	p.byHash[h] = obj
	p.entries = append(p.entries, PackIndexEntry{Hash: h, Offset: offset, CRC32: crc})
	p.written++
	return h
}

// WriteEntry appends one full object and returns its id.
func (p *PackWriter) WriteEntry(objType ObjectType, data []byte) (Hash, error) {
	if err := p.checkWritable(); err != nil {
		return ZeroHash, err
	}
	packType, err := packTypeFor(objType)
	if err != nil {
		return ZeroHash, err
	}

	offset := p.CurrentOffset()
	header := encodePackEntryHeader(packType, uint64(len(data)))
	compressed, err := compressPackPayload(data)
	if err != nil {
		return ZeroHash, fmt.Errorf("compress pack entry: %w", err)
	}
	crc, err := p.writeRaw(header, compressed)
	if err != nil {
		return ZeroHash, fmt.Errorf("write pack entry: %w", err)
	}
	return p.record(objType, data, offset, crc), nil
}

// WriteOfsDelta writes targetData as an OFS_DELTA against the object
// previously written at baseOffset.
func (p *PackWriter) WriteOfsDelta(baseOffset uint64, baseData, targetData []byte) (Hash, error) {
	delta, err := buildDelta(baseData, targetData)
	if err != nil {
		return ZeroHash, err
	}
	return p.writeOfsDelta(baseOffset, delta, targetData)
}

func (p *PackWriter) writeOfsDelta(baseOffset uint64, delta, targetData []byte) (Hash, error) {
	if err := p.checkWritable(); err != nil {
		return ZeroHash, err
	}
	base, ok := p.byOffset[baseOffset]
	if !ok {
		return ZeroHash, fmt.Errorf("no object written at base offset %d", baseOffset)
	}
	current := p.CurrentOffset()

	header := encodePackEntryHeader(PackOfsDelta, uint64(len(delta)))
	ofs := encodeOfsDeltaDistance(current - baseOffset)
	compressed, err := compressPackPayload(delta)
	if err != nil {
		return ZeroHash, fmt.Errorf("compress delta payload: %w", err)
	}
	crc, err := p.writeRaw(header, ofs, compressed)
	if err != nil {
		return ZeroHash, fmt.Errorf("write ofs-delta entry: %w", err)
	}
	return p.record(base.typ, targetData, current, crc), nil
}

// WriteRefDelta writes targetData as a REF_DELTA naming its base by id. The
// base must already be in this pack.
func (p *PackWriter) WriteRefDelta(baseHash Hash, baseData, targetData []byte) (Hash, error) {
	if err := p.checkWritable(); err != nil {
		return ZeroHash, err
	}
	base, ok := p.byHash[baseHash]
	if !ok {
		return ZeroHash, fmt.Errorf("base %s not written to this pack", baseHash)
	}
	current := p.CurrentOffset()

	delta, err := buildDelta(baseData, targetData)
	if err != nil {
		return ZeroHash, err
	}
	header := encodePackEntryHeader(PackRefDelta, uint64(len(delta)))
	compressed, err := compressPackPayload(delta)
	if err != nil {
		return ZeroHash, fmt.Errorf("compress delta payload: %w", err)
	}
	crc, err := p.writeRaw(header, baseHash[:], compressed)
	if err != nil {
		return ZeroHash, fmt.Errorf("write ref-delta entry: %w", err)
	}
	return p.record(base.typ, targetData, current, crc), nil
}

// Entries returns the index rows for every object written so far.
func (p *PackWriter) Entries() []PackIndexEntry {
	out := make([]PackIndexEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Finish validates object count, writes the trailing pack checksum, and
// returns it.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return ZeroHash, fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return ZeroHash, fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}

	var sum Hash
	p.hasher.Sum(sum[:0])
	if _, err := p.out.Write(sum[:]); err != nil {
		return ZeroHash, fmt.Errorf("write pack trailer checksum: %w", err)
	}

	p.finished = true
	return sum, nil
}
