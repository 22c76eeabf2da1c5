package object

import (
	"bytes"
	"fmt"
	"io"

	"github.com/aclements/go-rabin/rabin"
)

func encodeDeltaVarint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 10)
	for v > 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func decodeDeltaVarint(r io.ByteReader) (uint64, error) {
	var (
		value uint64
		shift uint
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("delta varint too large")
		}
	}
}

// encodeOfsDeltaDistance encodes a backward distance for OFS_DELTA entries.
func encodeOfsDeltaDistance(distance uint64) []byte {
	if distance == 0 {
		return []byte{0}
	}
	b := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		b = append([]byte{byte((distance & 0x7f) | 0x80)}, b...)
	}
	return b
}

func decodeOfsDeltaDistance(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("ofs-delta distance truncated")
	}
	i := 0
	c := data[i]
	i++
	offset := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("ofs-delta distance truncated")
		}
		c = data[i]
		i++
		offset = ((offset + 1) << 7) | uint64(c&0x7f)
	}
	return offset, i, nil
}

// Delta chunking parameters. Chunk boundaries depend only on content, so a
// region shared by base and target splits into the same chunks in both.
const (
	deltaWindowSize   = 32
	deltaMinChunkSize = 64
	deltaAvgChunkSize = 256
	deltaMaxChunkSize = 4096
	deltaMaxInsert    = 127
	deltaMaxCopy      = 0xffffff
)

var deltaRabinTable = rabin.NewTable(rabin.Poly64, deltaWindowSize)

type deltaCopy struct {
	offset, size int
}

// buildDelta returns a delta stream that rebuilds target from base. Target
// chunks whose bytes also occur as a chunk of base become copy instructions;
// everything else is inserted literally.
func buildDelta(base, target []byte) ([]byte, error) {
	baseChunks := make(map[string]int)
	if err := forEachDeltaChunk(base, func(off int, chunk []byte) {
		if _, ok := baseChunks[string(chunk)]; !ok {
			baseChunks[string(chunk)] = off
		}
	}); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(encodeDeltaVarint(uint64(len(base))))
	out.Write(encodeDeltaVarint(uint64(len(target))))

	var (
		pending  deltaCopy
		literals []byte
	)
	flushCopy := func() {
		for pending.size > 0 {
			n := pending.size
			if n > deltaMaxCopy {
				n = deltaMaxCopy
			}
			writeDeltaCopy(&out, pending.offset, n)
			pending.offset += n
			pending.size -= n
		}
	}
	flushInsert := func() {
		writeDeltaInsert(&out, literals)
		literals = literals[:0]
	}

	err := forEachDeltaChunk(target, func(_ int, chunk []byte) {
		off, ok := baseChunks[string(chunk)]
		if !ok {
			flushCopy()
			literals = append(literals, chunk...)
			return
		}
		flushInsert()
		if pending.size > 0 && pending.offset+pending.size == off {
			pending.size += len(chunk)
			return
		}
		flushCopy()
		pending = deltaCopy{offset: off, size: len(chunk)}
	})
	if err != nil {
		return nil, err
	}
	flushCopy()
	flushInsert()
	return out.Bytes(), nil
}

func forEachDeltaChunk(data []byte, fn func(off int, chunk []byte)) error {
	if len(data) == 0 {
		return nil
	}
	chunker := rabin.NewChunker(deltaRabinTable, bytes.NewReader(data), deltaMinChunkSize, deltaAvgChunkSize, deltaMaxChunkSize)
	off := 0
	for {
		n, err := chunker.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunk delta input: %w", err)
		}
		fn(off, data[off:off+n])
		off += n
	}
}

func writeDeltaInsert(out *bytes.Buffer, literals []byte) {
	for len(literals) > 0 {
		n := len(literals)
		if n > deltaMaxInsert {
			n = deltaMaxInsert
		}
		out.WriteByte(byte(n))
		out.Write(literals[:n])
		literals = literals[n:]
	}
}

func writeDeltaCopy(out *bytes.Buffer, offset, size int) {
	cmd := byte(0x80)
	var args [7]byte
	n := 0
	for i := 0; i < 4; i++ {
		if b := byte(offset >> (8 * i)); b != 0 {
			cmd |= 1 << i
			args[n] = b
			n++
		}
	}
	if size != 0x10000 {
		for i := 0; i < 3; i++ {
			if b := byte(size >> (8 * i)); b != 0 {
				cmd |= 0x10 << i
				args[n] = b
				n++
			}
		}
	}
	out.WriteByte(cmd)
	out.Write(args[:n])
}

// applyDelta applies copy/insert instructions to base and returns the
// result. Every failure wraps ErrCorruptObject.
func applyDelta(base, delta []byte) ([]byte, error) {
	out, err := applyDeltaOps(base, delta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	return out, nil
}

func applyDeltaOps(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read base size: %w", err)
	}
	if int(baseSize) != len(base) {
		return nil, fmt.Errorf("delta base size mismatch: got %d want %d", baseSize, len(base))
	}
	resultSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read result size: %w", err)
	}

	if resultSize > uint64(len(base))+uint64(len(delta))*0x10000 {
		return nil, fmt.Errorf("delta result size %d is implausible", resultSize)
	}
	out := make([]byte, 0, resultSize)
	for dr.Len() > 0 {
		cmd, err := dr.ReadByte()
		if err != nil {
			return nil, err
		}
		if cmd&0x80 != 0 {
			var (
				offset int64
				size   int64
			)
			if cmd&0x01 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 0")
				if err != nil {
					return nil, err
				}
				offset |= int64(b)
			}
			if cmd&0x02 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 1")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 8
			}
			if cmd&0x04 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 2")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 16
			}
			if cmd&0x08 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 3")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 24
			}
			if cmd&0x10 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 0")
				if err != nil {
					return nil, err
				}
				size |= int64(b)
			}
			if cmd&0x20 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 1")
				if err != nil {
					return nil, err
				}
				size |= int64(b) << 8
			}
			if cmd&0x40 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 2")
				if err != nil {
					return nil, err
				}
				size |= int64(b) << 16
			}
			if size == 0 {
				size = 0x10000
			}
			if offset < 0 || size < 0 || offset+size > int64(len(base)) {
				return nil, fmt.Errorf("delta copy out of bounds")
			}
			if uint64(len(out))+uint64(size) > resultSize {
				return nil, fmt.Errorf("delta result overflows declared size %d", resultSize)
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		if cmd == 0 {
			return nil, fmt.Errorf("invalid delta command: 0")
		}
		insert := make([]byte, int(cmd))
		if _, err := io.ReadFull(dr, insert); err != nil {
			return nil, fmt.Errorf("delta insert: %w", err)
		}
		out = append(out, insert...)
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("delta result size mismatch: got %d expected %d", len(out), resultSize)
	}
	return out, nil
}

func readDeltaCopyArgByte(r io.ByteReader, field string) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("delta copy %s: %w", field, err)
	}
	return b, nil
}
