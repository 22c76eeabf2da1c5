package object

import (
	"bytes"
	"errors"
	"testing"
)

type testPack struct {
	data     []byte
	checksum Hash
	entries  []PackIndexEntry
}

// buildTestPack writes a pack holding a blob, an OFS_DELTA against it and a
// REF_DELTA against the second object.
func buildTestPack(t *testing.T) (testPack, [][]byte) {
	t.Helper()
	v1 := bytes.Repeat([]byte("line of shared content\n"), 200)
	v2 := append(append([]byte{}, v1...), []byte("appended v2\n")...)
	v3 := append(append([]byte{}, v2...), []byte("appended v3\n")...)

	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 3)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	baseOffset := pw.CurrentOffset()
	if _, err := pw.WriteEntry(TypeBlob, v1); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	h2, err := pw.WriteOfsDelta(baseOffset, v1, v2)
	if err != nil {
		t.Fatalf("WriteOfsDelta: %v", err)
	}
	if _, err := pw.WriteRefDelta(h2, v2, v3); err != nil {
		t.Fatalf("WriteRefDelta: %v", err)
	}
	sum, err := pw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return testPack{data: buf.Bytes(), checksum: sum, entries: pw.Entries()}, [][]byte{v1, v2, v3}
}

func TestPackHeaderRoundTrip(t *testing.T) {
	h := PackHeader{Version: 2, NumObjects: 42}
	got, err := UnmarshalPackHeader(h.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalPackHeader: %v", err)
	}
	if *got != h {
		t.Fatalf("header = %+v, want %+v", *got, h)
	}
	if _, err := UnmarshalPackHeader([]byte("JUNK\x00\x00\x00\x02\x00\x00\x00\x00")); err == nil {
		t.Fatal("expected bad magic error")
	}
}

func TestPackEntryHeaderRoundTrip(t *testing.T) {
	for _, size := range []uint64{0, 15, 16, 1000, 1 << 40} {
		enc := encodePackEntryHeader(PackTree, size)
		typ, got, n, err := decodePackEntryHeader(enc)
		if err != nil {
			t.Fatalf("decodePackEntryHeader: %v", err)
		}
		if typ != PackTree || got != size || n != len(enc) {
			t.Fatalf("entry header = (%d, %d, %d), want (%d, %d, %d)", typ, got, n, PackTree, size, len(enc))
		}
	}
}

func TestReadPackResolvesDeltas(t *testing.T) {
	pack, want := buildTestPack(t)
	pf, err := ReadPack(pack.data, DefaultMaxDeltaDepth)
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
	if pf.Checksum != pack.checksum {
		t.Fatalf("checksum = %s, want %s", pf.Checksum, pack.checksum)
	}
	if len(pf.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(pf.Entries))
	}
	for i, e := range pf.Entries {
		if e.Type != TypeBlob || !bytes.Equal(e.Data, want[i]) {
			t.Fatalf("entry %d: type %s, %d bytes; want blob, %d bytes", i, e.Type, len(e.Data), len(want[i]))
		}
		if e.Hash != HashObject(TypeBlob, want[i]) {
			t.Fatalf("entry %d: hash %s", i, e.Hash)
		}
		if e.Depth != i {
			t.Fatalf("entry %d: depth %d, want %d", i, e.Depth, i)
		}
		if e.CRC32 != pack.entries[i].CRC32 || e.Offset != pack.entries[i].Offset {
			t.Fatalf("entry %d: crc/offset (%d, %d) disagree with writer (%d, %d)",
				i, e.CRC32, e.Offset, pack.entries[i].CRC32, pack.entries[i].Offset)
		}
	}
}

func TestReadPackEnforcesMaxDepth(t *testing.T) {
	pack, _ := buildTestPack(t)
	if _, err := ReadPack(pack.data, 1); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("ReadPack(maxDepth=1) error = %v, want ErrCorruptObject", err)
	}
	if _, err := ReadPack(pack.data, 2); err != nil {
		t.Fatalf("ReadPack(maxDepth=2): %v", err)
	}
}

func TestReadPackRejectsChecksumMismatch(t *testing.T) {
	pack, _ := buildTestPack(t)
	corrupt := append([]byte{}, pack.data...)
	corrupt[packHeaderSize+3] ^= 0xff
	if _, err := ReadPack(corrupt, DefaultMaxDeltaDepth); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("ReadPack(corrupt) error = %v, want ErrCorruptObject", err)
	}
}

func TestReadPackRejectsMissingRefDeltaBase(t *testing.T) {
	base := []byte("base object that will not be in the pack\n")
	target := []byte("base object that will not be in the pack\nplus more\n")

	// Write the base, then a REF_DELTA, then rewrite the pack without the
	// base by building a one-entry pack from the raw delta bytes.
	var full bytes.Buffer
	pw, err := NewPackWriter(&full, 2)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	baseHash, err := pw.WriteEntry(TypeBlob, base)
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	deltaStart := pw.CurrentOffset()
	if _, err := pw.WriteRefDelta(baseHash, base, target); err != nil {
		t.Fatalf("WriteRefDelta: %v", err)
	}
	deltaEnd := pw.CurrentOffset()
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	thin := PackHeader{Version: 2, NumObjects: 1}.Marshal()
	thin = append(thin, full.Bytes()[deltaStart:deltaEnd]...)
	sum := HashBytes(thin)
	thin = append(thin, sum[:]...)

	if _, err := ReadPack(thin, DefaultMaxDeltaDepth); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("ReadPack(thin) error = %v, want ErrCorruptObject", err)
	}
}

func TestPackWriterCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 2)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	if _, err := pw.WriteEntry(TypeBlob, []byte("one")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if _, err := pw.Finish(); err == nil {
		t.Fatal("Finish succeeded with too few objects")
	}
}

func TestPackIndexRoundTrip(t *testing.T) {
	pack, _ := buildTestPack(t)
	var idxBuf bytes.Buffer
	idxSum, err := WritePackIndex(&idxBuf, pack.entries, pack.checksum)
	if err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(idxBuf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	if idx.Len() != len(pack.entries) {
		t.Fatalf("Len = %d, want %d", idx.Len(), len(pack.entries))
	}
	if idx.PackChecksum != pack.checksum || idx.IndexChecksum != idxSum {
		t.Fatal("checksums not preserved")
	}
	for _, want := range pack.entries {
		got, ok := idx.Find(want.Hash)
		if !ok {
			t.Fatalf("Find(%s) missed", want.Hash)
		}
		if got != want {
			t.Fatalf("Find(%s) = %+v, want %+v", want.Hash, got, want)
		}
	}
	if _, ok := idx.Find(HashObject(TypeBlob, []byte("absent"))); ok {
		t.Fatal("Find returned an absent object")
	}
	entries := idx.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Hash.Compare(entries[i].Hash) >= 0 {
			t.Fatal("index entries are not sorted")
		}
	}
}

func TestPackIndexLargeOffsets(t *testing.T) {
	entries := []PackIndexEntry{
		{Hash: HashObject(TypeBlob, []byte("a")), Offset: 12, CRC32: 1},
		{Hash: HashObject(TypeBlob, []byte("b")), Offset: 1 << 33, CRC32: 2},
		{Hash: HashObject(TypeBlob, []byte("c")), Offset: 1<<31 + 5, CRC32: 3},
	}
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, ZeroHash); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	idx, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	for _, want := range entries {
		got, ok := idx.Find(want.Hash)
		if !ok || got != want {
			t.Fatalf("Find(%s) = %+v, %v; want %+v", want.Hash, got, ok, want)
		}
	}
}

func TestPackIndexRejectsCorruption(t *testing.T) {
	pack, _ := buildTestPack(t)
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, pack.entries, pack.checksum); err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	data := buf.Bytes()
	data[packIndexHeaderSize+packIndexFanoutSize] ^= 0x01
	if _, err := ReadPackIndex(data); err == nil {
		t.Fatal("ReadPackIndex accepted a corrupted index")
	}
	if _, err := WritePackIndex(&buf, append(pack.entries, pack.entries[0]), pack.checksum); err == nil {
		t.Fatal("WritePackIndex accepted duplicate entries")
	}
}
