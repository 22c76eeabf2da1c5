package object

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
)

// PackSummary describes a pack published into the store.
type PackSummary struct {
	Name      Hash
	Objects   int
	PackFile  string
	IndexFile string
}

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
}

// IndexPack ingests a received pack stream: it verifies the trailer,
// resolves every entry (thin packs are rejected), builds the idx, and
// publishes pack-<name>.pack and pack-<name>.idx where name is the SHA-1 of
// the sorted object ids. The idx is renamed last, so a visible idx always
// has its pack.
func (s *Store) IndexPack(ctx context.Context, r io.Reader) (*PackSummary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("index-pack: read stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pf, err := ReadPack(data, s.opts.maxDeltaDepth)
	if err != nil {
		return nil, fmt.Errorf("index-pack: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary, err := s.publishPack(pf.IndexEntries(), pf.Checksum, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("index-pack: %w", err)
	}
	s.log.Info("pack indexed", "pack", summary.PackFile, "objects", summary.Objects)
	return summary, nil
}

// publishPack writes a pack through writePack and its idx from entries to
// temp files in the pack directory, then renames the pack and the idx into
// place in that order.
func (s *Store) publishPack(entries []PackIndexEntry, checksum Hash, writePack func(io.Writer) error) (*PackSummary, error) {
	packDir := filepath.Join(s.root, "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir pack dir: %w", err)
	}

	name := packName(entries)
	base := "pack-" + name.String()
	packPath := filepath.Join(packDir, base+".pack")
	idxPath := filepath.Join(packDir, base+".idx")
	summary := &PackSummary{
		Name:      name,
		Objects:   len(entries),
		PackFile:  filepath.Base(packPath),
		IndexFile: filepath.Base(idxPath),
	}
	if _, err := os.Stat(idxPath); err == nil {
		return summary, nil
	}

	packTmp, err := writeTempFile(packDir, ".tmp-pack-*.pack", writePack)
	if err != nil {
		return nil, fmt.Errorf("write pack: %w", err)
	}
	idxTmp, err := writeTempFile(packDir, ".tmp-pack-*.idx", func(w io.Writer) error {
		_, err := WritePackIndex(w, entries, checksum)
		return err
	})
	if err != nil {
		_ = os.Remove(packTmp)
		return nil, fmt.Errorf("write pack index: %w", err)
	}

	if err := os.Rename(packTmp, packPath); err != nil {
		_ = os.Remove(packTmp)
		_ = os.Remove(idxTmp)
		return nil, fmt.Errorf("rename pack file: %w", err)
	}
	if err := os.Rename(idxTmp, idxPath); err != nil {
		_ = os.Remove(idxTmp)
		return nil, fmt.Errorf("rename index file: %w", err)
	}

	p, err := openIndexedPack(idxPath)
	if err != nil {
		return nil, err
	}
	s.packs.add(p)
	return summary, nil
}

func writeTempFile(dir, pattern string, write func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}

// RefreshPacks rescans the pack directory unconditionally.
func (s *Store) RefreshPacks() error {
	_, err := s.packs.refresh(true)
	return err
}

// Verify re-hashes every loose object and every packed object, checking
// each idx against its pack. Work fans out over a bounded pool.
func (s *Store) Verify(ctx context.Context) (*VerifySummary, error) {
	looseHashes, err := s.LooseObjects()
	if err != nil {
		return nil, err
	}
	idxPaths, err := listPackIndexPaths(filepath.Join(s.root, "pack"))
	if err != nil {
		return nil, err
	}

	var looseCount, packCount, packObjects atomic.Int64
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0)).WithContext(ctx).WithCancelOnError()
	for _, h := range looseHashes {
		p.Go(func(ctx context.Context) error {
			raw, err := os.ReadFile(s.objectPath(h))
			if err != nil {
				return fmt.Errorf("verify loose %s: %w", h, err)
			}
			objType, content, err := DecodeLoose(raw)
			if err != nil {
				return fmt.Errorf("verify loose %s: %w", h, err)
			}
			if actual := HashObject(objType, content); actual != h {
				return fmt.Errorf("verify loose %s: %w: computed %s", h, ErrHashMismatch, actual)
			}
			looseCount.Add(1)
			return nil
		})
	}
	for _, idxPath := range idxPaths {
		p.Go(func(ctx context.Context) error {
			n, err := s.verifyPack(idxPath)
			if err != nil {
				return fmt.Errorf("verify pack %s: %w", filepath.Base(idxPath), err)
			}
			packCount.Add(1)
			packObjects.Add(int64(n))
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return &VerifySummary{
		LooseObjects: int(looseCount.Load()),
		PackFiles:    int(packCount.Load()),
		PackObjects:  int(packObjects.Load()),
	}, nil
}

func (s *Store) verifyPack(idxPath string) (int, error) {
	idxData, err := os.ReadFile(idxPath)
	if err != nil {
		return 0, err
	}
	idx, err := ReadPackIndex(idxData)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	packData, err := os.ReadFile(packPathForIndex(idxPath))
	if err != nil {
		return 0, err
	}
	pf, err := ReadPack(packData, s.opts.maxDeltaDepth)
	if err != nil {
		return 0, err
	}
	if pf.Checksum != idx.PackChecksum {
		return 0, fmt.Errorf("%w: checksum mismatch between idx (%s) and pack (%s)", ErrCorruptObject, idx.PackChecksum, pf.Checksum)
	}

	byOffset := make(map[uint64]PackEntry, len(pf.Entries))
	for _, e := range pf.Entries {
		byOffset[e.Offset] = e
	}
	if idx.Len() != len(byOffset) {
		return 0, fmt.Errorf("%w: idx entry count %d does not match pack entry count %d", ErrCorruptObject, idx.Len(), len(byOffset))
	}
	for _, ie := range idx.Entries() {
		pe, ok := byOffset[ie.Offset]
		if !ok {
			return 0, fmt.Errorf("%w: no pack entry for %s at offset %d", ErrCorruptObject, ie.Hash, ie.Offset)
		}
		if pe.Hash != ie.Hash {
			return 0, fmt.Errorf("%w: idx names %s at offset %d, pack content hashes to %s", ErrHashMismatch, ie.Hash, ie.Offset, pe.Hash)
		}
		if pe.CRC32 != ie.CRC32 {
			return 0, fmt.Errorf("%w: crc mismatch for %s", ErrCorruptObject, ie.Hash)
		}
	}
	return idx.Len(), nil
}

// LooseObjects lists the ids of all loose objects in id order.
func (s *Store) LooseObjects() ([]Hash, error) {
	fanoutDirs, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	hashes := make([]Hash, 0)
	for _, fanoutDir := range fanoutDirs {
		prefix := fanoutDir.Name()
		if !fanoutDir.IsDir() || !isHexHashComponent(prefix, 2) {
			continue
		}

		objectEntries, err := os.ReadDir(filepath.Join(s.root, prefix))
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			suffix := objectEntry.Name()
			if objectEntry.IsDir() || !isHexHashComponent(suffix, HashHexSize-2) {
				continue
			}
			h, err := ParseHash(prefix + suffix)
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Compare(hashes[j]) < 0
	})
	return hashes, nil
}

// PackedObjects lists the ids held by every known pack.
func (s *Store) PackedObjects() ([]Hash, error) {
	if _, err := s.packs.refresh(false); err != nil {
		return nil, err
	}
	var out []Hash
	for _, p := range s.packs.snapshot() {
		for _, e := range p.idx.Entries() {
			out = append(out, e.Hash)
		}
	}
	return out, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// writePackFromObjects packs the given objects, deltifying each against the
// previous object of the same type when the delta is smaller than the
// object, and publishes the result.
func (s *Store) writePackFromObjects(objs []pendingObject) (*PackSummary, error) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, uint32(len(objs)))
	if err != nil {
		return nil, err
	}

	sorted := make([]pendingObject, len(objs))
	copy(sorted, objs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].typ != sorted[j].typ {
			return sorted[i].typ < sorted[j].typ
		}
		return len(sorted[i].data) > len(sorted[j].data)
	})

	var (
		prev       pendingObject
		prevOffset uint64
		prevDepth  int
		havePrev   bool
	)
	for _, obj := range sorted {
		offset := pw.CurrentOffset()
		if havePrev && prev.typ == obj.typ && obj.typ != TypeCommit && prevDepth+1 < s.opts.maxDeltaDepth {
			delta, err := buildDelta(prev.data, obj.data)
			if err == nil && len(delta) < len(obj.data)/2 {
				if _, err := pw.writeOfsDelta(prevOffset, delta, obj.data); err != nil {
					return nil, err
				}
				prev, prevOffset = obj, offset
				prevDepth++
				continue
			}
		}
		if _, err := pw.WriteEntry(obj.typ, obj.data); err != nil {
			return nil, err
		}
		prev, prevOffset, prevDepth, havePrev = obj, offset, 0, true
	}
	checksum, err := pw.Finish()
	if err != nil {
		return nil, err
	}
	return s.publishPack(pw.Entries(), checksum, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}
