package object

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// packRegistry tracks the packs a Store knows about. Packs are kept in
// most-recently-hit order; a lookup miss rescans the pack directory when its
// modification time has moved, so packs added by other processes become
// visible without an explicit refresh.
type packRegistry struct {
	dir string
	log *slog.Logger
	// dropped is called with the pack path of every pack that disappears
	// from the directory.
	dropped func(packPath string)

	mu       sync.Mutex
	packs    []*packFile
	scanned  bool
	dirMtime time.Time
}

func newPackRegistry(dir string, log *slog.Logger, dropped func(string)) *packRegistry {
	return &packRegistry{dir: dir, log: log, dropped: dropped}
}

func (r *packRegistry) snapshot() []*packFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*packFile, len(r.packs))
	copy(out, r.packs)
	return out
}

// find returns the pack and index row holding h.
func (r *packRegistry) find(h Hash) (*packFile, PackIndexEntry, bool) {
	if p, e, ok := r.findIn(r.snapshot(), h); ok {
		return p, e, true
	}
	changed, err := r.refresh(false)
	if err != nil {
		r.log.Warn("pack refresh failed", "dir", r.dir, "err", err)
		return nil, PackIndexEntry{}, false
	}
	if !changed {
		return nil, PackIndexEntry{}, false
	}
	return r.findIn(r.snapshot(), h)
}

func (r *packRegistry) findIn(packs []*packFile, h Hash) (*packFile, PackIndexEntry, bool) {
	for _, p := range packs {
		if e, ok := p.idx.Find(h); ok {
			r.touch(p)
			return p, e, true
		}
	}
	return nil, PackIndexEntry{}, false
}

// touch moves p to the front of the search order.
func (r *packRegistry) touch(p *packFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, q := range r.packs {
		if q != p {
			continue
		}
		if i > 0 {
			copy(r.packs[1:i+1], r.packs[:i])
			r.packs[0] = p
		}
		return
	}
}

// refresh rescans the pack directory. Unless force is set the scan is
// skipped when the directory has not changed since the last one. It reports
// whether the set of packs changed.
func (r *packRegistry) refresh(force bool) (bool, error) {
	st, err := os.Stat(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat pack dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !force && r.scanned && st.ModTime().Equal(r.dirMtime) {
		return false, nil
	}

	idxPaths, err := listPackIndexPaths(r.dir)
	if err != nil {
		return false, err
	}
	known := make(map[string]*packFile, len(r.packs))
	for _, p := range r.packs {
		known[p.packPath] = p
	}

	changed := false
	seen := make(map[string]bool, len(idxPaths))
	for _, idxPath := range idxPaths {
		packPath := packPathForIndex(idxPath)
		seen[packPath] = true
		if _, ok := known[packPath]; ok {
			continue
		}
		p, err := openIndexedPack(idxPath)
		if err != nil {
			r.log.Warn("skipping unreadable pack", "index", filepath.Base(idxPath), "err", err)
			continue
		}
		r.packs = append([]*packFile{p}, r.packs...)
		changed = true
		r.log.Debug("pack discovered", "pack", filepath.Base(packPath), "objects", p.idx.Len())
	}

	kept := r.packs[:0]
	for _, p := range r.packs {
		if seen[p.packPath] {
			kept = append(kept, p)
			continue
		}
		_ = p.Close()
		if r.dropped != nil {
			r.dropped(p.packPath)
		}
		r.log.Debug("pack removed", "pack", filepath.Base(p.packPath))
		changed = true
	}
	r.packs = kept
	r.scanned = true
	r.dirMtime = st.ModTime()
	return changed, nil
}

// add registers a pack this process just published, ahead of the others.
func (r *packRegistry) add(p *packFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs = append([]*packFile{p}, r.packs...)
}

func (r *packRegistry) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, p := range r.packs {
		errs = append(errs, p.Close())
	}
	r.packs = nil
	r.scanned = false
	return errors.Join(errs...)
}

func openIndexedPack(idxPath string) (*packFile, error) {
	idxData, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, err
	}
	idx, err := ReadPackIndex(idxData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptObject, filepath.Base(idxPath), err)
	}
	return openPackFile(packPathForIndex(idxPath), idx)
}

func listPackIndexPaths(packDir string) ([]string, error) {
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "pack-") || !strings.HasSuffix(name, ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, name))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
