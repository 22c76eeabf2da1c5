// Package index implements the staged tree: a path-keyed, lock-protected
// snapshot of intended working-tree content stored in git's DIRC format.
package index

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
)

// Stage distinguishes a normal entry from the three sides of a conflict.
type Stage uint8

const (
	StageNormal Stage = 0
	StageBase   Stage = 1
	StageOurs   Stage = 2
	StageTheirs Stage = 3
)

func (s Stage) String() string {
	switch s {
	case StageNormal:
		return "normal"
	case StageBase:
		return "base"
	case StageOurs:
		return "ours"
	case StageTheirs:
		return "theirs"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Entry is one staged path. The stat fields are a cache used only to skip
// re-hashing unchanged working-tree files.
type Entry struct {
	Path  string
	Mode  object.FileMode
	Hash  object.Hash
	Stage Stage

	Size    uint32
	ModTime time.Time
	CTime   time.Time
	Dev     uint32
	Ino     uint32
	UID     uint32
	GID     uint32

	AssumeValid bool
	// SkipWorktree and IntentToAdd are version 3 extended flags.
	SkipWorktree bool
	IntentToAdd  bool
}

func (e *Entry) extended() bool { return e.SkipWorktree || e.IntentToAdd }

// SetStat refreshes the cached metadata from a stat of absPath.
func (e *Entry) SetStat(absPath string, info os.FileInfo) {
	e.Size = uint32(info.Size())
	e.ModTime = info.ModTime()
	e.CTime = info.ModTime()
	platformStat(absPath, e)
}

// StatMatches reports whether info agrees with the cached size, mtime and
// mode. A match is only trustworthy when the entry is not racily clean.
func (e *Entry) StatMatches(info os.FileInfo) bool {
	if e.ModTime.IsZero() {
		return false
	}
	return e.Size == uint32(info.Size()) &&
		e.ModTime.Equal(info.ModTime()) &&
		e.Mode == object.ModeFromFileInfo(info)
}

// Index is the ordered entry list, sorted by path and then stage.
type Index struct {
	Version uint32
	Entries []Entry

	// Stamp is the modification time of the file the index was read from.
	// Entries whose mtime is not older than Stamp are racily clean.
	Stamp time.Time
}

// New returns an empty version 2 index.
func New() *Index {
	return &Index{Version: 2}
}

// Racy reports whether a stat match for e cannot be trusted.
func (idx *Index) Racy(e *Entry) bool {
	return idx.Stamp.IsZero() || !e.ModTime.Before(idx.Stamp)
}

func entryLess(a, b *Entry) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.Stage < b.Stage
}

// search returns the position of the first entry at or after (path, stage).
func (idx *Index) search(path string, stage Stage) int {
	key := Entry{Path: path, Stage: stage}
	return sort.Search(len(idx.Entries), func(i int) bool {
		return !entryLess(&idx.Entries[i], &key)
	})
}

// Sort restores (path, stage) order after direct edits to Entries.
func (idx *Index) Sort() {
	sort.SliceStable(idx.Entries, func(i, j int) bool {
		return entryLess(&idx.Entries[i], &idx.Entries[j])
	})
}

// Entry returns the entry for path at stage.
func (idx *Index) Entry(path string, stage Stage) (*Entry, bool) {
	i := idx.search(path, stage)
	if i < len(idx.Entries) && idx.Entries[i].Path == path && idx.Entries[i].Stage == stage {
		return &idx.Entries[i], true
	}
	return nil, false
}

// Stage0 returns the merged entry for path.
func (idx *Index) Stage0(path string) (*Entry, bool) {
	return idx.Entry(path, StageNormal)
}

// Has reports whether path has any entry, merged or conflicted.
func (idx *Index) Has(path string) bool {
	i := idx.search(path, StageNormal)
	return i < len(idx.Entries) && idx.Entries[i].Path == path
}

// Conflicted returns the paths that carry stage 1, 2 or 3 entries.
func (idx *Index) Conflicted() []string {
	var paths []string
	for i := range idx.Entries {
		e := &idx.Entries[i]
		if e.Stage == StageNormal {
			continue
		}
		if n := len(paths); n > 0 && paths[n-1] == e.Path {
			continue
		}
		paths = append(paths, e.Path)
	}
	return paths
}

// Add stages e as the merged entry for its path, dropping any conflict
// stages recorded for it.
func (idx *Index) Add(e Entry) error {
	if err := ValidPath(e.Path); err != nil {
		return err
	}
	e.Stage = StageNormal
	idx.Remove(e.Path)
	i := idx.search(e.Path, StageNormal)
	idx.Entries = append(idx.Entries, Entry{})
	copy(idx.Entries[i+1:], idx.Entries[i:])
	idx.Entries[i] = e
	return nil
}

// Remove drops every entry for path and reports whether any existed.
func (idx *Index) Remove(path string) bool {
	i := idx.search(path, StageNormal)
	j := i
	for j < len(idx.Entries) && idx.Entries[j].Path == path {
		j++
	}
	if i == j {
		return false
	}
	idx.Entries = append(idx.Entries[:i], idx.Entries[j:]...)
	return true
}

// SetConflict replaces whatever is staged for path with the given conflict
// sides. A nil side is left absent, as for add/add or modify/delete.
func (idx *Index) SetConflict(path string, base, ours, theirs *Entry) error {
	if err := ValidPath(path); err != nil {
		return err
	}
	if base == nil && ours == nil && theirs == nil {
		return fmt.Errorf("%w: conflict for %q has no sides", ErrInvalidEntry, path)
	}
	idx.Remove(path)
	i := idx.search(path, StageNormal)
	var sides []Entry
	for stage, side := range []*Entry{base, ours, theirs} {
		if side == nil {
			continue
		}
		e := *side
		e.Path = path
		e.Stage = Stage(stage + 1)
		sides = append(sides, e)
	}
	tail := append(sides, idx.Entries[i:]...)
	idx.Entries = append(idx.Entries[:i], tail...)
	return nil
}

// Validate checks ordering, path syntax, stage ranges and the rule that a
// path is either merged or conflicted but never both. It also rejects a
// path that is staged both as a file and as a directory prefix.
func (idx *Index) Validate() error {
	for i := range idx.Entries {
		e := &idx.Entries[i]
		if err := ValidPath(e.Path); err != nil {
			return err
		}
		if e.Stage > StageTheirs {
			return fmt.Errorf("%w: %q has stage %d", ErrInvalidEntry, e.Path, e.Stage)
		}
		if i == 0 {
			continue
		}
		prev := &idx.Entries[i-1]
		if !entryLess(prev, e) {
			return fmt.Errorf("%w: %q stage %d is out of order or duplicated", ErrInvalidEntry, e.Path, e.Stage)
		}
		if prev.Path == e.Path && prev.Stage == StageNormal {
			return fmt.Errorf("%w: %q is both merged and conflicted", ErrInvalidEntry, e.Path)
		}
	}
	return idx.checkDirFileCollisions()
}

func (idx *Index) checkDirFileCollisions() error {
	files := make(map[string]struct{}, len(idx.Entries))
	for i := range idx.Entries {
		files[idx.Entries[i].Path] = struct{}{}
	}
	for i := range idx.Entries {
		p := idx.Entries[i].Path
		for dir := parentDir(p); dir != ""; dir = parentDir(dir) {
			if _, ok := files[dir]; ok {
				return fmt.Errorf("%w: %q is staged as a file and as a directory of %q", ErrInvalidEntry, dir, p)
			}
		}
	}
	return nil
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// ValidPath checks a repository-relative, slash-separated path.
func ValidPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntry)
	}
	if strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("%w: path %q must be relative with no trailing slash", ErrInvalidEntry, p)
	}
	if strings.IndexByte(p, 0) >= 0 {
		return fmt.Errorf("%w: path %q contains NUL", ErrInvalidEntry, p)
	}
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".", "..", ".git":
			return fmt.Errorf("%w: path %q has component %q", ErrInvalidEntry, p, part)
		}
	}
	return nil
}
