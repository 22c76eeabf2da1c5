package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/sourcegraph/conc/iter"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// StatusCode is one column of a short status line.
type StatusCode byte

const (
	StatusUnmodified  StatusCode = ' '
	StatusAdded       StatusCode = 'A'
	StatusModified    StatusCode = 'M'
	StatusDeleted     StatusCode = 'D'
	StatusTypeChanged StatusCode = 'T'
	StatusUnmerged    StatusCode = 'U'
	StatusUntracked   StatusCode = '?'
)

// StatusEntry records the status of a single path.
type StatusEntry struct {
	Path        string     // repo-relative path
	IndexStatus StatusCode // index vs HEAD
	WorkStatus  StatusCode // working tree vs index
}

// String formats the entry like git status --short.
func (e StatusEntry) String() string {
	return string([]byte{byte(e.IndexStatus), byte(e.WorkStatus), ' '}) + e.Path
}

// Status compares HEAD, the index and the working tree and returns every
// path that differs anywhere, sorted. Working files are compared by cached
// stat data first and hashed only when that is inconclusive.
func (r *Repo) Status(ctx context.Context) ([]StatusEntry, error) {
	headTree, err := r.headTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headFiles, err := r.treeFiles(headTree)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	head := make(map[string]index.TreeFile, len(headFiles))
	for _, f := range headFiles {
		head[f.Path] = f
	}

	idx, err := r.Index.Read()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	byPath := make(map[string]*StatusEntry)
	var merged []*index.Entry
	for i := range idx.Entries {
		e := &idx.Entries[i]
		if _, seen := byPath[e.Path]; seen {
			continue
		}
		se := &StatusEntry{Path: e.Path, IndexStatus: StatusUnmodified, WorkStatus: StatusUnmodified}
		byPath[e.Path] = se
		if e.Stage != index.StageNormal {
			se.IndexStatus, se.WorkStatus = StatusUnmerged, StatusUnmerged
			continue
		}
		merged = append(merged, e)
		hf, ok := head[e.Path]
		switch {
		case !ok:
			se.IndexStatus = StatusAdded
		case hf.Mode&0o170000 != e.Mode&0o170000:
			se.IndexStatus = StatusTypeChanged
		case hf.Hash != e.Hash || normalizeMode(hf.Mode) != normalizeMode(e.Mode):
			se.IndexStatus = StatusModified
		}
	}
	for _, f := range headFiles {
		if _, ok := byPath[f.Path]; !ok {
			byPath[f.Path] = &StatusEntry{Path: f.Path, IndexStatus: StatusDeleted, WorkStatus: StatusUnmodified}
		}
	}

	mapper := iter.Mapper[*index.Entry, StatusCode]{MaxGoroutines: r.statusConcurrency()}
	codes, err := mapper.MapErr(merged, func(e **index.Entry) (StatusCode, error) {
		if err := ctx.Err(); err != nil {
			return StatusUnmodified, err
		}
		return r.worktreeStatus(idx, *e)
	})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	for i, e := range merged {
		byPath[e.Path].WorkStatus = codes[i]
	}

	untracked, err := r.untrackedFiles(idx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	for _, p := range untracked {
		byPath[p] = &StatusEntry{Path: p, IndexStatus: StatusUntracked, WorkStatus: StatusUntracked}
	}

	out := make([]StatusEntry, 0, len(byPath))
	for _, se := range byPath {
		if se.IndexStatus == StatusUnmodified && se.WorkStatus == StatusUnmodified {
			continue
		}
		out = append(out, *se)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *Repo) statusConcurrency() int {
	if n := r.Config.Core.CheckoutConcurrency; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// worktreeStatus compares one working file with its stage-0 entry.
func (r *Repo) worktreeStatus(idx *index.Index, e *index.Entry) (StatusCode, error) {
	abs := r.absPath(e.Path)
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
			return StatusDeleted, nil
		}
		return StatusUnmodified, err
	}
	if e.Mode.IsGitlink() {
		if info.IsDir() {
			return StatusUnmodified, nil
		}
		return StatusTypeChanged, nil
	}
	if info.IsDir() {
		return StatusDeleted, nil
	}
	mode := object.ModeFromFileInfo(info)
	if mode&0o170000 != e.Mode&0o170000 {
		return StatusTypeChanged, nil
	}
	if normalizeMode(mode) != normalizeMode(e.Mode) {
		return StatusModified, nil
	}
	if e.StatMatches(info) && !idx.Racy(e) {
		return StatusUnmodified, nil
	}
	h, err := hashWorkingFile(abs, info)
	if err != nil {
		return StatusUnmodified, err
	}
	if h != e.Hash {
		return StatusModified, nil
	}
	return StatusUnmodified, nil
}

// untrackedFiles walks the working tree for files the index does not
// know and .gitignore does not exclude.
func (r *Repo) untrackedFiles(idx *index.Index) ([]string, error) {
	ic := checkout.NewIgnoreMatcher(r.WorkDir)
	var out []string
	err := filepath.WalkDir(r.WorkDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.WorkDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if _, gitlink := idx.Stage0(rel); gitlink {
				return fs.SkipDir
			}
			if rel == GitDirName || ic.IsIgnored(rel, true) && !hasTracked(idx, rel) {
				return fs.SkipDir
			}
			return nil
		}
		if idx.Has(rel) || ic.IsIgnored(rel, false) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

func normalizeMode(m object.FileMode) object.FileMode {
	if m == object.ModeDeprecated {
		return object.ModeRegular
	}
	return m
}

// hashWorkingFile hashes a working file as the blob it would be staged as.
func hashWorkingFile(abs string, info os.FileInfo) (object.Hash, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(abs)
		if err != nil {
			return object.ZeroHash, err
		}
		return object.HashObject(object.TypeBlob, []byte(filepath.ToSlash(target))), nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return object.ZeroHash, err
	}
	return object.HashObject(object.TypeBlob, data), nil
}
