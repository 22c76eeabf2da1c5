package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// ErrPathspec is returned when a path names nothing on disk or in the index.
var ErrPathspec = errors.New("pathspec did not match any files")

// Add stages the given paths. Directories are added recursively, skipping
// ignored files. A tracked path that is gone from disk is removed from the
// index.
func (r *Repo) Add(ctx context.Context, paths []string) error {
	locked, err := r.lockIndex(ctx)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	defer locked.Unlock()

	idx, err := locked.Read()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	in := r.Objects.NewInserter()
	defer in.Release()
	ic := checkout.NewIgnoreMatcher(r.WorkDir)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		if err := r.addPath(idx, in, ic, rel); err != nil {
			return fmt.Errorf("add %q: %w", rel, err)
		}
	}

	if err := in.Flush(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := locked.Replace(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

func (r *Repo) addPath(idx *index.Index, in *object.Inserter, ic *checkout.IgnoreMatcher, rel string) error {
	abs := r.absPath(rel)
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if removeTracked(idx, rel, nil) == 0 {
			return ErrPathspec
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if rel == "." {
			return ErrPathspec
		}
		if _, tracked := idx.Stage0(rel); !tracked && ic.IsIgnored(rel, false) {
			return fmt.Errorf("path is ignored")
		}
		return r.stageFile(idx, in, rel, abs, info)
	}

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		sub, err := filepath.Rel(r.WorkDir, p)
		if err != nil {
			return err
		}
		sub = filepath.ToSlash(sub)
		if sub == "." {
			return nil
		}
		if d.IsDir() {
			if sub == GitDirName || ic.IsIgnored(sub, true) && !hasTracked(idx, sub) {
				return fs.SkipDir
			}
			return nil
		}
		if _, tracked := idx.Stage0(sub); !tracked && ic.IsIgnored(sub, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return r.stageFile(idx, in, sub, p, info)
	})
	if err != nil {
		return err
	}
	// Tracked files that vanished from below the directory.
	removeTracked(idx, rel, func(p string) bool {
		_, err := os.Lstat(r.absPath(p))
		return errors.Is(err, fs.ErrNotExist)
	})
	return nil
}

// stageFile hashes one working file into in and records it in idx. Files
// whose cached stat data still matches are not re-read.
func (r *Repo) stageFile(idx *index.Index, in *object.Inserter, rel, abs string, info os.FileInfo) error {
	mode := object.ModeFromFileInfo(info)
	if existing, ok := idx.Stage0(rel); ok && existing.Mode == mode && existing.StatMatches(info) && !idx.Racy(existing) {
		return nil
	}

	var data []byte
	var err error
	if mode.IsSymlink() {
		var target string
		target, err = os.Readlink(abs)
		data = []byte(filepath.ToSlash(target))
	} else {
		data, err = os.ReadFile(abs)
	}
	if err != nil {
		return err
	}
	h, err := in.Write(object.TypeBlob, data)
	if err != nil {
		return err
	}

	e := index.Entry{Path: rel, Mode: mode, Hash: h}
	e.SetStat(abs, info)
	// A file replaces a tracked directory of the same name and the other
	// way around.
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		idx.Remove(dir)
	}
	removeTracked(idx, rel, func(p string) bool { return p != rel })
	return idx.Add(e)
}

// removeTracked drops rel and every entry below it for which gone
// reports true (all of them when gone is nil), returning how many paths
// were removed.
func removeTracked(idx *index.Index, rel string, gone func(string) bool) int {
	var drop []string
	for i := range idx.Entries {
		p := idx.Entries[i].Path
		if !within(p, rel) || (gone != nil && !gone(p)) {
			continue
		}
		if n := len(drop); n == 0 || drop[n-1] != p {
			drop = append(drop, p)
		}
	}
	for _, p := range drop {
		idx.Remove(p)
	}
	return len(drop)
}

func hasTracked(idx *index.Index, dir string) bool {
	prefix := dir + "/"
	i := sort.Search(len(idx.Entries), func(i int) bool { return idx.Entries[i].Path >= prefix })
	return i < len(idx.Entries) && strings.HasPrefix(idx.Entries[i].Path, prefix)
}

// within reports whether p is rel or lies below it; "." contains every
// path.
func within(p, rel string) bool {
	return rel == "." || p == rel || strings.HasPrefix(p, rel+"/")
}

// Remove unstages paths (recursively for directories). Unless cached is
// set the files are deleted from the working tree as well.
func (r *Repo) Remove(ctx context.Context, paths []string, cached bool) error {
	locked, err := r.lockIndex(ctx)
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	defer locked.Unlock()

	idx, err := locked.Read()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("rm: %w", err)
		}
		var targets []string
		for i := range idx.Entries {
			if ep := idx.Entries[i].Path; within(ep, rel) {
				if n := len(targets); n == 0 || targets[n-1] != ep {
					targets = append(targets, ep)
				}
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("rm %q: %w", rel, ErrPathspec)
		}
		for _, t := range targets {
			idx.Remove(t)
			if cached {
				continue
			}
			if err := os.Remove(r.absPath(t)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("rm %q: %w", t, err)
			}
		}
	}
	return locked.Replace(idx)
}

func (r *Repo) absPath(rel string) string {
	return filepath.Join(r.WorkDir, filepath.FromSlash(rel))
}

// repoRelPath converts an absolute path, or one relative to the repository
// root, into a clean slash-separated repository path. Paths outside the
// working tree are rejected.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.WorkDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.WorkDir, err)
		}
		p = rel
	}
	rel := filepath.ToSlash(filepath.Clean(p))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is outside repository at %q", p, r.WorkDir)
	}
	if rel != "." {
		if err := index.ValidPath(rel); err != nil {
			return "", err
		}
	}
	return rel, nil
}
