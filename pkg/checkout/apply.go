package checkout

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitcore/pkg/index"
)

// apply carries out p against the working tree. It always returns the
// index matching what was done, even when it stops early.
func (e *Engine) apply(ctx context.Context, idx *index.Index, p *plan, res *Result) (*index.Index, error) {
	next := &index.Index{Version: idx.Version, Entries: append([]index.Entry(nil), idx.Entries...)}

	total := 0
	for _, pp := range p.paths {
		switch pp.act {
		case actWrite, actAdopt, actDelete, actDrop:
			total++
		}
	}
	done := 0
	removed := make(map[string]bool)
	step := func(path string) {
		done++
		if e.opts.progress != nil {
			e.opts.progress(path, done, total)
		}
	}

	// Writes first.
	for _, pp := range p.paths {
		if pp.act != actWrite && pp.act != actAdopt && pp.act != actRefresh {
			continue
		}
		if err := ctx.Err(); err != nil {
			return next, err
		}
		abs := e.abs(pp.path)
		if pp.act == actWrite {
			if err := e.clearObstacles(next, pp, removed, res); err != nil {
				return next, err
			}
			if err := e.writeFile(abs, pp.target.Mode, pp.target.Hash); err != nil {
				return next, fmt.Errorf("write %q: %w", pp.path, err)
			}
		}
		entry := index.Entry{Path: pp.path, Mode: pp.target.Mode, Hash: pp.target.Hash}
		if info, err := os.Lstat(abs); err == nil && !pp.target.Mode.IsGitlink() {
			entry.SetStat(abs, info)
		}
		if err := next.Add(entry); err != nil {
			return next, err
		}
		if pp.act != actRefresh {
			res.Updated = append(res.Updated, pp.path)
			step(pp.path)
		}
	}

	// Deletions only once every write has landed.
	for _, pp := range p.paths {
		if pp.act != actDelete && pp.act != actDrop {
			continue
		}
		if removed[pp.path] {
			step(pp.path)
			continue
		}
		if err := ctx.Err(); err != nil {
			return next, err
		}
		if pp.act == actDelete {
			abs := e.abs(pp.path)
			if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return next, fmt.Errorf("remove %q: %w", pp.path, err)
			}
			e.removeEmptyParents(filepath.Dir(abs))
		}
		next.Remove(pp.path)
		res.Deleted = append(res.Deleted, pp.path)
		step(pp.path)
	}
	sort.Strings(res.Deleted)
	return next, nil
}

// clearObstacles removes what stands in the way of writing pp: a
// directory at its path or files where its parent directories go. Tracked
// paths removed here are dropped from next right away so an interrupted
// checkout never records a file that is gone.
func (e *Engine) clearObstacles(next *index.Index, pp *pathPlan, removed map[string]bool, res *Result) error {
	for _, dir := range pp.clearFiles {
		if removed[dir] {
			continue
		}
		if err := os.Remove(e.abs(dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear %q: %w", dir, err)
		}
		if next.Remove(dir) {
			res.Deleted = append(res.Deleted, dir)
		}
		removed[dir] = true
	}
	if !pp.clearDir {
		return nil
	}
	prefix := pp.path + "/"
	var gone []string
	for i := range next.Entries {
		if p := next.Entries[i].Path; len(p) > len(prefix) && p[:len(prefix)] == prefix {
			gone = append(gone, p)
		}
	}
	if err := os.RemoveAll(e.abs(pp.path)); err != nil {
		return fmt.Errorf("clear %q: %w", pp.path, err)
	}
	for _, p := range gone {
		if removed[p] {
			continue
		}
		next.Remove(p)
		res.Deleted = append(res.Deleted, p)
		removed[p] = true
	}
	return nil
}
