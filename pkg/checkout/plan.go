package checkout

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/sourcegraph/conc/pool"

	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

type action uint8

const (
	actKeep     action = iota // index already matches the target
	actRefresh                // keep, but the cached stat data is stale
	actWrite                  // write the target blob and record it
	actAdopt                  // the working file already holds the target; record it
	actDelete                 // remove the working file and the entry
	actDrop                   // the working file is gone; remove the entry
	actConflict               // local state would be lost
)

// worktreeState is what a path looks like on disk before the checkout.
type worktreeState struct {
	info   os.FileInfo // nil when nothing is there
	hash   object.Hash
	hashed bool
}

func (ws *worktreeState) exists() bool { return ws.info != nil }
func (ws *worktreeState) isDir() bool  { return ws.info != nil && ws.info.IsDir() }

type pathPlan struct {
	path   string
	act    action
	target index.TreeFile
	state  worktreeState

	// clearDir is set when a directory stands where the file goes.
	clearDir bool
	// clearFiles are ancestors that exist as files where a directory goes.
	clearFiles []string
}

type plan struct {
	paths     []*pathPlan
	byPath    map[string]*pathPlan
	conflicts []string
}

func (p *plan) empty() bool {
	for _, pp := range p.paths {
		if pp.act != actKeep && pp.act != actConflict {
			return false
		}
	}
	return true
}

type planner struct {
	e       *Engine
	idx     *index.Index
	target  map[string]index.TreeFile
	ignore  *IgnoreMatcher
	force   bool
	lstated map[string]os.FileInfo
}

// plan classifies every path in the index or the target. It reads the
// working tree but never modifies it.
func (e *Engine) plan(ctx context.Context, idx *index.Index, files []index.TreeFile, force bool) (*plan, error) {
	pl := &planner{
		e:       e,
		idx:     idx,
		target:  make(map[string]index.TreeFile, len(files)),
		ignore:  e.matcher(),
		force:   force,
		lstated: make(map[string]os.FileInfo),
	}
	for _, f := range files {
		pl.target[f.Path] = f
	}

	names := make([]string, 0, len(idx.Entries)+len(files))
	for i := range idx.Entries {
		if n := len(names); n == 0 || names[n-1] != idx.Entries[i].Path {
			names = append(names, idx.Entries[i].Path)
		}
	}
	for _, f := range files {
		if !idx.Has(f.Path) {
			names = append(names, f.Path)
		}
	}
	sort.Strings(names)

	states, err := pl.scan(ctx, names)
	if err != nil {
		return nil, err
	}

	p := &plan{byPath: make(map[string]*pathPlan, len(names))}
	var dirsInWay []*pathPlan
	for i, name := range names {
		pp := &pathPlan{path: name, state: states[i]}
		pp.target = pl.target[name]
		pp.act = pl.classify(pp)
		if pp.clearDir {
			dirsInWay = append(dirsInWay, pp)
		}
		p.paths = append(p.paths, pp)
		p.byPath[name] = pp
	}

	// Obstacles depend on how the paths beneath or above them were
	// classified, so they are settled in a second pass.
	for _, pp := range dirsInWay {
		if err := pl.checkDirInWay(p, pp); err != nil {
			return nil, err
		}
	}
	for _, pp := range p.paths {
		if pp.act == actWrite {
			pl.checkAncestors(p, pp)
		}
	}

	for _, pp := range p.paths {
		if pp.act == actConflict {
			p.conflicts = append(p.conflicts, pp.path)
		}
	}
	return p, nil
}

// scan stats every path and hashes the working files whose content the
// classification needs. Hashing runs on a bounded pool.
func (pl *planner) scan(ctx context.Context, names []string) ([]worktreeState, error) {
	states := make([]worktreeState, len(names))
	p := pool.New().WithMaxGoroutines(pl.e.opts.concurrency).WithContext(ctx).WithCancelOnError()
	for i, name := range names {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			abs := pl.e.abs(name)
			info, err := os.Lstat(abs)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
					return nil
				}
				return err
			}
			states[i].info = info
			if !pl.needsHash(name, info) {
				return nil
			}
			h, err := hashWorktree(abs, info)
			if err != nil {
				return err
			}
			states[i].hash = h
			states[i].hashed = true
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

func (pl *planner) needsHash(name string, info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	ie, tracked := pl.idx.Stage0(name)
	te, inTarget := pl.target[name]
	if !tracked {
		return inTarget
	}
	if ie.Mode.IsGitlink() {
		return false
	}
	if ie.StatMatches(info) && !pl.idx.Racy(ie) {
		return false
	}
	if inTarget && sameEntry(ie, te) {
		// Local edits to a path the target leaves alone are kept, so only
		// a forced checkout needs to know about them.
		return pl.force
	}
	return true
}

func sameEntry(ie *index.Entry, te index.TreeFile) bool {
	return ie.Hash == te.Hash && normalizeMode(ie.Mode) == normalizeMode(te.Mode)
}

// clean reports whether the working file still holds what ie records.
func (pl *planner) clean(ie *index.Entry, ws *worktreeState) bool {
	if !ws.exists() {
		return false
	}
	if ie.Mode.IsGitlink() {
		return ws.isDir()
	}
	if ws.isDir() || normalizeMode(object.ModeFromFileInfo(ws.info)) != normalizeMode(ie.Mode) {
		return false
	}
	if ws.hashed {
		return ws.hash == ie.Hash
	}
	return ie.StatMatches(ws.info) && !pl.idx.Racy(ie)
}

// holds reports whether the working file already has the target content.
func holds(ws *worktreeState, te index.TreeFile) bool {
	if te.Mode.IsGitlink() {
		return ws.isDir()
	}
	return ws.hashed && ws.hash == te.Hash &&
		normalizeMode(object.ModeFromFileInfo(ws.info)) == normalizeMode(te.Mode)
}

func (pl *planner) classify(pp *pathPlan) action {
	ie, tracked := pl.idx.Stage0(pp.path)
	te, inTarget := pl.target[pp.path]
	ws := &pp.state
	conflicted := !tracked && pl.idx.Has(pp.path)

	switch {
	case conflicted:
		if !pl.force {
			return actConflict
		}
		if !inTarget {
			if ws.exists() && !ws.isDir() {
				return actDelete
			}
			return actDrop
		}
		return pl.writeOver(pp, te)

	case tracked && inTarget && sameEntry(ie, te):
		if pl.clean(ie, ws) {
			if ws.hashed {
				return actRefresh
			}
			return actKeep
		}
		if pl.force {
			return pl.writeOver(pp, te)
		}
		return actKeep

	case inTarget:
		switch {
		case !ws.exists():
			return actWrite
		case tracked && pl.clean(ie, ws):
			return actWrite
		case holds(ws, te):
			return actAdopt
		case ws.isDir():
			pp.clearDir = true
			return actWrite
		case pl.force || (!tracked && pl.ignore.IsIgnored(pp.path, false)):
			return actWrite
		default:
			return actConflict
		}

	default:
		switch {
		case !ws.exists() || ws.isDir():
			return actDrop
		case pl.force || pl.clean(ie, ws):
			return actDelete
		default:
			return actConflict
		}
	}
}

// writeOver plans a forced write of te, adopting content already there.
func (pl *planner) writeOver(pp *pathPlan, te index.TreeFile) action {
	ws := &pp.state
	switch {
	case !ws.exists():
		return actWrite
	case holds(ws, te):
		return actAdopt
	case ws.isDir():
		pp.clearDir = true
	}
	return actWrite
}

// checkDirInWay decides whether a directory standing where pp's file goes
// may be removed: everything under it must be tracked and leaving with
// this checkout, or ignored.
func (pl *planner) checkDirInWay(p *plan, pp *pathPlan) error {
	if pl.force {
		return nil
	}
	root := pl.e.abs(pp.path)
	blocked := false
	err := filepath.WalkDir(root, func(abs string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if abs == root {
			return nil
		}
		rel, err := filepath.Rel(pl.e.workDir, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if pl.ignore.IsIgnored(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if other, ok := p.byPath[rel]; ok {
			if other.act != actDelete && other.act != actDrop {
				blocked = true
				return fs.SkipAll
			}
			return nil
		}
		if !pl.ignore.IsIgnored(rel, false) {
			blocked = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return err
	}
	if blocked {
		pp.act = actConflict
		pp.clearDir = false
	}
	return nil
}

// checkAncestors finds parent directories of pp that exist as files or
// symlinks. A tracked one that this checkout deletes, or an ignored or
// forced one, is cleared before the write; anything else is a conflict.
func (pl *planner) checkAncestors(p *plan, pp *pathPlan) {
	for dir := parentDir(pp.path); dir != ""; dir = parentDir(dir) {
		info, ok := pl.lstated[dir]
		if !ok {
			info, _ = os.Lstat(pl.e.abs(dir))
			pl.lstated[dir] = info
		}
		if info == nil || info.IsDir() {
			continue
		}
		if other, ok := p.byPath[dir]; ok {
			if other.act != actDelete && other.act != actDrop && !pl.force {
				pp.act = actConflict
				return
			}
		} else if !pl.force && !pl.ignore.IsIgnored(dir, false) {
			pp.act = actConflict
			return
		}
		pp.clearFiles = append(pp.clearFiles, dir)
	}
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}
