// Package checkout reconciles the index, a target tree and the working
// directory, materializing the target while refusing to lose local work.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// ObjectReader is the object store view checkout needs. *object.Store
// satisfies it.
type ObjectReader interface {
	ReadBlob(h object.Hash) (*object.Blob, error)
	ReadTree(h object.Hash) (*object.TreeObj, error)
	PeelToTree(h object.Hash) (object.Hash, error)
}

// ProgressFunc is called after each path is written or removed.
type ProgressFunc func(path string, done, total int)

// Result reports what a checkout did. Conflicts is only non-empty when the
// checkout was allowed to proceed past them.
type Result struct {
	Updated   []string
	Deleted   []string
	Conflicts []string
}

type options struct {
	concurrency int
	logger      *slog.Logger
	progress    ProgressFunc
	ignore      *IgnoreMatcher
}

// Option configures New.
type Option func(*options)

// WithConcurrency bounds the number of working-tree files hashed at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger sets the logger for checkout summaries and conflicts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProgress installs a per-path progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithIgnore replaces the matcher otherwise loaded from the .gitignore
// files of the working tree on every checkout.
func WithIgnore(m *IgnoreMatcher) Option {
	return func(o *options) { o.ignore = m }
}

// Engine checks trees out into one working directory.
type Engine struct {
	store   ObjectReader
	workDir string
	opts    options
	log     *slog.Logger
}

// New returns an engine that materializes objects from store into workDir.
func New(store ObjectReader, workDir string, opts ...Option) *Engine {
	o := options{concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	log := o.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, workDir: workDir, opts: o, log: log}
}

// WorkDir returns the working directory root.
func (e *Engine) WorkDir() string {
	return e.workDir
}

// Checkout moves the working tree and the index held by locked to target,
// a tree or anything that peels to one.
//
// A path conflicts when the working tree holds content the index does not
// record and the target would change that path. With failOnConflict set
// any conflict aborts the checkout before a single file is touched and the
// error is a *ConflictError. Otherwise conflicting paths are left alone and
// listed in Result.Conflicts.
//
// Deletions run only after every write succeeded. If ctx is cancelled
// midway the index is persisted to match what was applied and the wrapped
// context error is returned along with the partial result.
func (e *Engine) Checkout(ctx context.Context, locked *index.Locked, target object.Hash, failOnConflict bool) (*Result, error) {
	return e.run(ctx, locked, target, failOnConflict, false)
}

// Force checks out target discarding local modifications to tracked paths
// and untracked files in the way. Untracked files elsewhere are kept.
func (e *Engine) Force(ctx context.Context, locked *index.Locked, target object.Hash) (*Result, error) {
	return e.run(ctx, locked, target, false, true)
}

func (e *Engine) run(ctx context.Context, locked *index.Locked, target object.Hash, failOnConflict, force bool) (*Result, error) {
	tree, err := e.store.PeelToTree(target)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", target, err)
	}
	files, err := index.ReadTree(e.store, tree)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", target, err)
	}
	idx, err := locked.Read()
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	p, err := e.plan(ctx, idx, files, force)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	res := &Result{Conflicts: p.conflicts}
	if len(p.conflicts) > 0 {
		e.log.Debug("checkout conflicts", "count", len(p.conflicts), "fail", failOnConflict)
		if failOnConflict {
			return res, &ConflictError{Paths: p.conflicts}
		}
	}
	if p.empty() {
		return res, nil
	}

	next, applyErr := e.apply(ctx, idx, p, res)
	if err := locked.Replace(next); err != nil {
		if applyErr != nil {
			return res, fmt.Errorf("checkout: %w (persisting index: %v)", applyErr, err)
		}
		return res, fmt.Errorf("checkout: %w", err)
	}
	if applyErr != nil {
		return res, fmt.Errorf("checkout: %w", applyErr)
	}
	e.log.Info("checkout", "tree", tree.Short(), "updated", len(res.Updated),
		"deleted", len(res.Deleted), "conflicts", len(res.Conflicts))
	return res, nil
}
