// Package repo opens a git working tree and bundles its object store,
// references, index and checkout engine behind one handle. The operations
// here (commit, branch switching, fetch and merge application, stash) are
// thin orchestrations over those components.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/checkout"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// GitDirName is the repository directory inside a working tree.
const GitDirName = ".git"

// Repo is an opened repository.
type Repo struct {
	WorkDir string        // working directory root
	GitDir  string        // .git/ directory
	Objects *object.Store // content-addressed object store
	Refs    *refs.Store
	Index   *index.File
	Config  *Config

	checkout *checkout.Engine
	graph    *commitGraph
	log      *slog.Logger
}

type options struct {
	logger    *slog.Logger
	progress  checkout.ProgressFunc
	userName  string
	userEmail string
}

// Option configures Init and Open.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProgress reports per-path progress of checkouts.
func WithProgress(fn checkout.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithUser overrides the configured commit and reflog identity for this
// handle only. Empty fields keep the configured value.
func WithUser(name, email string) Option {
	return func(o *options) { o.userName, o.userEmail = name, email }
}

func open(workDir, gitDir string, opts ...Option) (*Repo, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := ReadConfig(gitDir)
	if err != nil {
		return nil, err
	}
	if o.userName != "" {
		cfg.User.Name = o.userName
	}
	if o.userEmail != "" {
		cfg.User.Email = o.userEmail
	}

	store, err := object.OpenStore(filepath.Join(gitDir, "objects"),
		object.WithMaxDeltaDepth(cfg.Core.MaxDeltaDepth),
		object.WithDeltaCacheSize(cfg.Core.DeltaCacheSize),
		object.WithPackThreshold(cfg.Core.PackThreshold),
		object.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	refOpts := []refs.Option{
		refs.WithLockTimeout(cfg.Core.LockTimeout.Duration),
		refs.WithLogger(o.logger),
	}
	if cfg.User.Name != "" || cfg.User.Email != "" {
		refOpts = append(refOpts, refs.WithIdentity(cfg.User.Name, cfg.User.Email))
	}

	coOpts := []checkout.Option{checkout.WithLogger(o.logger)}
	if cfg.Core.CheckoutConcurrency > 0 {
		coOpts = append(coOpts, checkout.WithConcurrency(cfg.Core.CheckoutConcurrency))
	}
	if o.progress != nil {
		coOpts = append(coOpts, checkout.WithProgress(o.progress))
	}

	return &Repo{
		WorkDir:  workDir,
		GitDir:   gitDir,
		Objects:  store,
		Refs:     refs.Open(gitDir, store, refOpts...),
		Index:    index.Open(filepath.Join(gitDir, "index")),
		Config:   cfg,
		checkout: checkout.New(store, workDir, coOpts...),
		graph:    newCommitGraph(store),
		log:      o.logger,
	}, nil
}

// Close releases open pack files.
func (r *Repo) Close() error {
	return r.Objects.Close()
}

// lockIndex takes the index lock with the configured timeout. The caller
// must Unlock it.
func (r *Repo) lockIndex(ctx context.Context) (*index.Locked, error) {
	locked, err := r.Index.Lock(ctx, r.Config.Core.LockTimeout.Duration)
	if err != nil {
		return nil, fmt.Errorf("lock index: %w", err)
	}
	return locked, nil
}

// Head returns the commit HEAD points to, or the zero id while the current
// branch is unborn.
func (r *Repo) Head() (object.Hash, error) {
	h, err := r.Refs.Resolve(refs.HEAD)
	if errors.Is(err, refs.ErrNotFound) {
		return object.ZeroHash, nil
	}
	if err != nil {
		return object.ZeroHash, fmt.Errorf("head: %w", err)
	}
	return h, nil
}

// ResolveRef resolves a ref name to an object id.
//
// Resolution order:
//  1. "HEAD" and full names under refs/ are resolved as given.
//  2. Otherwise refs/heads/<name>, then refs/tags/<name>.
//  3. Otherwise name is parsed as a full hex id.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == refs.HEAD || refs.ValidateName(name) == nil {
		return r.Refs.Resolve(name)
	}
	for _, prefix := range []string{refs.HeadsPrefix, refs.TagsPrefix} {
		h, err := r.Refs.Resolve(prefix + name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, refs.ErrNotFound) && !errors.Is(err, refs.ErrInvalidName) {
			return object.ZeroHash, err
		}
	}
	if h, err := object.ParseHash(name); err == nil {
		return h, nil
	}
	return object.ZeroHash, fmt.Errorf("resolve %q: %w", name, refs.ErrNotFound)
}

// headTree returns the tree of the HEAD commit, or the zero id on an
// unborn branch.
func (r *Repo) headTree() (object.Hash, error) {
	head, err := r.Head()
	if err != nil || head.IsZero() {
		return object.ZeroHash, err
	}
	return r.Objects.PeelToTree(head)
}

// treeFiles flattens tree; the zero id is the empty tree.
func (r *Repo) treeFiles(tree object.Hash) ([]index.TreeFile, error) {
	if tree.IsZero() {
		return nil, nil
	}
	return index.ReadTree(r.Objects, tree)
}
