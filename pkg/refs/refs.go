// Package refs is the reference store of a git directory: loose ref files,
// the packed-refs table, symbolic refs, compare-and-swap updates and the
// reflog.
package refs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// MaxSymrefDepth bounds how many symbolic links Resolve follows.
const MaxSymrefDepth = 5

const symrefPrefix = "ref: "

// CommitGraph is the object store view needed to classify updates.
type CommitGraph interface {
	Has(h object.Hash) bool
	IsCommit(h object.Hash) (bool, error)
	IsAncestor(ancestor, descendant object.Hash) (bool, error)
}

// Ref is one reference as stored. Exactly one of Hash and Target is set.
type Ref struct {
	Name   string
	Hash   object.Hash
	Target string
	// Peeled is the commit a packed annotated tag points to, when
	// packed-refs recorded it.
	Peeled object.Hash
}

// IsSymbolic reports whether the ref names another ref.
func (r Ref) IsSymbolic() bool {
	return r.Target != ""
}

type options struct {
	lock     lockfile.Options
	logger   *slog.Logger
	identity object.Signature
}

// Option configures Open.
type Option func(*options)

// WithLockTimeout bounds how long an update waits for a contended ref lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lock.Timeout = d }
}

// WithLockRetryDelay sets the polling interval while waiting for a lock.
func WithLockRetryDelay(d time.Duration) Option {
	return func(o *options) { o.lock.RetryDelay = d }
}

// WithLogger sets the logger for ref updates and lock contention.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIdentity sets the reflog identity used when an update does not
// carry its own.
func WithIdentity(name, email string) Option {
	return func(o *options) {
		o.identity.Name = name
		o.identity.Email = email
	}
}

// Store reads and updates the refs of one git directory.
type Store struct {
	gitDir  string
	objects CommitGraph
	opts    options
	log     *slog.Logger
	now     func() time.Time
	// commit publishes a written ref lock.
	commit  func(*lockfile.Lock) error
}

// Open returns a ref store rooted at gitDir. objects is consulted for
// fast-forward classification.
func Open(gitDir string, objects CommitGraph, opts ...Option) *Store {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		identity: object.Signature{Name: "gitcore", Email: "gitcore@localhost"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		gitDir:  gitDir,
		objects: objects,
		opts:    o,
		log:     o.logger,
		now:     time.Now,
		commit:  (*lockfile.Lock).Commit,
	}
}

// GitDir returns the directory the store is rooted at.
func (s *Store) GitDir() string {
	return s.gitDir
}

func (s *Store) refPath(name string) string {
	return filepath.Join(s.gitDir, filepath.FromSlash(name))
}

// Read returns the ref exactly as stored, checking the loose file first
// and then packed-refs. It does not follow symbolic refs.
func (s *Store) Read(name string) (Ref, error) {
	if err := ValidateName(name); err != nil {
		return Ref{}, err
	}
	ref, err := s.readLoose(name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Ref{}, err
	}
	packed, err := s.readPacked()
	if err != nil {
		return Ref{}, err
	}
	if ref, ok := packed.get(name); ok {
		return ref, nil
	}
	return Ref{}, fmt.Errorf("ref %q: %w", name, ErrNotFound)
}

func (s *Store) readLoose(name string) (Ref, error) {
	data, err := os.ReadFile(s.refPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return Ref{}, fmt.Errorf("ref %q: %w", name, ErrNotFound)
		}
		// A directory where the ref file would be means a longer name
		// such as refs/heads/a/b exists, not this one.
		if st, statErr := os.Stat(s.refPath(name)); statErr == nil && st.IsDir() {
			return Ref{}, fmt.Errorf("ref %q: %w", name, ErrNotFound)
		}
		return Ref{}, fmt.Errorf("read ref %q: %w", name, err)
	}
	return parseLooseRef(name, data)
}

func parseLooseRef(name string, data []byte) (Ref, error) {
	content := string(bytes.TrimRight(data, "\n"))
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		target = strings.TrimSpace(target)
		if err := ValidateName(target); err != nil {
			return Ref{}, fmt.Errorf("%w: %q points to %q: %v", ErrMalformed, name, target, err)
		}
		return Ref{Name: name, Target: target}, nil
	}
	h, err := object.ParseHash(strings.TrimSpace(content))
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
	}
	return Ref{Name: name, Hash: h}, nil
}

// chain follows symbolic refs from name and returns every name visited,
// ending with the first non-symbolic ref. The final name may not exist
// (an unborn branch); the returned Ref is then zero.
func (s *Store) chain(name string) ([]string, Ref, error) {
	names := []string{name}
	cur := name
	for hops := 0; ; hops++ {
		ref, err := s.Read(cur)
		if errors.Is(err, ErrNotFound) {
			return names, Ref{}, nil
		}
		if err != nil {
			return nil, Ref{}, err
		}
		if !ref.IsSymbolic() {
			return names, ref, nil
		}
		if hops >= MaxSymrefDepth {
			return nil, Ref{}, fmt.Errorf("resolve %q: %w", name, ErrTooManyLinks)
		}
		cur = ref.Target
		names = append(names, cur)
	}
}

// Resolve follows symbolic refs from name to an object id. Chains longer
// than MaxSymrefDepth fail with ErrTooManyLinks; a dangling chain fails
// with ErrNotFound.
func (s *Store) Resolve(name string) (object.Hash, error) {
	names, ref, err := s.chain(name)
	if err != nil {
		return object.ZeroHash, err
	}
	if ref.Hash.IsZero() {
		return object.ZeroHash, fmt.Errorf("resolve %q via %q: %w", name, names[len(names)-1], ErrNotFound)
	}
	return ref.Hash, nil
}

// Symbolic returns the ref name points to, or "" when name holds an id
// directly.
func (s *Store) Symbolic(name string) (string, error) {
	ref, err := s.Read(name)
	if err != nil {
		return "", err
	}
	return ref.Target, nil
}

// List returns every ref under prefix (for example "refs/heads/"), merging
// loose refs over packed ones, sorted by name.
func (s *Store) List(prefix string) ([]Ref, error) {
	byName := make(map[string]Ref)
	packed, err := s.readPacked()
	if err != nil {
		return nil, err
	}
	for _, ref := range packed.refs {
		if strings.HasPrefix(ref.Name, prefix) {
			byName[ref.Name] = ref
		}
	}

	root := filepath.Join(s.gitDir, "refs")
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), lockfile.Suffix) {
			return nil
		}
		rel, err := filepath.Rel(s.gitDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) || ValidateName(name) != nil {
			return nil
		}
		ref, err := s.readLoose(name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		byName[name] = ref
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list refs: %w", err)
	}

	out := make([]Ref, 0, len(byName))
	for _, ref := range byName {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
