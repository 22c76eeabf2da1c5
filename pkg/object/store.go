package object

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// DefaultMaxDeltaDepth bounds delta chains followed when reading packs.
	DefaultMaxDeltaDepth = 50
	// DefaultDeltaCacheSize is the number of reconstructed delta bases kept.
	DefaultDeltaCacheSize = 256
	// DefaultPackThreshold is the pending-object count at which an Inserter
	// flushes into a pack instead of loose files.
	DefaultPackThreshold = 64
)

type storeOptions struct {
	maxDeltaDepth  int
	deltaCacheSize int
	packThreshold  int
	logger         *slog.Logger
}

// StoreOption configures OpenStore.
type StoreOption func(*storeOptions)

// WithMaxDeltaDepth sets the longest delta chain a read will follow before
// reporting ErrCorruptObject.
func WithMaxDeltaDepth(n int) StoreOption {
	return func(o *storeOptions) { o.maxDeltaDepth = n }
}

// WithDeltaCacheSize sets how many reconstructed delta bases are cached.
// Zero disables the cache.
func WithDeltaCacheSize(n int) StoreOption {
	return func(o *storeOptions) { o.deltaCacheSize = n }
}

// WithPackThreshold sets the pending-object count at which Inserter.Flush
// writes a pack. Zero or negative keeps every flush loose.
func WithPackThreshold(n int) StoreOption {
	return func(o *storeOptions) { o.packThreshold = n }
}

// WithLogger sets the logger for pack discovery and ingestion events.
func WithLogger(l *slog.Logger) StoreOption {
	return func(o *storeOptions) { o.logger = l }
}

// Store is a content-addressed object store over a git objects directory:
// loose objects under ab/cdef0123... and packs under pack/. Lookups check
// loose storage first, then packs in most-recently-hit order.
type Store struct {
	root  string
	opts  storeOptions
	cache *deltaBaseCache
	packs *packRegistry
	log   *slog.Logger
}

// OpenStore opens the objects directory at root. The directory is created
// lazily on first write.
func OpenStore(root string, opts ...StoreOption) (*Store, error) {
	o := storeOptions{
		maxDeltaDepth:  DefaultMaxDeltaDepth,
		deltaCacheSize: DefaultDeltaCacheSize,
		packThreshold:  DefaultPackThreshold,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := newDeltaBaseCache(o.deltaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("delta base cache: %w", err)
	}
	return &Store{
		root:  root,
		opts:  o,
		cache: cache,
		packs: newPackRegistry(filepath.Join(root, "pack"), o.logger, cache.purgePack),
		log:   o.logger,
	}, nil
}

// Root returns the objects directory.
func (s *Store) Root() string {
	return s.root
}

// Close releases open pack files.
func (s *Store) Close() error {
	return s.packs.close()
}

// objectPath returns the loose object path for a given id.
func (s *Store) objectPath(h Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Has reports whether the store contains an object with the given id.
func (s *Store) Has(h Hash) bool {
	if _, err := os.Stat(s.objectPath(h)); err == nil {
		return true
	}
	_, _, ok := s.packs.find(h)
	return ok
}

// Write stores an object and returns its id. Writing content that already
// exists returns the existing id without touching disk. New objects are
// written to a temp file and renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}
	tmpName, err := s.writeLooseTemp(objType, data)
	if err != nil {
		return ZeroHash, err
	}
	if err := s.publishLoose(tmpName, h); err != nil {
		return ZeroHash, err
	}
	return h, nil
}

// writeLooseTemp writes the compressed loose form to an invisible temp file
// in the objects directory and returns its path.
func (s *Store) writeLooseTemp(objType ObjectType, data []byte) (string, error) {
	compressed, err := EncodeLoose(objType, data)
	if err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-obj-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}
	return tmpName, nil
}

// publishLoose renames a finished temp file to its content address. A
// concurrent writer publishing the same id is harmless.
func (s *Store) publishLoose(tmpName string, h Hash) error {
	dest := s.objectPath(h)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write mkdir: %w", err)
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write chmod: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil
		}
		return fmt.Errorf("object write rename: %w", err)
	}
	return nil
}

// Insert encodes obj, stores it, and returns its id.
func (s *Store) Insert(obj Object) (Hash, error) {
	objType, data, err := Encode(obj)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(objType, data)
}

// Read retrieves an object by id, returning its type and canonical body.
// The body is re-hashed; content that does not hash to h fails with
// ErrHashMismatch.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	objType, data, err := s.readUnverified(h)
	if err != nil {
		return "", nil, err
	}
	if got := HashObject(objType, data); got != h {
		return "", nil, fmt.Errorf("object %s: %w: content hashes to %s", h, ErrHashMismatch, got)
	}
	return objType, data, nil
}

func (s *Store) readUnverified(h Hash) (ObjectType, []byte, error) {
	raw, err := os.ReadFile(s.objectPath(h))
	if err == nil {
		objType, data, err := DecodeLoose(raw)
		if err != nil {
			return "", nil, fmt.Errorf("object %s: %w", h, err)
		}
		return objType, data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}

	p, entry, ok := s.packs.find(h)
	if !ok {
		return "", nil, fmt.Errorf("object %s: %w", h, ErrNotFound)
	}
	objType, data, err := p.readAt(entry.Offset, s.opts.maxDeltaDepth, s.cache)
	if err != nil {
		return "", nil, fmt.Errorf("object %s: %w", h, err)
	}
	return objType, data, nil
}

// Open reads and decodes an object.
func (s *Store) Open(h Hash) (Object, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	obj, err := Decode(objType, data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return &Blob{Data: data}, nil
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	t, err := UnmarshalTree(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %v", h, ErrCorruptObject, err)
	}
	return t, nil
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	data, err := MarshalCommit(c)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(TypeCommit, data)
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %v", h, ErrCorruptObject, err)
	}
	return c, nil
}

// WriteTag serializes and stores a TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	data, err := MarshalTag(t)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(TypeTag, data)
}

// ReadTag reads and deserializes a TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	t, err := UnmarshalTag(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %v", h, ErrCorruptObject, err)
	}
	return t, nil
}

// PeelToTree follows tags and commits from h down to a tree id.
func (s *Store) PeelToTree(h Hash) (Hash, error) {
	for depth := 0; depth < 16; depth++ {
		objType, data, err := s.Read(h)
		if err != nil {
			return ZeroHash, err
		}
		switch objType {
		case TypeTree:
			return h, nil
		case TypeCommit:
			c, err := UnmarshalCommit(data)
			if err != nil {
				return ZeroHash, fmt.Errorf("object %s: %w: %v", h, ErrCorruptObject, err)
			}
			return c.TreeHash, nil
		case TypeTag:
			t, err := UnmarshalTag(data)
			if err != nil {
				return ZeroHash, fmt.Errorf("object %s: %w: %v", h, ErrCorruptObject, err)
			}
			h = t.Target
		default:
			return ZeroHash, fmt.Errorf("object %s: %s does not resolve to a tree", h, objType)
		}
	}
	return ZeroHash, fmt.Errorf("object %s: tag chain too long", h)
}
