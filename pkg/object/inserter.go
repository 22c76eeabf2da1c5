package object

import (
	"errors"
	"fmt"
	"os"
)

type pendingObject struct {
	hash    Hash
	typ     ObjectType
	data    []byte
	tmpPath string
}

// Inserter is a batch-insert session. Objects written through it are
// staged in temp files and become visible to lookups only when Flush
// publishes them, so related objects such as a tree and the commit naming
// it appear together. Abandoned temp files are never visible.
type Inserter struct {
	store    *Store
	pending  []pendingObject
	seen     map[Hash]struct{}
	released bool
}

// NewInserter starts a batch-insert session.
func (s *Store) NewInserter() *Inserter {
	return &Inserter{store: s, seen: make(map[Hash]struct{})}
}

// Insert encodes and stages obj.
func (in *Inserter) Insert(obj Object) (Hash, error) {
	objType, data, err := Encode(obj)
	if err != nil {
		return ZeroHash, err
	}
	return in.Write(objType, data)
}

// Write stages a raw object body and returns its id. Content already in
// the store or already staged is not written again.
func (in *Inserter) Write(objType ObjectType, data []byte) (Hash, error) {
	if in.released {
		return ZeroHash, fmt.Errorf("inserter already released")
	}
	h := HashObject(objType, data)
	if _, ok := in.seen[h]; ok {
		return h, nil
	}
	if in.store.Has(h) {
		return h, nil
	}
	tmpPath, err := in.store.writeLooseTemp(objType, data)
	if err != nil {
		return ZeroHash, err
	}
	in.seen[h] = struct{}{}
	in.pending = append(in.pending, pendingObject{hash: h, typ: objType, data: data, tmpPath: tmpPath})
	return h, nil
}

// Pending returns the number of staged, unpublished objects.
func (in *Inserter) Pending() int {
	return len(in.pending)
}

// Flush publishes every staged object. Below the store's pack threshold
// each object is renamed into place as a loose object; at or above it the
// batch is written as a single pack.
func (in *Inserter) Flush() error {
	if in.released {
		return fmt.Errorf("inserter already released")
	}
	if len(in.pending) == 0 {
		return nil
	}
	threshold := in.store.opts.packThreshold
	if threshold > 0 && len(in.pending) >= threshold {
		summary, err := in.store.writePackFromObjects(in.pending)
		if err != nil {
			return fmt.Errorf("flush as pack: %w", err)
		}
		in.store.log.Debug("inserter flushed pack", "pack", summary.PackFile, "objects", summary.Objects)
		in.discardTemps()
		in.pending = nil
		return nil
	}

	for i, obj := range in.pending {
		if err := in.store.publishLoose(obj.tmpPath, obj.hash); err != nil {
			in.pending = in.pending[i+1:]
			return fmt.Errorf("flush %s: %w", obj.hash, err)
		}
	}
	in.pending = nil
	return nil
}

// Release discards anything staged but not flushed. It is safe to call
// after Flush and more than once, so it suits a deferred call.
func (in *Inserter) Release() error {
	if in.released {
		return nil
	}
	in.released = true
	return in.discardTemps()
}

func (in *Inserter) discardTemps() error {
	var errs []error
	for _, obj := range in.pending {
		if err := os.Remove(obj.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	in.pending = nil
	return errors.Join(errs...)
}
