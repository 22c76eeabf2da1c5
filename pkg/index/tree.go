package index

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// ObjectWriter stores objects. *object.Store and *object.Inserter both
// satisfy it.
type ObjectWriter interface {
	Insert(obj object.Object) (object.Hash, error)
}

// TreeReader reads tree objects; *object.Store satisfies it.
type TreeReader interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
}

// TreeFile is one non-directory entry of a flattened tree.
type TreeFile struct {
	Path string
	Mode object.FileMode
	Hash object.Hash
}

// WriteTree groups the stage-0 entries by directory, inserts one tree
// object per directory through w and returns the root id. It fails with
// an *UnmergedPathError while any conflict stage remains.
func WriteTree(idx *Index, w ObjectWriter) (object.Hash, error) {
	if paths := idx.Conflicted(); len(paths) > 0 {
		return object.ZeroHash, &UnmergedPathError{Paths: paths}
	}
	if err := idx.Validate(); err != nil {
		return object.ZeroHash, fmt.Errorf("write tree: %w", err)
	}
	return writeTreeDir(idx.Entries, "", w)
}

// writeTreeDir builds the tree for prefix from entries, which are the
// index entries under prefix in path order.
func writeTreeDir(entries []Entry, prefix string, w ObjectWriter) (object.Hash, error) {
	var tree object.TreeObj
	for i := 0; i < len(entries); {
		rel := entries[i].Path[len(prefix):]
		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			// Direct child file.
			tree.Entries = append(tree.Entries, object.TreeEntry{
				Name: rel,
				Mode: entries[i].Mode,
				Hash: entries[i].Hash,
			})
			i++
			continue
		}

		// Child is in a subdirectory: collect the run sharing it.
		name := rel[:slash]
		childPrefix := prefix + name + "/"
		j := i + 1
		for j < len(entries) && strings.HasPrefix(entries[j].Path, childPrefix) {
			j++
		}
		sub, err := writeTreeDir(entries[i:j], childPrefix, w)
		if err != nil {
			return object.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: object.ModeDir, Hash: sub})
		i = j
	}

	h, err := w.Insert(&tree)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// ReadTree walks a tree recursively and returns every non-directory entry
// with its full slash-separated path, in index (byte) order.
func ReadTree(r TreeReader, tree object.Hash) ([]TreeFile, error) {
	var files []TreeFile
	if err := readTreeRec(r, tree, "", &files); err != nil {
		return nil, err
	}
	sortTreeFiles(files)
	return files, nil
}

func readTreeRec(r TreeReader, h object.Hash, prefix string, out *[]TreeFile) error {
	t, err := r.ReadTree(h)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", h, err)
	}
	for _, e := range t.Entries {
		full := path.Join(prefix, e.Name)
		if e.Mode.IsDir() {
			if err := readTreeRec(r, e.Hash, full, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, TreeFile{Path: full, Mode: e.Mode, Hash: e.Hash})
	}
	return nil
}

func sortTreeFiles(files []TreeFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// FromTree builds a merged index from a flattened tree. The entries carry
// no stat data.
func FromTree(files []TreeFile) *Index {
	idx := New()
	idx.Entries = make([]Entry, 0, len(files))
	for _, f := range files {
		idx.Entries = append(idx.Entries, Entry{Path: f.Path, Mode: f.Mode, Hash: f.Hash})
	}
	idx.Sort()
	return idx
}
