package object

import (
	"fmt"
	"os"
)

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeCommit ObjectType = "commit"
	TypeTree   ObjectType = "tree"
	TypeBlob   ObjectType = "blob"
	TypeTag    ObjectType = "tag"
)

// ParseObjectType validates a type name read from an object header.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(s); t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown object type %q", ErrCorruptObject, s)
	}
}

// Object is the tagged variant over the four stored kinds: *Blob, *TreeObj,
// *CommitObj and *TagObj.
type Object interface {
	Type() ObjectType
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

func (*Blob) Type() ObjectType { return TypeBlob }

// FileMode is the mode recorded in tree entries and index entries.
type FileMode uint32

const (
	ModeDir        FileMode = 0o040000
	ModeRegular    FileMode = 0o100644
	ModeDeprecated FileMode = 0o100664
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeGitlink    FileMode = 0o160000
)

func (m FileMode) IsDir() bool     { return m&0o170000 == ModeDir }
func (m FileMode) IsSymlink() bool { return m&0o170000 == ModeSymlink }
func (m FileMode) IsGitlink() bool { return m&0o170000 == ModeGitlink }

// IsRegular reports whether m is a regular (possibly executable) file.
func (m FileMode) IsRegular() bool { return m&0o170000 == 0o100000 }

// String formats the mode the way it appears in a tree entry.
func (m FileMode) String() string {
	return fmt.Sprintf("%o", uint32(m))
}

// Perm returns the working-tree permission bits to use for a file with this
// mode.
func (m FileMode) Perm() os.FileMode {
	if m == ModeExecutable {
		return 0o755
	}
	return 0o644
}

// ModeFromFileInfo maps a working-tree stat result to the mode stored in
// trees and the index.
func ModeFromFileInfo(info os.FileInfo) FileMode {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return ModeSymlink
	case info.IsDir():
		return ModeDir
	case info.Mode().Perm()&0o111 != 0:
		return ModeExecutable
	default:
		return ModeRegular
	}
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode FileMode
	Hash Hash
}

// TreeObj holds tree entries in canonical order once marshaled.
type TreeObj struct {
	Entries []TreeEntry
}

func (*TreeObj) Type() ObjectType { return TypeTree }

// Find returns the entry with the given name.
func (t *TreeObj) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// ExtraHeader is a commit header the codec does not interpret but must
// reproduce byte-for-byte, such as mergetag.
type ExtraHeader struct {
	Key   string
	Value string
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash     Hash
	Parents      []Hash
	Author       Signature
	Committer    Signature
	Encoding     string
	ExtraHeaders []ExtraHeader
	// Signature holds the armored gpgsig payload, newline terminated.
	Signature string
	Message   string
}

func (*CommitObj) Type() ObjectType { return TypeCommit }

// TagObj is an annotated tag.
type TagObj struct {
	Target     Hash
	TargetType ObjectType
	Name       string
	Tagger     *Signature
	Message    string
}

func (*TagObj) Type() ObjectType { return TypeTag }
