package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encode returns the canonical body of obj and its type tag.
func Encode(obj Object) (ObjectType, []byte, error) {
	switch o := obj.(type) {
	case *Blob:
		return TypeBlob, MarshalBlob(o), nil
	case *TreeObj:
		data, err := MarshalTree(o)
		return TypeTree, data, err
	case *CommitObj:
		data, err := MarshalCommit(o)
		return TypeCommit, data, err
	case *TagObj:
		data, err := MarshalTag(o)
		return TypeTag, data, err
	default:
		return "", nil, fmt.Errorf("encode: unsupported object %T", obj)
	}
}

// Decode parses a canonical body according to its type tag. Parse failures
// wrap ErrCorruptObject.
func Decode(objType ObjectType, data []byte) (Object, error) {
	var (
		obj Object
		err error
	)
	switch objType {
	case TypeBlob:
		obj, err = UnmarshalBlob(data)
	case TypeTree:
		obj, err = UnmarshalTree(data)
	case TypeCommit:
		obj, err = UnmarshalCommit(data)
	case TypeTag:
		obj, err = UnmarshalTag(data)
	default:
		return nil, fmt.Errorf("%w: unknown object type %q", ErrCorruptObject, objType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// SortTreeEntries puts entries in canonical tree order: byte order of the
// name, where a directory compares as if its name ended in '/'.
func SortTreeEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return treeEntryLess(entries[i], entries[j])
	})
}

func treeEntryLess(a, b TreeEntry) bool {
	return treeSortKey(a) < treeSortKey(b)
}

func treeSortKey(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func validTreeEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("entry name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("entry name %q contains '/' or NUL", name)
	}
	return nil
}

// MarshalTree serializes a tree in git's binary format:
//
//	<octal mode> SP <name> NUL <20-byte id>
//
// repeated for every entry in canonical order.
func MarshalTree(t *TreeObj) ([]byte, error) {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	SortTreeEntries(entries)

	var buf bytes.Buffer
	for i, e := range entries {
		if err := validTreeEntryName(e.Name); err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		if i > 0 && treeSortKey(entries[i-1]) == treeSortKey(e) {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a binary tree body. Entry order is kept as stored.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	t := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed mode")
		}
		mode, err := strconv.ParseUint(string(data[:sp]), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: mode %q: %w", data[:sp], err)
		}
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul == -1 {
			return nil, fmt.Errorf("unmarshal tree: unterminated entry name")
		}
		name := string(data[:nul])
		if err := validTreeEntryName(name); err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		data = data[nul+1:]

		if len(data) < HashSize {
			return nil, fmt.Errorf("unmarshal tree: entry %q: truncated id", name)
		}
		var h Hash
		copy(h[:], data[:HashSize])
		data = data[HashSize:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: FileMode(mode), Hash: h})
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a commit in git's text format.
func MarshalCommit(c *CommitObj) ([]byte, error) {
	if err := c.Author.validate("author"); err != nil {
		return nil, err
	}
	if err := c.Committer.validate("committer"); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		writeContinuedHeader(&buf, h.Key, h.Value)
	}
	if c.Signature != "" {
		writeContinuedHeader(&buf, "gpgsig", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes(), nil
}

// writeContinuedHeader writes a possibly multi-line header value; every line
// after the first is prefixed by a single space.
func writeContinuedHeader(buf *bytes.Buffer, key, value string) {
	value = strings.TrimSuffix(value, "\n")
	buf.WriteString(key)
	for i, line := range strings.Split(value, "\n") {
		buf.WriteByte(' ')
		if i > 0 && line == "" {
			// Blank continuation lines are written as a lone space.
			buf.WriteByte('\n')
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

// UnmarshalCommit parses a commit body.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	c := &CommitObj{}
	var sawTree, sawAuthor, sawCommitter bool
	err := parseHeaders(data, func(key, value string) error {
		switch key {
		case "tree":
			h, err := ParseHash(value)
			if err != nil {
				return fmt.Errorf("tree: %w", err)
			}
			c.TreeHash = h
			sawTree = true
		case "parent":
			h, err := ParseHash(value)
			if err != nil {
				return fmt.Errorf("parent: %w", err)
			}
			c.Parents = append(c.Parents, h)
		case "author":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return fmt.Errorf("author: %w", err)
			}
			c.Author = sig
			sawAuthor = true
		case "committer":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return fmt.Errorf("committer: %w", err)
			}
			c.Committer = sig
			sawCommitter = true
		case "encoding":
			c.Encoding = value
		case "gpgsig":
			c.Signature = value + "\n"
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: key, Value: value})
		}
		return nil
	}, func(msg []byte) {
		c.Message = string(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	if !sawTree || !sawAuthor || !sawCommitter {
		return nil, fmt.Errorf("unmarshal commit: missing tree, author or committer header")
	}
	return c, nil
}

// parseHeaders walks "key value" header lines, joining space-prefixed
// continuation lines into the previous value, then hands the remainder after
// the blank separator line to body.
func parseHeaders(data []byte, header func(key, value string) error, body func([]byte)) error {
	var (
		key   string
		value []string
	)
	flush := func() error {
		if key == "" {
			return nil
		}
		err := header(key, strings.Join(value, "\n"))
		key, value = "", nil
		return err
	}
	for {
		eol := bytes.IndexByte(data, '\n')
		if eol == -1 {
			if len(data) == 0 {
				// Header-only object with no message separator.
				body(nil)
				return flush()
			}
			return fmt.Errorf("unterminated header line")
		}
		line := data[:eol]
		data = data[eol+1:]

		if len(line) == 0 {
			if err := flush(); err != nil {
				return err
			}
			body(data)
			return nil
		}
		if line[0] == ' ' {
			if key == "" {
				return fmt.Errorf("continuation line without header")
			}
			value = append(value, string(line[1:]))
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		sp := bytes.IndexByte(line, ' ')
		if sp <= 0 {
			return fmt.Errorf("malformed header line %q", line)
		}
		key = string(line[:sp])
		value = []string{string(line[sp+1:])}
	}
}

// Summary returns the first line of a commit message.
func (c *CommitObj) Summary() string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag.
func MarshalTag(t *TagObj) ([]byte, error) {
	if t.Tagger != nil {
		if err := t.Tagger.validate("tagger"); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Target)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes(), nil
}

// UnmarshalTag parses an annotated tag body.
func UnmarshalTag(data []byte) (*TagObj, error) {
	t := &TagObj{}
	var sawObject, sawType bool
	err := parseHeaders(data, func(key, value string) error {
		switch key {
		case "object":
			h, err := ParseHash(value)
			if err != nil {
				return fmt.Errorf("object: %w", err)
			}
			t.Target = h
			sawObject = true
		case "type":
			typ, err := ParseObjectType(value)
			if err != nil {
				return err
			}
			t.TargetType = typ
			sawType = true
		case "tag":
			t.Name = value
		case "tagger":
			sig, err := ParseSignature([]byte(value))
			if err != nil {
				return fmt.Errorf("tagger: %w", err)
			}
			t.Tagger = &sig
		}
		return nil
	}, func(msg []byte) {
		t.Message = string(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal tag: %w", err)
	}
	if !sawObject || !sawType {
		return nil, fmt.Errorf("unmarshal tag: missing object or type header")
	}
	return t, nil
}
