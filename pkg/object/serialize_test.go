package object

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testSignature(name string, unix int64) Signature {
	return Signature{
		Name:  name,
		Email: name + "@example.com",
		When:  time.Unix(unix, 0).In(time.FixedZone("+0200", 2*3600)),
	}
}

func TestTreeRoundTripSortedEntries(t *testing.T) {
	blobX := HashObject(TypeBlob, []byte("x"))
	blobY := HashObject(TypeBlob, []byte("y"))
	tree := &TreeObj{Entries: []TreeEntry{
		{Name: "b.txt", Mode: ModeRegular, Hash: blobY},
		{Name: "a.txt", Mode: ModeRegular, Hash: blobX},
	}}

	data, err := MarshalTree(tree)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	want := []TreeEntry{
		{Name: "a.txt", Mode: ModeRegular, Hash: blobX},
		{Name: "b.txt", Mode: ModeRegular, Hash: blobY},
	}
	if diff := cmp.Diff(want, got.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeOrderTreatsDirectoriesAsSlashSuffixed(t *testing.T) {
	h := HashObject(TypeBlob, nil)
	tree := &TreeObj{Entries: []TreeEntry{
		{Name: "foo", Mode: ModeDir, Hash: h},
		{Name: "foo.txt", Mode: ModeRegular, Hash: h},
		{Name: "foo-bar", Mode: ModeRegular, Hash: h},
	}}
	data, err := MarshalTree(tree)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	var names []string
	for _, e := range got.Entries {
		names = append(names, e.Name)
	}
	// '-' (0x2d) < '.' (0x2e) < '/' (0x2f)
	want := []string{"foo-bar", "foo.txt", "foo"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeEncodingMatchesGit(t *testing.T) {
	empty := HashObject(TypeBlob, nil)
	data, err := MarshalTree(&TreeObj{Entries: []TreeEntry{{Name: "a", Mode: ModeRegular, Hash: empty}}})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	want := append([]byte("100644 a\x00"), empty[:]...)
	if !bytes.Equal(data, want) {
		t.Fatalf("tree bytes = %q, want %q", data, want)
	}
	// git mktree with one empty file named "a".
	if got := HashObject(TypeTree, data).String(); got != "496d6428b9cf92981dc9495211e6e1120fb6f2ba" {
		t.Fatalf("tree id = %s", got)
	}
}

func TestMarshalTreeRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		_, err := MarshalTree(&TreeObj{Entries: []TreeEntry{{Name: name, Mode: ModeRegular}}})
		if err == nil {
			t.Errorf("MarshalTree accepted name %q", name)
		}
	}
	_, err := MarshalTree(&TreeObj{Entries: []TreeEntry{
		{Name: "dup", Mode: ModeRegular},
		{Name: "dup", Mode: ModeRegular},
	}})
	if err == nil {
		t.Error("MarshalTree accepted duplicate entries")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	orig := &CommitObj{
		TreeHash:  HashObject(TypeTree, nil),
		Parents:   []Hash{HashObject(TypeBlob, []byte("p1")), HashObject(TypeBlob, []byte("p2"))},
		Author:    testSignature("alice", 1700000000),
		Committer: testSignature("bob", 1700000100),
		Signature: "-----BEGIN SSH SIGNATURE-----\nAAAA\n\nBBBB\n-----END SSH SIGNATURE-----\n",
		Message:   "subject\n\nbody line\n",
	}
	data, err := MarshalCommit(orig)
	if err != nil {
		t.Fatalf("MarshalCommit: %v", err)
	}
	got, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	again, err := MarshalCommit(got)
	if err != nil {
		t.Fatalf("MarshalCommit(again): %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatalf("re-encoding differs:\n%s\n---\n%s", data, again)
	}
	if got.Summary() != "subject" {
		t.Fatalf("Summary = %q", got.Summary())
	}
	if got.Author.Name != "alice" || got.Author.Email != "alice@example.com" || got.Author.When.Unix() != 1700000000 {
		t.Fatalf("author = %+v", got.Author)
	}
	if _, off := got.Committer.When.Zone(); off != 7200 {
		t.Fatalf("committer offset = %d, want 7200", off)
	}
	if diff := cmp.Diff(orig.Parents, got.Parents); diff != "" {
		t.Fatalf("parents mismatch (-want +got):\n%s", diff)
	}
	if got.Signature != orig.Signature {
		t.Fatalf("signature = %q, want %q", got.Signature, orig.Signature)
	}
	if !bytes.Equal(CommitSigningPayload(got), CommitSigningPayload(orig)) {
		t.Fatal("signing payload differs after round trip")
	}
}

func TestCommitTextFormat(t *testing.T) {
	c := &CommitObj{
		TreeHash:  HashObject(TypeTree, nil),
		Author:    Signature{Name: "A U Thor", Email: "author@example.com", When: time.Unix(1112911993, 0).In(time.FixedZone("", -7*3600))},
		Committer: Signature{Name: "A U Thor", Email: "author@example.com", When: time.Unix(1112911993, 0).In(time.FixedZone("", -7*3600))},
		Message:   "initial\n",
	}
	data, err := MarshalCommit(c)
	if err != nil {
		t.Fatalf("MarshalCommit: %v", err)
	}
	want := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"author A U Thor <author@example.com> 1112911993 -0700\n" +
		"committer A U Thor <author@example.com> 1112911993 -0700\n" +
		"\n" +
		"initial\n"
	if string(data) != want {
		t.Fatalf("commit text:\n%s\nwant:\n%s", data, want)
	}
}

func TestCommitPreservesUnknownHeaders(t *testing.T) {
	raw := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"author A <a@x> 1 +0000\n" +
		"committer A <a@x> 1 +0000\n" +
		"mergetag object 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		" type tree\n" +
		"\n" +
		"msg\n"
	c, err := UnmarshalCommit([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if len(c.ExtraHeaders) != 1 || c.ExtraHeaders[0].Key != "mergetag" {
		t.Fatalf("ExtraHeaders = %+v", c.ExtraHeaders)
	}
	data, err := MarshalCommit(c)
	if err != nil {
		t.Fatalf("MarshalCommit: %v", err)
	}
	if string(data) != raw {
		t.Fatalf("re-encoded:\n%q\nwant:\n%q", data, raw)
	}
}

func TestTagRoundTrip(t *testing.T) {
	tagger := testSignature("tagger", 1600000000)
	orig := &TagObj{
		Target:     HashObject(TypeCommit, []byte("c")),
		TargetType: TypeCommit,
		Name:       "v1.0.0",
		Tagger:     &tagger,
		Message:    "release\n",
	}
	data, err := MarshalTag(orig)
	if err != nil {
		t.Fatalf("MarshalTag: %v", err)
	}
	got, err := UnmarshalTag(data)
	if err != nil {
		t.Fatalf("UnmarshalTag: %v", err)
	}
	if got.Target != orig.Target || got.TargetType != orig.TargetType || got.Name != orig.Name || got.Message != orig.Message {
		t.Fatalf("tag mismatch: %+v", got)
	}
	if got.Tagger == nil || got.Tagger.String() != tagger.String() {
		t.Fatalf("tagger = %v, want %v", got.Tagger, tagger)
	}
}

func TestDecodeDispatchesOnType(t *testing.T) {
	tree := &TreeObj{Entries: []TreeEntry{{Name: "f", Mode: ModeExecutable, Hash: HashObject(TypeBlob, []byte("f"))}}}
	objType, data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	obj, err := Decode(objType, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := obj.(*TreeObj); !ok {
		t.Fatalf("Decode returned %T, want *TreeObj", obj)
	}

	if _, err := Decode(TypeCommit, []byte("garbage")); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("Decode(garbage commit) error = %v, want ErrCorruptObject", err)
	}
	if _, err := Decode(TypeTree, []byte("100644 name-without-id\x00abc")); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("Decode(truncated tree) error = %v, want ErrCorruptObject", err)
	}
}

func TestParseSignatureKeepsUnusualNames(t *testing.T) {
	sig, err := ParseSignature([]byte("Jane Q. Public (work) <jane@example.com> 1234567890 -0130"))
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if sig.Name != "Jane Q. Public (work)" || sig.Email != "jane@example.com" {
		t.Fatalf("sig = %+v", sig)
	}
	if got := sig.String(); got != "Jane Q. Public (work) <jane@example.com> 1234567890 -0130" {
		t.Fatalf("String() = %q", got)
	}
}
