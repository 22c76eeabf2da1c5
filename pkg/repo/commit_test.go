package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

func TestCommit_CreatesInitialCommit(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "hello.txt", "hello\n")
	h := commitAll(t, r, "initial commit")

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != h {
		t.Fatalf("Head = %s, want %s", head, h)
	}
	c, err := r.Objects.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 0 {
		t.Errorf("parents = %v, want none", c.Parents)
	}
	if c.Message != "initial commit\n" {
		t.Errorf("message = %q", c.Message)
	}
	if c.Author.Name != testSig.Name || c.Committer.Email != testSig.Email {
		t.Errorf("author/committer = %+v / %+v", c.Author, c.Committer)
	}
	files, err := r.treeFiles(c.TreeHash)
	if err != nil {
		t.Fatalf("treeFiles: %v", err)
	}
	if len(files) != 1 || files[0].Path != "hello.txt" {
		t.Fatalf("tree files = %+v", files)
	}
	if files[0].Hash != object.HashObject(object.TypeBlob, []byte("hello\n")) {
		t.Errorf("blob id = %s", files[0].Hash)
	}
}

func TestCommit_ChainsParent(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "one\n")
	first := commitAll(t, r, "first")
	writeFile(t, r, "a.txt", "one two\n")
	second := commitAll(t, r, "second")

	c, err := r.Objects.ReadCommit(second)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first {
		t.Fatalf("parents = %v, want [%s]", c.Parents, first)
	}

	log, err := r.Log(second, 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 || log[0].Hash != second || log[1].Hash != first {
		t.Fatalf("log = %+v", log)
	}
	limited, err := r.Log(second, 1)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited log has %d entries, want 1", len(limited))
	}
}

func TestCommit_NothingToCommit(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	_, err := r.Commit(ctx, CommitOptions{Message: "empty", Author: testSig, Committer: testSig})
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("commit on empty index: err = %v, want ErrNothingToCommit", err)
	}

	writeFile(t, r, "a.txt", "a\n")
	first := commitAll(t, r, "first")
	_, err = r.Commit(ctx, CommitOptions{Message: "again", Author: testSig, Committer: testSig})
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("commit with unchanged index: err = %v, want ErrNothingToCommit", err)
	}

	h, err := r.Commit(ctx, CommitOptions{Message: "empty", Author: testSig, Committer: testSig, AllowEmpty: true})
	if err != nil {
		t.Fatalf("AllowEmpty commit: %v", err)
	}
	c, err := r.Objects.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	fc, _ := r.Objects.ReadCommit(first)
	if c.TreeHash != fc.TreeHash {
		t.Errorf("empty commit tree = %s, want %s", c.TreeHash, fc.TreeHash)
	}
}

func TestCommit_RefusesUnmergedIndex(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	commitAll(t, r, "first")
	ctx := context.Background()

	locked, err := r.Index.Lock(ctx, 0)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	idx, err := locked.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	ours := &index.Entry{Mode: object.ModeRegular, Hash: object.HashObject(object.TypeBlob, []byte("ours\n"))}
	theirs := &index.Entry{Mode: object.ModeRegular, Hash: object.HashObject(object.TypeBlob, []byte("theirs\n"))}
	if err := idx.SetConflict("a.txt", nil, ours, theirs); err != nil {
		t.Fatalf("SetConflict: %v", err)
	}
	if err := locked.Replace(idx); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	locked.Unlock()

	_, err = r.Commit(ctx, CommitOptions{Message: "blocked", Author: testSig, Committer: testSig})
	if !errors.Is(err, index.ErrUnmergedPath) {
		t.Fatalf("err = %v, want ErrUnmergedPath", err)
	}
}

func TestCommit_WritesReflog(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	first := commitAll(t, r, "first line\n\nbody")
	writeFile(t, r, "a.txt", "ab\n")
	second := commitAll(t, r, "second")

	log, err := r.Reflog("main", 0)
	if err != nil {
		t.Fatalf("Reflog: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("reflog has %d entries, want 2", len(log))
	}
	if log[0].New != second || log[0].Old != first || log[0].Message != "commit: second" {
		t.Errorf("newest entry = %+v", log[0])
	}
	if !log[1].Old.IsZero() || log[1].New != first || log[1].Message != "commit (initial): first line" {
		t.Errorf("oldest entry = %+v", log[1])
	}

	headLog, err := r.Reflog(refs.HEAD, 1)
	if err != nil {
		t.Fatalf("Reflog(HEAD): %v", err)
	}
	if len(headLog) != 1 || headLog[0].New != second {
		t.Errorf("HEAD reflog = %+v", headLog)
	}
}

func TestCommit_UsesConfiguredIdentity(t *testing.T) {
	r := initRepo(t)
	if err := r.SetUser("Configured", "configured@example.com"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	writeFile(t, r, "a.txt", "a\n")
	ctx := context.Background()
	if err := r.Add(ctx, []string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(ctx, CommitOptions{Message: "first"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	c, err := r.Objects.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Author.Name != "Configured" || c.Committer.Email != "configured@example.com" {
		t.Errorf("identity = %+v / %+v", c.Author, c.Committer)
	}
}

func TestOpen_WithUserOverridesConfig(t *testing.T) {
	r := initRepo(t)
	if err := r.SetUser("Configured", "configured@example.com"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	r, err := Open(r.WorkDir, WithUser("Override", ""))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	writeFile(t, r, "a.txt", "a\n")
	ctx := context.Background()
	if err := r.Add(ctx, []string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(ctx, CommitOptions{Message: "first"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	c, err := r.Objects.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Author.Name != "Override" || c.Author.Email != "configured@example.com" {
		t.Errorf("author = %+v", c.Author)
	}
	stored, err := ReadConfig(r.GitDir)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if stored.User.Name != "Configured" {
		t.Errorf("override persisted: %+v", stored.User)
	}
}
