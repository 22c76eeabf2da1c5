package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// ErrNothingToCommit is returned when the index matches HEAD and the commit
// was not explicitly allowed to be empty.
var ErrNothingToCommit = errors.New("nothing to commit")

// CommitSigner signs canonical commit payload bytes and returns the armored
// signature stored in the commit's gpgsig header.
type CommitSigner func(payload []byte) (string, error)

// CommitOptions describes a commit. Zero Author and Committer use the
// configured user and the current time.
type CommitOptions struct {
	Message    string
	Author     object.Signature
	Committer  object.Signature
	Signer     CommitSigner
	AllowEmpty bool
}

// Commit records the index as a new commit on top of HEAD.
//
//  1. Lock the index and write its tree
//  2. Read the parent from HEAD (none on an unborn branch)
//  3. Build, optionally sign, and insert the commit
//  4. Move HEAD, through its symbolic chain, from the parent to the commit
//
// The ref update is a compare-and-swap against the parent read in step 2,
// so a concurrent commit makes this one fail with refs.ErrCASMismatch
// rather than silently dropping either.
func (r *Repo) Commit(ctx context.Context, opts CommitOptions) (object.Hash, error) {
	locked, err := r.lockIndex(ctx)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	defer locked.Unlock()

	idx, err := locked.Read()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}

	in := r.Objects.NewInserter()
	defer in.Release()

	treeHash, err := index.WriteTree(idx, in)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}

	parent, err := r.Head()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	var parents []object.Hash
	if !parent.IsZero() {
		parents = append(parents, parent)
	}

	if !opts.AllowEmpty {
		empty := len(idx.Entries) == 0
		if !parent.IsZero() {
			pc, err := r.Objects.ReadCommit(parent)
			if err != nil {
				return object.ZeroHash, fmt.Errorf("commit: read parent %s: %w", parent, err)
			}
			empty = pc.TreeHash == treeHash
		}
		if empty {
			return object.ZeroHash, ErrNothingToCommit
		}
	}

	now := time.Now()
	author := opts.Author
	if author.Name == "" && author.Email == "" {
		author = r.identity(now)
	}
	committer := opts.Committer
	if committer.Name == "" && committer.Email == "" {
		committer = r.identity(now)
	}

	c := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   normalizeMessage(opts.Message),
	}
	if opts.Signer != nil {
		signature, err := opts.Signer(object.CommitSigningPayload(c))
		if err != nil {
			return object.ZeroHash, fmt.Errorf("commit: sign commit: %w", err)
		}
		if !strings.HasSuffix(signature, "\n") {
			signature += "\n"
		}
		c.Signature = signature
	}

	commitHash, err := in.Insert(c)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: write commit: %w", err)
	}
	if err := in.Flush(); err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}

	reason := "commit"
	if parent.IsZero() {
		reason = "commit (initial)"
	}
	_, err = r.Refs.Update(ctx, refs.RefUpdate{
		Name:     refs.HEAD,
		New:      commitHash,
		Expected: refs.ExpectOld(parent),
		Message:  reason + ": " + subject(c.Message),
		Who:      committer,
	})
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: update HEAD: %w", err)
	}
	r.log.Info("commit", "id", commitHash.Short(), "tree", treeHash.Short(), "parents", len(parents))
	return commitHash, nil
}

// VerifyCommit checks the SSH signature of commit h and returns the signing
// key's fingerprint.
func (r *Repo) VerifyCommit(h object.Hash) (string, error) {
	c, err := r.Objects.ReadCommit(h)
	if err != nil {
		return "", fmt.Errorf("verify commit: %w", err)
	}
	if c.Signature == "" {
		return "", fmt.Errorf("verify commit %s: %w: unsigned", h.Short(), ErrBadSignature)
	}
	pub, err := VerifySSHSignature(object.CommitSigningPayload(c), c.Signature)
	if err != nil {
		return "", fmt.Errorf("verify commit %s: %w", h.Short(), err)
	}
	return ssh.FingerprintSHA256(pub), nil
}

// LogEntry is one commit of a Log walk.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits newest first. A limit
// of zero or less walks to the root.
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	var out []LogEntry
	current := start

	for !current.IsZero() && (limit <= 0 || len(out) < limit) {
		c, err := r.Objects.ReadCommit(current)
		if err != nil {
			return out, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		out = append(out, LogEntry{Hash: current, Commit: c})

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return out, nil
}

// normalizeMessage ends a message with exactly one newline.
func normalizeMessage(msg string) string {
	msg = strings.TrimRight(msg, "\n")
	if msg == "" {
		return ""
	}
	return msg + "\n"
}

// subject returns the first line of a commit message.
func subject(msg string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(msg, "\n"), "\n")
	return line
}
