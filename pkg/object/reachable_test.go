package object

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// commitChain writes n commits, each with its own one-file tree, and returns
// their ids oldest first.
func commitChain(t *testing.T, s *Store, n int) []Hash {
	t.Helper()
	var ids []Hash
	for i := 0; i < n; i++ {
		blob, err := s.WriteBlob(&Blob{Data: []byte{byte('a' + i)}})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		tree, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{{Name: "f", Mode: ModeRegular, Hash: blob}}})
		if err != nil {
			t.Fatalf("WriteTree: %v", err)
		}
		c := &CommitObj{
			TreeHash:  tree,
			Author:    testSignature("dev", int64(1700000000+i)),
			Committer: testSignature("dev", int64(1700000000+i)),
			Message:   "commit\n",
		}
		if len(ids) > 0 {
			c.Parents = []Hash{ids[len(ids)-1]}
		}
		h, err := s.WriteCommit(c)
		if err != nil {
			t.Fatalf("WriteCommit: %v", err)
		}
		ids = append(ids, h)
	}
	return ids
}

func TestIsAncestor(t *testing.T) {
	s := tempStore(t)
	ids := commitChain(t, s, 4)

	tests := []struct {
		ancestor, descendant Hash
		want                 bool
	}{
		{ids[0], ids[3], true},
		{ids[2], ids[3], true},
		{ids[3], ids[3], true},
		{ids[3], ids[0], false},
		{ids[1], ids[0], false},
	}
	for i, tt := range tests {
		got, err := s.IsAncestor(tt.ancestor, tt.descendant)
		if err != nil {
			t.Fatalf("case %d: IsAncestor: %v", i, err)
		}
		if got != tt.want {
			t.Errorf("case %d: IsAncestor = %v, want %v", i, got, tt.want)
		}
	}
}

func TestReachableSet(t *testing.T) {
	s := tempStore(t)
	ids := commitChain(t, s, 3)

	reach, err := s.ReachableSet(context.Background(), []Hash{ids[2]}, nil)
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	// Three commits, three trees, three blobs.
	if len(reach.Objects) != 9 {
		t.Fatalf("reachable objects = %d, want 9", len(reach.Objects))
	}
	if len(reach.Missing) != 0 {
		t.Fatalf("missing = %v", reach.Missing)
	}

	stopped, err := s.ReachableSet(context.Background(), []Hash{ids[2]}, map[Hash]struct{}{ids[1]: {}})
	if err != nil {
		t.Fatalf("ReachableSet(stop): %v", err)
	}
	if len(stopped.Objects) != 3 {
		t.Fatalf("reachable objects above stop = %d, want 3", len(stopped.Objects))
	}
}

func TestReachableSetReportsMissing(t *testing.T) {
	s := tempStore(t)
	ghost := HashObject(TypeBlob, []byte("not stored"))
	tree, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{{Name: "ghost", Mode: ModeRegular, Hash: ghost}}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	reach, err := s.ReachableSet(context.Background(), []Hash{tree}, nil)
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if diff := cmp.Diff([]Hash{ghost}, reach.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestReachableSetSkipsGitlinks(t *testing.T) {
	s := tempStore(t)
	sub := HashObject(TypeCommit, []byte("commit in another repository"))
	tree, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{{Name: "vendor", Mode: ModeGitlink, Hash: sub}}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	reach, err := s.ReachableSet(context.Background(), []Hash{tree}, nil)
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if len(reach.Missing) != 0 || len(reach.Objects) != 1 {
		t.Fatalf("reach = %+v", reach)
	}
}

func TestReachableSetHonorsCancellation(t *testing.T) {
	s := tempStore(t)
	ids := commitChain(t, s, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ReachableSet(ctx, ids, nil); err != context.Canceled {
		t.Fatalf("ReachableSet error = %v, want context.Canceled", err)
	}
}
