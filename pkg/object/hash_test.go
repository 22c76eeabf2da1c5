package object

import (
	"testing"
)

func mustParseHash(t *testing.T, s string) Hash {
	t.Helper()
	h, err := ParseHash(s)
	if err != nil {
		t.Fatalf("ParseHash(%q): %v", s, err)
	}
	return h
}

func TestHashObjectMatchesGit(t *testing.T) {
	tests := []struct {
		objType ObjectType
		data    string
		want    string
	}{
		{TypeBlob, "", "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
		{TypeBlob, "hello world", "95d09f2b10159347eece71399a7e2e907ea3df4f"},
		{TypeTree, "", "4b825dc642cb6eb9a060e54bf8d69288fbee4904"},
	}
	for _, tt := range tests {
		got := HashObject(tt.objType, []byte(tt.data))
		if got.String() != tt.want {
			t.Errorf("HashObject(%s, %q) = %s, want %s", tt.objType, tt.data, got, tt.want)
		}
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	if HashObject(TypeBlob, data) == HashBytes(data) {
		t.Error("HashObject should differ from HashBytes due to envelope")
	}
	if HashObject(TypeBlob, data) == HashObject(TypeTree, data) {
		t.Error("different types should produce different hashes")
	}
}

func TestParseHash(t *testing.T) {
	h := mustParseHash(t, "95D09F2B10159347EECE71399A7E2E907EA3DF4F")
	if got := h.String(); got != "95d09f2b10159347eece71399a7e2e907ea3df4f" {
		t.Fatalf("String() = %q", got)
	}
	if got := h.Short(); got != "95d09f2" {
		t.Fatalf("Short() = %q", got)
	}
	for _, bad := range []string{"", "abc", "zz" + h.String()[2:], h.String() + "00"} {
		if _, err := ParseHash(bad); err == nil {
			t.Errorf("ParseHash(%q) succeeded, want error", bad)
		}
	}
	if !ZeroHash.IsZero() || h.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestHashTextRoundTrip(t *testing.T) {
	h := HashObject(TypeBlob, []byte("text"))
	text, err := h.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Hash
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %s, want %s", got, h)
	}
}
