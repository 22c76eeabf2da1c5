package checkout

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGitignore(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .gitignore: %v", err)
	}
}

func TestIgnore_GitDirAlwaysIgnored(t *testing.T) {
	ic := NewIgnoreMatcher(t.TempDir())

	for _, p := range []string{".git", ".git/config", ".git/objects/ab"} {
		if !ic.IsIgnored(p, p == ".git") {
			t.Errorf("expected %s to be ignored", p)
		}
	}
	if ic.IsIgnored(".gitignore", false) {
		t.Error(".gitignore itself must not be ignored")
	}
}

func TestIgnore_SimpleGlobPattern(t *testing.T) {
	dir := t.TempDir()
	writeGitignore(t, dir, "*.log\n")
	ic := NewIgnoreMatcher(dir)

	if !ic.IsIgnored("debug.log", false) {
		t.Error("expected debug.log to be ignored")
	}
	if !ic.IsIgnored("sub/trace.log", false) {
		t.Error("expected sub/trace.log to be ignored")
	}
	if ic.IsIgnored("debug.txt", false) {
		t.Error("expected debug.txt to not be ignored")
	}
}

func TestIgnore_DirectoryPattern(t *testing.T) {
	dir := t.TempDir()
	writeGitignore(t, dir, "build/\n")
	ic := NewIgnoreMatcher(dir)

	if !ic.IsIgnored("build", true) {
		t.Error("expected build/ to be ignored")
	}
	if !ic.IsIgnored("build/output.o", false) {
		t.Error("expected build/output.o to be ignored through its directory")
	}
	if ic.IsIgnored("build.txt", false) {
		t.Error("expected build.txt to not be ignored")
	}
}

func TestIgnore_Negation(t *testing.T) {
	dir := t.TempDir()
	writeGitignore(t, dir, "*.log\n!keep.log\n")
	ic := NewIgnoreMatcher(dir)

	if !ic.IsIgnored("drop.log", false) {
		t.Error("expected drop.log to be ignored")
	}
	if ic.IsIgnored("keep.log", false) {
		t.Error("expected keep.log to be re-included")
	}
}

func TestIgnore_NoRules(t *testing.T) {
	ic := NewIgnoreMatcher(t.TempDir())
	if ic.IsIgnored("anything.txt", false) {
		t.Error("expected nothing ignored without .gitignore files")
	}
}

func TestIgnore_NilMatcher(t *testing.T) {
	var im *IgnoreMatcher
	if !im.IsIgnored(".git/index", false) {
		t.Error("expected .git/index to be ignored")
	}
	if im.IsIgnored("a.txt", false) {
		t.Error("expected a.txt to not be ignored")
	}
}

func TestCheckoutUsesSuppliedMatcher(t *testing.T) {
	rules := t.TempDir()
	writeGitignore(t, rules, "*.tmp\n")
	f := newFixture(t, WithIgnore(NewIgnoreMatcher(rules)))
	target := f.tree(t, map[string]string{"scratch.tmp": "tracked"})
	f.write(t, "scratch.tmp", "local scratch")

	res := f.mustCheckout(t, target)
	if len(res.Updated) != 1 || res.Updated[0] != "scratch.tmp" {
		t.Fatalf("Updated = %v", res.Updated)
	}
	if f.read(t, "scratch.tmp") != "tracked" {
		t.Fatal("ignored file not overwritten")
	}
}
