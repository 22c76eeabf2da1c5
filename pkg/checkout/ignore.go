package checkout

import (
	"path"
	"strings"

	gitignore "github.com/denormal/go-gitignore"
)

const gitDirName = ".git"

// IgnoreMatcher matches working-tree paths against the .gitignore files of
// a working tree. The .git directory is always ignored. A nil or empty
// matcher ignores nothing else.
type IgnoreMatcher struct {
	m gitignore.GitIgnore
}

// NewIgnoreMatcher loads the ignore rules below workDir. Rules are read
// lazily per directory.
func NewIgnoreMatcher(workDir string) *IgnoreMatcher {
	m, err := gitignore.NewRepository(workDir)
	if err != nil {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{m: m}
}

// IsIgnored reports whether the slash-separated relative path, or any
// directory above it, is ignored.
func (im *IgnoreMatcher) IsIgnored(rel string, isDir bool) bool {
	if rel == gitDirName || strings.HasPrefix(rel, gitDirName+"/") {
		return true
	}
	if im == nil || im.m == nil {
		return false
	}
	if match := im.m.Relative(rel, isDir); match != nil {
		return match.Ignore()
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if match := im.m.Relative(dir, true); match != nil && match.Ignore() {
			return true
		}
	}
	return false
}
