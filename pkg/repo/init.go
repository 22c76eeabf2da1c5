package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/refs"
)

// DefaultBranch is the branch HEAD names in a new repository.
const DefaultBranch = "main"

const gitConfigTemplate = `[core]
	repositoryformatversion = 0
	filemode = true
	bare = false
	logallrefupdates = true
`

// Init creates a new repository at path: .git/ with HEAD, config,
// description, objects/{info,pack}, refs/{heads,tags} and a default
// gitcore.toml. It fails if .git/ already exists.
func Init(path string, opts ...Option) (*Repo, error) {
	workDir, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	gitDir := filepath.Join(workDir, GitDirName)

	if _, err := os.Stat(gitDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects", "info"),
		filepath.Join(gitDir, "objects", "pack"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	files := []struct {
		name    string
		content string
	}{
		{"HEAD", "ref: " + refs.HeadsPrefix + DefaultBranch + "\n"},
		{"config", gitConfigTemplate},
		{"description", "Unnamed repository; edit this file 'description' to name the repository.\n"},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(gitDir, f.name), []byte(f.content), 0o644); err != nil {
			return nil, fmt.Errorf("init: write %s: %w", f.name, err)
		}
	}
	if err := WriteConfig(gitDir, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	return open(workDir, gitDir, opts...)
}

// Open searches upward from path for a .git/ directory and opens the
// repository. Returns an error if no .git/ directory is found.
func Open(path string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, GitDirName)
		info, err := os.Stat(gitDir)
		if err == nil && info.IsDir() {
			return open(cur, gitDir, opts...)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a git repository (or any parent up to /)")
		}
		cur = parent
	}
}
