package checkout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

func (e *Engine) abs(rel string) string {
	return filepath.Join(e.workDir, filepath.FromSlash(rel))
}

// matcher returns the configured ignore matcher, or one built from the
// .gitignore files of the working tree as they are now.
func (e *Engine) matcher() *IgnoreMatcher {
	if e.opts.ignore != nil {
		return e.opts.ignore
	}
	return NewIgnoreMatcher(e.workDir)
}

func normalizeMode(m object.FileMode) object.FileMode {
	if m == object.ModeDeprecated {
		return object.ModeRegular
	}
	return m
}

// hashWorktree hashes a working file as the blob it would be staged as.
// A symlink hashes as its target path.
func hashWorktree(abs string, info os.FileInfo) (object.Hash, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(abs)
		if err != nil {
			return object.ZeroHash, err
		}
		return object.HashObject(object.TypeBlob, []byte(filepath.ToSlash(target))), nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return object.ZeroHash, err
	}
	return object.HashObject(object.TypeBlob, data), nil
}

// writeFile materializes one tree entry, replacing whatever file is at abs.
func (e *Engine) writeFile(abs string, mode object.FileMode, hash object.Hash) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", filepath.Dir(abs), err)
	}
	if mode.IsGitlink() {
		return os.MkdirAll(abs, 0o755)
	}
	blob, err := e.store.ReadBlob(hash)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", hash, err)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", abs, err)
	}
	if mode.IsSymlink() {
		return os.Symlink(filepath.FromSlash(string(blob.Data)), abs)
	}
	return os.WriteFile(abs, blob.Data, mode.Perm())
}

// removeEmptyParents removes empty directories up to (but not including)
// the working tree root.
func (e *Engine) removeEmptyParents(dir string) {
	root := filepath.Clean(e.workDir)
	for {
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
