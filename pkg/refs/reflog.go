package refs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// ReflogEntry is one line of a ref's log.
type ReflogEntry struct {
	Old     object.Hash
	New     object.Hash
	Who     object.Signature
	Message string
}

func (s *Store) reflogPath(name string) string {
	return filepath.Join(s.gitDir, "logs", filepath.FromSlash(name))
}

// appendReflog writes one git-format line:
//
//	<old> <new> <Name> <<email>> <unix> <±hhmm>\t<message>
func (s *Store) appendReflog(name string, oldHash, newHash object.Hash, who object.Signature, message string) error {
	logPath := s.reflogPath(name)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}
	if who.Name == "" && who.Email == "" {
		who.Name, who.Email = s.opts.identity.Name, s.opts.identity.Email
	}
	if who.When.IsZero() {
		who.When = s.now()
	}
	message = strings.ReplaceAll(strings.TrimRight(message, "\n"), "\n", " ")
	line := fmt.Sprintf("%s %s %s\t%s\n", oldHash, newHash, who, message)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns the log of name, newest first. A ref without a log
// has no entries. At most limit entries are returned when limit > 0.
func (s *Store) ReadReflog(name string, limit int) ([]ReflogEntry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.reflogPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseReflogLine(scanner.Text())
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, bool) {
	head, message, _ := strings.Cut(line, "\t")
	if len(head) < 2*object.HashHexSize+2 {
		return ReflogEntry{}, false
	}
	oldHash, err := object.ParseHash(head[:object.HashHexSize])
	if err != nil {
		return ReflogEntry{}, false
	}
	rest := head[object.HashHexSize+1:]
	newHash, err := object.ParseHash(rest[:object.HashHexSize])
	if err != nil {
		return ReflogEntry{}, false
	}
	who, err := object.ParseSignature([]byte(rest[object.HashHexSize+1:]))
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{Old: oldHash, New: newHash, Who: who, Message: message}, true
}
