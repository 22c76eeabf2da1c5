package refs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

const packedRefsFile = "packed-refs"

const packedRefsHeader = "# pack-refs with: peeled fully-peeled sorted \n"

// packedRefs is the parsed packed-refs table in file order.
type packedRefs struct {
	refs []Ref
}

func (p *packedRefs) get(name string) (Ref, bool) {
	for _, r := range p.refs {
		if r.Name == name {
			return r, true
		}
	}
	return Ref{}, false
}

func (p *packedRefs) without(name string) (*packedRefs, bool) {
	out := &packedRefs{refs: make([]Ref, 0, len(p.refs))}
	found := false
	for _, r := range p.refs {
		if r.Name == name {
			found = true
			continue
		}
		out.refs = append(out.refs, r)
	}
	return out, found
}

func (s *Store) readPacked() (*packedRefs, error) {
	data, err := os.ReadFile(filepath.Join(s.gitDir, packedRefsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &packedRefs{}, nil
		}
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return parsePackedRefs(data)
}

// parsePackedRefs reads "<hex> <name>" lines, each optionally followed by a
// "^<hex>" line carrying the peeled target of an annotated tag.
func parsePackedRefs(data []byte) (*packedRefs, error) {
	p := &packedRefs{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "^"):
			if len(p.refs) == 0 {
				return nil, fmt.Errorf("%w: packed-refs line %d: peeled value without a ref", ErrMalformed, lineNo)
			}
			h, err := object.ParseHash(line[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: packed-refs line %d: %v", ErrMalformed, lineNo, err)
			}
			p.refs[len(p.refs)-1].Peeled = h
		default:
			hexPart, name, ok := strings.Cut(line, " ")
			if !ok {
				return nil, fmt.Errorf("%w: packed-refs line %d: %q", ErrMalformed, lineNo, line)
			}
			h, err := object.ParseHash(hexPart)
			if err != nil {
				return nil, fmt.Errorf("%w: packed-refs line %d: %v", ErrMalformed, lineNo, err)
			}
			p.refs = append(p.refs, Ref{Name: name, Hash: h})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return p, nil
}

func (p *packedRefs) marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(packedRefsHeader)
	for _, r := range p.refs {
		fmt.Fprintf(&buf, "%s %s\n", r.Hash, r.Name)
		if !r.Peeled.IsZero() {
			fmt.Fprintf(&buf, "^%s\n", r.Peeled)
		}
	}
	return buf.Bytes()
}

// removePacked rewrites packed-refs without name under packed-refs.lock.
// It is a no-op when name is not packed.
func (s *Store) removePacked(ctx context.Context, name string) error {
	path := filepath.Join(s.gitDir, packedRefsFile)
	lock, err := lockfile.Acquire(ctx, path, s.opts.lock)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	current, err := s.readPacked()
	if err != nil {
		return err
	}
	rest, found := current.without(name)
	if !found {
		return nil
	}
	if _, err := lock.Write(rest.marshal()); err != nil {
		return fmt.Errorf("write packed-refs: %w", err)
	}
	return lock.Commit()
}
