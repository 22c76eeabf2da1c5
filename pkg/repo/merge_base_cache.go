package repo

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/gitcore/pkg/object"
)

const commitGraphCacheSize = 4096

// commitGraph memoizes what merge-base searches need from commits: their
// parents and their generation numbers. A root commit has generation 1 and
// every other commit one more than its highest parent, so an ancestor
// always has a strictly lower generation than its descendants.
type commitGraph struct {
	store   *object.Store
	parents *lru.Cache[object.Hash, []object.Hash]

	mu          sync.Mutex
	generations map[object.Hash]uint64
}

func newCommitGraph(store *object.Store) *commitGraph {
	parents, _ := lru.New[object.Hash, []object.Hash](commitGraphCacheSize)
	return &commitGraph{
		store:       store,
		parents:     parents,
		generations: make(map[object.Hash]uint64),
	}
}

func (g *commitGraph) parentsOf(h object.Hash) ([]object.Hash, error) {
	if p, ok := g.parents.Get(h); ok {
		return p, nil
	}
	c, err := g.store.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("merge base: read commit %s: %w", h, err)
	}
	g.parents.Add(h, c.Parents)
	return c.Parents, nil
}

func (g *commitGraph) cachedGeneration(h object.Hash) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.generations[h]
	return n, ok
}

// generation computes the generation number of h with an explicit stack,
// so long linear histories do not grow the goroutine stack.
func (g *commitGraph) generation(h object.Hash) (uint64, error) {
	expanding := make(map[object.Hash]bool)
	stack := []object.Hash{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		if _, ok := g.cachedGeneration(cur); ok {
			stack = stack[:len(stack)-1]
			continue
		}
		parents, err := g.parentsOf(cur)
		if err != nil {
			return 0, err
		}
		var highest uint64
		pending := false
		for _, p := range parents {
			if n, ok := g.cachedGeneration(p); ok {
				highest = max(highest, n)
				continue
			}
			if expanding[p] {
				return 0, fmt.Errorf("merge base: commit graph cycle at %s", p)
			}
			stack = append(stack, p)
			pending = true
		}
		if pending {
			expanding[cur] = true
			continue
		}
		g.mu.Lock()
		g.generations[cur] = highest + 1
		g.mu.Unlock()
		delete(expanding, cur)
		stack = stack[:len(stack)-1]
	}
	n, _ := g.cachedGeneration(h)
	return n, nil
}
