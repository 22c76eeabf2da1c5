package repo

import "github.com/odvcencio/gitcore/pkg/object"

// paint marks which side of a merge-base search reached a commit.
type paint uint8

const (
	paintLeft paint = 1 << iota
	paintRight
	paintBoth = paintLeft | paintRight
)

type generationItem struct {
	hash       object.Hash
	generation uint64
}

// generationHeap pops the highest generation first, so a commit is only
// visited after every descendant that could reach it.
type generationHeap []generationItem

func (h generationHeap) Len() int { return len(h) }

func (h generationHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash.Compare(h[j].hash) < 0
	}
	return h[i].generation > h[j].generation
}

func (h generationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *generationHeap) Push(x any) { *h = append(*h, x.(generationItem)) }

func (h *generationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
