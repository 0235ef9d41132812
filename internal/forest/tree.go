package forest

import (
	"fmt"
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

// averagePathLength is c(n): the expected path length of an unsuccessful
// search in a binary search tree of n points. It normalises path lengths and
// corrects depth-limited leaves that still hold several points.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*harmonic(n-1) - 2*(fn-1)/fn
}

func harmonic(i int) float64 {
	return math.Log(float64(i)) + eulerGamma
}

// Node is a tagged variant: an internal split or a leaf. Children are indexes
// into the owning Tree's arena and are always greater than the parent index.
type Node struct {
	Leaf       bool    `json:"leaf,omitempty"`
	Feature    int     `json:"feature,omitempty"`
	Split      float64 `json:"split,omitempty"`
	Left       int32   `json:"left,omitempty"`
	Right      int32   `json:"right,omitempty"`
	Size       int     `json:"size,omitempty"`
	Correction float64 `json:"correction,omitempty"`
}

// Tree is one isolation tree stored as a flat arena rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// PathLength returns the number of edges from the root to the leaf x falls
// into, plus that leaf's correction.
func (t Tree) PathLength(x []float64) float64 {
	var i int32
	depth := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return float64(depth) + n.Correction
		}
		if x[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

func (t Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		for _, child := range []int32{n.Left, n.Right} {
			if int(child) <= i || int(child) >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", i, child)
			}
		}
	}
	return nil
}

type treeBuilder struct {
	rng      *rand.Rand
	maxDepth int
	width    int
	nodes    []Node
}

func buildTree(rng *rand.Rand, sample [][]float64, maxDepth, width int) Tree {
	b := &treeBuilder{
		rng:      rng,
		maxDepth: maxDepth,
		width:    width,
		nodes:    make([]Node, 0, 2*len(sample)),
	}
	b.grow(sample, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) leaf(size int) Node {
	return Node{Leaf: true, Size: size, Correction: averagePathLength(size)}
}

// grow appends the subtree for points at the given depth and returns its
// root index. points is partitioned in place.
func (b *treeBuilder) grow(points [][]float64, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{})

	if len(points) <= 1 || depth >= b.maxDepth {
		b.nodes[idx] = b.leaf(len(points))
		return idx
	}

	// Only features that vary inside this partition can separate it.
	var (
		candidates []int
		lows       []float64
		highs      []float64
	)
	for f := 0; f < b.width; f++ {
		lo, hi := points[0][f], points[0][f]
		for _, p := range points[1:] {
			if p[f] < lo {
				lo = p[f]
			}
			if p[f] > hi {
				hi = p[f]
			}
		}
		if hi > lo {
			candidates = append(candidates, f)
			lows = append(lows, lo)
			highs = append(highs, hi)
		}
	}
	if len(candidates) == 0 {
		b.nodes[idx] = b.leaf(len(points))
		return idx
	}

	pick := b.rng.Intn(len(candidates))
	feature := candidates[pick]
	split := lows[pick] + b.rng.Float64()*(highs[pick]-lows[pick])

	mid := 0
	for j := range points {
		if points[j][feature] < split {
			points[mid], points[j] = points[j], points[mid]
			mid++
		}
	}

	left := b.grow(points[:mid], depth+1)
	right := b.grow(points[mid:], depth+1)
	b.nodes[idx] = Node{Feature: feature, Split: split, Left: left, Right: right}
	return idx
}
