// Package ann implements the approximate-nearest-neighbor backend that
// VectorIndex treats as a black box: a capacity-bounded, label-addressed
// HNSW graph over an L2 vector space.
//
// The capability surface is deliberately narrow — add a point under a u64
// label, run a kNN search with an optional candidate filter, and enumerate
// the index by internal position for persistence — so that any conforming
// ANN implementation (this one, or a real hnswlib binding) is a drop-in
// substitute. Points are never removed; the store this package backs has
// no delete operation.
package ann

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
)

var (
	// ErrDimensionMismatch is returned when a vector's length doesn't match
	// the index's fixed dimension.
	ErrDimensionMismatch = errors.New("ann: vector dimension mismatch")
	// ErrCapacityExceeded is returned by AddPoint once the index holds
	// Capacity distinct labels.
	ErrCapacityExceeded = errors.New("ann: index at capacity")
)

// Config controls HNSW construction and search quality.
type Config struct {
	M              int // max connections per node per layer
	EfConstruction int // candidate list size while building
	EfSearch       int // candidate list size while searching
}

// DefaultConfig matches the spec's construction parameters.
func DefaultConfig() Config {
	return Config{M: 16, EfConstruction: 200, EfSearch: 100}
}

const levelMultiplier = 1.0 / math.Ln2 // 1/ln(2): a node reaches each further level with probability 1/2

// node is a single point in the graph, addressed externally by Label and
// internally by its position in Index.nodes.
type node struct {
	label     uint64
	vector    []float32
	level     int
	neighbors [][]int // neighbors[level] = internal indices
}

// Index is an HNSW approximate nearest-neighbor index over a fixed-dimension
// L2 space, with a fixed capacity and label-based point identity.
type Index struct {
	dim      int
	capacity int
	config   Config

	nodes      []*node
	labelToInt map[uint64]int
	entryPoint int // internal index of the current entry point, -1 if empty
	maxLevel   int
}

// New creates an empty index over the given dimension and capacity.
func New(dim, capacity int, config Config) *Index {
	if config.M == 0 {
		config = DefaultConfig()
	}
	return &Index{
		dim:        dim,
		capacity:   capacity,
		config:     config,
		labelToInt: make(map[uint64]int),
		entryPoint: -1,
	}
}

// Dim returns the index's fixed vector dimension.
func (idx *Index) Dim() int { return idx.dim }

// CurrentElementCount returns the number of distinct labels in the index.
func (idx *Index) CurrentElementCount() int { return len(idx.nodes) }

// GetExternalLabel returns the label stored at the given internal position.
func (idx *Index) GetExternalLabel(internal int) (uint64, bool) {
	if internal < 0 || internal >= len(idx.nodes) {
		return 0, false
	}
	return idx.nodes[internal].label, true
}

// GetDataByLabel returns a copy of the vector stored under label.
func (idx *Index) GetDataByLabel(label uint64) ([]float32, bool) {
	i, ok := idx.labelToInt[label]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(idx.nodes[i].vector))
	copy(out, idx.nodes[i].vector)
	return out, true
}

// GetDataByInternalID returns a copy of the vector at the given internal
// position, for persistence enumeration.
func (idx *Index) GetDataByInternalID(internal int) ([]float32, bool) {
	if internal < 0 || internal >= len(idx.nodes) {
		return nil, false
	}
	out := make([]float32, len(idx.nodes[internal].vector))
	copy(out, idx.nodes[internal].vector)
	return out, true
}

// AddPoint inserts vec under label, or — if label already exists — replaces
// its vector in place without disturbing the graph's existing connections.
func (idx *Index) AddPoint(vec []float32, label uint64) error {
	if len(vec) != idx.dim {
		return ErrDimensionMismatch
	}

	if i, ok := idx.labelToInt[label]; ok {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		idx.nodes[i].vector = cp
		return nil
	}

	if len(idx.nodes) >= idx.capacity {
		return ErrCapacityExceeded
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)

	level := idx.randomLevel()
	n := &node{label: label, vector: cp, level: level, neighbors: make([][]int, level+1)}
	for i := range n.neighbors {
		n.neighbors[i] = make([]int, 0, idx.config.M)
	}

	selfIdx := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.labelToInt[label] = selfIdx

	if idx.entryPoint == -1 {
		idx.entryPoint = selfIdx
		idx.maxLevel = level
		return nil
	}

	ep := idx.entryPoint
	epLevel := idx.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = idx.searchLayerSingle(cp, ep, l)
	}

	for l := min(level, epLevel); l >= 0; l-- {
		candidates := idx.searchLayer(cp, ep, idx.config.EfConstruction, l, nil)
		neighbors := idx.selectNeighbors(cp, candidates, idx.config.M)
		n.neighbors[l] = neighbors

		for _, nb := range neighbors {
			neighbor := idx.nodes[nb]
			if len(neighbor.neighbors) <= l {
				continue
			}
			if len(neighbor.neighbors[l]) < idx.config.M {
				neighbor.neighbors[l] = append(neighbor.neighbors[l], selfIdx)
			} else {
				all := append(append([]int{}, neighbor.neighbors[l]...), selfIdx)
				neighbor.neighbors[l] = idx.selectNeighbors(neighbor.vector, all, idx.config.M)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > idx.maxLevel {
		idx.entryPoint = selfIdx
		idx.maxLevel = level
	}

	return nil
}

// Result is a single kNN hit: the squared L2 distance to the query and the
// label it was inserted under.
type Result struct {
	Distance float64
	Label    uint64
}

// SearchKNN runs a k-nearest-neighbor search and returns the results as a
// max-heap (worst distance on top), mirroring the priority queue an ANN
// backend like hnswlib hands back — callers drain it with heap.Pop to get
// worst-first order, or reverse that to get best-first. filter, if non-nil,
// is consulted for every candidate the graph traversal reaches; candidates
// it rejects are still traversed through but never become results.
func (idx *Index) SearchKNN(query []float32, k int, filter func(label uint64) bool) (*ResultHeap, error) {
	if len(query) != idx.dim {
		return nil, ErrDimensionMismatch
	}
	h := &ResultHeap{}
	if idx.entryPoint == -1 || k <= 0 {
		return h, nil
	}

	ep := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.searchLayerSingle(query, ep, l)
	}

	ef := idx.config.EfSearch
	if k > ef {
		ef = k
	}
	candidates := idx.searchLayer(query, ep, ef, 0, filter)

	heap.Init(h)
	for _, c := range candidates {
		n := idx.nodes[c]
		if filter != nil && !filter(n.label) {
			continue
		}
		d := l2Squared(query, n.vector)
		if h.Len() < k {
			heap.Push(h, Result{Distance: d, Label: n.label})
		} else if h.Len() > 0 && d < (*h)[0].Distance {
			heap.Pop(h)
			heap.Push(h, Result{Distance: d, Label: n.label})
		}
	}
	return h, nil
}

func (idx *Index) searchLayerSingle(query []float32, entry, level int) int {
	current := entry
	currentDist := l2Squared(query, idx.nodes[current].vector)

	for {
		changed := false
		node := idx.nodes[current]
		if level >= len(node.neighbors) {
			break
		}
		for _, nb := range node.neighbors[level] {
			d := l2Squared(query, idx.nodes[nb].vector)
			if d < currentDist {
				current = nb
				currentDist = d
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

// searchLayer returns up to ef internal indices near query at the given
// level, using a greedy best-first expansion. If filter is non-nil it is
// consulted synchronously during traversal, the way hnswlib admits to its
// own bounded W-set during a filtered search: every neighbor is still
// visited and enqueued as a candidate so traversal can pass through
// non-matching nodes to reach matching ones beyond them, but only a
// filter-passing neighbor is allowed to occupy a slot in the bounded
// results set. Without this, a non-matching node within ef of the query
// can crowd a matching node further away out of the result set entirely.
func (idx *Index) searchLayer(query []float32, entry, ef, level int, filter func(label uint64) bool) []int {
	visited := map[int]bool{entry: true}

	candidates := &internalDistHeap{}
	results := &internalDistHeap{}
	heap.Init(candidates)
	heap.Init(results)

	entryDist := l2Squared(query, idx.nodes[entry].vector)
	heap.Push(candidates, internalDistItem{idx: entry, dist: entryDist, isMax: false})
	if filter == nil || filter(idx.nodes[entry].label) {
		heap.Push(results, internalDistItem{idx: entry, dist: entryDist, isMax: true})
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(internalDistItem)
		if results.Len() >= ef && closest.dist > (*results)[0].dist {
			break
		}

		node := idx.nodes[closest.idx]
		if level >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := l2Squared(query, idx.nodes[nb].vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, internalDistItem{idx: nb, dist: d, isMax: false})
				if filter == nil || filter(idx.nodes[nb].label) {
					heap.Push(results, internalDistItem{idx: nb, dist: d, isMax: true})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]int, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(internalDistItem).idx
	}
	return out
}

func (idx *Index) selectNeighbors(query []float32, candidates []int, m int) []int {
	if len(candidates) <= m {
		return candidates
	}
	type scored struct {
		idx  int
		dist float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredList[i] = scored{idx: c, dist: l2Squared(query, idx.nodes[c].vector)}
	}
	for i := 1; i < len(scoredList); i++ {
		for j := i; j > 0 && scoredList[j].dist < scoredList[j-1].dist; j-- {
			scoredList[j], scoredList[j-1] = scoredList[j-1], scoredList[j]
		}
	}
	out := make([]int, m)
	for i := 0; i < m; i++ {
		out[i] = scoredList[i].idx
	}
	return out
}

func (idx *Index) randomLevel() int {
	r := rand.Float64()
	if r <= 0 {
		r = 1e-12
	}
	return int(-math.Log(r) * levelMultiplier)
}

func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return sum
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ResultHeap is a max-heap of Result ordered by Distance, the worst-first
// priority queue that SearchKNN returns for the caller to drain.
type ResultHeap []Result

func (h ResultHeap) Len() int            { return len(h) }
func (h ResultHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h ResultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ResultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *ResultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type internalDistItem struct {
	idx   int
	dist  float64
	isMax bool
}

type internalDistHeap []internalDistItem

func (h internalDistHeap) Len() int { return len(h) }
func (h internalDistHeap) Less(i, j int) bool {
	if h[i].isMax {
		return h[i].dist > h[j].dist
	}
	return h[i].dist < h[j].dist
}
func (h internalDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *internalDistHeap) Push(x interface{}) { *h = append(*h, x.(internalDistItem)) }
func (h *internalDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
