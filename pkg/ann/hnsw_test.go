package ann

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain pops a ResultHeap worst-first into ascending (best-first) order,
// the same reversal VectorIndex performs on a real ANN backend's queue.
func drain(h *ResultHeap) []Result {
	out := make([]Result, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}

func TestIndex_AddAndSearch(t *testing.T) {
	idx := New(4, 1000, DefaultConfig())

	require.NoError(t, idx.AddPoint([]float32{1, 0, 0, 0}, 1))
	require.NoError(t, idx.AddPoint([]float32{0.9, 0.1, 0, 0}, 2))
	require.NoError(t, idx.AddPoint([]float32{0, 1, 0, 0}, 3))

	assert.Equal(t, 3, idx.CurrentElementCount())

	h, err := idx.SearchKNN([]float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	results := drain(h)

	labels := map[uint64]bool{}
	for _, r := range results {
		labels[r.Label] = true
	}
	require.Len(t, results, 2)
	assert.True(t, labels[1])
	assert.True(t, labels[2])
}

func TestIndex_AddPoint_DimensionMismatch(t *testing.T) {
	idx := New(4, 1000, DefaultConfig())
	err := idx.AddPoint([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_AddPoint_SameLabelUpdates(t *testing.T) {
	idx := New(2, 1000, DefaultConfig())
	require.NoError(t, idx.AddPoint([]float32{1, 0}, 1))
	require.NoError(t, idx.AddPoint([]float32{0, 1}, 1))

	assert.Equal(t, 1, idx.CurrentElementCount())
	vec, ok := idx.GetDataByLabel(1)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestIndex_SearchKNN_WithFilter(t *testing.T) {
	idx := New(2, 1000, DefaultConfig())
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, idx.AddPoint([]float32{float32(i), 0}, i))
	}

	onlyOdd := func(label uint64) bool { return label%2 == 1 }
	h, err := idx.SearchKNN([]float32{0, 0}, 5, onlyOdd)
	require.NoError(t, err)
	results := drain(h)
	for _, r := range results {
		assert.True(t, r.Label%2 == 1)
	}
}

// TestSearchLayer_FilterAdmitsBeyondEfRadius guards against a filter
// applied only as a post-hoc pass over an unfiltered candidate pool.
// It hand-builds a level-0 path graph (0-1-2-...-19) and sets ef=3, far
// smaller than the distance from the query to the nearest filter-passing
// node, so a naive "fill ef by raw distance, filter afterward" result set
// would come back empty while a traversal-time-filtered one finds it.
func TestSearchLayer_FilterAdmitsBeyondEfRadius(t *testing.T) {
	idx := New(1, 100, DefaultConfig())
	for i := uint64(0); i < 20; i++ {
		idx.nodes = append(idx.nodes, &node{
			label:     i,
			vector:    []float32{float32(i)},
			level:     0,
			neighbors: [][]int{{}},
		})
		idx.labelToInt[i] = int(i)
	}
	for i := 0; i < 20; i++ {
		if i > 0 {
			idx.nodes[i].neighbors[0] = append(idx.nodes[i].neighbors[0], i-1)
		}
		if i < 19 {
			idx.nodes[i].neighbors[0] = append(idx.nodes[i].neighbors[0], i+1)
		}
	}
	idx.entryPoint = 0
	idx.maxLevel = 0

	onlyLabel15 := func(label uint64) bool { return label == 15 }
	got := idx.searchLayer([]float32{0}, 0, 3, 0, onlyLabel15)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(15), idx.nodes[got[0]].label)
}

func TestIndex_GetExternalLabel_Enumeration(t *testing.T) {
	idx := New(2, 1000, DefaultConfig())
	require.NoError(t, idx.AddPoint([]float32{1, 1}, 42))
	require.NoError(t, idx.AddPoint([]float32{2, 2}, 99))

	label, ok := idx.GetExternalLabel(0)
	require.True(t, ok)
	assert.Equal(t, uint64(42), label)

	label, ok = idx.GetExternalLabel(1)
	require.True(t, ok)
	assert.Equal(t, uint64(99), label)

	_, ok = idx.GetExternalLabel(2)
	assert.False(t, ok)
}

func TestIndex_AddPoint_CapacityExceeded(t *testing.T) {
	idx := New(1, 2, DefaultConfig())
	require.NoError(t, idx.AddPoint([]float32{1}, 1))
	require.NoError(t, idx.AddPoint([]float32{2}, 2))
	err := idx.AddPoint([]float32{3}, 3)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
