// Package vectorindex wraps the ANN backend contract with the per-modality
// bookkeeping SearchEngine needs: a dimension fixed at construction, and a
// Filter-aware predicate threaded down into kNN traversal.
package vectorindex

import (
	"github.com/kestrel-db/kestrel/pkg/ann"
)

// Index is one modality's vector space: a fixed dimension and the ANN
// backend behind it.
type Index struct {
	dim   int
	index *ann.Index
}

// New creates an Index of the given dimension, construction config, and
// point capacity.
func New(dim, capacity int, cfg ann.Config) *Index {
	return &Index{dim: dim, index: ann.New(dim, capacity, cfg)}
}

// Dim returns this modality's fixed vector dimension.
func (i *Index) Dim() int { return i.dim }

// AddPoint inserts or, for an already-present key, updates the stored
// vector. Fails with ann.ErrDimensionMismatch if len(vector) != Dim().
func (i *Index) AddPoint(vector []float32, key uint64) error {
	return i.index.AddPoint(vector, key)
}

// SearchKNN returns up to k results in a worst-first heap the caller
// drains, optionally narrowed by filterFn — called synchronously during
// traversal, and again for each candidate as the results are assembled.
func (i *Index) SearchKNN(query []float32, k int, filterFn func(key uint64) bool) (*ann.ResultHeap, error) {
	return i.index.SearchKNN(query, k, filterFn)
}

// GetDataByLabel returns a copy of the vector stored under key, if any.
func (i *Index) GetDataByLabel(key uint64) ([]float32, bool) {
	return i.index.GetDataByLabel(key)
}

// GetDataByInternalID returns a copy of the vector at internal position
// idx, used by persistence enumeration.
func (i *Index) GetDataByInternalID(idx int) ([]float32, bool) {
	return i.index.GetDataByInternalID(idx)
}

// GetExternalLabel maps an internal enumeration index back to its key.
func (i *Index) GetExternalLabel(idx int) (uint64, bool) {
	return i.index.GetExternalLabel(idx)
}

// CurrentElementCount returns the number of points currently indexed.
func (i *Index) CurrentElementCount() int {
	return i.index.CurrentElementCount()
}
