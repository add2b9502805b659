// Package search implements the kNN + filter + scoring pipeline: resolve a
// modality, run the ANN backend, touch every candidate it returns, score
// each one, then rank and truncate to the caller's k.
package search

import (
	"container/heap"
	"sort"

	"github.com/kestrel-db/kestrel/pkg/ann"
	"github.com/kestrel-db/kestrel/pkg/filter"
	"github.com/kestrel-db/kestrel/pkg/metadata"
	"github.com/kestrel-db/kestrel/pkg/scoring"
	"github.com/kestrel-db/kestrel/pkg/vectorindex"
)

// Result is one ranked hit.
type Result struct {
	Key      uint64
	Score    float64
	Metadata metadata.Metadata
}

// Modalities resolves a modality name to its vector index. A lookup that
// finds nothing means the modality is unknown.
type Modalities interface {
	Get(name string) (*vectorindex.Index, bool)
}

// Store is the subset of MetadataStore the search path needs.
type Store interface {
	Has(id uint64) bool
	GetOrDefault(id uint64) metadata.Metadata
	Touch(id uint64, now int64)
}

// Engine runs searches against a set of modalities and a metadata store.
type Engine struct {
	Modalities Modalities
	Store      Store
	// Now returns the current Unix time; overridable in tests, defaulting
	// to wall-clock time when the DB facade wires a real Engine.
	Now func() int64
}

// Options configures a single Search call. Filter and Scoring are both
// optional; Modality defaults to "text" if empty.
type Options struct {
	Filter   *filter.Filter
	Scoring  *scoring.Config
	Modality string
}

// Search resolves Options.Modality, runs kNN with candidate widening when
// Scoring is set, touches every candidate returned (not just the k kept),
// scores each, and returns the top k sorted by descending score.
func (e *Engine) Search(query []float32, k int, opts Options) []Result {
	modality := opts.Modality
	if modality == "" {
		modality = "text"
	}
	idx, ok := e.Modalities.Get(modality)
	if !ok {
		return nil
	}

	candidates := k
	if opts.Scoring != nil {
		candidates = k * 3
	}

	var filterFn func(uint64) bool
	if opts.Filter != nil {
		f := opts.Filter
		filterFn = func(key uint64) bool {
			if !e.Store.Has(key) {
				return false
			}
			return f.Matches(e.Store.GetOrDefault(key))
		}
	}

	resultHeap, err := idx.SearchKNN(query, candidates, filterFn)
	if err != nil {
		return nil
	}

	now := int64(0)
	if e.Now != nil {
		now = e.Now()
	}

	hits := drain(resultHeap)
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		e.Store.Touch(h.Label, now)
		m := e.Store.GetOrDefault(h.Label)

		var score float64
		if opts.Scoring != nil {
			ageSeconds := float64(now - m.Timestamp)
			score = scoring.Score(h.Distance, ageSeconds, m.RecallCount, m.Importance, *opts.Scoring)
		} else {
			score = scoring.FallbackScore(h.Distance)
		}

		results = append(results, Result{Key: h.Label, Score: score, Metadata: m})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// drain pops h worst-first into ascending (best-first) order.
func drain(h *ann.ResultHeap) []ann.Result {
	out := make([]ann.Result, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ann.Result)
	}
	return out
}
