// Package contextchain expands a vector search into its graph
// neighborhood: seed nodes come from kNN, then a bidirectional BFS over
// out- and in-edges accumulates further nodes up to a hop limit, each
// scored by hop distance instead of raw similarity once past the seeds.
package contextchain

import (
	"container/heap"
	"sort"

	"github.com/kestrel-db/kestrel/pkg/ann"
	"github.com/kestrel-db/kestrel/pkg/graph"
	"github.com/kestrel-db/kestrel/pkg/metadata"
	"github.com/kestrel-db/kestrel/pkg/scoring"
	"github.com/kestrel-db/kestrel/pkg/vectorindex"
)

// Node is one member of the returned neighborhood.
type Node struct {
	Key   uint64
	Hop   int
	Score float64
}

// Edge is a deduplicated edge surfaced during BFS expansion.
type Edge struct {
	Source  uint64
	Target  uint64
	RelType string
	Weight  float32
}

// Result is the {nodes, edges} pair context_chain returns.
type Result struct {
	Nodes []Node
	Edges []Edge
}

// Modalities resolves a modality name to its vector index.
type Modalities interface {
	Get(name string) (*vectorindex.Index, bool)
}

// Expander runs ContextChain over a set of modalities, a metadata store,
// and the graph built on top of it.
type Expander struct {
	Modalities Modalities
	Store      *metadata.Store
	Graph      *graph.EdgeSet
	// Now returns the current Unix time, stamped on every seed hit's
	// last_recalled_at; overridable in tests, wired to wall-clock time
	// by the DB facade, the same role it plays on search.Engine.
	Now func() int64
}

type queued struct {
	key uint64
	hop int
}

// Expand seeds the neighborhood with a kNN search on modality, then BFS's
// both edge directions up to hops levels. hops == 0 returns exactly the
// seeds with no edges.
func (ex *Expander) Expand(query []float32, k, hops int, modality string) Result {
	if modality == "" {
		modality = "text"
	}
	idx, ok := ex.Modalities.Get(modality)
	if !ok {
		return Result{}
	}

	h, err := idx.SearchKNN(query, k, nil)
	if err != nil {
		return Result{}
	}
	seedHits := drain(h)

	now := int64(0)
	if ex.Now != nil {
		now = ex.Now()
	}

	seedSim := make(map[uint64]float64, len(seedHits))
	visited := make(map[uint64]int, len(seedHits))
	queue := make([]queued, 0, len(seedHits))
	for _, hit := range seedHits {
		ex.Store.Touch(hit.Label, now)
		seedSim[hit.Label] = 1.0 / (1.0 + hit.Distance)
		if _, seen := visited[hit.Label]; !seen {
			visited[hit.Label] = 0
			queue = append(queue, queued{key: hit.Label, hop: 0})
		}
	}

	var edges []Edge
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop >= hops {
			continue
		}

		for _, e := range ex.Graph.GetEdges(cur.key) {
			edges = append(edges, Edge{Source: cur.key, Target: e.Target, RelType: e.RelType, Weight: e.Weight})
			if _, seen := visited[e.Target]; !seen {
				visited[e.Target] = cur.hop + 1
				queue = append(queue, queued{key: e.Target, hop: cur.hop + 1})
			}
		}

		for _, ie := range ex.Graph.GetIncoming(cur.key) {
			edges = append(edges, Edge{Source: ie.Source, Target: cur.key, RelType: ie.RelType, Weight: ie.Weight})
			if _, seen := visited[ie.Source]; !seen {
				visited[ie.Source] = cur.hop + 1
				queue = append(queue, queued{key: ie.Source, hop: cur.hop + 1})
			}
		}
	}

	nodes := make([]Node, 0, len(visited))
	for key, hop := range visited {
		m := ex.Store.GetOrDefault(key)
		sim := seedSim[key]
		stickiness := scoring.Stickiness(m.RecallCount)

		var base float64
		if hop == 0 {
			base = sim
		} else {
			base = 1.0 / (1.0 + float64(hop))
		}

		nodes = append(nodes, Node{Key: key, Hop: hop, Score: base * float64(m.Importance) * stickiness})
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Score > nodes[j].Score })

	return Result{Nodes: nodes, Edges: dedupEdges(edges)}
}

// dedupEdges sorts by (source, target, rel_type) and collapses adjacent
// duplicates, keeping the first-seen weight.
func dedupEdges(edges []Edge) []Edge {
	if len(edges) == 0 {
		return nil
	}
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.RelType < b.RelType
	})

	out := edges[:1]
	for _, e := range edges[1:] {
		last := out[len(out)-1]
		if e.Source == last.Source && e.Target == last.Target && e.RelType == last.RelType {
			continue
		}
		out = append(out, e)
	}
	return out
}

func drain(h *ann.ResultHeap) []ann.Result {
	out := make([]ann.Result, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ann.Result)
	}
	return out
}
