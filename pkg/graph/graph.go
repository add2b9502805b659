// Package graph implements the typed, weighted edge graph on top of
// MetadataStore: Link's duplicate-suppressing out-edge writes, and the
// ReverseIndex — a derived, rebuildable cache of who points at whom.
package graph

import "github.com/kestrel-db/kestrel/pkg/metadata"

// Defaults mirror the ones the original C++ core gives link() and
// auto_link() as default argument values.
const (
	DefaultRelType = "related_to"
	DefaultWeight  = float32(1.0)
)

// IncomingEdge is a derived view of an Edge from the target's perspective.
// It is never authored directly — only ever reconstructed from out-edges.
type IncomingEdge struct {
	Source  uint64
	RelType string
	Weight  float32
}

// EdgeSet composes a MetadataStore (the source of truth for out-edges)
// with a ReverseIndex (a cache, rebuilt from the store rather than
// maintained as independent state whenever that's simpler and safer).
type EdgeSet struct {
	store   *metadata.Store
	reverse map[uint64][]IncomingEdge
}

// New creates an EdgeSet over store with an empty reverse index. Callers
// must call RebuildReverseIndex after loading existing records before
// relying on GetIncoming.
func New(store *metadata.Store) *EdgeSet {
	return &EdgeSet{store: store, reverse: make(map[uint64][]IncomingEdge)}
}

// Link appends (to, relType, weight) to from's out-edges, unless from is
// unknown (silent no-op) or an edge with the same (to, relType) already
// exists — in which case the call is a no-op too, including when weight
// differs: the first write wins, and later calls never update it.
func (g *EdgeSet) Link(from, to uint64, relType string, weight float32) {
	m, ok := g.store.Get(from)
	if !ok {
		return
	}
	if m.HasEdge(to, relType) {
		return
	}
	m.Edges = append(m.Edges, metadata.Edge{Target: to, RelType: relType, Weight: weight})
	g.store.Set(from, m)
	g.reverse[to] = append(g.reverse[to], IncomingEdge{Source: from, RelType: relType, Weight: weight})
}

// GetEdges returns id's out-edges in insertion order, or nil if id is
// unknown or has none.
func (g *EdgeSet) GetEdges(id uint64) []metadata.Edge {
	m, ok := g.store.Get(id)
	if !ok {
		return nil
	}
	return m.Edges
}

// GetIncoming returns the IncomingEdges recorded against id, in the order
// they were discovered (by Link calls or the last rebuild).
func (g *EdgeSet) GetIncoming(id uint64) []IncomingEdge {
	return g.reverse[id]
}

// UpdateMetadata replaces id's metadata outright and rebuilds the reverse
// index entries the change affects: every IncomingEdge sourced from id is
// dropped from every bucket, then one is re-added for each edge in
// newMeta.Edges.
func (g *EdgeSet) UpdateMetadata(id uint64, newMeta metadata.Metadata) {
	g.store.Set(id, newMeta)

	for target, incoming := range g.reverse {
		filtered := incoming[:0:0]
		for _, ie := range incoming {
			if ie.Source != id {
				filtered = append(filtered, ie)
			}
		}
		if len(filtered) == 0 {
			delete(g.reverse, target)
		} else {
			g.reverse[target] = filtered
		}
	}

	for _, e := range newMeta.Edges {
		g.reverse[e.Target] = append(g.reverse[e.Target], IncomingEdge{Source: id, RelType: e.RelType, Weight: e.Weight})
	}
}

// RebuildReverseIndex discards the current reverse index and reconstructs
// it from scratch off every record's out-edges. This is the authoritative
// contract: after any load, and after any bulk mutation the incremental
// path doesn't cover, callers should rebuild rather than trust incremental
// maintenance.
func (g *EdgeSet) RebuildReverseIndex() {
	g.reverse = make(map[uint64][]IncomingEdge)
	g.store.Range(func(id uint64, m *metadata.Metadata) {
		for _, e := range m.Edges {
			g.reverse[e.Target] = append(g.reverse[e.Target], IncomingEdge{Source: id, RelType: e.RelType, Weight: e.Weight})
		}
	})
}
