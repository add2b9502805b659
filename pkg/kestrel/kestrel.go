// Package kestrel provides the embedded store's public API: a single
// process, single binary file unifying per-modality vector search,
// structured metadata, and a typed graph behind one u64 key.
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.DefaultDim = 3
//	db, err := kestrel.Open("memory.db", cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Save()
//
//	db.Add(1, []float32{0.1, 0.2, 0.3}, metadata.Metadata{
//		Type:    metadata.ContextFact,
//		Content: "the user prefers dark mode",
//	}, "text")
//
//	results := db.Search([]float32{0.1, 0.2, 0.3}, 5, kestrel.SearchOptions{})
//	for _, r := range results {
//		fmt.Printf("%d: %.3f %s\n", r.Key, r.Score, r.Metadata.Content)
//	}
//
// Every operation here runs on the calling goroutine to completion; the
// store does no internal threading and expects the host to serialize
// concurrent access itself.
package kestrel

import (
	"container/heap"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kestrel-db/kestrel/pkg/ann"
	"github.com/kestrel-db/kestrel/pkg/codec"
	"github.com/kestrel-db/kestrel/pkg/config"
	"github.com/kestrel-db/kestrel/pkg/contextchain"
	"github.com/kestrel-db/kestrel/pkg/export"
	"github.com/kestrel-db/kestrel/pkg/filter"
	"github.com/kestrel-db/kestrel/pkg/graph"
	"github.com/kestrel-db/kestrel/pkg/metadata"
	"github.com/kestrel-db/kestrel/pkg/scoring"
	"github.com/kestrel-db/kestrel/pkg/search"
	"github.com/kestrel-db/kestrel/pkg/vectorindex"
)

const defaultModality = "text"

// logger is the package-level logger the engine writes its handful of
// ambient log lines through: a version migration on Open, an I/O failure
// on Save. The store is a library, not a service, so nothing else logs.
var logger = log.New(os.Stderr, "kestrel: ", log.LstdFlags)

// SearchOptions mirrors search.Options at the facade boundary so callers
// never need to import pkg/search directly.
type SearchOptions struct {
	Filter   *filter.Filter
	Scoring  *scoring.Config
	Modality string
}

// SearchResult is one ranked hit.
type SearchResult = search.Result

// ContextChainResult is the {nodes, edges} pair returned by ContextChain.
type ContextChainResult = contextchain.Result

// modalitySet adapts a plain map to search.Modalities/contextchain.Modalities.
type modalitySet map[string]*vectorindex.Index

func (m modalitySet) Get(name string) (*vectorindex.Index, bool) {
	idx, ok := m[name]
	return idx, ok
}

// DB is the store: every modality's vector index, the metadata store, the
// graph built on top of it, and the path it persists to.
type DB struct {
	path       string
	config     config.EngineConfig
	modalities modalitySet
	store      *metadata.Store
	graph      *graph.EdgeSet
	engine     *search.Engine
	expander   *contextchain.Expander
}

// Open loads path if it exists (a missing or unreadable file is treated
// as an empty store, never an error), migrating older on-disk versions
// in memory, and creates a default modality of cfg.DefaultDim if loading
// produced none. The ReverseIndex is rebuilt unconditionally before the
// DB is returned.
func Open(path string, cfg config.EngineConfig) (*DB, error) {
	store := metadata.New()
	modalities := modalitySet{}

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		doc, decodeErr := codec.Decode(f)
		if decodeErr != nil {
			doc = codec.Document{}
		}
		if doc.Version != 0 && doc.Version < codec.CurrentVersion {
			logger.Printf("migrated %s from on-disk version %d to %d", path, doc.Version, codec.CurrentVersion)
		}
		for id, m := range doc.Records {
			store.Add(id, m)
		}
		for _, mod := range doc.Modalities {
			idx := vectorindex.New(mod.Dim, cfg.HNSW.Capacity, cfg.ANN())
			for key, vec := range mod.Vectors {
				if addErr := idx.AddPoint(vec, key); addErr != nil {
					return nil, fmt.Errorf("kestrel: restoring modality %s: %w", mod.Name, addErr)
				}
			}
			modalities[mod.Name] = idx
		}
	}

	if len(modalities) == 0 {
		modalities[defaultModality] = vectorindex.New(cfg.DefaultDim, cfg.HNSW.Capacity, cfg.ANN())
	}

	g := graph.New(store)
	g.RebuildReverseIndex()

	db := &DB{
		path:       path,
		config:     cfg,
		modalities: modalities,
		store:      store,
		graph:      g,
		engine:     &search.Engine{Modalities: modalities, Store: store, Now: nowUnix},
		expander:   &contextchain.Expander{Modalities: modalities, Store: store, Graph: g, Now: nowUnix},
	}
	return db, nil
}

func nowUnix() int64 { return time.Now().Unix() }

// Add inserts or replaces the record at key in modality (default "text"),
// failing with ann.ErrDimensionMismatch if vector's length doesn't match
// the modality's established dimension. On success, metadata is merged
// per Store.Add's edge-preserving rule.
func (db *DB) Add(key uint64, vector []float32, meta metadata.Metadata, modality string) error {
	if modality == "" {
		modality = defaultModality
	}
	idx, ok := db.modalities[modality]
	if !ok {
		idx = vectorindex.New(len(vector), db.config.HNSW.Capacity, db.config.ANN())
		db.modalities[modality] = idx
	}
	if err := idx.AddPoint(vector, key); err != nil {
		return err
	}
	db.store.Add(key, meta)
	return nil
}

// Touch increments key's recall_count and stamps last_recalled_at. No-op
// if key is unknown.
func (db *DB) Touch(key uint64) {
	db.store.Touch(key, nowUnix())
}

// Link adds a typed out-edge from -> to. relType and weight, if zero-
// valued, fall back to graph.DefaultRelType / graph.DefaultWeight.
func (db *DB) Link(from, to uint64, relType string, weight float32) {
	if relType == "" {
		relType = graph.DefaultRelType
	}
	if weight == 0 {
		weight = graph.DefaultWeight
	}
	db.graph.Link(from, to, relType, weight)
}

// GetEdges returns key's out-edges in insertion order.
func (db *DB) GetEdges(key uint64) []metadata.Edge {
	return db.graph.GetEdges(key)
}

// GetIncoming returns key's incoming edges.
func (db *DB) GetIncoming(key uint64) []graph.IncomingEdge {
	return db.graph.GetIncoming(key)
}

// Search runs the kNN + filter + scoring pipeline over a modality.
func (db *DB) Search(query []float32, k int, opts SearchOptions) []SearchResult {
	return db.engine.Search(query, k, search.Options{Filter: opts.Filter, Scoring: opts.Scoring, Modality: opts.Modality})
}

// ContextChain seeds from a kNN search and expands outward over the graph
// up to hops levels in both edge directions.
func (db *DB) ContextChain(query []float32, k, hops int, modality string) ContextChainResult {
	return db.expander.Expand(query, k, hops, modality)
}

// AutoLinkOptions configures AutoLink; zero-valued fields fall back to
// config.EngineConfig.AutoLink's defaults.
type AutoLinkOptions struct {
	Modality   string
	Threshold  float64
	RelType    string
	Candidates int
}

// AutoLink scans every point in a modality and links it to its nearest
// neighbors above a similarity threshold, skipping self-hits and
// respecting the same duplicate-suppression rule as Link. Returns the
// number of edges created.
func (db *DB) AutoLink(opts AutoLinkOptions) uint64 {
	modality := opts.Modality
	if modality == "" {
		modality = defaultModality
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = db.config.AutoLink.Threshold
	}
	relType := opts.RelType
	if relType == "" {
		relType = db.config.AutoLink.RelType
	}
	candidates := opts.Candidates
	if candidates == 0 {
		candidates = db.config.AutoLink.Candidates
	}

	idx, ok := db.modalities[modality]
	if !ok {
		return 0
	}

	var created uint64
	count := idx.CurrentElementCount()
	for i := 0; i < count; i++ {
		from, ok := idx.GetExternalLabel(i)
		if !ok {
			continue
		}
		vec, ok := idx.GetDataByInternalID(i)
		if !ok {
			continue
		}

		h, err := idx.SearchKNN(vec, candidates+1, nil)
		if err != nil {
			continue
		}
		for _, hit := range drainAll(h) {
			if hit.Label == from {
				continue
			}
			sim := 1.0 / (1.0 + hit.Distance)
			if sim < threshold {
				continue
			}
			before := len(db.graph.GetEdges(from))
			db.graph.Link(from, hit.Label, relType, float32(sim))
			if len(db.graph.GetEdges(from)) > before {
				created++
			}
		}
	}
	return created
}

// ExportGraphJSON renders the store as a single JSON document of nodes
// and edges, narrowed by namespace/entity filters (empty = accept all).
func (db *DB) ExportGraphJSON(namespaceFilter, entityFilter string) string {
	g := &export.Graph{Store: db.store, Edges: db.graph}
	return g.JSON(export.Filter{NamespaceID: namespaceFilter, EntityID: entityFilter})
}

// GetMetadata returns a copy of key's metadata, or false if unknown.
func (db *DB) GetMetadata(key uint64) (metadata.Metadata, bool) {
	return db.store.Get(key)
}

// GetVector returns a copy of key's vector in modality, or false if either
// is unknown.
func (db *DB) GetVector(key uint64, modality string) ([]float32, bool) {
	if modality == "" {
		modality = defaultModality
	}
	idx, ok := db.modalities[modality]
	if !ok {
		return nil, false
	}
	return idx.GetDataByLabel(key)
}

// GetAllIDs returns every key indexed in modality.
func (db *DB) GetAllIDs(modality string) []uint64 {
	if modality == "" {
		modality = defaultModality
	}
	idx, ok := db.modalities[modality]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, idx.CurrentElementCount())
	for i := 0; i < idx.CurrentElementCount(); i++ {
		if label, ok := idx.GetExternalLabel(i); ok {
			out = append(out, label)
		}
	}
	return out
}

// UpdateMetadata replaces key's metadata outright and rebuilds the
// reverse-index entries it affects.
func (db *DB) UpdateMetadata(key uint64, meta metadata.Metadata) {
	db.graph.UpdateMetadata(key, meta)
}

// UpdateImportance sets key's importance. No-op if key is unknown.
func (db *DB) UpdateImportance(key uint64, importance float32) {
	db.store.UpdateImportance(key, importance)
}

// Save writes the whole store to its path in the current (v5) format.
func (db *DB) Save() error {
	f, err := os.Create(db.path)
	if err != nil {
		logger.Printf("save %s failed: %v", db.path, err)
		return fmt.Errorf("kestrel: creating %s: %w", db.path, err)
	}
	defer f.Close()

	doc := codec.Document{Records: make(map[uint64]metadata.Metadata, db.store.Len())}
	db.store.Range(func(id uint64, m *metadata.Metadata) {
		doc.Records[id] = *m
	})

	for name, idx := range db.modalities {
		vectors := make(map[uint64][]float32, idx.CurrentElementCount())
		for i := 0; i < idx.CurrentElementCount(); i++ {
			label, ok := idx.GetExternalLabel(i)
			if !ok {
				continue
			}
			vec, ok := idx.GetDataByInternalID(i)
			if !ok {
				continue
			}
			vectors[label] = vec
		}
		doc.Modalities = append(doc.Modalities, codec.Modality{Name: name, Dim: idx.Dim(), Vectors: vectors})
	}

	if err := codec.Encode(f, doc); err != nil {
		logger.Printf("save %s failed: %v", db.path, err)
		return fmt.Errorf("kestrel: writing %s: %w", db.path, err)
	}
	return nil
}

// Size returns the number of records in the metadata store.
func (db *DB) Size() int { return db.store.Len() }

// Dim returns modality's fixed dimension, or 0 if unknown.
func (db *DB) Dim(modality string) int {
	if modality == "" {
		modality = defaultModality
	}
	idx, ok := db.modalities[modality]
	if !ok {
		return 0
	}
	return idx.Dim()
}

func drainAll(h *ann.ResultHeap) []ann.Result {
	out := make([]ann.Result, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(h).(ann.Result))
	}
	return out
}
