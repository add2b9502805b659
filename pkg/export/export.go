// Package export emits the graph as a single textual document with
// "nodes" and "edges" arrays, hand-escaping every string field so field
// order is guaranteed and an external parser can round-trip embedded
// control characters, quotes, and newlines.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kestrel-db/kestrel/pkg/graph"
	"github.com/kestrel-db/kestrel/pkg/metadata"
)

// Filter narrows which records are exported. Empty fields accept all.
type Filter struct {
	NamespaceID string
	EntityID    string
}

func (f Filter) accepts(m metadata.Metadata) bool {
	if f.NamespaceID != "" && m.NamespaceID != f.NamespaceID {
		return false
	}
	if f.EntityID != "" && m.EntityID != f.EntityID {
		return false
	}
	return true
}

// Graph is the read-only view of the store the exporter needs.
type Graph struct {
	Store *metadata.Store
	Edges *graph.EdgeSet
}

// JSON builds the exported document: every record satisfying filter
// becomes a node; an edge is included only if both its endpoints are in
// the exported node set, dropping anything dangling.
func (g *Graph) JSON(filter Filter) string {
	exported := make(map[uint64]bool)
	ids := g.Store.AllIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var nodes []string
	for _, id := range ids {
		m, ok := g.Store.Get(id)
		if !ok || !filter.accepts(m) {
			continue
		}
		exported[id] = true
		nodes = append(nodes, nodeJSON(id, m))
	}

	var edges []string
	for _, id := range ids {
		if !exported[id] {
			continue
		}
		for _, e := range g.Edges.GetEdges(id) {
			if !exported[e.Target] {
				continue
			}
			edges = append(edges, edgeJSON(id, e))
		}
	}

	var b strings.Builder
	b.WriteString(`{"nodes":[`)
	b.WriteString(strings.Join(nodes, ","))
	b.WriteString(`],"edges":[`)
	b.WriteString(strings.Join(edges, ","))
	b.WriteString(`]}`)
	return b.String()
}

func nodeJSON(id uint64, m metadata.Metadata) string {
	label := m.Content
	if len(label) > 60 {
		label = label[:60]
	}

	var b strings.Builder
	b.WriteString("{")
	fmt.Fprintf(&b, `"id":%d,`, id)
	fmt.Fprintf(&b, `"label":"%s",`, escapeJSON(label))
	fmt.Fprintf(&b, `"namespace_id":"%s",`, escapeJSON(m.NamespaceID))
	fmt.Fprintf(&b, `"entity_id":"%s",`, escapeJSON(m.EntityID))
	fmt.Fprintf(&b, `"type":%d,`, uint8(m.Type))
	fmt.Fprintf(&b, `"source":"%s",`, escapeJSON(m.Source))
	fmt.Fprintf(&b, `"importance":%s,`, formatFloat(m.Importance))
	fmt.Fprintf(&b, `"recall_count":%d,`, m.RecallCount)
	fmt.Fprintf(&b, `"timestamp":%d,`, m.Timestamp)
	b.WriteString(`"attributes":{`)
	writeAttributes(&b, m.Attributes)
	b.WriteString("}}")
	return b.String()
}

func edgeJSON(source uint64, e metadata.Edge) string {
	var b strings.Builder
	b.WriteString("{")
	fmt.Fprintf(&b, `"source":%d,`, source)
	fmt.Fprintf(&b, `"target":%d,`, e.Target)
	fmt.Fprintf(&b, `"rel_type":"%s",`, escapeJSON(e.RelType))
	fmt.Fprintf(&b, `"weight":%s`, formatFloat(e.Weight))
	b.WriteString("}")
	return b.String()
}

func writeAttributes(b *strings.Builder, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(b, `"%s":"%s"`, escapeJSON(k), escapeJSON(attrs[k]))
	}
}

func formatFloat(f float32) string {
	return fmt.Sprintf("%g", f)
}

// escapeJSON matches the original core's hand-rolled escape_json: the
// short escapes for quote/backslash/newline/carriage-return/tab, and
// \u00xx for any other byte below 0x20.
func escapeJSON(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
