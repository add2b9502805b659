package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-db/kestrel/pkg/graph"
	"github.com/kestrel-db/kestrel/pkg/metadata"
)

func TestEscapeJSON(t *testing.T) {
	got := escapeJSON("\"hi\\there\n")
	assert.Equal(t, "\\\"hi\\\\there\\n", got)
	assert.Equal(t, "\\u0001", escapeJSON("\x01"))
}

func TestJSON_NamespaceFilterDropsOtherNamespaceAndDanglingEdge(t *testing.T) {
	store := metadata.New()
	store.Add(1, metadata.Metadata{Importance: 1, NamespaceID: "A", Content: "alpha"})
	store.Add(2, metadata.Metadata{Importance: 1, NamespaceID: "B", Content: "beta"})
	g := graph.New(store)
	g.Link(1, 2, "related_to", 1.0)

	ex := &Graph{Store: store, Edges: g}
	doc := ex.JSON(Filter{NamespaceID: "A"})

	assert.Contains(t, doc, `"id":1`)
	assert.NotContains(t, doc, `"id":2`)
	assert.NotContains(t, doc, `"source":1,"target":2`)
}

func TestJSON_EmbeddedQuoteSurvives(t *testing.T) {
	store := metadata.New()
	store.Add(1, metadata.Metadata{Importance: 1, Content: "say \"hi\"\nline2"})
	ex := &Graph{Store: store, Edges: graph.New(store)}

	doc := ex.JSON(Filter{})
	require.Contains(t, doc, "say \\\"hi\\\"\\nline2")
}

func TestJSON_TypeEncodedAsUnquotedNumber(t *testing.T) {
	store := metadata.New()
	store.Add(1, metadata.Metadata{Importance: 1, Type: metadata.ContextPreference})
	ex := &Graph{Store: store, Edges: graph.New(store)}

	doc := ex.JSON(Filter{})
	assert.Contains(t, doc, `"type":1,`)
	assert.NotContains(t, doc, `"type":"`)
}

func TestJSON_LabelTruncatedToSixtyBytes(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	store := metadata.New()
	store.Add(1, metadata.Metadata{Importance: 1, Content: string(long)})
	ex := &Graph{Store: store, Edges: graph.New(store)}

	doc := ex.JSON(Filter{})
	assert.Contains(t, doc, `"label":"`+string(long[:60])+`"`)
}
