package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-db/kestrel/pkg/metadata"
)

func sample() metadata.Metadata {
	return metadata.Metadata{
		Timestamp:   1000,
		Importance:  0.8,
		Type:        metadata.ContextFact,
		Source:      "chat:session-42",
		TagsJSON:    `["work","urgent"]`,
		NamespaceID: "ns-a",
		EntityID:    "user-1",
		Attributes:  map[string]string{"lang": "en"},
	}
}

func TestFilter_NilMatchesEverything(t *testing.T) {
	var f *Filter
	assert.True(t, f.Matches(sample()))
}

func TestFilter_ZeroValueMatchesEverything(t *testing.T) {
	f := &Filter{}
	assert.True(t, f.Matches(sample()))
}

func TestFilter_Types(t *testing.T) {
	f := &Filter{Types: []metadata.ContextType{metadata.ContextPreference, metadata.ContextEvent}}
	assert.False(t, f.Matches(sample()))
	f.Types = append(f.Types, metadata.ContextFact)
	assert.True(t, f.Matches(sample()))
}

func TestFilter_SourcePrefix(t *testing.T) {
	prefix := "chat:"
	f := &Filter{SourcePrefix: &prefix}
	assert.True(t, f.Matches(sample()))

	other := "sms:"
	f.SourcePrefix = &other
	assert.False(t, f.Matches(sample()))
}

func TestFilter_TimestampRange(t *testing.T) {
	after := int64(500)
	before := int64(1500)
	f := &Filter{TimestampAfter: &after, TimestampBefore: &before}
	assert.True(t, f.Matches(sample()))

	tooLate := int64(900)
	f.TimestampBefore = &tooLate
	assert.False(t, f.Matches(sample()))
}

func TestFilter_ImportanceGTE(t *testing.T) {
	gte := float32(0.9)
	f := &Filter{ImportanceGTE: &gte}
	assert.False(t, f.Matches(sample()))

	lower := float32(0.5)
	f.ImportanceGTE = &lower
	assert.True(t, f.Matches(sample()))
}

func TestFilter_TagsContains_Substring(t *testing.T) {
	f := &Filter{TagsContains: []string{"work"}}
	assert.True(t, f.Matches(sample()))

	f.TagsContains = []string{"work", "missing"}
	assert.False(t, f.Matches(sample()))
}

func TestFilter_NamespaceAndEntity(t *testing.T) {
	ns := "ns-a"
	f := &Filter{NamespaceID: &ns}
	assert.True(t, f.Matches(sample()))

	other := "ns-b"
	f.NamespaceID = &other
	assert.False(t, f.Matches(sample()))
}

func TestFilter_AttributesMatch(t *testing.T) {
	f := &Filter{AttributesMatch: map[string]string{"lang": "en"}}
	assert.True(t, f.Matches(sample()))

	f.AttributesMatch["lang"] = "fr"
	assert.False(t, f.Matches(sample()))
}

func TestFilter_AttributesMatch_MissingKey(t *testing.T) {
	f := &Filter{AttributesMatch: map[string]string{"region": "eu"}}
	assert.False(t, f.Matches(sample()))
}
