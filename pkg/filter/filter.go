// Package filter implements the metadata predicate search narrows
// results against: every clause is optional and absent clauses
// impose no constraint, with AND semantics across whatever is set.
package filter

import (
	"strings"

	"github.com/kestrel-db/kestrel/pkg/metadata"
)

// Filter is a set of optional clauses. A nil or zero-value Filter matches
// everything. Each non-nil field narrows the match further; all set
// clauses must hold.
type Filter struct {
	Types           []metadata.ContextType
	Source          *string
	SourcePrefix    *string
	TimestampAfter  *int64
	TimestampBefore *int64
	ImportanceGTE   *float32
	TagsContains    []string
	NamespaceID     *string
	EntityID        *string
	AttributesMatch map[string]string
}

// Matches reports whether meta satisfies every clause set on f. A record
// that no longer exists (the lookup-miss case) is the caller's
// responsibility to treat as false before calling Matches.
func (f *Filter) Matches(meta metadata.Metadata) bool {
	if f == nil {
		return true
	}

	if f.Types != nil {
		found := false
		for _, t := range f.Types {
			if meta.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Source != nil && meta.Source != *f.Source {
		return false
	}
	if f.SourcePrefix != nil && !strings.HasPrefix(meta.Source, *f.SourcePrefix) {
		return false
	}
	if f.TimestampAfter != nil && meta.Timestamp < *f.TimestampAfter {
		return false
	}
	if f.TimestampBefore != nil && meta.Timestamp > *f.TimestampBefore {
		return false
	}
	if f.ImportanceGTE != nil && meta.Importance < *f.ImportanceGTE {
		return false
	}

	for _, tag := range f.TagsContains {
		if !strings.Contains(meta.TagsJSON, tag) {
			return false
		}
	}

	if f.NamespaceID != nil && meta.NamespaceID != *f.NamespaceID {
		return false
	}
	if f.EntityID != nil && meta.EntityID != *f.EntityID {
		return false
	}

	for key, val := range f.AttributesMatch {
		got, ok := meta.Attributes[key]
		if !ok || got != val {
			return false
		}
	}

	return true
}
