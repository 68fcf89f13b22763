// Package cache holds a client's local copy of published collections.
//
// Documents arrive from the server as added/changed/removed messages and from
// local optimistic writes. Queries take a computation and rerun it whenever a
// document they matched, or now match, changes.
package cache

import (
	"maps"
	"slices"
	"sort"
)

// IDField selects on the document id.
const IDField = "_id"

// Cache is the set of collections for one session. Like the rest of a
// session's state it is owned by the session loop.
type Cache struct {
	collections map[string]*Collection
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (c *Cache) Collection(name string) *Collection {
	col, ok := c.collections[name]
	if !ok {
		col = newCollection(name)
		c.collections[name] = col
	}
	return col
}

// Names returns the collections created so far, sorted.
func (c *Cache) Names() []string {
	return slices.Sorted(maps.Keys(c.collections))
}

// Doc is a copy of one cached document.
type Doc struct {
	ID     string
	Fields map[string]any
}

// String returns a string field, or "".
func (d Doc) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool returns a bool field, or false.
func (d Doc) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Int64 returns a numeric field truncated to int64.
func (d Doc) Int64(field string) int64 {
	f, _ := d.Fields[field].(float64)
	return int64(f)
}

// Strings returns the string elements of an array field. A missing field
// gives an empty slice.
func (d Doc) Strings(field string) []string {
	arr, _ := d.Fields[field].([]any)
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Selector matches documents by field. A scalar value selects documents whose
// field equals it or, for array fields, contains it.
type Selector map[string]any

// SortKey orders query results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc sorts by field ascending.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts by field descending.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// FindOptions shape a query.
type FindOptions struct {
	Sort  []SortKey
	Limit int
}

func (s Selector) matches(id string, fields map[string]any) bool {
	if fields == nil {
		return false
	}
	for key, want := range s {
		if key == IDField {
			if id != want {
				return false
			}
			continue
		}
		if !fieldMatches(fields[key], normalize(want)) {
			return false
		}
	}
	return true
}

func fieldMatches(have, want any) bool {
	if arr, ok := have.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			return slices.ContainsFunc(arr, func(v any) bool { return equal(v, want) })
		}
	}
	return equal(have, want)
}

func sortDocs(docs []Doc, keys []SortKey) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			c := compare(docs[i].Fields[key.Field], docs[j].Fields[key.Field])
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}
