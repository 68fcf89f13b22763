package cache

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
)

// Collection is one named set of documents.
type Collection struct {
	name      string
	docs      map[string]map[string]any
	observers map[*observer]struct{}
}

type observer struct {
	selector Selector
	dep      reactive.Dependency
}

func newCollection(name string) *Collection {
	return &Collection{
		name:      name,
		docs:      make(map[string]map[string]any),
		observers: make(map[*observer]struct{}),
	}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Find returns copies of the documents matching sel. When comp is not nil it
// reruns after any change to the matched set, including documents entering
// or leaving it.
func (c *Collection) Find(comp *reactive.Computation, sel Selector, opts FindOptions) []Doc {
	c.observe(comp, sel)

	var docs []Doc
	for id, fields := range c.docs {
		if sel.matches(id, fields) {
			docs = append(docs, Doc{ID: id, Fields: clone(fields)})
		}
	}
	sortDocs(docs, opts.Sort)
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs
}

// FindOne returns the first document Find would return.
func (c *Collection) FindOne(comp *reactive.Computation, sel Selector, opts FindOptions) (Doc, bool) {
	opts.Limit = 1
	docs := c.Find(comp, sel, opts)
	if len(docs) == 0 {
		return Doc{}, false
	}
	return docs[0], true
}

// Get returns the document with id.
func (c *Collection) Get(comp *reactive.Computation, id string) (Doc, bool) {
	return c.FindOne(comp, Selector{IDField: id}, FindOptions{})
}

// Count returns how many documents match sel.
func (c *Collection) Count(comp *reactive.Computation, sel Selector) int {
	return len(c.Find(comp, sel, FindOptions{}))
}

func (c *Collection) observe(comp *reactive.Computation, sel Selector) {
	if comp == nil || comp.Stopped() {
		return
	}
	o := &observer{selector: sel}
	o.dep.Depend(comp)
	c.observers[o] = struct{}{}
	comp.OnInvalidate(func() { delete(c.observers, o) })
}

// Insert adds a local document. Inserting an existing id is an error.
func (c *Collection) Insert(id string, fields map[string]any) error {
	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("%s: duplicate id %q", c.name, id)
	}
	c.set(id, nil, normalizeFields(fields))
	return nil
}

// Update sets fields on a document. It reports whether the document exists.
func (c *Collection) Update(id string, set map[string]any) bool {
	before, ok := c.docs[id]
	if !ok {
		return false
	}
	after := clone(before)
	for k, v := range set {
		after[k] = normalize(v)
	}
	c.set(id, before, after)
	return true
}

// AddToSet appends value to an array field unless already present.
func (c *Collection) AddToSet(id, field string, value any) bool {
	before, ok := c.docs[id]
	if !ok {
		return false
	}
	value = normalize(value)
	arr, _ := before[field].([]any)
	if slices.ContainsFunc(arr, func(v any) bool { return equal(v, value) }) {
		return true
	}
	after := clone(before)
	after[field] = append(slices.Clone(arr), value)
	c.set(id, before, after)
	return true
}

// Pull removes every occurrence of value from an array field.
func (c *Collection) Pull(id, field string, value any) bool {
	before, ok := c.docs[id]
	if !ok {
		return false
	}
	value = normalize(value)
	arr, _ := before[field].([]any)
	kept := slices.DeleteFunc(slices.Clone(arr), func(v any) bool { return equal(v, value) })
	if len(kept) == len(arr) {
		return true
	}
	after := clone(before)
	after[field] = kept
	c.set(id, before, after)
	return true
}

// Remove deletes a document. It reports whether it existed.
func (c *Collection) Remove(id string) bool {
	before, ok := c.docs[id]
	if !ok {
		return false
	}
	c.set(id, before, nil)
	return true
}

// ApplyAdded stores a document sent by the server, replacing any local copy.
func (c *Collection) ApplyAdded(id string, fields map[string]any) {
	c.set(id, c.docs[id], normalizeFields(fields))
}

// ApplyChanged merges changed fields and drops cleared ones. Changes for
// unknown documents are ignored.
func (c *Collection) ApplyChanged(id string, fields map[string]any, cleared []string) {
	before, ok := c.docs[id]
	if !ok {
		return
	}
	after := clone(before)
	for k, v := range fields {
		after[k] = normalize(v)
	}
	for _, k := range cleared {
		delete(after, k)
	}
	c.set(id, before, after)
}

// ApplyRemoved drops a document.
func (c *Collection) ApplyRemoved(id string) {
	c.Remove(id)
}

// Len returns the number of documents, untracked.
func (c *Collection) Len() int {
	return len(c.docs)
}

func (c *Collection) set(id string, before, after map[string]any) {
	if after == nil {
		delete(c.docs, id)
	} else {
		if before != nil && equal(before, after) {
			return
		}
		c.docs[id] = after
	}

	for o := range c.observers {
		if o.selector.matches(id, before) || o.selector.matches(id, after) {
			o.dep.Changed()
		}
	}
}

func clone(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if arr, ok := v.([]any); ok {
			v = slices.Clone(arr)
		}
		out[k] = v
	}
	return out
}

func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	maps.Copy(out, fields)
	for k, v := range out {
		out[k] = normalize(v)
	}
	return out
}
