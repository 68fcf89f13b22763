// Package publish defines the named, parameterized record sets clients subscribe to.
//
// A publication validates its parameters and returns a Cursor: the collection it
// draws from, a predicate deciding whether a document belongs to the visible set,
// and a snapshot query for the initial batch.
package publish

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// Publication names.
const (
	Rooms    = "rooms"
	Comments = "comments"
)

// Doc is one published document.
type Doc struct {
	ID     string
	Fields map[string]any
}

// Cursor describes the visible set of one subscription.
type Cursor struct {
	Collection string
	match      func(fields map[string]any) bool
	fetch      func(ctx context.Context) ([]Doc, error)
}

// NewCursor builds a cursor over collection.
func NewCursor(collection string, match func(map[string]any) bool, fetch func(context.Context) ([]Doc, error)) *Cursor {
	return &Cursor{Collection: collection, match: match, fetch: fetch}
}

// Matches reports whether a document with these fields is visible through the cursor.
func (c *Cursor) Matches(collection string, fields map[string]any) bool {
	if collection != c.Collection || fields == nil {
		return false
	}
	return c.match == nil || c.match(fields)
}

// Fetch returns the current visible set.
func (c *Cursor) Fetch(ctx context.Context) ([]Doc, error) {
	return c.fetch(ctx)
}

// Publication turns subscription params into a cursor.
// Params arrive positionally, decoded from JSON.
type Publication func(params []any) (*Cursor, error)

// Registry maps publication names to publications.
type Registry struct {
	mu   sync.RWMutex
	pubs map[string]Publication
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pubs: make(map[string]Publication)}
}

// Default creates a registry with the rooms and comments publications bound to s.
func Default(s store.Store) *Registry {
	r := NewRegistry()
	r.Register(Rooms, RoomsPublication(s))
	r.Register(Comments, CommentsPublication(s))
	return r
}

// Register adds or replaces a publication.
func (r *Registry) Register(name string, pub Publication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs[name] = pub
}

// Names returns the registered publication names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pubs))
	for name := range r.pubs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve validates params against the named publication.
// Unknown names fail with NOT_FOUND, bad params with SUBSCRIPTION_REJECTED.
func (r *Registry) Resolve(name string, params []any) (*Cursor, error) {
	r.mu.RLock()
	pub, ok := r.pubs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundf("subscription %q not found", name)
	}
	return pub(params)
}

// RoomsPublication publishes every room, unconditionally.
func RoomsPublication(s store.Store) Publication {
	return func([]any) (*Cursor, error) {
		return NewCursor(domain.CollectionRooms, nil, func(ctx context.Context) ([]Doc, error) {
			rooms, err := s.ListRooms(ctx)
			if err != nil {
				return nil, fmt.Errorf("list rooms: %w", err)
			}
			docs := make([]Doc, 0, len(rooms))
			for _, r := range rooms {
				docs = append(docs, Doc{ID: r.ID, Fields: r.Fields()})
			}
			return docs, nil
		}), nil
	}
}

// CommentsPublication publishes the comments of one room. The room id is the
// first param and must be a string.
func CommentsPublication(s store.Store) Publication {
	return func(params []any) (*Cursor, error) {
		roomID, err := RoomIDParam(params)
		if err != nil {
			return nil, err
		}

		match := func(fields map[string]any) bool {
			id, _ := fields["room_id"].(string)
			return id == roomID
		}
		fetch := func(ctx context.Context) ([]Doc, error) {
			comments, err := s.ListCommentsByRoom(ctx, roomID)
			if err != nil {
				return nil, fmt.Errorf("list comments: %w", err)
			}
			docs := make([]Doc, 0, len(comments))
			for _, c := range comments {
				docs = append(docs, Doc{ID: c.ID, Fields: c.Fields()})
			}
			return docs, nil
		}
		return NewCursor(domain.CollectionComments, match, fetch), nil
	}
}

// RoomIDParam extracts the room id parameter of the comments publication.
func RoomIDParam(params []any) (string, error) {
	if len(params) == 0 || params[0] == nil {
		return "", errors.SubscriptionRejected("room_id is required")
	}
	roomID, ok := params[0].(string)
	if !ok {
		return "", errors.SubscriptionRejectedf("room_id must be a string, got %T", params[0])
	}
	return roomID, nil
}
