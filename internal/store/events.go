package store

import (
	"maps"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// ChangeKind is the kind of mutation a ChangeEvent describes.
type ChangeKind string

// Change kinds, named after the realtime messages they become.
const (
	ChangeAdded   ChangeKind = "added"
	ChangeChanged ChangeKind = "changed"
	ChangeRemoved ChangeKind = "removed"
)

// ChangeEvent describes one committed mutation of a published collection.
// Fields holds the complete document after the change and is nil for removals.
// Previous holds the document before a change or removal, when known.
type ChangeEvent struct {
	Kind       ChangeKind
	Collection string
	ID         string
	Fields     map[string]any
	Previous   map[string]any
}

// EventEmitter receives change events after each committed mutation.
// Stores use this to broadcast changes without depending on the realtime hub.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// SearchIndexer keeps the comment search index in sync with store changes.
type SearchIndexer interface {
	IndexComment(comment *domain.Comment) error
	DeleteComment(commentID string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexComment is a no-op.
func (NoopSearchIndexer) IndexComment(*domain.Comment) error { return nil }

// DeleteComment is a no-op.
func (NoopSearchIndexer) DeleteComment(string) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer for testing.
func NewNoopSearchIndexer() SearchIndexer {
	return NoopSearchIndexer{}
}

// RoomAdded builds the event for a newly created room.
func RoomAdded(r *domain.Room) ChangeEvent {
	return ChangeEvent{Kind: ChangeAdded, Collection: domain.CollectionRooms, ID: r.ID, Fields: r.Fields()}
}

// RoomChanged builds the event for an updated room.
func RoomChanged(prev, r *domain.Room) ChangeEvent {
	e := ChangeEvent{Kind: ChangeChanged, Collection: domain.CollectionRooms, ID: r.ID, Fields: r.Fields()}
	if prev != nil {
		e.Previous = prev.Fields()
	}
	return e
}

// RoomRemoved builds the event for a deleted room.
func RoomRemoved(r *domain.Room) ChangeEvent {
	return ChangeEvent{Kind: ChangeRemoved, Collection: domain.CollectionRooms, ID: r.ID, Previous: r.Fields()}
}

// CommentAdded builds the event for a newly created comment.
func CommentAdded(c *domain.Comment) ChangeEvent {
	return ChangeEvent{Kind: ChangeAdded, Collection: domain.CollectionComments, ID: c.ID, Fields: c.Fields()}
}

// CommentChanged builds the event for an updated comment.
func CommentChanged(prev, c *domain.Comment) ChangeEvent {
	e := ChangeEvent{Kind: ChangeChanged, Collection: domain.CollectionComments, ID: c.ID, Fields: c.Fields()}
	if prev != nil {
		e.Previous = prev.Fields()
	}
	return e
}

// CommentRemoved builds the event for a deleted comment.
func CommentRemoved(c *domain.Comment) ChangeEvent {
	return ChangeEvent{Kind: ChangeRemoved, Collection: domain.CollectionComments, ID: c.ID, Previous: c.Fields()}
}

// Clone returns a copy whose field maps can be modified independently.
func (e ChangeEvent) Clone() ChangeEvent {
	e.Fields = maps.Clone(e.Fields)
	e.Previous = maps.Clone(e.Previous)
	return e
}
