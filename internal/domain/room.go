// Package domain holds the records shared between the server store and client sessions.
package domain

import "time"

// Collection names as they appear on the wire.
const (
	CollectionRooms    = "rooms"
	CollectionComments = "comments"
)

// Record carries the identity and bookkeeping timestamps every stored record has.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (r *Record) InitTimestamps() {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
}

// Touch updates the UpdatedAt timestamp to the current time.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now()
}

// Room is a named list that holds comments.
type Room struct {
	Record
	Name string `json:"name"`
}

// Fields returns the published document for the room.
func (r *Room) Fields() map[string]any {
	return map[string]any{
		"name": r.Name,
	}
}
