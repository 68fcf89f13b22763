// Package search provides full-text search over comments using Bleve.
package search

import "github.com/roomnotes/roomnotes-server/internal/domain"

// CommentDocument is the indexed form of a comment.
type CommentDocument struct {
	ID        string   `json:"id"`
	RoomID    string   `json:"room_id"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags,omitempty"`
	OwnerName string   `json:"owner_name,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// CommentToDocument converts a comment for indexing.
func CommentToDocument(c *domain.Comment) *CommentDocument {
	return &CommentDocument{
		ID:        c.ID,
		RoomID:    c.RoomID,
		Text:      c.Text,
		Tags:      c.Tags,
		OwnerName: c.OwnerName,
		Timestamp: c.Timestamp,
	}
}

// ToMap returns the document with field names matching the index mapping.
func (d *CommentDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":        d.ID,
		"room_id":   d.RoomID,
		"text":      d.Text,
		"timestamp": float64(d.Timestamp),
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.OwnerName != "" {
		m["owner_name"] = d.OwnerName
	}
	return m
}
