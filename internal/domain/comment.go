package domain

import (
	"slices"
	"time"
)

// Comment is a timestamped line of text inside a room.
type Comment struct {
	Record
	Text   string `json:"text"`
	RoomID string `json:"room_id"`
	// Done is persisted and published but nothing toggles it.
	Done      bool     `json:"done"`
	Timestamp int64    `json:"timestamp"`
	Tags      []string `json:"tags"`
	Owner     string   `json:"owner"`
	OwnerName string   `json:"owner_name"`
}

// NewComment builds a comment created now, with tags deduplicated.
func NewComment(id, roomID, text string, tags []string, owner *User) *Comment {
	c := &Comment{
		Record:    Record{ID: id},
		Text:      text,
		RoomID:    roomID,
		Timestamp: time.Now().UnixMilli(),
		Tags:      []string{},
	}
	for _, tag := range tags {
		c.AddTag(tag)
	}
	if owner != nil {
		c.Owner = owner.ID
		c.OwnerName = EmailLocalPart(owner.Email)
	}
	c.InitTimestamps()
	return c
}

// HasTag reports whether the comment carries tag.
func (c *Comment) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

// AddTag appends tag if absent. It reports whether the tags changed.
func (c *Comment) AddTag(tag string) bool {
	if tag == "" || c.HasTag(tag) {
		return false
	}
	c.Tags = append(c.Tags, tag)
	return true
}

// RemoveTag removes tag. Removing an absent tag is a no-op that returns false.
func (c *Comment) RemoveTag(tag string) bool {
	i := slices.Index(c.Tags, tag)
	if i < 0 {
		return false
	}
	c.Tags = slices.Delete(c.Tags, i, i+1)
	return true
}

// Fields returns the published document for the comment.
func (c *Comment) Fields() map[string]any {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"text":       c.Text,
		"room_id":    c.RoomID,
		"done":       c.Done,
		"timestamp":  c.Timestamp,
		"tags":       slices.Clone(tags),
		"owner":      c.Owner,
		"owner_name": c.OwnerName,
	}
}
