package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComment(t *testing.T) {
	owner := &User{Record: Record{ID: "user-1"}, Email: "sam@example.com"}
	before := time.Now().UnixMilli()

	c := NewComment("cmt-1", "room-1", "buy milk", nil, owner)

	assert.Equal(t, "cmt-1", c.ID)
	assert.Equal(t, "room-1", c.RoomID)
	assert.Equal(t, []string{}, c.Tags)
	assert.False(t, c.Done)
	assert.Equal(t, "user-1", c.Owner)
	assert.Equal(t, "sam", c.OwnerName)
	assert.GreaterOrEqual(t, c.Timestamp, before)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestNewComment_DeduplicatesSeedTags(t *testing.T) {
	c := NewComment("cmt-1", "room-1", "call dentist", []string{"urgent", "urgent", ""}, nil)

	assert.Equal(t, []string{"urgent"}, c.Tags)
	assert.Empty(t, c.Owner)
}

func TestComment_TagSetSemantics(t *testing.T) {
	c := &Comment{Tags: []string{"a"}}

	assert.False(t, c.AddTag("a"))
	assert.True(t, c.AddTag("b"))
	assert.Equal(t, []string{"a", "b"}, c.Tags)

	assert.True(t, c.RemoveTag("a"))
	assert.False(t, c.RemoveTag("a"))
	assert.Equal(t, []string{"b"}, c.Tags)
}

func TestComment_FieldsCopiesTags(t *testing.T) {
	c := &Comment{Text: "x", RoomID: "room-1", Tags: []string{"a"}}

	fields := c.Fields()
	c.Tags[0] = "mutated"

	require.Contains(t, fields, "tags")
	assert.Equal(t, []string{"a"}, fields["tags"])
	assert.Equal(t, "room-1", fields["room_id"])
	assert.Equal(t, false, fields["done"])
}

func TestComment_FieldsNilTags(t *testing.T) {
	c := &Comment{}
	assert.Equal(t, []string{}, c.Fields()["tags"])
}

func TestNewComment_OwnerNameIgnoresDisplayName(t *testing.T) {
	owner := &User{Record: Record{ID: "user-1"}, Email: "kim.lee@example.com", DisplayName: "Kim"}

	c := NewComment("cmt-1", "room-1", "x", nil, owner)

	assert.Equal(t, "kim.lee", c.OwnerName)
}
