package publish

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/store/storetest"
)

func newRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateRoom(ctx, storetest.Room("room-b", "Garage")))
	require.NoError(t, s.CreateRoom(ctx, storetest.Room("room-a", "Attic")))
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-1", "room-a", "one", 1)))
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-2", "room-b", "two", 2)))
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-3", "room-a", "three", 3)))
	return Default(s), s
}

func TestRegistry_Names(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, []string{"comments", "rooms"}, r.Names())
}

func TestRoomsPublication(t *testing.T) {
	r, _ := newRegistry(t)

	cur, err := r.Resolve(Rooms, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionRooms, cur.Collection)

	docs, err := cur.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Attic", docs[0].Fields["name"])

	assert.True(t, cur.Matches(domain.CollectionRooms, map[string]any{"name": "anything"}))
	assert.False(t, cur.Matches(domain.CollectionComments, map[string]any{"room_id": "room-a"}))
	assert.False(t, cur.Matches(domain.CollectionRooms, nil), "removed documents match nothing")
}

func TestCommentsPublication_FiltersByRoom(t *testing.T) {
	r, _ := newRegistry(t)

	cur, err := r.Resolve(Comments, []any{"room-a"})
	require.NoError(t, err)

	docs, err := cur.Fetch(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"cmt-3", "cmt-1"}, ids)

	assert.True(t, cur.Matches(domain.CollectionComments, map[string]any{"room_id": "room-a"}))
	assert.False(t, cur.Matches(domain.CollectionComments, map[string]any{"room_id": "room-b"}))
	assert.False(t, cur.Matches(domain.CollectionComments, map[string]any{"text": "no room"}))
}

func TestCommentsPublication_RejectsBadRoomID(t *testing.T) {
	r, _ := newRegistry(t)

	tests := []struct {
		name   string
		params []any
	}{
		{"missing", nil},
		{"null", []any{nil}},
		{"number", []any{float64(42)}},
		{"object", []any{map[string]any{"id": "room-a"}}},
		{"bool", []any{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, err := r.Resolve(Comments, tt.params)
			assert.Nil(t, cur)
			assert.ErrorIs(t, err, errors.ErrSubscriptionRejected)
		})
	}
}

func TestRegistry_UnknownPublication(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Resolve("everything", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("custom", func([]any) (*Cursor, error) {
		calls++
		return NewCursor("x", nil, nil), nil
	})

	cur, err := r.Resolve("custom", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", cur.Collection)
	assert.Equal(t, 1, calls)
}
