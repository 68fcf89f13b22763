package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

func args(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	raw, err := wire.Args(values...)
	require.NoError(t, err)
	return raw
}

func TestMethods_Names(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, []string{
		wire.MethodCommentsAddTag,
		wire.MethodCommentsInsert,
		wire.MethodCommentsRemove,
		wire.MethodCommentsRemoveTag,
		wire.MethodCommentsUpdate,
		wire.MethodRoomsInsert,
		wire.MethodRoomsRemove,
		wire.MethodRoomsRemoveCascade,
		wire.MethodRoomsUpdate,
	}, f.server.methods.Names())
}

func TestMethods_UnknownAndBadParams(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.server.methods.Call(ctx, nil, "rooms.explode", nil)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = f.server.methods.Call(ctx, nil, wire.MethodRoomsUpdate, args(t, "room-1"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.server.methods.Call(ctx, nil, wire.MethodRoomsRemove, args(t, 7))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestMethods_RoomAndCommentLifecycle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	m := f.server.methods
	owner := &domain.User{Record: domain.Record{ID: "user-1"}, Email: "sam@example.com"}

	out, err := m.Call(ctx, owner, wire.MethodRoomsInsert, args(t, map[string]string{"name": "Kitchen"}))
	require.NoError(t, err)
	room := out.(*domain.Room)

	out, err = m.Call(ctx, owner, wire.MethodRoomsUpdate, args(t, room.ID, map[string]string{"name": "Pantry"}))
	require.NoError(t, err)
	assert.Equal(t, "Pantry", out.(*domain.Room).Name)

	out, err = m.Call(ctx, owner, wire.MethodCommentsInsert, args(t, map[string]any{"room_id": room.ID, "text": "flour", "tags": []string{"baking"}}))
	require.NoError(t, err)
	c := out.(*domain.Comment)
	assert.Equal(t, "sam", c.OwnerName)

	out, err = m.Call(ctx, owner, wire.MethodCommentsAddTag, args(t, c.ID, "urgent"))
	require.NoError(t, err)
	assert.Equal(t, []string{"baking", "urgent"}, out.(*domain.Comment).Tags)

	out, err = m.Call(ctx, owner, wire.MethodCommentsRemoveTag, args(t, c.ID, "baking"))
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, out.(*domain.Comment).Tags)

	out, err = m.Call(ctx, owner, wire.MethodCommentsUpdate, args(t, c.ID, map[string]string{"text": "rye flour"}))
	require.NoError(t, err)
	assert.Equal(t, "rye flour", out.(*domain.Comment).Text)

	out, err = m.Call(ctx, owner, wire.MethodRoomsRemoveCascade, args(t, room.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, out)

	_, err = m.Call(ctx, owner, wire.MethodCommentsRemove, args(t, c.ID))
	require.NoError(t, err)
	_, err = m.Call(ctx, owner, wire.MethodRoomsRemove, args(t, room.ID))
	require.NoError(t, err)
}
