// Package storetest runs one behavioral suite against every store backend.
package storetest

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// RecordingEmitter keeps every ChangeEvent it receives.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []store.ChangeEvent
}

// Emit implements store.EventEmitter.
func (r *RecordingEmitter) Emit(event any) {
	if ev, ok := event.(store.ChangeEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	}
}

// Events returns a copy of the recorded events.
func (r *RecordingEmitter) Events() []store.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset forgets recorded events.
func (r *RecordingEmitter) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Kinds summarizes recorded events as "kind collection id".
func (r *RecordingEmitter) Kinds() []string {
	var out []string
	for _, ev := range r.Events() {
		out = append(out, string(ev.Kind)+" "+ev.Collection+" "+ev.ID)
	}
	return out
}

// Factory opens a fresh, empty store wired to emitter.
type Factory func(t *testing.T, emitter store.EventEmitter) store.Store

// Room builds a room fixture.
func Room(id, name string) *domain.Room {
	r := &domain.Room{Record: domain.Record{ID: id}, Name: name}
	r.InitTimestamps()
	return r
}

// Comment builds a comment fixture with an explicit timestamp.
func Comment(id, roomID, text string, ts int64, tags ...string) *domain.Comment {
	c := domain.NewComment(id, roomID, text, tags, nil)
	c.Timestamp = ts
	return c
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoomLifecycle", func(t *testing.T) { testRoomLifecycle(t, newStore) })
	t.Run("ListRoomsSortedByName", func(t *testing.T) { testListRoomsSorted(t, newStore) })
	t.Run("CommentsByRoom", func(t *testing.T) { testCommentsByRoom(t, newStore) })
	t.Run("CommentMovesRoom", func(t *testing.T) { testCommentMovesRoom(t, newStore) })
	t.Run("TagSetSemantics", func(t *testing.T) { testTagSetSemantics(t, newStore) })
	t.Run("DeleteRoomLeavesComments", func(t *testing.T) { testDeleteRoomLeavesComments(t, newStore) })
	t.Run("DeleteRoomCascade", func(t *testing.T) { testDeleteRoomCascade(t, newStore) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore) })
}

func testRoomLifecycle(t *testing.T, newStore Factory) {
	ctx := context.Background()
	em := &RecordingEmitter{}
	s := newStore(t, em)

	room := Room("room-1", "Kitchen")
	require.NoError(t, s.CreateRoom(ctx, room))
	assert.ErrorIs(t, s.CreateRoom(ctx, Room("room-1", "Again")), store.ErrAlreadyExists)

	got, err := s.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Name)

	got.Name = "Pantry"
	require.NoError(t, s.UpdateRoom(ctx, got))

	require.NoError(t, s.DeleteRoom(ctx, "room-1"))
	require.NoError(t, s.DeleteRoom(ctx, "room-1"), "delete is idempotent")

	_, err = s.GetRoom(ctx, "room-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	events := em.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []string{"added rooms room-1", "changed rooms room-1", "removed rooms room-1"}, em.Kinds())
	assert.Equal(t, "Pantry", events[1].Fields["name"])
	assert.Equal(t, "Kitchen", events[1].Previous["name"])
	assert.Nil(t, events[2].Fields)
}

func testListRoomsSorted(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	for _, r := range []*domain.Room{Room("room-c", "Garage"), Room("room-a", "Kitchen"), Room("room-b", "Attic")} {
		require.NoError(t, s.CreateRoom(ctx, r))
	}

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)

	var names []string
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Attic", "Garage", "Kitchen"}, names)
}

func testCommentsByRoom(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	require.NoError(t, s.CreateComment(ctx, Comment("cmt-1", "room-1", "first", 100)))
	require.NoError(t, s.CreateComment(ctx, Comment("cmt-2", "room-1", "second", 200, "a", "b")))
	require.NoError(t, s.CreateComment(ctx, Comment("cmt-3", "room-2", "elsewhere", 150)))

	comments, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "cmt-2", comments[0].ID, "newest first")
	assert.Equal(t, []string{"a", "b"}, comments[0].Tags)
	assert.Equal(t, []string{}, comments[1].Tags)
	assert.False(t, comments[1].Done)

	all, err := s.ListComments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListCommentsByRoom(ctx, "room-404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCommentMovesRoom(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	c := Comment("cmt-1", "room-1", "wander", 100)
	require.NoError(t, s.CreateComment(ctx, c))

	c.RoomID = "room-2"
	c.Text = "wandered"
	require.NoError(t, s.UpdateComment(ctx, c))

	inOld, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, inOld)

	inNew, err := s.ListCommentsByRoom(ctx, "room-2")
	require.NoError(t, err)
	require.Len(t, inNew, 1)
	assert.Equal(t, "wandered", inNew[0].Text)
}

func testTagSetSemantics(t *testing.T, newStore Factory) {
	ctx := context.Background()
	em := &RecordingEmitter{}
	s := newStore(t, em)

	require.NoError(t, s.CreateComment(ctx, Comment("cmt-1", "room-1", "tagged", 100, "a")))
	em.Reset()

	c, err := s.AddCommentTag(ctx, "cmt-1", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Tags)
	assert.Empty(t, em.Events(), "adding a present tag emits nothing")

	c, err = s.AddCommentTag(ctx, "cmt-1", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Tags)

	c, err = s.RemoveCommentTag(ctx, "cmt-1", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, c.Tags)

	c, err = s.RemoveCommentTag(ctx, "cmt-1", "zzz")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, c.Tags)

	events := em.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"a", "b"}, events[0].Fields["tags"])
	assert.Equal(t, []string{"a"}, events[0].Previous["tags"])
	assert.Equal(t, []string{"b"}, events[1].Fields["tags"])

	stored, err := s.GetComment(ctx, "cmt-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, stored.Tags)
}

func testDeleteRoomLeavesComments(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	require.NoError(t, s.CreateRoom(ctx, Room("room-1", "Kitchen")))
	require.NoError(t, s.CreateComment(ctx, Comment("cmt-1", "room-1", "orphan to be", 100)))

	require.NoError(t, s.DeleteRoom(ctx, "room-1"))

	comments, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, comments, 1, "room delete alone does not cascade")
}

func testDeleteRoomCascade(t *testing.T, newStore Factory) {
	ctx := context.Background()
	em := &RecordingEmitter{}
	s := newStore(t, em)

	cascader, ok := s.(store.Cascader)
	require.True(t, ok, "backend must support transactional cascade")

	require.NoError(t, s.CreateRoom(ctx, Room("room-1", "Kitchen")))
	require.NoError(t, s.CreateRoom(ctx, Room("room-2", "Garage")))
	for i, id := range []string{"cmt-1", "cmt-2", "cmt-3"} {
		require.NoError(t, s.CreateComment(ctx, Comment(id, "room-1", "x", int64(i))))
	}
	require.NoError(t, s.CreateComment(ctx, Comment("cmt-9", "room-2", "keep", 1)))
	em.Reset()

	removed, err := cascader.DeleteRoomCascade(ctx, "room-1")
	require.NoError(t, err)
	slices.Sort(removed)
	assert.Equal(t, []string{"cmt-1", "cmt-2", "cmt-3"}, removed)

	_, err = s.GetRoom(ctx, "room-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	left, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, left)

	kept, err := s.ListCommentsByRoom(ctx, "room-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	kinds := em.Kinds()
	assert.Len(t, kinds, 4)
	assert.Contains(t, kinds, "removed rooms room-1")
	assert.Contains(t, kinds, "removed comments cmt-2")

	removed, err = cascader.DeleteRoomCascade(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	user := &domain.User{Record: domain.Record{ID: "user-1"}, Email: "Sam@Example.com", PasswordHash: "hash"}
	user.InitTimestamps()
	require.NoError(t, s.CreateUser(ctx, user))

	dup := &domain.User{Record: domain.Record{ID: "user-2"}, Email: "sam@example.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)

	got, err := s.GetUserByEmail(ctx, "SAM@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got.LastLoginAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateUser(ctx, got))

	reloaded, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.LastLoginAt.Equal(reloaded.LastLoginAt))
}

func testNotFound(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, store.NewNoopEmitter())

	_, err := s.GetComment(ctx, "cmt-404")
	assert.ErrorIs(t, err, store.ErrCommentNotFound)

	_, err = s.AddCommentTag(ctx, "cmt-404", "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.UpdateRoom(ctx, Room("room-404", "Nowhere"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetUser(ctx, "user-404")
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	assert.NoError(t, s.DeleteComment(ctx, "cmt-404"))
	assert.NoError(t, s.Ping(ctx))
}
