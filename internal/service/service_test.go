package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/auth"
	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/id"
	"github.com/roomnotes/roomnotes-server/internal/search"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/store/storetest"
)

func newStore(t *testing.T, emitter store.EventEmitter) *store.Badger {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "db"), nil, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// plainStore hides the Cascader capability of the wrapped store.
type plainStore struct{ store.Store }

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "buy milk", NormalizeText("  buy milk \n"))
	assert.Equal(t, "a < b", NormalizeText("a < b"))
	assert.Equal(t, "Hello **world**", NormalizeText("<p>Hello <strong>world</strong></p>"))
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "café", NormalizeTag(" café "))
	assert.Equal(t, []string{"a", "b"}, normalizeTags([]string{"a", " a", "", "b", "  "}))
}

func TestRoomService_CreateAndRename(t *testing.T) {
	ctx := context.Background()
	svc := NewRoomService(newStore(t, nil), "", nil)
	assert.Equal(t, config.CascadeClient, svc.CascadeMode())

	room, err := svc.Create(ctx, CreateRoomRequest{Name: "  Kitchen  "})
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", room.Name)
	assert.True(t, id.Valid(id.PrefixRoom, room.ID))

	renamed, err := svc.Rename(ctx, room.ID, RenameRoomRequest{Name: "Pantry"})
	require.NoError(t, err)
	assert.Equal(t, "Pantry", renamed.Name)

	_, err = svc.Rename(ctx, room.ID, RenameRoomRequest{Name: "   "})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.Rename(ctx, "room-missing", RenameRoomRequest{Name: "x"})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRoomService_ClientChosenID(t *testing.T) {
	ctx := context.Background()
	svc := NewRoomService(newStore(t, nil), "", nil)

	clientID := id.MustGenerate(id.PrefixRoom)
	room, err := svc.Create(ctx, CreateRoomRequest{ID: clientID, Name: "Garage"})
	require.NoError(t, err)
	assert.Equal(t, clientID, room.ID)

	_, err = svc.Create(ctx, CreateRoomRequest{ID: clientID, Name: "Again"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	_, err = svc.Create(ctx, CreateRoomRequest{ID: "cmt-wrongprefix", Name: "Bad"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func seedRoom(t *testing.T, s store.Store, roomID string, commentIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateRoom(ctx, storetest.Room(roomID, "Room "+roomID)))
	for i, cid := range commentIDs {
		require.NoError(t, s.CreateComment(ctx, storetest.Comment(cid, roomID, "x", int64(i))))
	}
}

func TestRoomService_DeleteClientMode(t *testing.T) {
	ctx := context.Background()
	em := &storetest.RecordingEmitter{}
	s := newStore(t, em)
	seedRoom(t, s, "room-1", "cmt-1", "cmt-2")
	em.Reset()

	svc := NewRoomService(s, config.CascadeClient, nil)
	res, err := svc.Delete(ctx, "room-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cmt-1", "cmt-2"}, res.CommentIDs)
	assert.Equal(t, config.CascadeClient, res.Mode)

	kinds := em.Kinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, "removed rooms room-1", kinds[0], "room goes first")

	_, err = svc.Delete(ctx, "room-1")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRoomService_DeleteTransactional(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1", "cmt-1")

	svc := NewRoomService(s, config.CascadeTransactional, nil)
	res, err := svc.Delete(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cmt-1"}, res.CommentIDs)

	left, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRoomService_RemoveCascadeUnsupported(t *testing.T) {
	svc := NewRoomService(plainStore{newStore(t, nil)}, config.CascadeTransactional, nil)

	_, err := svc.RemoveCascade(context.Background(), "room-1")
	assert.ErrorIs(t, err, domainerrors.ErrUnsupported)
}

func TestRoomService_RemoveIsRoomOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1", "cmt-1")

	svc := NewRoomService(s, "", nil)
	require.NoError(t, svc.Remove(ctx, "room-1"))
	require.NoError(t, svc.Remove(ctx, "room-1"))

	left, err := s.ListCommentsByRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestCommentService_Create(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1")
	svc := NewCommentService(s, nil)

	owner := &domain.User{Record: domain.Record{ID: "user-1"}, Email: "sam@example.com"}
	before := time.Now().UnixMilli()

	c, err := svc.Create(ctx, owner, CreateCommentRequest{RoomID: "room-1", Text: " buy milk ", Tags: []string{"groceries", "groceries"}})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", c.Text)
	assert.Equal(t, []string{"groceries"}, c.Tags)
	assert.False(t, c.Done)
	assert.Equal(t, "user-1", c.Owner)
	assert.Equal(t, "sam", c.OwnerName)
	assert.GreaterOrEqual(t, c.Timestamp, before)

	anon, err := svc.Create(ctx, nil, CreateCommentRequest{RoomID: "room-1", Text: "anonymous"})
	require.NoError(t, err)
	assert.Empty(t, anon.Owner)
	assert.Equal(t, []string{}, anon.Tags)
}

func TestCommentService_CreateRejects(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1")
	svc := NewCommentService(s, nil)

	_, err := svc.Create(ctx, nil, CreateCommentRequest{RoomID: "room-1", Text: "   "})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.Create(ctx, nil, CreateCommentRequest{RoomID: "room-404", Text: "hello"})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = svc.Create(ctx, nil, CreateCommentRequest{Text: "no room"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestCommentService_Tags(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1", "cmt-1")
	svc := NewCommentService(s, nil)

	c, err := svc.AddTag(ctx, "cmt-1", TagRequest{Tag: " urgent "})
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, c.Tags)

	c, err = svc.AddTag(ctx, "cmt-1", TagRequest{Tag: "urgent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, c.Tags, "set semantics")

	_, err = svc.AddTag(ctx, "cmt-1", TagRequest{Tag: ""})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	c, err = svc.RemoveTag(ctx, "cmt-1", "absent")
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, c.Tags)

	c, err = svc.RemoveTag(ctx, "cmt-1", "urgent")
	require.NoError(t, err)
	assert.Empty(t, c.Tags)

	_, err = svc.AddTag(ctx, "cmt-404", TagRequest{Tag: "x"})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCommentService_UpdateTextLeavesDone(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1", "cmt-1")
	svc := NewCommentService(s, nil)

	c, err := svc.UpdateText(ctx, "cmt-1", UpdateCommentRequest{Text: "<b>bold</b> move"})
	require.NoError(t, err)
	assert.Equal(t, "**bold** move", c.Text)
	assert.False(t, c.Done)

	_, err = svc.UpdateText(ctx, "cmt-1", UpdateCommentRequest{Text: ""})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestCommentService_ListAndTagFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1")
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-1", "room-1", "a", 1, "x")))
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-2", "room-1", "b", 2, "x", "y")))
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-3", "room-1", "c", 3)))
	svc := NewCommentService(s, nil)

	all, err := svc.ListByRoom(ctx, "room-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "cmt-3", all[0].ID)

	tagged, err := svc.ListByRoom(ctx, "room-1", "x")
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	entries, err := svc.TagFilter(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Nil(t, entries[0].Tag)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "x", *entries[1].Tag)
	assert.Equal(t, 2, entries[1].Count)
	assert.Equal(t, 1, entries[2].Count)
}

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)
	return NewAuthService(newStore(t, nil), tokens, nil)
}

func TestAuthService_RegisterLoginVerify(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	reg, err := svc.Register(ctx, RegisterRequest{Email: "sam@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.AccessToken)
	assert.Empty(t, reg.User.PasswordHash)
	assert.Equal(t, "Bearer", reg.TokenType)

	_, err = svc.Register(ctx, RegisterRequest{Email: "SAM@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	login, err := svc.Login(ctx, LoginRequest{Email: "sam@example.com", Password: "password123"})
	require.NoError(t, err)

	user, err := svc.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, user.ID)
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	_, err := svc.Register(ctx, RegisterRequest{Email: "sam@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "sam@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "password123"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.VerifyAccessToken(ctx, "v4.local.garbage")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestSearchService_ReindexIfFresh(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	seedRoom(t, s, "room-1")
	require.NoError(t, s.CreateComment(ctx, storetest.Comment("cmt-1", "room-1", "buy milk", 1)))

	index, err := search.Open(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	svc := NewSearchService(index, s, nil)
	require.NoError(t, svc.ReindexIfFresh(ctx))

	res, err := svc.Search(ctx, search.Params{RoomID: "room-1", Query: "milk"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "cmt-1", res.Hits[0].ID)

	require.NoError(t, svc.Rebuild(ctx))
	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
