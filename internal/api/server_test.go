package api

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/auth"
	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/publish"
	"github.com/roomnotes/roomnotes-server/internal/realtime"
	"github.com/roomnotes/roomnotes-server/internal/search"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// testEnvelope mirrors APIEnvelope and APIErrorEnvelope for decoding.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type testServer struct {
	*Server
	api   humatest.TestAPI
	store *store.Badger
}

type serverOption func(*Options, *realtime.Options)

func withAuthLimit(rate float64, burst int) serverOption {
	return func(o *Options, _ *realtime.Options) {
		o.AuthRate = rate
		o.AuthBurst = burst
	}
}

func withAnonymousWrites() serverOption {
	return func(_ *Options, o *realtime.Options) {
		o.AllowAnonymous = true
	}
}

// setupTestServer creates a test server backed by a temporary Badger store
// and search index.
func setupTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	dir := t.TempDir()

	hub := realtime.NewHub(nil, time.Hour)
	st, err := store.New(filepath.Join(dir, "db"), nil, hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.Open(search.Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	st.SetSearchIndexer(index)

	key, err := auth.LoadOrGenerateKey(dir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 15*time.Minute)
	require.NoError(t, err)

	services := &Services{
		Rooms:    service.NewRoomService(st, config.CascadeClient, nil),
		Comments: service.NewCommentService(st, nil),
		Auth:     service.NewAuthService(st, tokens, nil),
		Search:   service.NewSearchService(index, st, nil),
	}

	apiOpts := Options{}
	rtOpts := realtime.Options{
		Hub:      hub,
		Registry: publish.Default(st),
		Methods:  realtime.NewMethods(services.Rooms, services.Comments),
		Auth:     services.Auth,
	}
	for _, opt := range opts {
		opt(&apiOpts, &rtOpts)
	}

	server := NewServer(st, services, realtime.NewServer(rtOpts), apiOpts, nil)
	t.Cleanup(server.Close)

	return &testServer{Server: server, api: humatest.Wrap(t, server.API()), store: st}
}

func decode[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return env
}

// register creates a user and returns its bearer header.
func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":    email,
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[AuthResponse](t, resp.Body.Bytes())
	require.NotEmpty(t, env.Data.AccessToken)
	return "Authorization: Bearer " + env.Data.AccessToken
}

// headers turns an optional bearer header into humatest arguments.
func headers(bearer string) []any {
	if bearer == "" {
		return nil
	}
	return []any{bearer}
}

func (ts *testServer) createRoom(t *testing.T, bearer, name string) RoomResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/rooms", append(headers(bearer), map[string]any{"name": name})...)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[RoomResponse](t, resp.Body.Bytes()).Data
}

func (ts *testServer) createComment(t *testing.T, bearer, roomID, text string, tags ...string) CommentResponse {
	t.Helper()
	body := map[string]any{"text": text}
	if len(tags) > 0 {
		body["tags"] = tags
	}
	resp := ts.api.Post("/api/v1/rooms/"+roomID+"/comments", append(headers(bearer), body)...)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[CommentResponse](t, resp.Body.Bytes()).Data
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["database"].Status)
	assert.Equal(t, "0 connected sessions", env.Data.Components["realtime"].Message)
	assert.Equal(t, "0 indexed comments", env.Data.Components["search"].Message)
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")

	resp := ts.api.Get("/api/v1/auth/me", bearer)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	me := decode[UserResponse](t, resp.Body.Bytes()).Data
	assert.Equal(t, "sam@example.com", me.Email)
	assert.Equal(t, "sam", me.Name)

	resp = ts.api.Post("/api/v1/auth/login", map[string]any{"email": "sam@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Bearer", decode[AuthResponse](t, resp.Body.Bytes()).Data.TokenType)
}

func TestAuth_Failures(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "sam@example.com")

	tests := []struct {
		name     string
		do       func() *http.Response
		wantCode int
		wantErr  string
	}{
		{
			name: "wrong password",
			do: func() *http.Response {
				return ts.api.Post("/api/v1/auth/login", map[string]any{"email": "sam@example.com", "password": "nope-nope"}).Result()
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "INVALID_CREDENTIALS",
		},
		{
			name: "duplicate email",
			do: func() *http.Response {
				return ts.api.Post("/api/v1/auth/register", map[string]any{"email": "sam@example.com", "password": "correct-horse"}).Result()
			},
			wantCode: http.StatusConflict,
			wantErr:  "ALREADY_EXISTS",
		},
		{
			name: "me without token",
			do: func() *http.Response {
				return ts.api.Get("/api/v1/auth/me").Result()
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
		{
			name: "me with garbage token",
			do: func() *http.Response {
				return ts.api.Get("/api/v1/auth/me", "Authorization: Bearer v4.local.garbage").Result()
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.do()
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var env testEnvelope[any]
			require.NoError(t, json.UnmarshalRead(resp.Body, &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantErr, env.Code)
		})
	}
}

func TestAuth_RateLimited(t *testing.T) {
	ts := setupTestServer(t, withAuthLimit(0.001, 1))

	body := map[string]any{"email": "nobody@example.com", "password": "whatever1"}
	first := ts.api.Post("/api/v1/auth/login", body)
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := ts.api.Post("/api/v1/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decode[any](t, second.Body.Bytes()).Code)

	// Other routes are not throttled.
	assert.Equal(t, http.StatusOK, ts.api.Get("/health").Code)
}

func TestRooms_Lifecycle(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")

	kitchen := ts.createRoom(t, bearer, "  Kitchen ")
	assert.Equal(t, "Kitchen", kitchen.Name)
	ts.createRoom(t, bearer, "Attic")

	resp := ts.api.Get("/api/v1/rooms")
	require.Equal(t, http.StatusOK, resp.Code)
	rooms := decode[ListRoomsResponse](t, resp.Body.Bytes()).Data.Rooms
	require.Len(t, rooms, 2)
	assert.Equal(t, "Attic", rooms[0].Name)
	assert.Equal(t, "Kitchen", rooms[1].Name)

	resp = ts.api.Patch("/api/v1/rooms/"+kitchen.ID, bearer, map[string]any{"name": "Pantry"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Pantry", decode[RoomResponse](t, resp.Body.Bytes()).Data.Name)

	resp = ts.api.Get("/api/v1/rooms/" + kitchen.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Pantry", decode[RoomResponse](t, resp.Body.Bytes()).Data.Name)
}

func TestRooms_Errors(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")

	resp := ts.api.Post("/api/v1/rooms", map[string]any{"name": "Kitchen"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Post("/api/v1/rooms", bearer, map[string]any{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[any](t, resp.Body.Bytes()).Code)

	resp = ts.api.Get("/api/v1/rooms/room-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decode[any](t, resp.Body.Bytes()).Code)
}

func TestRooms_AnonymousWrites(t *testing.T) {
	ts := setupTestServer(t, withAnonymousWrites())

	room := ts.createRoom(t, "", "Kitchen")
	c := ts.createComment(t, "", room.ID, "milk")
	assert.Empty(t, c.Owner)
	assert.Empty(t, c.OwnerName)
}

func TestComments_CreateListAndTags(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")
	room := ts.createRoom(t, bearer, "Kitchen")

	first := ts.createComment(t, bearer, room.ID, "<b>oat</b> milk", "dairy", "dairy", "urgent")
	assert.Equal(t, "**oat** milk", first.Text)
	assert.Equal(t, []string{"dairy", "urgent"}, first.Tags)
	assert.Equal(t, "sam", first.OwnerName)
	assert.False(t, first.Done)

	ts.createComment(t, bearer, room.ID, "bread", "urgent")

	resp := ts.api.Get("/api/v1/rooms/" + room.ID + "/comments?limit=1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	page := decode[ListCommentsResponse](t, resp.Body.Bytes()).Data
	assert.Len(t, page.Comments, 1)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasMore)

	resp = ts.api.Get("/api/v1/rooms/" + room.ID + "/comments?limit=1&cursor=" + page.NextCursor)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	rest := decode[ListCommentsResponse](t, resp.Body.Bytes()).Data
	assert.Len(t, rest.Comments, 1)
	assert.False(t, rest.HasMore)
	assert.NotEqual(t, page.Comments[0].ID, rest.Comments[0].ID)

	resp = ts.api.Get("/api/v1/rooms/" + room.ID + "/comments?tag=dairy")
	require.Equal(t, http.StatusOK, resp.Code)
	dairy := decode[ListCommentsResponse](t, resp.Body.Bytes()).Data
	require.Len(t, dairy.Comments, 1)
	assert.Equal(t, first.ID, dairy.Comments[0].ID)

	resp = ts.api.Get("/api/v1/rooms/" + room.ID + "/tags")
	require.Equal(t, http.StatusOK, resp.Code)
	entries := decode[TagFilterResponse](t, resp.Body.Bytes()).Data.Entries
	require.Len(t, entries, 3)
	assert.Nil(t, entries[0].Tag)
	assert.Equal(t, 2, entries[0].Count)
	assert.Equal(t, "dairy", *entries[1].Tag)
	assert.Equal(t, 1, entries[1].Count)
	assert.Equal(t, "urgent", *entries[2].Tag)
	assert.Equal(t, 2, entries[2].Count)
}

func TestComments_UpdateAndTagEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")
	room := ts.createRoom(t, bearer, "Kitchen")
	c := ts.createComment(t, bearer, room.ID, "milk")

	resp := ts.api.Patch("/api/v1/comments/"+c.ID, bearer, map[string]any{"text": "oat milk"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "oat milk", decode[CommentResponse](t, resp.Body.Bytes()).Data.Text)

	for range 2 {
		resp = ts.api.Post("/api/v1/comments/"+c.ID+"/tags", bearer, map[string]any{"tag": "dairy"})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		assert.Equal(t, []string{"dairy"}, decode[CommentResponse](t, resp.Body.Bytes()).Data.Tags)
	}

	resp = ts.api.Delete("/api/v1/comments/"+c.ID+"/tags/dairy", bearer)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, decode[CommentResponse](t, resp.Body.Bytes()).Data.Tags)

	// Removing an absent tag is not an error.
	resp = ts.api.Delete("/api/v1/comments/"+c.ID+"/tags/dairy", bearer)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Delete("/api/v1/comments/"+c.ID, bearer)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/comments/" + c.ID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRooms_DeleteCascadesComments(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")
	room := ts.createRoom(t, bearer, "Kitchen")
	a := ts.createComment(t, bearer, room.ID, "milk")
	b := ts.createComment(t, bearer, room.ID, "bread")

	resp := ts.api.Delete("/api/v1/rooms/"+room.ID, bearer)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	result := decode[DeleteRoomResponse](t, resp.Body.Bytes()).Data
	assert.Equal(t, config.CascadeClient, result.Mode)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, result.CommentIDs)

	remaining, err := ts.store.ListCommentsByRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSearch_RoomComments(t *testing.T) {
	ts := setupTestServer(t)
	bearer := ts.register(t, "sam@example.com")
	kitchen := ts.createRoom(t, bearer, "Kitchen")
	attic := ts.createRoom(t, bearer, "Attic")

	milk := ts.createComment(t, bearer, kitchen.ID, "buy oat milk", "dairy")
	ts.createComment(t, bearer, kitchen.ID, "bread")
	ts.createComment(t, bearer, attic.ID, "milk crates")

	resp := ts.api.Get("/api/v1/rooms/" + kitchen.ID + "/search?q=milk")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	result := decode[search.Result](t, resp.Body.Bytes()).Data
	require.Len(t, result.Hits, 1)
	assert.Equal(t, milk.ID, result.Hits[0].ID)
	assert.Equal(t, []search.FacetCount{{Value: "dairy", Count: 1}}, result.Tags)

	resp = ts.api.Get("/api/v1/rooms/room-missing/search?q=milk")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRealtimeRoutesMounted(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/stream?sub=comments")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
