package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/id"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

type tokenAuth map[string]*domain.User

func (a tokenAuth) VerifyAccessToken(_ context.Context, token string) (*domain.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, errors.New("bad token")
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wire.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wire.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil reads messages up to and including the first one of kind msg.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) []wire.Message {
	t.Helper()
	var out []wire.Message
	for range 50 {
		m := read(t, conn)
		out = append(out, m)
		if m.Msg == kind {
			return out
		}
	}
	t.Fatalf("no %s message", kind)
	return nil
}

func newLiveServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t, true)
	startHub(t, f.hub)
	f.server.auth = tokenAuth{"good": {Record: domain.Record{ID: "user-1"}, Email: "sam@example.com"}}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.server.ServeWS)
	mux.HandleFunc("/stream", f.server.ServeStream)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestServeWS_MethodWritesArriveBeforeUpdated(t *testing.T) {
	_, srv := newLiveServer(t)
	conn := dial(t, srv, "?token=good")

	send(t, conn, wire.Message{Msg: wire.MsgConnect})
	connected := read(t, conn)
	assert.Equal(t, wire.MsgConnected, connected.Msg)
	assert.NotEmpty(t, connected.Session)

	send(t, conn, subMsg(t, "s1", "rooms"))
	assert.Equal(t, wire.MsgReady, read(t, conn).Msg)

	roomID := id.MustGenerate(id.PrefixRoom)
	args, err := wire.Args(map[string]string{"id": roomID, "name": "Kitchen"})
	require.NoError(t, err)
	send(t, conn, wire.Message{Msg: wire.MsgMethod, ID: "m1", Method: wire.MethodRoomsInsert, Params: args})

	msgs := readUntil(t, conn, wire.MsgUpdated)
	assert.Equal(t, []string{"m1"}, msgs[len(msgs)-1].Methods)

	var sawResult, sawAdded bool
	for _, m := range msgs {
		switch m.Msg {
		case wire.MsgResult:
			sawResult = true
			assert.Nil(t, m.Error)
			var room domain.Room
			require.NoError(t, json.Unmarshal(m.Result, &room))
			assert.Equal(t, roomID, room.ID)
			assert.Equal(t, "Kitchen", room.Name)
		case wire.MsgAdded:
			sawAdded = true
			assert.Equal(t, domain.CollectionRooms, m.Collection)
			assert.Equal(t, "Kitchen", m.Fields["name"])
		}
	}
	assert.True(t, sawResult)
	assert.True(t, sawAdded)
}

func TestServeWS_CommentOwnerFromToken(t *testing.T) {
	f, srv := newLiveServer(t)
	f.room(t, "room-1", "Kitchen")
	conn := dial(t, srv, "?token=good")
	send(t, conn, subMsg(t, "s1", "comments", "room-1"))
	assert.Equal(t, wire.MsgReady, read(t, conn).Msg)

	args, err := wire.Args(map[string]any{"room_id": "room-1", "text": "buy milk", "tags": []string{"groceries"}})
	require.NoError(t, err)
	send(t, conn, wire.Message{Msg: wire.MsgMethod, ID: "m1", Method: wire.MethodCommentsInsert, Params: args})

	for _, m := range readUntil(t, conn, wire.MsgUpdated) {
		if m.Msg == wire.MsgAdded {
			assert.Equal(t, "sam", m.Fields["owner_name"])
			assert.Equal(t, "user-1", m.Fields["owner"])
			assert.Equal(t, false, m.Fields["done"])
		}
	}
}

func TestServeWS_RejectsBadToken(t *testing.T) {
	_, srv := newLiveServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=nope"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeStream_RejectsMissingRoomID(t *testing.T) {
	_, srv := newLiveServer(t)

	resp, err := http.Get(srv.URL + "/stream?sub=comments")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/stream?sub=users")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServeStream_SendsSnapshotAndChanges(t *testing.T) {
	f, srv := newLiveServer(t)
	f.room(t, "room-1", "Kitchen")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream?sub=comments&room_id=room-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, wire.MsgConnected, next())
	assert.Equal(t, wire.MsgReady, next())

	f.comment(t, "cmt-1", "room-1", "buy milk", 1)
	assert.Equal(t, wire.MsgAdded, next())
}
