package realtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/publish"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// recordingSink collects what a session sends.
type recordingSink struct {
	mu         sync.Mutex
	msgs       []wire.Message
	heartbeats int
}

func (r *recordingSink) Send(msg wire.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSink) Heartbeat() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
	return nil
}

// take returns and forgets the recorded messages.
func (r *recordingSink) take() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

func kinds(msgs []wire.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Msg+" "+m.ID)
	}
	return out
}

type fixture struct {
	store  *store.Badger
	hub    *Hub
	server *Server
}

// newFixture wires a store, hub and server. When live is true the store
// reports changes to the hub.
func newFixture(t *testing.T, live bool) *fixture {
	t.Helper()
	hub := NewHub(nil, time.Hour)

	var emitter store.EventEmitter
	if live {
		emitter = hub
	}
	s, err := store.New(filepath.Join(t.TempDir(), "db"), nil, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	server := NewServer(Options{
		Hub:            hub,
		Registry:       publish.Default(s),
		Methods:        NewMethods(service.NewRoomService(s, "", nil), service.NewCommentService(s, nil)),
		AllowAnonymous: true,
		SessionBuffer:  64,
	})
	return &fixture{store: s, hub: hub, server: server}
}

func (f *fixture) room(t *testing.T, id, name string) *domain.Room {
	t.Helper()
	r := &domain.Room{Record: domain.Record{ID: id}, Name: name}
	r.InitTimestamps()
	require.NoError(t, f.store.CreateRoom(context.Background(), r))
	return r
}

func (f *fixture) comment(t *testing.T, id, roomID, text string, ts int64, tags ...string) *domain.Comment {
	t.Helper()
	c := domain.NewComment(id, roomID, text, tags, nil)
	c.Timestamp = ts
	require.NoError(t, f.store.CreateComment(context.Background(), c))
	return c
}

func subMsg(t *testing.T, id, name string, params ...any) wire.Message {
	t.Helper()
	raw, err := wire.Args(params...)
	require.NoError(t, err)
	return wire.Message{Msg: wire.MsgSub, ID: id, Name: name, Params: raw}
}
