// Package app wires one client session: the reactive tracker, the event
// loop, the local cache, the realtime connection, UI state, the router and
// the edit controllers. Every operation and view runs on the session loop;
// callers on other goroutines go through Exec.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/roomnotes/roomnotes-server/internal/client/cache"
	"github.com/roomnotes/roomnotes-server/internal/client/ddp"
	"github.com/roomnotes/roomnotes-server/internal/client/editcommit"
	"github.com/roomnotes/roomnotes-server/internal/client/loop"
	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
	"github.com/roomnotes/roomnotes-server/internal/client/router"
	"github.com/roomnotes/roomnotes-server/internal/client/uistate"
	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/publish"
)

// TagRemovalDelay is how long a removed tag stays while it fades out.
const TagRemovalDelay = 300 * time.Millisecond

// Inputs named in focus callbacks.
const (
	InputRoomName    = "room-name-input"
	InputCommentText = "comment-input"
	InputAddTag      = "edittag-input"
)

// FocusFunc focuses an input for the record id.
type FocusFunc func(input, id string)

// Options configure a Session.
type Options struct {
	Transport ddp.Transport
	// History receives address changes. Nil keeps an in-memory history.
	History router.History
	// User is the signed-in identity; nil for anonymous sessions.
	User *domain.User
	// CascadeMode picks how deleting a room removes its comments.
	CascadeMode string
	Clock       loop.Clock
	Now         func() time.Time
	// Location renders comment times; defaults to time.Local.
	Location *time.Location
	Focus    FocusFunc
	Logger   *slog.Logger
}

type tagKey struct {
	commentID string
	tag       string
}

// Session is one connected client.
type Session struct {
	loop     *loop.Loop
	tracker  *reactive.Tracker
	cache    *cache.Cache
	rooms    *cache.Collection
	comments *cache.Collection
	conn     *ddp.Conn
	ui       *uistate.State
	router   *router.Router

	user        *domain.User
	cascadeMode string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger

	handles        reactive.Dependency
	roomsHandle    *ddp.Handle
	commentsHandle *ddp.Handle
	commentsRoom   string
	commentsSub    *reactive.Computation

	removals    map[tagKey]*loop.Timer
	removalsDep reactive.Dependency

	// RoomName edits the name of a room in place.
	RoomName *editcommit.Field
	// CommentText edits the text of a comment in place.
	CommentText *editcommit.Field
	// AddTag is the tag input opened on one comment.
	AddTag *editcommit.Field
	// NewRoom creates rooms.
	NewRoom *editcommit.NewEntityInput
	// NewComment creates comments in the selected room.
	NewComment *editcommit.NewEntityInput
}

// New creates a session. Nothing is sent until Start.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var loopOpts []loop.Option
	if opts.Clock != nil {
		loopOpts = append(loopOpts, loop.WithClock(opts.Clock))
	}
	history := opts.History
	if history == nil {
		history = &router.MemoryHistory{}
	}
	if opts.CascadeMode == "" {
		opts.CascadeMode = config.CascadeClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Session{
		loop:        loop.New(loopOpts...),
		tracker:     reactive.NewTracker(),
		cache:       cache.New(),
		ui:          uistate.New(),
		user:        opts.User,
		cascadeMode: opts.CascadeMode,
		now:         opts.Now,
		location:    opts.Location,
		logger:      logger,
		removals:    make(map[tagKey]*loop.Timer),
	}
	s.rooms = s.cache.Collection(domain.CollectionRooms)
	s.comments = s.cache.Collection(domain.CollectionComments)
	s.router = router.New(s.ui, history)
	s.tracker.OnPending(func() { s.loop.Post(s.tracker.Flush) })
	s.conn = ddp.New(ddp.Options{
		Transport: opts.Transport,
		Loop:      s.loop,
		Tracker:   s.tracker,
		Cache:     s.cache,
		Logger:    logger,
	})

	focus := func(input string) editcommit.FocusFunc {
		if opts.Focus == nil {
			return nil
		}
		return func(id string) { opts.Focus(input, id) }
	}
	s.RoomName = editcommit.NewField(s.ui.EditingRoomName, s.tracker, s.commitRoomName, focus(InputRoomName))
	s.CommentText = editcommit.NewField(s.ui.EditingCommentText, s.tracker, s.commitCommentText, focus(InputCommentText))
	s.AddTag = editcommit.NewField(s.ui.EditingAddTag, s.tracker, s.commitAddTag, focus(InputAddTag))
	s.NewRoom = editcommit.NewInput(func(name string) {
		if _, err := s.CreateRoom(name); err != nil {
			s.logger.Warn("create room failed", "error", err)
		}
	})
	s.NewComment = editcommit.NewInput(func(text string) {
		if _, err := s.CreateComment(text); err != nil {
			s.logger.Warn("create comment failed", "error", err)
		}
	})
	return s
}

// Start connects and sets up the subscriptions. Run must be called for
// anything to happen.
func (s *Session) Start(ctx context.Context) {
	s.conn.Start(ctx)
	s.loop.Post(s.subscribe)
}

// Run processes the session loop until ctx is done or Close.
func (s *Session) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Exec runs fn on the session loop and waits for it.
func (s *Session) Exec(ctx context.Context, fn func()) error {
	return s.loop.Exec(ctx, fn)
}

// Post queues fn on the session loop.
func (s *Session) Post(fn func()) bool {
	return s.loop.Post(fn)
}

// Autorun registers a view computation. Call it on the loop.
func (s *Session) Autorun(fn func(c *reactive.Computation)) *reactive.Computation {
	return s.tracker.Autorun(fn)
}

// Flush reruns invalidated views now.
func (s *Session) Flush() {
	s.tracker.Flush()
}

// Close tears the session down and discards its UI state.
func (s *Session) Close() {
	done := make(chan struct{})
	if s.loop.Post(func() {
		defer close(done)
		if s.commentsSub != nil {
			s.commentsSub.Stop()
		}
		for key, timer := range s.removals {
			timer.Stop()
			delete(s.removals, key)
		}
		s.ui.Reset()
	}) {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	_ = s.conn.Close()
	s.loop.Close()
}

// UI returns the session's UI state.
func (s *Session) UI() *uistate.State { return s.ui }

// Router returns the session's router.
func (s *Session) Router() *router.Router { return s.router }

// Conn returns the realtime connection.
func (s *Session) Conn() *ddp.Conn { return s.conn }

// User returns the signed-in identity, nil when anonymous.
func (s *Session) User() *domain.User { return s.user }

// subscribe keeps rooms subscribed for the whole session and comments
// subscribed for whichever room is selected.
func (s *Session) subscribe() {
	s.roomsHandle = s.conn.Subscribe(nil, publish.Rooms)
	s.roomsHandle.OnReady(s.selectFirstRoom)
	s.handles.Changed()

	s.commentsSub = s.tracker.Autorun(func(c *reactive.Computation) {
		room := s.ui.SelectedRoom.Get(c)
		var h *ddp.Handle
		if room != "" {
			h = s.conn.Subscribe(c, publish.Comments, room)
		}
		s.commentsRoom = room
		if h != s.commentsHandle {
			s.commentsHandle = h
			s.handles.Changed()
		}
	})
}

func (s *Session) selectFirstRoom() {
	first, ok := s.rooms.FindOne(nil, cache.Selector{}, cache.FindOptions{Sort: []cache.SortKey{cache.Asc("name")}})
	if !ok {
		return
	}
	if s.router.SelectFirst(first.ID) {
		s.logger.Debug("selected first room", "room_id", first.ID)
	}
}
