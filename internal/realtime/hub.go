// Package realtime pushes live publication data to connected sessions.
//
// The Hub receives committed store changes and fans them out to sessions. Each
// Session keeps its subscriptions and a merge box of the documents it has sent,
// and turns changes into added, changed and removed messages. WebSocket and
// server-sent-event transports wrap a Session.
package realtime

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/roomnotes/roomnotes-server/internal/store"
)

// fence marks the point in the event stream after which every write made by a
// method has been delivered to its session.
type fence struct {
	sessionID string
	methodID  string
}

type heartbeat struct{}

// Hub fans store change events out to sessions.
type Hub struct {
	sessions          map[string]*Session
	events            chan any
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewHub creates a hub. A zero heartbeat interval defaults to 30 seconds.
func NewHub(logger *slog.Logger, heartbeatInterval time.Duration) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Hub{
		sessions:          make(map[string]*Session),
		events:            make(chan any, 1000),
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
	}
}

// Start runs the broadcast loop until ctx is done or the hub is shut down.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	h.logger.Info("realtime hub starting")

	heartbeatTicker := time.NewTicker(h.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-h.events:
			if !ok {
				return
			}
			h.broadcast(event)

		case <-heartbeatTicker.C:
			h.broadcast(heartbeat{})

		case <-ctx.Done():
			h.logger.Info("realtime hub stopping")
			h.closeAllSessions()
			return
		}
	}
}

// Shutdown stops accepting events, drains what is queued and closes every session.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("realtime hub shutdown initiated")

	// Emit holds the read lock while sending, so closing under the write lock is safe.
	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range h.events {
			h.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("realtime events drained")
	case <-ctx.Done():
		h.logger.Warn("realtime event drain timeout, some events may be lost")
	}

	h.wg.Wait()
	h.closeAllSessions()

	h.logger.Info("realtime hub shutdown complete")
	return nil
}

// Emit queues a store change for broadcasting. It implements store.EventEmitter.
func (h *Hub) Emit(event any) {
	ev, ok := event.(store.ChangeEvent)
	if !ok {
		h.logger.Error("invalid event type emitted", slog.Any("type", event))
		return
	}
	h.enqueue(ev)
}

// Fence queues a marker that is delivered to one session after every event
// emitted before it.
func (h *Hub) Fence(sessionID, methodID string) {
	h.enqueue(fence{sessionID: sessionID, methodID: methodID})
}

func (h *Hub) enqueue(event any) {
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()

	if h.shutdown {
		return
	}

	select {
	case h.events <- event:
	default:
		h.logger.Error("realtime event channel full, dropping event", slog.String("event", describe(event)))
	}
}

// broadcast delivers an event without blocking. A session that cannot keep
// up is closed; its client sees the connection drop and stops being ready.
func (h *Hub) broadcast(event any) {
	var delivered, overflowed int
	var slow []*Session

	h.mu.RLock()
	if f, ok := event.(fence); ok {
		if s, found := h.sessions[f.sessionID]; found {
			if s.offer(event) {
				delivered++
			} else {
				slow = append(slow, s)
			}
		}
	} else {
		for _, s := range h.sessions {
			if s.offer(event) {
				delivered++
			} else {
				slow = append(slow, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		overflowed++
		h.logger.Warn("closing slow realtime session", slog.String("session_id", s.ID))
		h.Unregister(s.ID)
		s.Close()
	}

	if _, ok := event.(heartbeat); !ok {
		h.logger.Debug("event broadcast",
			slog.String("event", describe(event)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("overflowed", overflowed)))
	}
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	total := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("realtime session connected",
		slog.String("session_id", s.ID),
		slog.Bool("authenticated", s.user != nil),
		slog.Int("total_sessions", total))
}

// Unregister removes a session. It is safe to call more than once.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	total := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("realtime session disconnected",
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(s.connectedAt)),
		slog.Int("total_sessions", total))
}

// Sessions returns an iterator over connected sessions.
func (h *Hub) Sessions() iter.Seq[*Session] {
	return func(yield func(*Session) bool) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		for _, s := range h.sessions {
			if !yield(s) {
				return
			}
		}
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.sessions {
		s.Close()
	}
	h.sessions = make(map[string]*Session)
}

func describe(event any) string {
	switch ev := event.(type) {
	case store.ChangeEvent:
		return string(ev.Kind) + " " + ev.Collection + " " + ev.ID
	case fence:
		return "fence " + ev.methodID
	case heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}
