package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomnotes/roomnotes-server/internal/wire"
)

const maxMessageSize = 64 * 1024

// wsSink writes messages to a WebSocket. Only the session goroutine writes.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsSink) Send(msg wire.Message) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(msg)
}

func (w *wsSink) Heartbeat() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

// ServeWS handles GET /api/v1/ws.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.logger.Debug("realtime auth failed", slog.String("error", err.Error()))
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	session := s.NewSession(user)
	defer s.hub.Unregister(session.ID)
	defer session.Close()

	// The hijacked connection outlives r.Context, so the session gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readTimeout := 2 * s.hub.heartbeatInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer cancel()
		for {
			var msg wire.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					session.logger.Debug("websocket read failed", slog.String("error", err.Error()))
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if err := session.Deliver(ctx, msg); err != nil {
				return
			}
		}
	}()

	sink := &wsSink{conn: conn, writeTimeout: s.writeTimeout}
	err = session.Run(ctx, sink)
	switch {
	case errors.Is(err, ErrSessionClosed):
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session closed"),
			time.Now().Add(s.writeTimeout))
	case err != nil:
		session.logger.Info("client disconnected during send", slog.String("error", err.Error()))
	}
}
