package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/publish"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// sseSink writes messages as server-sent events named after the message kind.
type sseSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	logger       *slog.Logger
}

func (s *sseSink) Send(msg wire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", msg.Msg, data); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseSink) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseSink) flush() error {
	if err := s.rc.Flush(); err != nil {
		return err
	}
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		// Not every ResponseWriter supports deadlines.
		s.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}

// ServeStream handles GET /api/v1/stream?sub=rooms or ?sub=comments&room_id=X.
// The stream carries one read-only subscription.
func (s *Server) ServeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	user, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	name, params := streamParams(r)
	if _, err := s.registry.Resolve(name, params); err != nil {
		status := http.StatusInternalServerError
		var domainErr *domainerrors.Error
		if domainerrors.As(err, &domainErr) {
			status = domainErr.HTTPStatus()
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	session := s.NewSession(user)
	defer s.hub.Unregister(session.ID)
	defer session.Close()

	sink := &sseSink{w: w, rc: rc, writeTimeout: s.writeTimeout, logger: session.logger}

	rawParams, err := wire.Args(params...)
	if err != nil {
		return
	}
	ctx := r.Context()
	for _, msg := range []wire.Message{
		{Msg: wire.MsgConnect},
		{Msg: wire.MsgSub, ID: name, Name: name, Params: rawParams},
	} {
		if err := session.Deliver(ctx, msg); err != nil {
			return
		}
	}

	if err := session.Run(ctx, sink); err != nil {
		session.logger.Info("stream ended", slog.String("error", err.Error()))
	}
}

func streamParams(r *http.Request) (string, []any) {
	q := r.URL.Query()
	name := q.Get("sub")
	if name == "" {
		name = publish.Rooms
	}
	if !q.Has("room_id") {
		return name, nil
	}
	return name, []any{q.Get("room_id")}
}
