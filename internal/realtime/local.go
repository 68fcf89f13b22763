package realtime

import (
	"context"
	"errors"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// MessageConn carries whole messages in both directions, such as an
// in-process pipe.
type MessageConn interface {
	Send(ctx context.Context, msg wire.Message) error
	Recv(ctx context.Context) (wire.Message, error)
}

type connSink struct {
	ctx  context.Context
	conn MessageConn
}

func (c connSink) Send(msg wire.Message) error {
	return c.conn.Send(c.ctx, msg)
}

// Heartbeat is a no-op: a MessageConn has no transport to keep alive.
func (c connSink) Heartbeat() error {
	return nil
}

// ServeConn runs a session for user over conn until ctx is done or conn
// fails. user has already been authenticated by the caller.
func (s *Server) ServeConn(ctx context.Context, user *domain.User, conn MessageConn) error {
	session := s.NewSession(user)
	defer s.hub.Unregister(session.ID)
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		for {
			msg, err := conn.Recv(ctx)
			if err != nil {
				return
			}
			if err := session.Deliver(ctx, msg); err != nil {
				return
			}
		}
	}()

	err := session.Run(ctx, connSink{ctx: ctx, conn: conn})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
