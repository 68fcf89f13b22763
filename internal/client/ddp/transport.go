// Package ddp is the client side of the realtime protocol: it keeps a local
// cache in sync with server publications and invokes server methods.
package ddp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// ErrTransportClosed is returned by a transport after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport moves whole protocol messages between client and server.
type Transport interface {
	Send(ctx context.Context, msg wire.Message) error
	Recv(ctx context.Context) (wire.Message, error)
	Close() error
}

const writeTimeout = 10 * time.Second

type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// WebSocketURL turns an http(s) base URL into the realtime endpoint URL.
func WebSocketURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	if after, ok := strings.CutPrefix(u, "https://"); ok {
		u = "wss://" + after
	} else if after, ok := strings.CutPrefix(u, "http://"); ok {
		u = "ws://" + after
	}
	return u + "/api/v1/ws"
}

// Dial opens a WebSocket transport. An empty token connects anonymously.
func Dial(ctx context.Context, wsURL, token string) (Transport, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(_ context.Context, msg wire.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(msg)
}

// Recv blocks in ReadJSON; ctx is honored by closing the transport.
func (t *wsTransport) Recv(_ context.Context) (wire.Message, error) {
	var msg wire.Message
	if err := t.conn.ReadJSON(&msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return msg, fmt.Errorf("websocket read: %w", err)
		}
		return msg, err
	}
	return msg, nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// pipeEnd is one side of an in-process Pipe.
type pipeEnd struct {
	in     <-chan wire.Message
	out    chan<- wire.Message
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-process transports. Closing either end
// closes both.
func Pipe() (Transport, Transport) {
	a := make(chan wire.Message, 64)
	b := make(chan wire.Message, 64)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: a, out: b, closed: closed, once: once},
		&pipeEnd{in: b, out: a, closed: closed, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, msg wire.Message) error {
	select {
	case <-p.closed:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (wire.Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return wire.Message{}, ErrTransportClosed
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
