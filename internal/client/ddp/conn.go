package ddp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roomnotes/roomnotes-server/internal/client/cache"
	"github.com/roomnotes/roomnotes-server/internal/client/loop"
	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// ErrDisconnected fails method calls still pending when the transport ends.
var ErrDisconnected = errors.New("disconnected")

// ResultFunc receives a method's result once the server has both answered and
// reported its writes as visible.
type ResultFunc func(result json.RawMessage, err error)

// Options configure a Conn.
type Options struct {
	Transport Transport
	Loop      *loop.Loop
	Tracker   *reactive.Tracker
	Cache     *cache.Cache
	Logger    *slog.Logger
}

// Conn is one client connection. Incoming messages are handled on the loop;
// every exported method except Start and Close must be called there too.
type Conn struct {
	transport Transport
	loop      *loop.Loop
	tracker   *reactive.Tracker
	cache     *cache.Cache
	logger    *slog.Logger

	outMu sync.Mutex
	out   []wire.Message
	wake  chan struct{}

	cancel    context.CancelFunc
	closeOnce sync.Once

	nextID    int
	session   string
	connected *reactive.Var[bool]
	subs      map[string]*Handle
	calls     map[string]*pendingCall
}

type pendingCall struct {
	callback ResultFunc
	result   json.RawMessage
	err      error
	answered bool
	updated  bool
}

// New creates a connection. The connect handshake is queued immediately and
// sent once Start runs.
func New(opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Conn{
		transport: opts.Transport,
		loop:      opts.Loop,
		tracker:   opts.Tracker,
		cache:     opts.Cache,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		connected: reactive.NewVar(false),
		subs:      make(map[string]*Handle),
		calls:     make(map[string]*pendingCall),
	}
	c.send(wire.Message{Msg: wire.MsgConnect})
	return c
}

// Start runs the reader and writer goroutines until ctx is done or the
// transport fails.
func (c *Conn) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

// Close ends the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		err = c.transport.Close()
	})
	return err
}

// Connected reports whether the handshake has completed and the transport
// is still up.
func (c *Conn) Connected(comp *reactive.Computation) bool {
	return c.connected.Get(comp)
}

// SessionID returns the server-assigned session id.
func (c *Conn) SessionID() string {
	return c.session
}

func (c *Conn) send(msg wire.Message) {
	c.outMu.Lock()
	c.out = append(c.out, msg)
	c.outMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) takeOutgoing() []wire.Message {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	out := c.out
	c.out = nil
	return out
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		for _, msg := range c.takeOutgoing() {
			if err := c.transport.Send(ctx, msg); err != nil {
				c.loop.Post(func() { c.disconnected(err) })
				return
			}
		}
		select {
		case <-c.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.transport.Close()
	for {
		msg, err := c.transport.Recv(ctx)
		if err != nil {
			c.loop.Post(func() { c.disconnected(err) })
			return
		}
		c.loop.Post(func() { c.handle(msg) })
	}
}

func (c *Conn) disconnected(err error) {
	if !c.connected.Get(nil) && len(c.calls) == 0 {
		return
	}
	c.logger.Info("realtime connection lost", slog.String("error", err.Error()))
	c.connected.Set(false)

	// Nothing reconnects, so the cached data is no longer being kept current.
	for _, h := range c.subs {
		h.ready.Set(false)
	}

	calls := c.calls
	c.calls = make(map[string]*pendingCall)
	for _, call := range calls {
		if call.callback != nil {
			call.callback(nil, ErrDisconnected)
		}
	}
}

func (c *Conn) newID() string {
	c.nextID++
	return strconv.Itoa(c.nextID)
}

func (c *Conn) handle(msg wire.Message) {
	switch msg.Msg {
	case wire.MsgConnected:
		c.session = msg.Session
		c.connected.Set(true)
		c.logger.Debug("realtime connected", slog.String("session_id", msg.Session))
	case wire.MsgAdded:
		c.cache.Collection(msg.Collection).ApplyAdded(msg.ID, msg.Fields)
	case wire.MsgChanged:
		c.cache.Collection(msg.Collection).ApplyChanged(msg.ID, msg.Fields, msg.Cleared)
	case wire.MsgRemoved:
		c.cache.Collection(msg.Collection).ApplyRemoved(msg.ID)
	case wire.MsgReady:
		for _, id := range msg.Subs {
			if h, ok := c.subs[id]; ok {
				h.markReady()
			}
		}
	case wire.MsgNosub:
		if h, ok := c.subs[msg.ID]; ok {
			var err error
			if msg.Error != nil {
				err = msg.Error
			}
			h.fail(err)
		}
	case wire.MsgResult:
		if call, ok := c.calls[msg.ID]; ok {
			call.answered = true
			call.result = msg.Result
			if msg.Error != nil {
				call.err = msg.Error
			}
			c.maybeFinish(msg.ID, call)
		}
	case wire.MsgUpdated:
		for _, id := range msg.Methods {
			if call, ok := c.calls[id]; ok {
				call.updated = true
				c.maybeFinish(id, call)
			}
		}
	case wire.MsgPong:
	case wire.MsgError:
		c.logger.Warn("server reported protocol error", slog.String("reason", msg.Reason))
	default:
		c.logger.Debug("ignoring message", slog.String("msg", msg.Msg))
	}
}

// Call invokes a server method. callback may be nil.
func (c *Conn) Call(method string, params []any, callback ResultFunc) string {
	id := c.newID()
	raw, err := wire.Args(params...)
	if err != nil {
		if callback != nil {
			callback(nil, err)
		}
		return id
	}
	c.calls[id] = &pendingCall{callback: callback}
	c.send(wire.Message{Msg: wire.MsgMethod, ID: id, Method: method, Params: raw})
	return id
}

func (c *Conn) maybeFinish(id string, call *pendingCall) {
	if !call.answered || !call.updated {
		return
	}
	delete(c.calls, id)
	if call.err != nil {
		c.logger.Debug("method failed", slog.String("method_id", id), slog.String("error", call.err.Error()))
	}
	if call.callback != nil {
		call.callback(call.result, call.err)
	}
}

// PendingCalls returns how many method calls await completion.
func (c *Conn) PendingCalls() int {
	return len(c.calls)
}
