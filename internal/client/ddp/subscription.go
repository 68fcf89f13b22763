package ddp

import (
	"encoding/json"

	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// Handle is one live subscription.
type Handle struct {
	conn    *Conn
	id      string
	name    string
	key     string
	ready   *reactive.Var[bool]
	err     error
	stopped bool

	// inactive marks a handle whose owning computation was invalidated. If the
	// rerun asks for the same subscription it is reused, otherwise it stops
	// after the flush.
	inactive bool
	onReady  []func()
}

// Subscribe starts a subscription. When comp is not nil the subscription
// belongs to it: a rerun asking for the same name and params keeps it, and it
// stops when the computation stops or reruns without asking for it.
func (c *Conn) Subscribe(comp *reactive.Computation, name string, params ...any) *Handle {
	key := subKey(name, params)

	if comp != nil {
		for _, h := range c.subs {
			if h.inactive && h.key == key {
				h.inactive = false
				c.bind(comp, h)
				return h
			}
		}
	}

	h := &Handle{conn: c, id: c.newID(), name: name, key: key, ready: reactive.NewVar(false)}
	raw, err := wire.Args(params...)
	if err != nil {
		h.err = err
		h.stopped = true
		return h
	}
	c.subs[h.id] = h
	c.send(wire.Message{Msg: wire.MsgSub, ID: h.id, Name: name, Params: raw})
	c.bind(comp, h)
	return h
}

func (c *Conn) bind(comp *reactive.Computation, h *Handle) {
	if comp == nil {
		return
	}
	comp.OnInvalidate(func() {
		if h.stopped {
			return
		}
		h.inactive = true
		c.tracker.AfterFlush(func() {
			if h.inactive {
				h.Stop()
			}
		})
	})
}

func subKey(name string, params []any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return name
	}
	return name + string(raw)
}

// ID returns the subscription id.
func (h *Handle) ID() string { return h.id }

// Name returns the publication name.
func (h *Handle) Name() string { return h.name }

// Ready reports whether the initial batch has arrived.
func (h *Handle) Ready(comp *reactive.Computation) bool {
	return h.ready.Get(comp)
}

// Err returns why the server ended the subscription, if it did.
func (h *Handle) Err() error {
	return h.err
}

// Stopped reports whether the subscription has ended.
func (h *Handle) Stopped() bool {
	return h.stopped
}

// OnReady runs fn once the subscription is ready, immediately if it already is.
func (h *Handle) OnReady(fn func()) {
	if h.ready.Get(nil) {
		fn()
		return
	}
	h.onReady = append(h.onReady, fn)
}

// Stop ends the subscription. The server removes every document only this
// subscription was publishing.
func (h *Handle) Stop() {
	if h.stopped {
		return
	}
	h.stopped = true
	h.inactive = false
	delete(h.conn.subs, h.id)
	h.conn.send(wire.Message{Msg: wire.MsgUnsub, ID: h.id})
}

func (h *Handle) markReady() {
	h.ready.Set(true)
	callbacks := h.onReady
	h.onReady = nil
	for _, fn := range callbacks {
		fn()
	}
}

func (h *Handle) fail(err error) {
	h.err = err
	h.stopped = true
	h.onReady = nil
	delete(h.conn.subs, h.id)
	if err != nil {
		h.conn.logger.Warn("subscription rejected", "name", h.name, "error", err.Error())
	}
}
