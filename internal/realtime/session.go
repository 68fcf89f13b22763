package realtime

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/publish"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// ErrSessionClosed is returned once a session has been closed by the hub.
var ErrSessionClosed = errors.New("realtime session closed")

// Sink writes server messages to one client connection.
type Sink interface {
	Send(msg wire.Message) error
	Heartbeat() error
}

type docKey struct {
	collection string
	id         string
}

// docState is one document as the client currently sees it.
type docState struct {
	refs   map[string]struct{}
	fields map[string]any
}

type subscription struct {
	id     string
	name   string
	cursor *publish.Cursor
	docs   map[docKey]struct{}
}

// Session is one client's view of the published data. Run is its only
// goroutine: client requests and hub events are handled there in arrival order.
type Session struct {
	ID          string
	user        *domain.User
	server      *Server
	connectedAt time.Time
	logger      *slog.Logger

	requests  chan wire.Message
	inbox     chan any
	done      chan struct{}
	closeOnce sync.Once

	subs map[string]*subscription
	docs map[docKey]*docState
}

func newSession(server *Server, user *domain.User, buffer int) *Session {
	if buffer < 1 {
		buffer = 256
	}
	id := uuid.NewString()
	return &Session{
		ID:          id,
		user:        user,
		server:      server,
		connectedAt: time.Now(),
		logger:      server.logger.With(slog.String("session_id", id)),
		requests:    make(chan wire.Message, 16),
		inbox:       make(chan any, buffer),
		done:        make(chan struct{}),
		subs:        make(map[string]*subscription),
		docs:        make(map[docKey]*docState),
	}
}

// User returns the signed-in user, nil for anonymous sessions.
func (s *Session) User() *domain.User {
	return s.user
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session. Run returns ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// offer hands an event to the session without blocking.
func (s *Session) offer(event any) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.inbox <- event:
		return true
	default:
		return false
	}
}

// Deliver queues a client message for Run.
func (s *Session) Deliver(ctx context.Context, msg wire.Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.requests <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles client messages and hub events until ctx is done, the session
// is closed, or the sink fails.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case msg := <-s.requests:
			if err := s.handle(ctx, sink, msg); err != nil {
				return err
			}
		case event := <-s.inbox:
			if err := s.handleEvent(sink, event); err != nil {
				return err
			}
		case <-s.done:
			return ErrSessionClosed
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) handle(ctx context.Context, sink Sink, msg wire.Message) error {
	switch msg.Msg {
	case wire.MsgConnect:
		return sink.Send(wire.Message{Msg: wire.MsgConnected, Session: s.ID})
	case wire.MsgPing:
		return sink.Send(wire.Message{Msg: wire.MsgPong, ID: msg.ID})
	case wire.MsgSub:
		return s.subscribe(ctx, sink, msg)
	case wire.MsgUnsub:
		return s.unsubscribe(sink, msg.ID)
	case wire.MsgMethod:
		return s.call(ctx, sink, msg)
	default:
		return sink.Send(wire.Message{Msg: wire.MsgError, Reason: "unknown message " + msg.Msg})
	}
}

func (s *Session) handleEvent(sink Sink, event any) error {
	switch ev := event.(type) {
	case store.ChangeEvent:
		return s.applyChange(sink, ev)
	case fence:
		return sink.Send(wire.Message{Msg: wire.MsgUpdated, Methods: []string{ev.methodID}})
	case heartbeat:
		return sink.Heartbeat()
	default:
		return nil
	}
}

func (s *Session) subscribe(ctx context.Context, sink Sink, msg wire.Message) error {
	if msg.ID == "" {
		return sink.Send(wire.Message{Msg: wire.MsgError, Reason: "sub requires an id"})
	}
	if _, ok := s.subs[msg.ID]; ok {
		return sink.Send(wire.Message{Msg: wire.MsgReady, Subs: []string{msg.ID}})
	}

	params, err := wire.Values(msg.Params)
	if err != nil {
		return s.nosub(sink, msg.ID, domainerrors.SubscriptionRejected(err.Error()))
	}
	cursor, err := s.server.registry.Resolve(msg.Name, params)
	if err != nil {
		s.logger.Debug("subscription rejected", "name", msg.Name, "error", err)
		return s.nosub(sink, msg.ID, err)
	}
	docs, err := cursor.Fetch(ctx)
	if err != nil {
		s.logger.Error("subscription snapshot failed", "name", msg.Name, "error", err)
		return s.nosub(sink, msg.ID, err)
	}

	sub := &subscription{id: msg.ID, name: msg.Name, cursor: cursor, docs: make(map[docKey]struct{}, len(docs))}
	s.subs[msg.ID] = sub

	for _, d := range docs {
		key := docKey{collection: cursor.Collection, id: d.ID}
		before := s.visible(key)
		s.addRef(sub, key)
		if err := s.publish(sink, key, before, d.Fields); err != nil {
			return err
		}
	}

	s.logger.Debug("subscribed", "sub_id", msg.ID, "name", msg.Name, "docs", len(docs))
	return sink.Send(wire.Message{Msg: wire.MsgReady, Subs: []string{msg.ID}})
}

func (s *Session) unsubscribe(sink Sink, subID string) error {
	sub, ok := s.subs[subID]
	if !ok {
		return sink.Send(wire.Message{Msg: wire.MsgNosub, ID: subID})
	}
	delete(s.subs, subID)

	keys := make([]docKey, 0, len(sub.docs))
	for key := range sub.docs {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareKeys)

	for _, key := range keys {
		s.dropRef(sub, key)
		if !s.visible(key) {
			delete(s.docs, key)
			if err := sink.Send(wire.Message{Msg: wire.MsgRemoved, Collection: key.collection, ID: key.id}); err != nil {
				return err
			}
		}
	}
	return sink.Send(wire.Message{Msg: wire.MsgNosub, ID: subID})
}

// applyChange recomputes which subscriptions see the document and sends at
// most one message for it.
func (s *Session) applyChange(sink Sink, ev store.ChangeEvent) error {
	key := docKey{collection: ev.Collection, id: ev.ID}
	before := s.visible(key)

	for _, sub := range s.subs {
		_, had := sub.docs[key]
		matches := ev.Kind != store.ChangeRemoved && sub.cursor.Matches(ev.Collection, ev.Fields)
		switch {
		case matches && !had:
			s.addRef(sub, key)
		case !matches && had:
			s.dropRef(sub, key)
		}
	}

	if !s.visible(key) {
		delete(s.docs, key)
		if before {
			return sink.Send(wire.Message{Msg: wire.MsgRemoved, Collection: key.collection, ID: key.id})
		}
		return nil
	}
	return s.publish(sink, key, before, ev.Fields)
}

// publish sends added for a newly visible document, or the field diff for one
// the client already has.
func (s *Session) publish(sink Sink, key docKey, before bool, fields map[string]any) error {
	doc := s.docs[key]
	if !before {
		doc.fields = fields
		return sink.Send(wire.Message{Msg: wire.MsgAdded, Collection: key.collection, ID: key.id, Fields: fields})
	}

	changed, cleared := diffFields(doc.fields, fields)
	doc.fields = fields
	if len(changed) == 0 && len(cleared) == 0 {
		return nil
	}
	return sink.Send(wire.Message{Msg: wire.MsgChanged, Collection: key.collection, ID: key.id, Fields: changed, Cleared: cleared})
}

func (s *Session) visible(key docKey) bool {
	doc, ok := s.docs[key]
	return ok && len(doc.refs) > 0
}

func (s *Session) addRef(sub *subscription, key docKey) {
	doc, ok := s.docs[key]
	if !ok {
		doc = &docState{refs: make(map[string]struct{})}
		s.docs[key] = doc
	}
	doc.refs[sub.id] = struct{}{}
	sub.docs[key] = struct{}{}
}

func (s *Session) dropRef(sub *subscription, key docKey) {
	delete(sub.docs, key)
	if doc, ok := s.docs[key]; ok {
		delete(doc.refs, sub.id)
	}
}

func (s *Session) call(ctx context.Context, sink Sink, msg wire.Message) error {
	if msg.ID == "" {
		return sink.Send(wire.Message{Msg: wire.MsgError, Reason: "method requires an id"})
	}

	if s.user == nil && !s.server.AllowAnonymous() {
		if err := s.result(sink, msg.ID, nil, domainerrors.Unauthorized("sign in required")); err != nil {
			return err
		}
		return sink.Send(wire.Message{Msg: wire.MsgUpdated, Methods: []string{msg.ID}})
	}

	value, err := s.server.methods.Call(ctx, s.user, msg.Method, msg.Params)
	if err != nil {
		s.logger.Debug("method failed", "method", msg.Method, "error", err)
	}
	if sendErr := s.result(sink, msg.ID, value, err); sendErr != nil {
		return sendErr
	}

	// Writes made by the method are already queued on the hub; the fence
	// arrives after them.
	s.server.hub.Fence(s.ID, msg.ID)
	return nil
}

func (s *Session) result(sink Sink, methodID string, value any, err error) error {
	out := wire.Message{Msg: wire.MsgResult, ID: methodID}
	if err != nil {
		out.Error = toWireError(err)
		return sink.Send(out)
	}
	if value != nil {
		raw, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			out.Error = toWireError(marshalErr)
			return sink.Send(out)
		}
		out.Result = raw
	}
	return sink.Send(out)
}

func (s *Session) nosub(sink Sink, subID string, err error) error {
	return sink.Send(wire.Message{Msg: wire.MsgNosub, ID: subID, Error: toWireError(err)})
}

// toWireError exposes domain errors as they are and hides everything else.
func toWireError(err error) *wire.Error {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) && domainErr.Code != domainerrors.CodeInternal {
		return &wire.Error{Code: string(domainErr.Code), Message: domainErr.Message}
	}
	return &wire.Error{Code: string(domainerrors.CodeInternal), Message: "internal error"}
}

// diffFields returns the fields of next that differ from prev and the names of
// fields next no longer has.
func diffFields(prev, next map[string]any) (map[string]any, []string) {
	changed := make(map[string]any)
	for k, v := range next {
		if old, ok := prev[k]; !ok || !reflect.DeepEqual(old, v) {
			changed[k] = v
		}
	}

	var cleared []string
	for k := range prev {
		if _, ok := next[k]; !ok {
			cleared = append(cleared, k)
		}
	}
	slices.Sort(cleared)
	return changed, cleared
}

func compareKeys(a, b docKey) int {
	return cmp.Or(cmp.Compare(a.collection, b.collection), cmp.Compare(a.id, b.id))
}
