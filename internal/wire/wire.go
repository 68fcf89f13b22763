// Package wire defines the JSON messages exchanged over the realtime connection.
package wire

import (
	"encoding/json"
	"fmt"
)

// Client to server message kinds.
const (
	MsgConnect = "connect"
	MsgSub     = "sub"
	MsgUnsub   = "unsub"
	MsgMethod  = "method"
	MsgPing    = "ping"
)

// Server to client message kinds.
const (
	MsgConnected = "connected"
	MsgAdded     = "added"
	MsgChanged   = "changed"
	MsgRemoved   = "removed"
	MsgReady     = "ready"
	MsgNosub     = "nosub"
	MsgResult    = "result"
	MsgUpdated   = "updated"
	MsgPong      = "pong"
	MsgError     = "error"
)

// Method names.
const (
	MethodRoomsInsert        = "rooms.insert"
	MethodRoomsUpdate        = "rooms.update"
	MethodRoomsRemove        = "rooms.remove"
	MethodRoomsRemoveCascade = "rooms.removeCascade"
	MethodCommentsInsert     = "comments.insert"
	MethodCommentsUpdate     = "comments.update"
	MethodCommentsRemove     = "comments.remove"
	MethodCommentsAddTag     = "comments.addTag"
	MethodCommentsRemoveTag  = "comments.removeTag"
)

// Message is the single envelope for every realtime message. Which fields are
// set depends on Msg.
type Message struct {
	Msg string `json:"msg"`

	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name,omitempty"`
	Method     string            `json:"method,omitempty"`
	Params     []json.RawMessage `json:"params,omitempty"`
	Session    string            `json:"session,omitempty"`
	Collection string            `json:"collection,omitempty"`
	Fields     map[string]any    `json:"fields,omitempty"`
	Cleared    []string          `json:"cleared,omitempty"`
	Subs       []string          `json:"subs,omitempty"`
	Methods    []string          `json:"methods,omitempty"`
	Result     json.RawMessage   `json:"result,omitempty"`
	Error      *Error            `json:"error,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Error is the error payload of nosub and result messages.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"reason"`
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Args encodes positional params.
func Args(args ...any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode param: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Values decodes positional params into untyped values.
func Values(params []json.RawMessage) ([]any, error) {
	out := make([]any, 0, len(params))
	for _, raw := range params {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode param: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
