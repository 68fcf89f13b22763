// Package router keeps the selected room and the address bar in step.
package router

import (
	"net/url"
	"strings"
	"sync"

	"github.com/roomnotes/roomnotes-server/internal/client/uistate"
)

// History is the external address bar.
type History interface {
	Push(path string)
}

// Router maps paths of the form /<room_id> to the selected room.
type Router struct {
	ui      *uistate.State
	history History
}

// New creates a router over ui. history may be nil for headless sessions.
func New(ui *uistate.State, history History) *Router {
	return &Router{ui: ui, history: history}
}

// Path returns the address for a room; the empty room is "/".
func Path(roomID string) string {
	return "/" + url.PathEscape(roomID)
}

// RoomFromPath extracts the room id from a path.
func RoomFromPath(path string) string {
	room := strings.Trim(path, "/")
	if i := strings.IndexByte(room, '/'); i >= 0 {
		room = room[:i]
	}
	if unescaped, err := url.PathUnescape(room); err == nil {
		room = unescaped
	}
	return room
}

// Navigate handles an address change. Switching rooms resets the tag filter.
func (r *Router) Navigate(path string) {
	room := RoomFromPath(path)
	if r.ui.SelectedRoom.Equals(nil, room) {
		return
	}
	r.ui.SelectedRoom.Set(room)
	r.ui.TagFilter.Clear()
}

// SetRoom pushes the room's address and routes to it.
func (r *Router) SetRoom(roomID string) {
	path := Path(roomID)
	if r.history != nil {
		r.history.Push(path)
	}
	r.Navigate(path)
}

// SelectFirst routes to roomID unless a room is already selected.
func (r *Router) SelectFirst(roomID string) bool {
	if roomID == "" || r.ui.SelectedRoom.IsSet(nil) {
		return false
	}
	r.SetRoom(roomID)
	return true
}

// MemoryHistory records pushed paths.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
}

// Push appends path.
func (h *MemoryHistory) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, path)
}

// Current returns the last pushed path, or "/".
func (h *MemoryHistory) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return "/"
	}
	return h.entries[len(h.entries)-1]
}

// Entries returns every pushed path in order.
func (h *MemoryHistory) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}
