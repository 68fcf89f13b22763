// Package uistate holds the per-session UI variables: which room is open,
// the tag filter, and what is being edited.
package uistate

import "github.com/roomnotes/roomnotes-server/internal/client/reactive"

// Value is one reactive string variable. The empty string means unset.
type Value struct {
	v *reactive.Var[string]
}

func newValue() *Value {
	return &Value{v: reactive.NewVar("")}
}

// Get returns the value and makes comp depend on it.
func (v *Value) Get(comp *reactive.Computation) string {
	return v.v.Get(comp)
}

// Equals reports whether the value is x. comp reruns only when the answer
// flips.
func (v *Value) Equals(comp *reactive.Computation, x string) bool {
	return v.v.Equals(comp, x)
}

// Set stores x.
func (v *Value) Set(x string) {
	v.v.Set(x)
}

// Clear unsets the value.
func (v *Value) Clear() {
	v.v.Set("")
}

// IsSet reports whether the value is non-empty.
func (v *Value) IsSet(comp *reactive.Computation) bool {
	return !v.v.Equals(comp, "")
}

// State is the UI state of one client session. It is never persisted.
type State struct {
	SelectedRoom       *Value
	TagFilter          *Value
	EditingRoomName    *Value
	EditingCommentText *Value
	EditingAddTag      *Value
}

// New creates a state with everything unset.
func New() *State {
	return &State{
		SelectedRoom:       newValue(),
		TagFilter:          newValue(),
		EditingRoomName:    newValue(),
		EditingCommentText: newValue(),
		EditingAddTag:      newValue(),
	}
}

// Reset clears every variable.
func (s *State) Reset() {
	for _, v := range []*Value{s.SelectedRoom, s.TagFilter, s.EditingRoomName, s.EditingCommentText, s.EditingAddTag} {
		v.Clear()
	}
}
