// Package editcommit implements the inline edit inputs: a field that edits an
// existing record in place, and an input that creates a new one.
package editcommit

import (
	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
	"github.com/roomnotes/roomnotes-server/internal/client/uistate"
)

// Key is a keyboard key the inputs react to.
type Key int

const (
	KeyOther Key = iota
	KeyEnter
	KeyEscape
)

// Outcome is what an input event did.
type Outcome int

const (
	Ignored Outcome = iota
	Committed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return "ignored"
	}
}

// CommitFunc saves a value for the record being edited.
type CommitFunc func(id, value string)

// FocusFunc moves input focus to the editor of id once it is rendered.
type FocusFunc func(id string)

// Field edits one attribute of whichever record the pointer names.
type Field struct {
	pointer *uistate.Value
	tracker *reactive.Tracker
	commit  CommitFunc
	focus   FocusFunc
}

// NewField binds pointer and commit. focus may be nil.
func NewField(pointer *uistate.Value, tracker *reactive.Tracker, commit CommitFunc, focus FocusFunc) *Field {
	return &Field{pointer: pointer, tracker: tracker, commit: commit, focus: focus}
}

// StartEdit opens the editor for id. The view is flushed before focus so the
// editor exists when it is focused.
func (f *Field) StartEdit(id string) {
	f.pointer.Set(id)
	f.tracker.Flush()
	if f.focus != nil {
		f.focus(id)
	}
}

// Editing reports whether id is being edited.
func (f *Field) Editing(comp *reactive.Computation, id string) bool {
	return id != "" && f.pointer.Equals(comp, id)
}

// Current returns the id being edited, or "".
func (f *Field) Current() string {
	return f.pointer.Get(nil)
}

// HandleKey applies a key press with the editor's current text.
func (f *Field) HandleKey(key Key, value string) Outcome {
	switch key {
	case KeyEnter:
		return f.finish(value)
	case KeyEscape:
		if !f.pointer.IsSet(nil) {
			return Ignored
		}
		f.pointer.Clear()
		return Cancelled
	default:
		return Ignored
	}
}

// HandleBlur treats losing focus like Enter.
func (f *Field) HandleBlur(value string) Outcome {
	return f.finish(value)
}

func (f *Field) finish(value string) Outcome {
	id := f.pointer.Get(nil)
	if id == "" {
		return Ignored
	}
	if value == "" {
		f.pointer.Clear()
		return Cancelled
	}
	f.commit(id, value)
	f.pointer.Clear()
	return Committed
}

// NewEntityInput is the always-visible input that creates records.
type NewEntityInput struct {
	create func(value string)
}

// NewInput calls create for every committed value.
func NewInput(create func(value string)) *NewEntityInput {
	return &NewEntityInput{create: create}
}

// HandleKey creates on Enter with text. Committed tells the caller to clear
// the input.
func (n *NewEntityInput) HandleKey(key Key, value string) Outcome {
	if key != KeyEnter {
		return Ignored
	}
	return n.submit(value)
}

// HandleBlur creates when the input loses focus with text.
func (n *NewEntityInput) HandleBlur(value string) Outcome {
	return n.submit(value)
}

func (n *NewEntityInput) submit(value string) Outcome {
	if value == "" {
		return Ignored
	}
	n.create(value)
	return Committed
}
