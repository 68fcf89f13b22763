package app

import (
	"fmt"
	"time"

	"github.com/roomnotes/roomnotes-server/internal/client/cache"
	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
	"github.com/roomnotes/roomnotes-server/internal/client/tagfilter"
	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// RoomView is one entry of the room list.
type RoomView struct {
	ID         string
	Name       string
	Selected   bool
	Editing    bool
	CanDestroy bool
	NameClass  string
}

// TagView is one tag chip on a comment.
type TagView struct {
	CommentID string
	Tag       string
	Removing  bool
}

// CommentView is one comment of the selected room.
type CommentView struct {
	ID        string
	RoomID    string
	Text      string
	Done      bool
	DoneClass string
	Timestamp int64
	Created   string
	OwnerName string
	Editing   bool
	AddingTag bool
	Tags      []TagView
}

// TagFilterView is one entry of the tag filter bar.
type TagFilterView struct {
	Tag      *string
	Label    string
	Count    int
	Selected bool
}

// Rooms lists every room by name.
func (s *Session) Rooms(c *reactive.Computation) []RoomView {
	docs := s.rooms.Find(c, cache.Selector{}, cache.FindOptions{Sort: []cache.SortKey{cache.Asc("name")}})
	out := make([]RoomView, 0, len(docs))
	for _, doc := range docs {
		name := doc.String("name")
		selected := s.ui.SelectedRoom.Equals(c, doc.ID)
		view := RoomView{
			ID:         doc.ID,
			Name:       name,
			Selected:   selected,
			Editing:    s.RoomName.Editing(c, doc.ID),
			CanDestroy: s.user != nil && selected,
		}
		if name == "" {
			view.NameClass = "empty"
		}
		out = append(out, view)
	}
	return out
}

// RoomsLoading reports whether the room list is still arriving.
func (s *Session) RoomsLoading(c *reactive.Computation) bool {
	s.handles.Depend(c)
	return s.roomsHandle == nil || !s.roomsHandle.Ready(c)
}

// AnyRoomSelected reports whether a room is open.
func (s *Session) AnyRoomSelected(c *reactive.Computation) bool {
	return s.ui.SelectedRoom.IsSet(c)
}

// CommentsLoading reports whether the selected room's comments are still
// arriving.
func (s *Session) CommentsLoading(c *reactive.Computation) bool {
	s.handles.Depend(c)
	return s.commentsHandle != nil && !s.commentsHandle.Ready(c)
}

// Comments lists the selected room's comments matching the tag filter,
// newest first.
func (s *Session) Comments(c *reactive.Computation) []CommentView {
	roomID := s.ui.SelectedRoom.Get(c)
	if roomID == "" {
		return nil
	}
	sel := cache.Selector{"room_id": roomID}
	if tag := s.ui.TagFilter.Get(c); tag != "" {
		sel["tags"] = tag
	}
	s.removalsDep.Depend(c)

	docs := s.comments.Find(c, sel, cache.FindOptions{Sort: []cache.SortKey{cache.Desc("timestamp")}})
	out := make([]CommentView, 0, len(docs))
	for _, doc := range docs {
		ts := doc.Int64("timestamp")
		view := CommentView{
			ID:        doc.ID,
			RoomID:    doc.String("room_id"),
			Text:      doc.String("text"),
			Done:      doc.Bool("done"),
			Timestamp: ts,
			Created:   s.clock(ts),
			OwnerName: doc.String("owner_name"),
			Editing:   s.CommentText.Editing(c, doc.ID),
			AddingTag: s.AddTag.Editing(c, doc.ID),
		}
		if view.Done {
			view.DoneClass = "done"
		}
		for _, tag := range doc.Strings("tags") {
			_, removing := s.removals[tagKey{commentID: doc.ID, tag: tag}]
			view.Tags = append(view.Tags, TagView{CommentID: doc.ID, Tag: tag, Removing: removing})
		}
		out = append(out, view)
	}
	return out
}

// TagFilter builds the filter bar for the selected room.
func (s *Session) TagFilter(c *reactive.Computation) []TagFilterView {
	roomID := s.ui.SelectedRoom.Get(c)
	var tagSets [][]string
	if roomID != "" {
		for _, doc := range s.comments.Find(c, cache.Selector{"room_id": roomID}, cache.FindOptions{}) {
			tagSets = append(tagSets, doc.Strings("tags"))
		}
	}

	entries := tagfilter.Compute(tagSets)
	out := make([]TagFilterView, 0, len(entries))
	for _, e := range entries {
		out = append(out, TagFilterView{
			Tag:      e.Tag,
			Label:    tagfilter.Label(e),
			Count:    e.Count,
			Selected: s.ui.TagFilter.Equals(c, e.Value()),
		})
	}
	return out
}

// DisplayName is the signed-in user's short name, "" when anonymous.
func (s *Session) DisplayName() string {
	if s.user == nil {
		return ""
	}
	return domain.EmailLocalPart(s.user.Email)
}

// clock renders a millisecond timestamp as H:mm.
func (s *Session) clock(ms int64) string {
	t := time.UnixMilli(ms).In(s.location)
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}
