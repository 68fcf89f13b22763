package app

import (
	"encoding/json"
	"strings"

	"github.com/roomnotes/roomnotes-server/internal/client/cache"
	"github.com/roomnotes/roomnotes-server/internal/client/tagfilter"
	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/id"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// snapshot is a document as it was before a local write, used to undo the
// write when the server rejects it.
type snapshot struct {
	col    *cache.Collection
	id     string
	fields map[string]any
	found  bool
}

func (s *Session) snapshot(col *cache.Collection, docID string) snapshot {
	doc, ok := col.Get(nil, docID)
	return snapshot{col: col, id: docID, fields: doc.Fields, found: ok}
}

func (sn snapshot) restore() {
	if sn.found {
		sn.col.ApplyAdded(sn.id, sn.fields)
	} else {
		sn.col.Remove(sn.id)
	}
}

// call invokes a method whose local effect has already been applied. If the
// server rejects it the snapshots are restored.
func (s *Session) call(method string, params []any, undo ...snapshot) {
	s.callOrElse(method, params, nil, undo...)
}

// callOrElse is call with a hook that runs after the snapshots are restored.
func (s *Session) callOrElse(method string, params []any, rejected func(), undo ...snapshot) {
	s.conn.Call(method, params, func(_ json.RawMessage, err error) {
		if err == nil {
			return
		}
		s.logger.Warn("server rejected write", "method", method, "error", err)
		for _, sn := range undo {
			sn.restore()
		}
		if rejected != nil {
			rejected()
		}
	})
}

// SelectRoom routes to a room.
func (s *Session) SelectRoom(roomID string) {
	s.router.SetRoom(roomID)
}

// ToggleTagFilter applies a click on a filter entry; "" is the "all" entry.
func (s *Session) ToggleTagFilter(tag string) {
	s.ui.TagFilter.Set(tagfilter.Toggle(s.ui.TagFilter.Get(nil), tag))
}

// CreateRoom inserts a room locally, sends it to the server and selects it.
// If the server rejects it and it is still selected, the selection is cleared.
func (s *Session) CreateRoom(name string) (string, error) {
	if name == "" {
		return "", domainerrors.Validation("room name is required")
	}
	roomID, err := id.Generate(id.PrefixRoom)
	if err != nil {
		return "", err
	}
	if err := s.rooms.Insert(roomID, map[string]any{"name": name}); err != nil {
		return "", err
	}
	s.callOrElse(wire.MethodRoomsInsert, []any{map[string]any{"id": roomID, "name": name}},
		func() {
			if s.ui.SelectedRoom.Equals(nil, roomID) {
				s.router.SetRoom("")
			}
		},
		snapshot{col: s.rooms, id: roomID})
	s.router.SetRoom(roomID)
	return roomID, nil
}

// RenameRoom changes a room's name.
func (s *Session) RenameRoom(roomID, name string) error {
	if name == "" {
		return domainerrors.Validation("room name is required")
	}
	before := s.snapshot(s.rooms, roomID)
	if !s.rooms.Update(roomID, map[string]any{"name": name}) {
		return domainerrors.NotFoundf("room %s not found", roomID)
	}
	s.call(wire.MethodRoomsUpdate, []any{roomID, map[string]any{"name": name}}, before)
	return nil
}

func (s *Session) commitRoomName(roomID, name string) {
	if err := s.RenameRoom(roomID, name); err != nil {
		s.logger.Warn("rename room failed", "room_id", roomID, "error", err)
	}
}

// StartEditRoom opens the name editor of a room.
func (s *Session) StartEditRoom(roomID string) {
	s.RoomName.StartEdit(roomID)
}

// DeleteRoom removes the selected room and its comments, then clears the
// selection. Only the selected room can be deleted, and only once its comments
// subscription is ready, because the cascade works from the cached comments.
// In client cascade mode the room and each comment are separate server calls,
// so a failure part way leaves comments behind; in transactional mode the
// server removes everything at once.
func (s *Session) DeleteRoom(roomID string) error {
	if s.user == nil {
		return domainerrors.Unauthorized("sign in to delete rooms")
	}
	room := s.snapshot(s.rooms, roomID)
	if !room.found {
		return domainerrors.NotFoundf("room %s not found", roomID)
	}
	if !s.ui.SelectedRoom.Equals(nil, roomID) {
		return domainerrors.Forbidden("only the selected room can be deleted")
	}
	if s.commentsRoom != roomID || s.commentsHandle == nil || !s.commentsHandle.Ready(nil) {
		return domainerrors.Conflict("room comments are still loading")
	}
	comments := s.comments.Find(nil, cache.Selector{"room_id": roomID}, cache.FindOptions{})

	s.rooms.Remove(roomID)
	if s.cascadeMode == config.CascadeTransactional {
		undo := []snapshot{room}
		for _, c := range comments {
			undo = append(undo, snapshot{col: s.comments, id: c.ID, fields: c.Fields, found: true})
			s.comments.Remove(c.ID)
		}
		s.call(wire.MethodRoomsRemoveCascade, []any{roomID}, undo...)
	} else {
		s.call(wire.MethodRoomsRemove, []any{roomID}, room)
		for _, c := range comments {
			s.comments.Remove(c.ID)
			s.call(wire.MethodCommentsRemove, []any{c.ID},
				snapshot{col: s.comments, id: c.ID, fields: c.Fields, found: true})
		}
	}

	s.logger.Debug("room deleted", "room_id", roomID, "comments", len(comments), "mode", s.cascadeMode)
	s.router.SetRoom("")
	return nil
}

// CreateComment adds a comment to the selected room. The active tag filter
// seeds its tags so the new comment stays visible.
func (s *Session) CreateComment(text string) (string, error) {
	roomID := s.ui.SelectedRoom.Get(nil)
	if roomID == "" {
		return "", domainerrors.Validation("no room selected")
	}
	if text == "" {
		return "", domainerrors.Validation("comment text is required")
	}
	commentID, err := id.Generate(id.PrefixComment)
	if err != nil {
		return "", err
	}

	tags := []string{}
	if filter := s.ui.TagFilter.Get(nil); filter != "" {
		tags = append(tags, filter)
	}
	fields := map[string]any{
		"text":       text,
		"room_id":    roomID,
		"done":       false,
		"timestamp":  s.now().UnixMilli(),
		"tags":       tags,
		"owner":      "",
		"owner_name": "",
	}
	if s.user != nil {
		fields["owner"] = s.user.ID
		fields["owner_name"] = domain.EmailLocalPart(s.user.Email)
	}
	if err := s.comments.Insert(commentID, fields); err != nil {
		return "", err
	}

	s.call(wire.MethodCommentsInsert, []any{map[string]any{
		"id":      commentID,
		"room_id": roomID,
		"text":    text,
		"tags":    tags,
	}}, snapshot{col: s.comments, id: commentID})
	return commentID, nil
}

// EditComment replaces a comment's text.
func (s *Session) EditComment(commentID, text string) error {
	if text == "" {
		return domainerrors.Validation("comment text is required")
	}
	before := s.snapshot(s.comments, commentID)
	if !s.comments.Update(commentID, map[string]any{"text": text}) {
		return domainerrors.NotFoundf("comment %s not found", commentID)
	}
	s.call(wire.MethodCommentsUpdate, []any{commentID, map[string]any{"text": text}}, before)
	return nil
}

func (s *Session) commitCommentText(commentID, text string) {
	if err := s.EditComment(commentID, text); err != nil {
		s.logger.Warn("edit comment failed", "comment_id", commentID, "error", err)
	}
}

// StartEditComment opens the text editor of a comment.
func (s *Session) StartEditComment(commentID string) {
	s.CommentText.StartEdit(commentID)
}

// AddCommentTag adds tag to a comment unless it already has it.
func (s *Session) AddCommentTag(commentID, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return domainerrors.Validation("tag is required")
	}
	before := s.snapshot(s.comments, commentID)
	if !s.comments.AddToSet(commentID, "tags", tag) {
		return domainerrors.NotFoundf("comment %s not found", commentID)
	}
	s.call(wire.MethodCommentsAddTag, []any{commentID, tag}, before)
	return nil
}

func (s *Session) commitAddTag(commentID, tag string) {
	if err := s.AddCommentTag(commentID, tag); err != nil {
		s.logger.Warn("add tag failed", "comment_id", commentID, "error", err)
	}
}

// StartAddTag opens the tag input of a comment.
func (s *Session) StartAddTag(commentID string) {
	s.AddTag.StartEdit(commentID)
}

// RemoveCommentTag schedules removal of tag after TagRemovalDelay. A second
// request for the same comment and tag while one is pending is ignored; it
// reports whether a removal was scheduled.
func (s *Session) RemoveCommentTag(commentID, tag string) bool {
	key := tagKey{commentID: commentID, tag: tag}
	if _, pending := s.removals[key]; pending {
		return false
	}
	s.removals[key] = s.loop.AfterFunc(TagRemovalDelay, func() {
		delete(s.removals, key)
		s.removalsDep.Changed()

		before := s.snapshot(s.comments, commentID)
		if !s.comments.Pull(commentID, "tags", tag) {
			return
		}
		s.call(wire.MethodCommentsRemoveTag, []any{commentID, tag}, before)
	})
	s.removalsDep.Changed()
	return true
}

// CancelTagRemoval stops a pending removal. It reports whether one was
// pending.
func (s *Session) CancelTagRemoval(commentID, tag string) bool {
	key := tagKey{commentID: commentID, tag: tag}
	timer, ok := s.removals[key]
	if !ok {
		return false
	}
	delete(s.removals, key)
	s.removalsDep.Changed()
	return timer.Stop()
}

// PendingTagRemovals returns how many removals are waiting.
func (s *Session) PendingTagRemovals() int {
	return len(s.removals)
}
