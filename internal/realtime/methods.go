package realtime

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/wire"
)

// MethodFunc runs one named method with positional params.
type MethodFunc func(ctx context.Context, caller *domain.User, params []json.RawMessage) (any, error)

// Methods dispatches method calls by name.
type Methods struct {
	funcs map[string]MethodFunc
}

// NewMethods registers the room and comment mutations.
func NewMethods(rooms *service.RoomService, comments *service.CommentService) *Methods {
	m := &Methods{funcs: make(map[string]MethodFunc)}

	m.Register(wire.MethodRoomsInsert, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var req service.CreateRoomRequest
		if err := param(params, 0, "room", &req); err != nil {
			return nil, err
		}
		return rooms.Create(ctx, req)
	})
	m.Register(wire.MethodRoomsUpdate, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var roomID string
		var req service.RenameRoomRequest
		if err := param(params, 0, "id", &roomID); err != nil {
			return nil, err
		}
		if err := param(params, 1, "room", &req); err != nil {
			return nil, err
		}
		return rooms.Rename(ctx, roomID, req)
	})
	m.Register(wire.MethodRoomsRemove, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var roomID string
		if err := param(params, 0, "id", &roomID); err != nil {
			return nil, err
		}
		return nil, rooms.Remove(ctx, roomID)
	})
	m.Register(wire.MethodRoomsRemoveCascade, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var roomID string
		if err := param(params, 0, "id", &roomID); err != nil {
			return nil, err
		}
		return rooms.RemoveCascade(ctx, roomID)
	})

	m.Register(wire.MethodCommentsInsert, func(ctx context.Context, caller *domain.User, params []json.RawMessage) (any, error) {
		var req service.CreateCommentRequest
		if err := param(params, 0, "comment", &req); err != nil {
			return nil, err
		}
		return comments.Create(ctx, caller, req)
	})
	m.Register(wire.MethodCommentsUpdate, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var commentID string
		var req service.UpdateCommentRequest
		if err := param(params, 0, "id", &commentID); err != nil {
			return nil, err
		}
		if err := param(params, 1, "comment", &req); err != nil {
			return nil, err
		}
		return comments.UpdateText(ctx, commentID, req)
	})
	m.Register(wire.MethodCommentsRemove, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var commentID string
		if err := param(params, 0, "id", &commentID); err != nil {
			return nil, err
		}
		return nil, comments.Remove(ctx, commentID)
	})
	m.Register(wire.MethodCommentsAddTag, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var commentID, tag string
		if err := param(params, 0, "id", &commentID); err != nil {
			return nil, err
		}
		if err := param(params, 1, "tag", &tag); err != nil {
			return nil, err
		}
		return comments.AddTag(ctx, commentID, service.TagRequest{Tag: tag})
	})
	m.Register(wire.MethodCommentsRemoveTag, func(ctx context.Context, _ *domain.User, params []json.RawMessage) (any, error) {
		var commentID, tag string
		if err := param(params, 0, "id", &commentID); err != nil {
			return nil, err
		}
		if err := param(params, 1, "tag", &tag); err != nil {
			return nil, err
		}
		return comments.RemoveTag(ctx, commentID, tag)
	})

	return m
}

// Register adds or replaces a method.
func (m *Methods) Register(name string, fn MethodFunc) {
	m.funcs[name] = fn
}

// Names returns the registered method names, sorted.
func (m *Methods) Names() []string {
	names := make([]string, 0, len(m.funcs))
	for name := range m.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call runs the named method.
func (m *Methods) Call(ctx context.Context, caller *domain.User, name string, params []json.RawMessage) (any, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, domainerrors.NotFoundf("method %q not found", name)
	}
	return fn(ctx, caller, params)
}

// param decodes the positional param at index into dst.
func param(params []json.RawMessage, index int, name string, dst any) error {
	if index >= len(params) {
		return domainerrors.Validationf("missing param %d (%s)", index, name)
	}
	if err := json.Unmarshal(params[index], dst); err != nil {
		return domainerrors.Validationf("invalid param %d (%s): %v", index, name, err)
	}
	return nil
}
