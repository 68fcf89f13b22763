package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/id"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// CreateRoomRequest creates a room. ID may be chosen by the client so an
// optimistic local record keeps its identity.
type CreateRoomRequest struct {
	ID   string `json:"id,omitempty" validate:"omitempty,entityid=room"`
	Name string `json:"name" validate:"notblank,max=200"`
}

// RenameRoomRequest renames a room.
type RenameRoomRequest struct {
	Name string `json:"name" validate:"notblank,max=200"`
}

// DeleteRoomResult reports what a room delete removed.
type DeleteRoomResult struct {
	RoomID     string   `json:"room_id"`
	CommentIDs []string `json:"comment_ids"`
	Mode       string   `json:"mode"`
}

// RoomService manages rooms.
type RoomService struct {
	store       store.Store
	cascadeMode string
	logger      *slog.Logger
}

// NewRoomService creates a room service. cascadeMode is config.CascadeClient or
// config.CascadeTransactional.
func NewRoomService(s store.Store, cascadeMode string, logger *slog.Logger) *RoomService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cascadeMode == "" {
		cascadeMode = config.CascadeClient
	}
	return &RoomService{store: s, cascadeMode: cascadeMode, logger: logger}
}

// CascadeMode returns the configured delete semantics.
func (s *RoomService) CascadeMode() string {
	return s.cascadeMode
}

// List returns all rooms ordered by name.
func (s *RoomService) List(ctx context.Context) ([]*domain.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if rooms == nil {
		rooms = []*domain.Room{}
	}
	return rooms, nil
}

// Get returns one room.
func (s *RoomService) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	return room, mapStoreError(err)
}

// Create stores a new room.
func (s *RoomService) Create(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	roomID, err := resolveID(id.PrefixRoom, req.ID)
	if err != nil {
		return nil, err
	}

	room := &domain.Room{Record: domain.Record{ID: roomID}, Name: strings.TrimSpace(req.Name)}
	room.InitTimestamps()

	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("room created", "room_id", room.ID)
	return room, nil
}

// Rename changes a room's name.
func (s *RoomService) Rename(ctx context.Context, roomID string, req RenameRoomRequest) (*domain.Room, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	name := strings.TrimSpace(req.Name)
	if room.Name == name {
		return room, nil
	}
	room.Name = name
	room.Touch()

	if err := s.store.UpdateRoom(ctx, room); err != nil {
		return nil, mapStoreError(err)
	}
	return room, nil
}

// Delete removes an existing room and its comments following the configured cascade mode.
func (s *RoomService) Delete(ctx context.Context, roomID string) (*DeleteRoomResult, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, mapStoreError(err)
	}

	if s.cascadeMode == config.CascadeTransactional {
		removed, err := s.RemoveCascade(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return &DeleteRoomResult{RoomID: roomID, CommentIDs: removed, Mode: s.cascadeMode}, nil
	}

	// The room goes first, then each comment in its own write. A failure part
	// way leaves orphaned comments behind.
	if err := s.Remove(ctx, roomID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListCommentsByRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	removed := make([]string, 0, len(comments))
	for _, c := range comments {
		if err := s.store.DeleteComment(ctx, c.ID); err != nil {
			s.logger.Warn("room deleted with comments left behind",
				"room_id", roomID,
				"removed", len(removed),
				"remaining", len(comments)-len(removed),
				"error", err)
			return nil, mapStoreError(err)
		}
		removed = append(removed, c.ID)
	}
	return &DeleteRoomResult{RoomID: roomID, CommentIDs: removed, Mode: s.cascadeMode}, nil
}

// Remove deletes only the room. Deleting a missing room is not an error.
func (s *RoomService) Remove(ctx context.Context, roomID string) error {
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return mapStoreError(err)
	}
	s.logger.Info("room deleted", "room_id", roomID)
	return nil
}

// RemoveCascade deletes the room and all of its comments in one transaction.
func (s *RoomService) RemoveCascade(ctx context.Context, roomID string) ([]string, error) {
	cascader, ok := s.store.(store.Cascader)
	if !ok {
		return nil, domainerrors.Unsupported("store backend does not support transactional cascade")
	}

	removed, err := cascader.DeleteRoomCascade(ctx, roomID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.logger.Info("room deleted with cascade", "room_id", roomID, "comments", len(removed))
	return removed, nil
}

// resolveID validates a client-chosen id or generates a new one.
func resolveID(prefix, clientID string) (string, error) {
	if clientID == "" {
		newID, err := id.Generate(prefix)
		if err != nil {
			return "", fmt.Errorf("generate %s ID: %w", prefix, err)
		}
		return newID, nil
	}
	if !id.Valid(prefix, clientID) {
		return "", domainerrors.ValidationWithDetails("validation failed", map[string]string{"id": "is invalid"})
	}
	return clientID, nil
}
