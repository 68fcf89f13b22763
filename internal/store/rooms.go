package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// CreateRoom stores a new room and emits an added event.
func (s *Badger) CreateRoom(ctx context.Context, room *domain.Room) error {
	if room.ID == "" {
		return ErrInvalidInput.WithMessage("room id is required")
	}
	if err := s.Rooms.Create(ctx, room.ID, room); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadyExists.WithMessage("room already exists")
		}
		return err
	}
	s.emit(RoomAdded(room))
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Badger) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.Rooms.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// ListRooms returns every room ordered by name.
func (s *Badger) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	rooms, err := s.Rooms.Collect(ctx)
	if err != nil {
		return nil, err
	}
	SortRooms(rooms)
	return rooms, nil
}

// UpdateRoom replaces an existing room and emits a changed event.
func (s *Badger) UpdateRoom(ctx context.Context, room *domain.Room) error {
	prev, err := s.Rooms.Update(ctx, room.ID, room)
	if errors.Is(err, ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	s.emit(RoomChanged(prev, room))
	return nil
}

// DeleteRoom deletes only the room. Its comments are left in place.
func (s *Badger) DeleteRoom(ctx context.Context, id string) error {
	deleted, err := s.Rooms.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted != nil {
		s.emit(RoomRemoved(deleted))
	}
	return nil
}

// DeleteRoomCascade deletes the room and all of its comments in one transaction.
// Comments left behind by an earlier non-atomic delete are removed too.
func (s *Badger) DeleteRoomCascade(ctx context.Context, roomID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		room     *domain.Room
		comments []*domain.Comment
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if room, err = s.Rooms.deleteTxn(txn, roomID); err != nil {
			return err
		}
		for _, id := range s.Comments.idsByIndexTxn(txn, "room", roomID) {
			c, err := s.Comments.deleteTxn(txn, id)
			if err != nil {
				return err
			}
			if c != nil {
				comments = append(comments, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if room != nil {
		s.emit(RoomRemoved(room))
	}
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		s.emit(CommentRemoved(c))
		s.unindexComment(c.ID)
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// SortRooms orders rooms by name, then ID for equal names.
func SortRooms(rooms []*domain.Room) {
	slices.SortFunc(rooms, func(a, b *domain.Room) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
}
