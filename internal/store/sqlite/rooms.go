package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

const roomColumns = `id, name, created_at, updated_at`

func scanRoom(scanner interface{ Scan(dest ...any) error }) (*domain.Room, error) {
	var (
		r         domain.Room
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&r.ID, &r.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func getRoom(ctx context.Context, q querier, id string) (*domain.Room, error) {
	r, err := scanRoom(q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRoomNotFound
	}
	return r, err
}

// CreateRoom inserts a new room and emits an added event.
func (s *Store) CreateRoom(ctx context.Context, r *domain.Room) error {
	if r.ID == "" {
		return store.ErrInvalidInput.WithMessage("room id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage("room already exists")
	}
	if err != nil {
		return err
	}
	s.emitter.Emit(store.RoomAdded(r))
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	return getRoom(ctx, s.db, id)
}

// ListRooms returns every room ordered by name.
func (s *Store) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// UpdateRoom replaces an existing room and emits a changed event.
func (s *Store) UpdateRoom(ctx context.Context, r *domain.Room) error {
	var prev *domain.Room
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = getRoom(ctx, tx, r.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE rooms SET name = ?, updated_at = ? WHERE id = ?`,
			r.Name, formatTime(r.UpdatedAt), r.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.emitter.Emit(store.RoomChanged(prev, r))
	return nil
}

// DeleteRoom deletes only the room. Its comments are left in place.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	var deleted *domain.Room
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = deleteRoomTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}
	if deleted != nil {
		s.emitter.Emit(store.RoomRemoved(deleted))
	}
	return nil
}

// deleteRoomTx returns (nil, nil) when the room does not exist.
func deleteRoomTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Room, error) {
	r, err := getRoom(ctx, tx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRoomCascade deletes the room and all of its comments in one transaction.
func (s *Store) DeleteRoomCascade(ctx context.Context, roomID string) ([]string, error) {
	var (
		room     *domain.Room
		comments []*domain.Comment
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if room, err = deleteRoomTx(ctx, tx, roomID); err != nil {
			return err
		}
		if comments, err = listComments(ctx, tx, `WHERE c.room_id = ?`, roomID); err != nil {
			return err
		}
		// comment_tags rows go with ON DELETE CASCADE.
		_, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE room_id = ?`, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if room != nil {
		s.emitter.Emit(store.RoomRemoved(room))
	}
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		s.emitter.Emit(store.CommentRemoved(c))
		s.indexComment(c.ID, func() error { return s.searchIndexer.DeleteComment(c.ID) })
		ids = append(ids, c.ID)
	}
	return ids, nil
}
