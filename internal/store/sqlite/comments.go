package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

const commentColumns = `c.id, c.room_id, c.text, c.done, c.timestamp, c.owner, c.owner_name, c.created_at, c.updated_at`

func scanComment(scanner interface{ Scan(dest ...any) error }) (*domain.Comment, error) {
	var (
		c         domain.Comment
		done      int
		createdAt string
		updatedAt string
	)
	err := scanner.Scan(&c.ID, &c.RoomID, &c.Text, &done, &c.Timestamp, &c.Owner, &c.OwnerName, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Done = done != 0
	c.Tags = []string{}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// listComments loads comments matching where (aliased as c) with their tags, newest first.
func listComments(ctx context.Context, q querier, where string, args ...any) ([]*domain.Comment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments c `+where+` ORDER BY c.timestamp DESC, c.id`, args...)
	if err != nil {
		return nil, err
	}

	var comments []*domain.Comment
	byID := make(map[string]*domain.Comment)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		comments = append(comments, c)
		byID[c.ID] = c
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return comments, nil
	}

	tagRows, err := q.QueryContext(ctx, `
		SELECT t.comment_id, t.tag FROM comment_tags t
		JOIN comments c ON c.id = t.comment_id `+where+`
		ORDER BY t.comment_id, t.position`, args...)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var commentID, tag string
		if err := tagRows.Scan(&commentID, &tag); err != nil {
			return nil, err
		}
		if c, ok := byID[commentID]; ok {
			c.Tags = append(c.Tags, tag)
		}
	}
	return comments, tagRows.Err()
}

func getComment(ctx context.Context, q querier, id string) (*domain.Comment, error) {
	comments, err := listComments(ctx, q, `WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, store.ErrCommentNotFound
	}
	return comments[0], nil
}

func insertTags(ctx context.Context, tx *sql.Tx, commentID string, tags []string) error {
	for i, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO comment_tags (comment_id, tag, position) VALUES (?, ?, ?)`,
			commentID, tag, i); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

// CreateComment inserts a new comment with its tags and emits an added event.
func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) error {
	if c.ID == "" || c.RoomID == "" {
		return store.ErrInvalidInput.WithMessage("comment id and room id are required")
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, room_id, text, done, timestamp, owner, owner_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.RoomID, c.Text, boolToInt(c.Done), c.Timestamp, c.Owner, c.OwnerName,
			formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists.WithMessage("comment already exists")
		}
		if err != nil {
			return err
		}
		return insertTags(ctx, tx, c.ID, c.Tags)
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(store.CommentAdded(c))
	s.indexComment(c.ID, func() error { return s.searchIndexer.IndexComment(c) })
	return nil
}

// GetComment retrieves a comment by ID.
func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	return getComment(ctx, s.db, id)
}

// ListComments returns every comment, newest first.
func (s *Store) ListComments(ctx context.Context) ([]*domain.Comment, error) {
	return listComments(ctx, s.db, "")
}

// ListCommentsByRoom returns the room's comments, newest first.
func (s *Store) ListCommentsByRoom(ctx context.Context, roomID string) ([]*domain.Comment, error) {
	return listComments(ctx, s.db, `WHERE c.room_id = ?`, roomID)
}

// UpdateComment replaces an existing comment, including its tags, and emits a changed event.
func (s *Store) UpdateComment(ctx context.Context, c *domain.Comment) error {
	if c.Tags == nil {
		c.Tags = []string{}
	}

	var prev *domain.Comment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = getComment(ctx, tx, c.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE comments SET room_id = ?, text = ?, done = ?, timestamp = ?, owner = ?, owner_name = ?, updated_at = ?
			WHERE id = ?`,
			c.RoomID, c.Text, boolToInt(c.Done), c.Timestamp, c.Owner, c.OwnerName, formatTime(c.UpdatedAt), c.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_tags WHERE comment_id = ?`, c.ID); err != nil {
			return err
		}
		return insertTags(ctx, tx, c.ID, c.Tags)
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(store.CommentChanged(prev, c))
	s.indexComment(c.ID, func() error { return s.searchIndexer.IndexComment(c) })
	return nil
}

// DeleteComment deletes a comment. Deleting a missing comment is not an error.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	var deleted *domain.Comment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		c, err := getComment(ctx, tx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
			return err
		}
		deleted = c
		return nil
	})
	if err != nil {
		return err
	}

	if deleted != nil {
		s.emitter.Emit(store.CommentRemoved(deleted))
		s.indexComment(id, func() error { return s.searchIndexer.DeleteComment(id) })
	}
	return nil
}

// AddCommentTag adds tag to the comment's tag set. Adding a present tag changes nothing.
func (s *Store) AddCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error) {
	return s.mutateTags(ctx, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO comment_tags (comment_id, tag, position)
			SELECT ?, ?, COALESCE(MAX(position), -1) + 1 FROM comment_tags WHERE comment_id = ?`,
			id, tag, id)
	})
}

// RemoveCommentTag removes tag from the comment. Removing an absent tag changes nothing.
func (s *Store) RemoveCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error) {
	return s.mutateTags(ctx, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, `DELETE FROM comment_tags WHERE comment_id = ? AND tag = ?`, id, tag)
	})
}

func (s *Store) mutateTags(ctx context.Context, id string, exec func(tx *sql.Tx) (sql.Result, error)) (*domain.Comment, error) {
	var prev, next *domain.Comment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if prev, err = getComment(ctx, tx, id); err != nil {
			return err
		}

		res, err := exec(tx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			next = prev
			return nil
		}

		next = &domain.Comment{}
		*next = *prev
		next.Touch()
		if _, err := tx.ExecContext(ctx, `UPDATE comments SET updated_at = ? WHERE id = ?`,
			formatTime(next.UpdatedAt), id); err != nil {
			return err
		}
		tags, err := getComment(ctx, tx, id)
		if err != nil {
			return err
		}
		next.Tags = tags.Tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next != prev {
		s.emitter.Emit(store.CommentChanged(prev, next))
		s.indexComment(id, func() error { return s.searchIndexer.IndexComment(next) })
	}
	return next, nil
}
