package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// CreateComment stores a new comment and emits an added event.
func (s *Badger) CreateComment(ctx context.Context, comment *domain.Comment) error {
	if comment.ID == "" || comment.RoomID == "" {
		return ErrInvalidInput.WithMessage("comment id and room id are required")
	}
	if comment.Tags == nil {
		comment.Tags = []string{}
	}
	if err := s.Comments.Create(ctx, comment.ID, comment); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadyExists.WithMessage("comment already exists")
		}
		return err
	}
	s.emit(CommentAdded(comment))
	s.indexComment(comment)
	return nil
}

// GetComment retrieves a comment by ID.
func (s *Badger) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	c, err := s.Comments.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCommentNotFound
	}
	return c, err
}

// ListComments returns every comment, newest first.
func (s *Badger) ListComments(ctx context.Context) ([]*domain.Comment, error) {
	comments, err := s.Comments.Collect(ctx)
	if err != nil {
		return nil, err
	}
	SortComments(comments)
	return comments, nil
}

// ListCommentsByRoom returns the room's comments, newest first.
func (s *Badger) ListCommentsByRoom(ctx context.Context, roomID string) ([]*domain.Comment, error) {
	comments, err := s.Comments.ListByIndex(ctx, "room", roomID)
	if err != nil {
		return nil, err
	}
	SortComments(comments)
	return comments, nil
}

// UpdateComment replaces an existing comment and emits a changed event.
func (s *Badger) UpdateComment(ctx context.Context, comment *domain.Comment) error {
	if comment.Tags == nil {
		comment.Tags = []string{}
	}
	prev, err := s.Comments.Update(ctx, comment.ID, comment)
	if errors.Is(err, ErrNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return err
	}
	s.emit(CommentChanged(prev, comment))
	s.indexComment(comment)
	return nil
}

// DeleteComment deletes a comment. Deleting a missing comment is not an error.
func (s *Badger) DeleteComment(ctx context.Context, id string) error {
	deleted, err := s.Comments.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted != nil {
		s.emit(CommentRemoved(deleted))
		s.unindexComment(id)
	}
	return nil
}

// AddCommentTag adds tag to the comment's tag set. Adding a present tag changes nothing.
func (s *Badger) AddCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error) {
	return s.mutateComment(ctx, id, func(c *domain.Comment) bool {
		return c.AddTag(tag)
	})
}

// RemoveCommentTag removes tag from the comment. Removing an absent tag changes nothing.
func (s *Badger) RemoveCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error) {
	return s.mutateComment(ctx, id, func(c *domain.Comment) bool {
		return c.RemoveTag(tag)
	})
}

func (s *Badger) mutateComment(ctx context.Context, id string, fn func(*domain.Comment) bool) (*domain.Comment, error) {
	prev, next, changed, err := s.Comments.Mutate(ctx, id, func(c *domain.Comment) bool {
		if !fn(c) {
			return false
		}
		c.Touch()
		return true
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(CommentChanged(prev, next))
		s.indexComment(next)
	}
	return next, nil
}

// SortComments orders comments newest first, then by ID.
func SortComments(comments []*domain.Comment) {
	slices.SortFunc(comments, func(a, b *domain.Comment) int {
		return cmp.Or(cmp.Compare(b.Timestamp, a.Timestamp), strings.Compare(a.ID, b.ID))
	})
}
