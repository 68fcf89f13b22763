package service

import (
	"context"
	"log/slog"

	"github.com/roomnotes/roomnotes-server/internal/client/tagfilter"
	"github.com/roomnotes/roomnotes-server/internal/domain"
	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/id"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// CreateCommentRequest creates a comment. ID may be chosen by the client.
type CreateCommentRequest struct {
	ID     string   `json:"id,omitempty" validate:"omitempty,entityid=cmt"`
	RoomID string   `json:"room_id" validate:"required"`
	Text   string   `json:"text" validate:"notblank,max=10000"`
	Tags   []string `json:"tags,omitempty" validate:"max=50,dive,max=100"`
}

// UpdateCommentRequest replaces a comment's text.
type UpdateCommentRequest struct {
	Text string `json:"text" validate:"notblank,max=10000"`
}

// TagRequest names one tag.
type TagRequest struct {
	Tag string `json:"tag" validate:"notblank,max=100"`
}

// CommentService manages comments and their tags.
type CommentService struct {
	store  store.Store
	logger *slog.Logger
}

// NewCommentService creates a comment service.
func NewCommentService(s store.Store, logger *slog.Logger) *CommentService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommentService{store: s, logger: logger}
}

// ListByRoom returns a room's comments newest first, narrowed to tag when set.
func (s *CommentService) ListByRoom(ctx context.Context, roomID, tag string) ([]*domain.Comment, error) {
	comments, err := s.store.ListCommentsByRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	out := make([]*domain.Comment, 0, len(comments))
	for _, c := range comments {
		if tag == "" || c.HasTag(tag) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Get returns one comment.
func (s *CommentService) Get(ctx context.Context, commentID string) (*domain.Comment, error) {
	c, err := s.store.GetComment(ctx, commentID)
	return c, mapStoreError(err)
}

// Create stores a new comment owned by caller. caller may be nil for anonymous
// sessions, leaving owner empty. The comment starts not done, stamped now.
func (s *CommentService) Create(ctx context.Context, caller *domain.User, req CreateCommentRequest) (*domain.Comment, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	text := NormalizeText(req.Text)
	if text == "" {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"text": "must not be blank"})
	}

	if _, err := s.store.GetRoom(ctx, req.RoomID); err != nil {
		return nil, mapStoreError(err)
	}

	commentID, err := resolveID(id.PrefixComment, req.ID)
	if err != nil {
		return nil, err
	}

	c := domain.NewComment(commentID, req.RoomID, text, normalizeTags(req.Tags), caller)
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Debug("comment created", "comment_id", c.ID, "room_id", c.RoomID)
	return c, nil
}

// UpdateText replaces a comment's text. Nothing else about the comment changes.
func (s *CommentService) UpdateText(ctx context.Context, commentID string, req UpdateCommentRequest) (*domain.Comment, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	text := NormalizeText(req.Text)
	if text == "" {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"text": "must not be blank"})
	}

	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if c.Text == text {
		return c, nil
	}
	c.Text = text
	c.Touch()

	if err := s.store.UpdateComment(ctx, c); err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

// Remove deletes a comment. Deleting a missing comment is not an error.
func (s *CommentService) Remove(ctx context.Context, commentID string) error {
	return mapStoreError(s.store.DeleteComment(ctx, commentID))
}

// AddTag adds a tag. Adding a tag the comment already carries changes nothing.
func (s *CommentService) AddTag(ctx context.Context, commentID string, req TagRequest) (*domain.Comment, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	tag := NormalizeTag(req.Tag)
	if tag == "" {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"tag": "must not be blank"})
	}

	c, err := s.store.AddCommentTag(ctx, commentID, tag)
	return c, mapStoreError(err)
}

// RemoveTag removes a tag. Removing an absent tag changes nothing.
func (s *CommentService) RemoveTag(ctx context.Context, commentID, tag string) (*domain.Comment, error) {
	c, err := s.store.RemoveCommentTag(ctx, commentID, NormalizeTag(tag))
	return c, mapStoreError(err)
}

// TagFilter returns the tag filter entries of a room.
func (s *CommentService) TagFilter(ctx context.Context, roomID string) ([]tagfilter.Entry, error) {
	comments, err := s.store.ListCommentsByRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	tagSets := make([][]string, 0, len(comments))
	for _, c := range comments {
		tagSets = append(tagSets, c.Tags)
	}
	return tagfilter.Compute(tagSets), nil
}
