package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

func (s *Server) registerCommentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listRoomComments",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms/{id}/comments",
		Summary:     "List room comments",
		Description: "Returns a page of the room's comments, newest first, optionally narrowed to one tag",
		Tags:        []string{"Comments"},
	}, s.handleListComments)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createComment",
		Method:        http.MethodPost,
		Path:          "/api/v1/rooms/{id}/comments",
		Summary:       "Create comment",
		Description:   "Adds a comment to the room. HTML in the text is converted to Markdown.",
		Tags:          []string{"Comments"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRoomTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms/{id}/tags",
		Summary:     "Room tag filter",
		Description: "Returns the tag filter entries for the room: all comments first, then each tag in lexicographic order",
		Tags:        []string{"Comments"},
	}, s.handleListRoomTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getComment",
		Method:      http.MethodGet,
		Path:        "/api/v1/comments/{id}",
		Summary:     "Get comment",
		Description: "Returns a comment by ID",
		Tags:        []string{"Comments"},
	}, s.handleGetComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateComment",
		Method:      http.MethodPatch,
		Path:        "/api/v1/comments/{id}",
		Summary:     "Update comment",
		Description: "Replaces the comment text",
		Tags:        []string{"Comments"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateComment)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteComment",
		Method:        http.MethodDelete,
		Path:          "/api/v1/comments/{id}",
		Summary:       "Delete comment",
		Description:   "Deletes a comment",
		Tags:          []string{"Comments"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteComment)

	huma.Register(s.api, huma.Operation{
		OperationID: "addCommentTag",
		Method:      http.MethodPost,
		Path:        "/api/v1/comments/{id}/tags",
		Summary:     "Add tag",
		Description: "Adds a tag to the comment. Adding a tag it already has changes nothing.",
		Tags:        []string{"Comments"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAddCommentTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeCommentTag",
		Method:      http.MethodDelete,
		Path:        "/api/v1/comments/{id}/tags/{tag}",
		Summary:     "Remove tag",
		Description: "Removes a tag from the comment. Removing an absent tag changes nothing.",
		Tags:        []string{"Comments"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemoveCommentTag)
}

// === DTOs ===

// CommentResponse contains comment data in API responses.
type CommentResponse struct {
	ID        string    `json:"id" doc:"Comment ID"`
	RoomID    string    `json:"room_id" doc:"Room the comment belongs to"`
	Text      string    `json:"text" doc:"Comment text (Markdown)"`
	Done      bool      `json:"done" doc:"Done flag"`
	Timestamp int64     `json:"timestamp" doc:"Creation time in Unix milliseconds"`
	Tags      []string  `json:"tags" doc:"Tags, in the order they were added"`
	Owner     string    `json:"owner,omitempty" doc:"Owner user ID"`
	OwnerName string    `json:"owner_name,omitempty" doc:"Owner display name"`
	UpdatedAt time.Time `json:"updated_at" doc:"Last update time"`
}

// ListCommentsInput contains parameters for listing a room's comments.
type ListCommentsInput struct {
	ID     string `path:"id" doc:"Room ID"`
	Tag    string `query:"tag" doc:"Only comments carrying this tag"`
	Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Page size"`
	Cursor string `query:"cursor" doc:"Cursor from the previous page"`
}

// ListCommentsResponse is one page of comments.
type ListCommentsResponse struct {
	Comments   []CommentResponse `json:"comments" doc:"Comments, newest first"`
	NextCursor string            `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool              `json:"has_more" doc:"Whether more pages exist"`
	Total      int               `json:"total" doc:"Total matching comments"`
}

// ListCommentsOutput wraps the list comments response for Huma.
type ListCommentsOutput struct {
	Body ListCommentsResponse
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	ID   string   `json:"id,omitempty" doc:"Client-chosen comment ID"`
	Text string   `json:"text" doc:"Comment text; HTML is converted to Markdown"`
	Tags []string `json:"tags,omitempty" doc:"Initial tags"`
}

// CreateCommentInput wraps the create comment request for Huma.
type CreateCommentInput struct {
	ID   string `path:"id" doc:"Room ID"`
	Body CreateCommentRequest
}

// CommentIDInput identifies a comment.
type CommentIDInput struct {
	ID string `path:"id" doc:"Comment ID"`
}

// UpdateCommentRequest is the request body for updating a comment.
type UpdateCommentRequest struct {
	Text string `json:"text" doc:"New text"`
}

// UpdateCommentInput wraps the update comment request for Huma.
type UpdateCommentInput struct {
	ID   string `path:"id" doc:"Comment ID"`
	Body UpdateCommentRequest
}

// AddTagRequest is the request body for adding a tag.
type AddTagRequest struct {
	Tag string `json:"tag" doc:"Tag to add"`
}

// AddTagInput wraps the add tag request for Huma.
type AddTagInput struct {
	ID   string `path:"id" doc:"Comment ID"`
	Body AddTagRequest
}

// RemoveTagInput identifies a tag on a comment.
type RemoveTagInput struct {
	ID  string `path:"id" doc:"Comment ID"`
	Tag string `path:"tag" doc:"Tag to remove"`
}

// CommentOutput wraps the comment response for Huma.
type CommentOutput struct {
	Body CommentResponse
}

// TagFilterEntry is one row of a room's tag filter. Tag is null for the
// entry that selects every comment.
type TagFilterEntry struct {
	Tag   *string `json:"tag" doc:"Tag, null for all comments"`
	Count int     `json:"count" doc:"Number of comments"`
}

// TagFilterResponse lists a room's tag filter entries.
type TagFilterResponse struct {
	Entries []TagFilterEntry `json:"entries" doc:"All comments first, then tags in lexicographic order"`
}

// TagFilterOutput wraps the tag filter response for Huma.
type TagFilterOutput struct {
	Body TagFilterResponse
}

// === Handlers ===

func (s *Server) handleListComments(ctx context.Context, input *ListCommentsInput) (*ListCommentsOutput, error) {
	if _, err := s.services.Rooms.Get(ctx, input.ID); err != nil {
		return nil, err
	}

	comments, err := s.services.Comments.ListByRoom(ctx, input.ID, service.NormalizeTag(input.Tag))
	if err != nil {
		return nil, err
	}

	page, err := store.Paginate(comments, store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor},
		func(c *domain.Comment) string { return c.ID })
	if err != nil {
		return nil, err
	}

	resp := ListCommentsResponse{
		Comments:   make([]CommentResponse, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
		Total:      page.Total,
	}
	for i, c := range page.Items {
		resp.Comments[i] = toCommentResponse(c)
	}
	return &ListCommentsOutput{Body: resp}, nil
}

func (s *Server) handleCreateComment(ctx context.Context, input *CreateCommentInput) (*CommentOutput, error) {
	caller, err := s.RequireWriter(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.services.Comments.Create(ctx, caller, service.CreateCommentRequest{
		ID:     input.Body.ID,
		RoomID: input.ID,
		Text:   input.Body.Text,
		Tags:   input.Body.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: toCommentResponse(c)}, nil
}

func (s *Server) handleListRoomTags(ctx context.Context, input *RoomIDInput) (*TagFilterOutput, error) {
	if _, err := s.services.Rooms.Get(ctx, input.ID); err != nil {
		return nil, err
	}

	entries, err := s.services.Comments.TagFilter(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := make([]TagFilterEntry, len(entries))
	for i, e := range entries {
		resp[i] = TagFilterEntry{Tag: e.Tag, Count: e.Count}
	}
	return &TagFilterOutput{Body: TagFilterResponse{Entries: resp}}, nil
}

func (s *Server) handleGetComment(ctx context.Context, input *CommentIDInput) (*CommentOutput, error) {
	c, err := s.services.Comments.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: toCommentResponse(c)}, nil
}

func (s *Server) handleUpdateComment(ctx context.Context, input *UpdateCommentInput) (*CommentOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	c, err := s.services.Comments.UpdateText(ctx, input.ID, service.UpdateCommentRequest{Text: input.Body.Text})
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: toCommentResponse(c)}, nil
}

func (s *Server) handleDeleteComment(ctx context.Context, input *CommentIDInput) (*struct{}, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	if err := s.services.Comments.Remove(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleAddCommentTag(ctx context.Context, input *AddTagInput) (*CommentOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	c, err := s.services.Comments.AddTag(ctx, input.ID, service.TagRequest{Tag: input.Body.Tag})
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: toCommentResponse(c)}, nil
}

func (s *Server) handleRemoveCommentTag(ctx context.Context, input *RemoveTagInput) (*CommentOutput, error) {
	if _, err := s.RequireWriter(ctx); err != nil {
		return nil, err
	}

	c, err := s.services.Comments.RemoveTag(ctx, input.ID, input.Tag)
	if err != nil {
		return nil, err
	}
	return &CommentOutput{Body: toCommentResponse(c)}, nil
}

func toCommentResponse(c *domain.Comment) CommentResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return CommentResponse{
		ID:        c.ID,
		RoomID:    c.RoomID,
		Text:      c.Text,
		Done:      c.Done,
		Timestamp: c.Timestamp,
		Tags:      tags,
		Owner:     c.Owner,
		OwnerName: c.OwnerName,
		UpdatedAt: c.UpdatedAt,
	}
}
