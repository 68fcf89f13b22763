package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchRoomComments",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms/{id}/search",
		Summary:     "Search comments",
		Description: "Full-text search over a room's comments with tag facets",
		Tags:        []string{"Search"},
	}, s.handleSearchComments)
}

// SearchCommentsInput contains search parameters.
type SearchCommentsInput struct {
	ID     string `path:"id" doc:"Room ID"`
	Query  string `query:"q" doc:"Search text"`
	Tag    string `query:"tag" doc:"Only comments carrying this tag"`
	Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum hits"`
	Offset int    `query:"offset" minimum:"0" doc:"Hits to skip"`
}

// SearchCommentsOutput wraps the search result for Huma.
type SearchCommentsOutput struct {
	Body *search.Result
}

func (s *Server) handleSearchComments(ctx context.Context, input *SearchCommentsInput) (*SearchCommentsOutput, error) {
	if s.services.Search == nil {
		return nil, domainerrors.Unsupported("search is disabled on this server")
	}
	if _, err := s.services.Rooms.Get(ctx, input.ID); err != nil {
		return nil, err
	}

	result, err := s.services.Search.Search(ctx, search.Params{
		RoomID: input.ID,
		Query:  input.Query,
		Tag:    input.Tag,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &SearchCommentsOutput{Body: result}, nil
}
