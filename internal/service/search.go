package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roomnotes/roomnotes-server/internal/search"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// SearchService runs comment searches and keeps the index filled.
type SearchService struct {
	index  *search.Index
	store  store.Store
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.Index, s store.Store, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SearchService{index: index, store: s, logger: logger}
}

// Search finds comments in a room.
func (s *SearchService) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	params.Query = strings.TrimSpace(params.Query)
	params.Tag = NormalizeTag(params.Tag)
	if params.Limit > 100 {
		params.Limit = 100
	}
	return s.index.Search(ctx, params)
}

// ReindexIfFresh fills a newly created index from the store.
func (s *SearchService) ReindexIfFresh(ctx context.Context) error {
	if !s.index.Fresh() {
		return nil
	}
	return s.Reindex(ctx)
}

// Reindex indexes every comment in the store.
func (s *SearchService) Reindex(ctx context.Context) error {
	comments, err := s.store.ListComments(ctx)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	if err := s.index.IndexComments(comments); err != nil {
		return fmt.Errorf("index comments: %w", err)
	}
	s.logger.Info("search index filled", "comments", len(comments))
	return nil
}

// Rebuild drops the index and reindexes from the store.
func (s *SearchService) Rebuild(ctx context.Context) error {
	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	return s.Reindex(ctx)
}

// DocumentCount returns the number of indexed comments.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}
