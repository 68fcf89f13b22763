package store

import (
	"encoding/base64"
	"fmt"
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // Items per page, defaults to 100 with a maximum of 1000
	Cursor string // Opaque cursor for the next page, empty for the first page
}

// PaginatedResult contains one page of items.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // Empty if no more pages
	HasMore    bool   `json:"has_more"`
	Total      int    `json:"total"`
}

// DefaultPaginationParams returns the defaults.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{Limit: 100}
}

// Validate clamps the limit into range.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
}

// EncodeCursor creates an opaque cursor from the ID of the last item on a page.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to an ID.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	return string(decoded), nil
}

// Paginate pages through an already ordered slice. keyOf returns the ID
// encoded into cursors. A cursor whose item has since been deleted is an error.
func Paginate[T any](items []T, params PaginationParams, keyOf func(T) string) (*PaginatedResult[T], error) {
	params.Validate()

	after, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, ErrInvalidInput.WithCause(err)
	}

	start := 0
	if after != "" {
		start = -1
		for i, item := range items {
			if keyOf(item) == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, ErrInvalidInput.WithMessage("cursor does not match any item")
		}
	}

	end := min(start+params.Limit, len(items))
	page := &PaginatedResult[T]{
		Items: make([]T, 0, end-start),
		Total: len(items),
	}
	page.Items = append(page.Items, items[start:end]...)
	if end < len(items) {
		page.HasMore = true
		page.NextCursor = EncodeCursor(keyOf(items[end-1]))
	}
	return page, nil
}
