// Package service holds the business rules for rooms, comments, accounts and search.
// Transports (the HTTP API and the realtime connection) call into these services;
// the services call the store.
package service

import (
	"errors"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/unicode/norm"

	domainerrors "github.com/roomnotes/roomnotes-server/internal/errors"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/validation"
)

// validate is shared by every service.
var validate = validation.New()

// htmlTagPattern detects text pasted as HTML.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote|code|pre)[\s>/]`)

// NormalizeText trims text and converts pasted HTML to Markdown.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}

	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

// NormalizeTag trims a tag and puts it in Unicode NFC so visually equal tags compare equal.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

// normalizeTags normalizes tags, dropping empties and duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = NormalizeTag(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// mapStoreError converts store errors into domain errors for transports.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound(storeErr.Message)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExists(storeErr.Message)
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation(storeErr.Message)
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "store error")
	}
}
