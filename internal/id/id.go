// Package id generates prefixed, URL-safe identifiers for stored records.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the record kinds the server creates.
const (
	PrefixRoom    = "room"
	PrefixComment = "cmt"
	PrefixUser    = "user"
	PrefixToken   = "token"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "room-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Valid reports whether s looks like an ID produced by Generate with the given prefix.
// Client-supplied IDs for optimistic inserts are checked with this.
func Valid(prefix, s string) bool {
	if len(s) != len(prefix)+1+21 || s[:len(prefix)+1] != prefix+"-" {
		return false
	}
	for _, c := range s[len(prefix)+1:] {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
