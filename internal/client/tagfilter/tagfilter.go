// Package tagfilter computes the tag filter bar of a room.
package tagfilter

import (
	"slices"
	"strings"
)

// AllLabel is the label of the entry that clears the filter.
const AllLabel = "All items"

// Entry is one button of the filter bar. A nil Tag is the "all" entry, whose
// Count is the number of comments in the room.
type Entry struct {
	Tag   *string `json:"tag"`
	Count int     `json:"count"`
}

// IsAll reports whether e is the synthetic "all" entry.
func (e Entry) IsAll() bool { return e.Tag == nil }

// Value returns the tag, or "" for the "all" entry.
func (e Entry) Value() string {
	if e.Tag == nil {
		return ""
	}
	return *e.Tag
}

// Label returns the tag or AllLabel.
func Label(e Entry) string {
	if e.Tag == nil || *e.Tag == "" {
		return AllLabel
	}
	return *e.Tag
}

// Compute builds the filter entries from the tag sets of a room's comments:
// the "all" entry first, then each distinct tag in lexicographic order with
// the number of comments carrying it.
func Compute(tagSets [][]string) []Entry {
	counts := make(map[string]int)
	for _, tags := range tagSets {
		for _, tag := range tags {
			counts[tag]++
		}
	}

	names := make([]string, 0, len(counts))
	for tag := range counts {
		names = append(names, tag)
	}
	slices.SortFunc(names, strings.Compare)

	entries := make([]Entry, 0, len(names)+1)
	entries = append(entries, Entry{Count: len(tagSets)})
	for _, tag := range names {
		entries = append(entries, Entry{Tag: &tag, Count: counts[tag]})
	}
	return entries
}

// Toggle returns the filter after selecting selected while current is active.
// Selecting the active tag or the "all" entry ("") clears the filter.
func Toggle(current, selected string) string {
	if selected == "" || selected == current {
		return ""
	}
	return selected
}

// Selected reports whether e is the active entry for filter.
func Selected(e Entry, filter string) bool {
	return e.Value() == filter
}
