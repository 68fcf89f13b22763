package tagfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, Label(e))
	}
	return out
}

func counts(entries []Entry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Count)
	}
	return out
}

func TestCompute_OrderAndCounts(t *testing.T) {
	entries := Compute([][]string{
		{"x"},
		{"x", "y"},
		{},
	})

	assert.Equal(t, []string{"All items", "x", "y"}, labels(entries))
	assert.Equal(t, []int{3, 2, 1}, counts(entries))
	assert.True(t, entries[0].IsAll())
	assert.False(t, entries[1].IsAll())
}

func TestCompute_LexicographicNotByCount(t *testing.T) {
	entries := Compute([][]string{{"zeta"}, {"zeta"}, {"Alpha"}, {"beta"}})

	assert.Equal(t, []string{"All items", "Alpha", "beta", "zeta"}, labels(entries))
}

func TestCompute_Empty(t *testing.T) {
	entries := Compute(nil)

	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsAll())
	assert.Zero(t, entries[0].Count)
}

func TestCompute_DistinctPointers(t *testing.T) {
	entries := Compute([][]string{{"a", "b"}})

	require.Len(t, entries, 3)
	assert.Equal(t, "a", *entries[1].Tag)
	assert.Equal(t, "b", *entries[2].Tag)
}

func TestToggle(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		selected string
		want     string
	}{
		{"select from none", "", "x", "x"},
		{"switch tag", "x", "y", "y"},
		{"reselect clears", "x", "x", ""},
		{"all clears", "x", "", ""},
		{"all on none stays none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Toggle(tt.current, tt.selected))
		})
	}
}

func TestSelected(t *testing.T) {
	entries := Compute([][]string{{"x"}})

	assert.True(t, Selected(entries[0], ""))
	assert.False(t, Selected(entries[1], ""))
	assert.True(t, Selected(entries[1], "x"))
}
