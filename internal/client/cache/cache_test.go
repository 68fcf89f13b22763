package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/client/reactive"
)

func ids(docs []Doc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func seedComments(t *testing.T, col *Collection) {
	t.Helper()
	require.NoError(t, col.Insert("c1", map[string]any{"room_id": "r1", "text": "eggs", "timestamp": int64(100), "tags": []string{"dairy"}}))
	require.NoError(t, col.Insert("c2", map[string]any{"room_id": "r1", "text": "milk", "timestamp": int64(300), "tags": []string{"dairy", "urgent"}}))
	require.NoError(t, col.Insert("c3", map[string]any{"room_id": "r2", "text": "bread", "timestamp": int64(200), "tags": []string{}}))
}

func TestFind_SelectorAndSort(t *testing.T) {
	col := New().Collection("comments")
	seedComments(t, col)

	docs := col.Find(nil, Selector{"room_id": "r1"}, FindOptions{Sort: []SortKey{Desc("timestamp")}})
	assert.Equal(t, []string{"c2", "c1"}, ids(docs))

	docs = col.Find(nil, Selector{}, FindOptions{Sort: []SortKey{Asc("timestamp")}, Limit: 2})
	assert.Equal(t, []string{"c1", "c3"}, ids(docs))
}

func TestFind_ArrayContainment(t *testing.T) {
	col := New().Collection("comments")
	seedComments(t, col)

	docs := col.Find(nil, Selector{"room_id": "r1", "tags": "urgent"}, FindOptions{})
	assert.Equal(t, []string{"c2"}, ids(docs))

	assert.Equal(t, 2, col.Count(nil, Selector{"tags": "dairy"}))
	assert.Zero(t, col.Count(nil, Selector{"tags": "bakery"}))
}

func TestFind_SortByNameThenID(t *testing.T) {
	col := New().Collection("rooms")
	require.NoError(t, col.Insert("r3", map[string]any{"name": "Garage"}))
	require.NoError(t, col.Insert("r1", map[string]any{"name": "Kitchen"}))
	require.NoError(t, col.Insert("r2", map[string]any{"name": "Garage"}))

	docs := col.Find(nil, Selector{}, FindOptions{Sort: []SortKey{Asc("name")}})
	assert.Equal(t, []string{"r2", "r3", "r1"}, ids(docs))
}

func TestDoc_Accessors(t *testing.T) {
	col := New().Collection("comments")
	seedComments(t, col)

	doc, ok := col.Get(nil, "c2")
	require.True(t, ok)
	assert.Equal(t, "milk", doc.String("text"))
	assert.Equal(t, int64(300), doc.Int64("timestamp"))
	assert.Equal(t, []string{"dairy", "urgent"}, doc.Strings("tags"))
	assert.False(t, doc.Bool("done"))
	assert.Empty(t, doc.Strings("missing"))

	_, ok = col.Get(nil, "nope")
	assert.False(t, ok)
}

func TestFind_ReturnsCopies(t *testing.T) {
	col := New().Collection("comments")
	seedComments(t, col)

	doc, _ := col.Get(nil, "c1")
	doc.Fields["text"] = "changed"
	doc.Fields["tags"].([]any)[0] = "changed"

	again, _ := col.Get(nil, "c1")
	assert.Equal(t, "eggs", again.String("text"))
	assert.Equal(t, []string{"dairy"}, again.Strings("tags"))
}

func TestWrites(t *testing.T) {
	col := New().Collection("comments")
	seedComments(t, col)

	assert.Error(t, col.Insert("c1", map[string]any{}))

	assert.True(t, col.Update("c1", map[string]any{"text": "brown eggs"}))
	assert.False(t, col.Update("zz", map[string]any{"text": "x"}))

	assert.True(t, col.AddToSet("c1", "tags", "urgent"))
	assert.True(t, col.AddToSet("c1", "tags", "urgent"))
	assert.True(t, col.AddToSet("c3", "tags", "bakery"))

	assert.True(t, col.Pull("c2", "tags", "dairy"))
	assert.True(t, col.Pull("c2", "tags", "absent"))

	c1, _ := col.Get(nil, "c1")
	c2, _ := col.Get(nil, "c2")
	c3, _ := col.Get(nil, "c3")
	assert.Equal(t, "brown eggs", c1.String("text"))
	assert.Equal(t, []string{"dairy", "urgent"}, c1.Strings("tags"))
	assert.Equal(t, []string{"urgent"}, c2.Strings("tags"))
	assert.Equal(t, []string{"bakery"}, c3.Strings("tags"))

	assert.True(t, col.Remove("c3"))
	assert.False(t, col.Remove("c3"))
	assert.Equal(t, 2, col.Len())
}

func TestServerMessages(t *testing.T) {
	col := New().Collection("comments")

	col.ApplyAdded("c1", map[string]any{"text": "eggs", "owner_name": "sam", "tags": []any{"dairy"}})
	col.ApplyChanged("c1", map[string]any{"text": "brown eggs"}, []string{"owner_name"})
	col.ApplyChanged("missing", map[string]any{"text": "ignored"}, nil)

	doc, ok := col.Get(nil, "c1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"text": "brown eggs", "tags": []any{"dairy"}}, doc.Fields)
	assert.Equal(t, 1, col.Len())

	col.ApplyAdded("c1", map[string]any{"text": "replaced"})
	doc, _ = col.Get(nil, "c1")
	assert.Equal(t, map[string]any{"text": "replaced"}, doc.Fields)

	col.ApplyRemoved("c1")
	assert.Zero(t, col.Len())
}

func TestFind_ReactiveToMatchedSet(t *testing.T) {
	tr := reactive.NewTracker()
	col := New().Collection("comments")
	seedComments(t, col)

	runs := 0
	var got []string
	tr.Autorun(func(c *reactive.Computation) {
		runs++
		got = ids(col.Find(c, Selector{"room_id": "r1"}, FindOptions{Sort: []SortKey{Desc("timestamp")}}))
	})
	require.Equal(t, []string{"c2", "c1"}, got)

	// Unrelated room: no rerun.
	col.Update("c3", map[string]any{"text": "rye"})
	tr.Flush()
	assert.Equal(t, 1, runs)

	// Entering the set.
	col.Update("c3", map[string]any{"room_id": "r1"})
	tr.Flush()
	assert.Equal(t, 2, runs)
	assert.Equal(t, []string{"c2", "c3", "c1"}, got)

	// Leaving it.
	col.ApplyRemoved("c2")
	tr.Flush()
	assert.Equal(t, 3, runs)
	assert.Equal(t, []string{"c3", "c1"}, got)

	// Identical server echo of a local write changes nothing.
	doc, _ := col.Get(nil, "c1")
	col.ApplyAdded("c1", doc.Fields)
	tr.Flush()
	assert.Equal(t, 3, runs)
}

func TestFind_StoppedComputationStopsObserving(t *testing.T) {
	tr := reactive.NewTracker()
	col := New().Collection("rooms")

	runs := 0
	comp := tr.Autorun(func(c *reactive.Computation) {
		runs++
		col.Find(c, Selector{}, FindOptions{})
	})
	comp.Stop()

	require.NoError(t, col.Insert("r1", map[string]any{"name": "Kitchen"}))
	tr.Flush()
	assert.Equal(t, 1, runs)
	assert.Empty(t, col.observers)
}

func TestCache_Collections(t *testing.T) {
	c := New()
	rooms := c.Collection("rooms")
	assert.Same(t, rooms, c.Collection("rooms"))
	c.Collection("comments")
	assert.Equal(t, []string{"comments", "rooms"}, c.Names())
	assert.Equal(t, "rooms", rooms.Name())
}

func TestCompare(t *testing.T) {
	assert.Negative(t, compare(nil, 1.0))
	assert.Negative(t, compare(1.0, "a"))
	assert.Negative(t, compare("a", "b"))
	assert.Zero(t, compare(true, true))
	assert.Positive(t, compare(true, false))
	assert.Negative(t, compare([]any{"a"}, []any{"a", "b"}))
}
