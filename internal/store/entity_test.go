package store_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/store"
)

type testEntity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Group string `json:"group"`
}

func newTestEntity(t *testing.T) *store.Entity[testEntity] {
	t.Helper()
	s := newTestStore(t, store.NewNoopEmitter())
	return store.NewEntity[testEntity](s, "test:").
		WithIndexTransform("email",
			func(e *testEntity) []string { return []string{strings.ToLower(e.Email)} },
			strings.ToLower,
		).
		WithMultiIndex("group", func(e *testEntity) []string { return []string{e.Group} })
}

func TestEntity_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	entity := newTestEntity(t)

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Name: "John Doe", Email: "john@example.com"}))

	retrieved, err := entity.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", retrieved.Name)

	err = entity.Create(ctx, "1", &testEntity{ID: "1"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEntity_UniqueIndex(t *testing.T) {
	ctx := context.Background()
	entity := newTestEntity(t)

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Email: "John@Example.com"}))

	err := entity.Create(ctx, "2", &testEntity{ID: "2", Email: "john@example.com"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	found, err := entity.GetByIndex(ctx, "email", "JOHN@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "1", found.ID)

	// Changing the email frees the old index value.
	_, err = entity.Update(ctx, "1", &testEntity{ID: "1", Email: "jd@example.com"})
	require.NoError(t, err)
	require.NoError(t, entity.Create(ctx, "2", &testEntity{ID: "2", Email: "john@example.com"}))

	_, err = entity.GetByIndex(ctx, "email", "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_MultiIndex(t *testing.T) {
	ctx := context.Background()
	entity := newTestEntity(t)

	for i := range 3 {
		id := fmt.Sprint(i)
		require.NoError(t, entity.Create(ctx, id, &testEntity{ID: id, Email: id + "@x", Group: "g1"}))
	}
	require.NoError(t, entity.Create(ctx, "9", &testEntity{ID: "9", Email: "9@x", Group: "g2"}))

	g1, err := entity.ListByIndex(ctx, "group", "g1")
	require.NoError(t, err)
	assert.Len(t, g1, 3)

	deleted, err := entity.Delete(ctx, "0")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "0@x", deleted.Email)

	g1, err = entity.ListByIndex(ctx, "group", "g1")
	require.NoError(t, err)
	assert.Len(t, g1, 2)
}

func TestEntity_DeleteIsIdempotent(t *testing.T) {
	entity := newTestEntity(t)

	deleted, err := entity.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestEntity_Mutate(t *testing.T) {
	ctx := context.Background()
	entity := newTestEntity(t)
	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Name: "before", Email: "a@x"}))

	prev, next, changed, err := entity.Mutate(ctx, "1", func(e *testEntity) bool {
		e.Name = "after"
		return true
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "before", prev.Name)
	assert.Equal(t, "after", next.Name)

	_, _, changed, err = entity.Mutate(ctx, "1", func(*testEntity) bool { return false })
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, _, err = entity.Mutate(ctx, "missing", func(*testEntity) bool { return true })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_ListSkipsIndexKeysAndStopsEarly(t *testing.T) {
	ctx := context.Background()
	entity := newTestEntity(t)
	for i := range 5 {
		id := fmt.Sprint(i)
		require.NoError(t, entity.Create(ctx, id, &testEntity{ID: id, Email: id + "@x", Group: "g"}))
	}

	all, err := entity.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	seen := 0
	for e, err := range entity.List(ctx) {
		require.NoError(t, err)
		require.NotEmpty(t, e.ID)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestEntity_ContextCancelled(t *testing.T) {
	entity := newTestEntity(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := entity.Get(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}
