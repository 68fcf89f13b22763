package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/store/storetest"
)

func newTestStore(t *testing.T, emitter store.EventEmitter) *store.Badger {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "badger"), nil, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadger_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, emitter store.EventEmitter) store.Store {
		return newTestStore(t, emitter)
	})
}

type recordingIndexer struct {
	indexed []string
	deleted []string
}

func (r *recordingIndexer) IndexComment(c *domain.Comment) error {
	r.indexed = append(r.indexed, c.ID+":"+c.Text)
	return nil
}

func (r *recordingIndexer) DeleteComment(id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func TestBadger_KeepsSearchIndexInSync(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.NewNoopEmitter())
	idx := &recordingIndexer{}
	s.SetSearchIndexer(idx)

	c := storetest.Comment("cmt-1", "room-1", "buy milk", 1)
	require.NoError(t, s.CreateComment(ctx, c))
	_, err := s.AddCommentTag(ctx, "cmt-1", "dairy")
	require.NoError(t, err)
	require.NoError(t, s.DeleteComment(ctx, "cmt-1"))

	assert.Equal(t, []string{"cmt-1:buy milk", "cmt-1:buy milk"}, idx.indexed)
	assert.Equal(t, []string{"cmt-1"}, idx.deleted)
}

func TestBadger_PingAfterClose(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "badger"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Ping(context.Background()))
}
