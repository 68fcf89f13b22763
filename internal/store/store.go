package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// Key prefixes.
const (
	userPrefix    = "user:"
	roomPrefix    = "room:"
	commentPrefix = "cmt:"
)

var (
	_ Store    = (*Badger)(nil)
	_ Cascader = (*Badger)(nil)
)

// Badger is the default Store backend, wrapping a Badger database instance.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger

	// Receives a ChangeEvent after each committed mutation.
	eventEmitter EventEmitter

	// Set via SetSearchIndexer after store creation to avoid circular dependencies.
	searchIndexer SearchIndexer

	Users    *Entity[domain.User]
	Rooms    *Entity[domain.Room]
	Comments *Entity[domain.Comment]
}

// New opens (or creates) a Badger store at path.
// The emitter is required and receives every committed change.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if emitter == nil {
		emitter = NewNoopEmitter()
	}

	s := &Badger{
		db:            db,
		logger:        logger,
		eventEmitter:  emitter,
		searchIndexer: NewNoopSearchIndexer(),
	}

	s.Users = NewEntity[domain.User](s, userPrefix).
		WithIndexTransform("email",
			func(u *domain.User) []string {
				return []string{normalizeEmail(u.Email)}
			},
			normalizeEmail,
		)
	s.Rooms = NewEntity[domain.Room](s, roomPrefix)
	s.Comments = NewEntity[domain.Comment](s, commentPrefix).
		WithMultiIndex("room", func(c *domain.Comment) []string {
			return []string{c.RoomID}
		})

	logger.Info("Badger database opened successfully", "path", path)
	return s, nil
}

// Close gracefully closes the database connection.
func (s *Badger) Close() error {
	s.logger.Info("Closing database connection")
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Badger) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// SetSearchIndexer sets the search indexer for keeping search in sync.
func (s *Badger) SetSearchIndexer(indexer SearchIndexer) {
	s.searchIndexer = indexer
}

// DB exposes the underlying database for maintenance tools.
func (s *Badger) DB() *badger.DB {
	return s.db
}

func (s *Badger) emit(event ChangeEvent) {
	s.eventEmitter.Emit(event)
}

func (s *Badger) indexComment(c *domain.Comment) {
	if err := s.searchIndexer.IndexComment(c); err != nil {
		s.logger.Warn("failed to index comment", "comment_id", c.ID, "error", err)
	}
}

func (s *Badger) unindexComment(id string) {
	if err := s.searchIndexer.DeleteComment(id); err != nil {
		s.logger.Warn("failed to remove comment from index", "comment_id", id, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
