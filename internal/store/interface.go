// Package store persists rooms, comments and users, and reports every committed change.
package store

import (
	"context"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// Store defines the persistence operations shared by every backend.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error
	SetSearchIndexer(indexer SearchIndexer)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error

	// Rooms
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	// ListRooms returns every room ordered by name.
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	UpdateRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, id string) error

	// Comments
	CreateComment(ctx context.Context, comment *domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	ListComments(ctx context.Context) ([]*domain.Comment, error)
	// ListCommentsByRoom returns the room's comments, newest first.
	ListCommentsByRoom(ctx context.Context, roomID string) ([]*domain.Comment, error)
	UpdateComment(ctx context.Context, comment *domain.Comment) error
	DeleteComment(ctx context.Context, id string) error
	AddCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error)
	RemoveCommentTag(ctx context.Context, id, tag string) (*domain.Comment, error)
}

// Cascader is implemented by backends that can delete a room together with
// its comments in one transaction. It returns the ids of the removed comments.
type Cascader interface {
	DeleteRoomCascade(ctx context.Context, roomID string) ([]string, error)
}
