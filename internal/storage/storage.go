// Package storage defines the persistence interface for users and chats.
package storage

import (
	"context"
	"errors"

	"medichat/internal/models"
)

// ErrNotFound is returned when a requested user or chat does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserExists is returned when registering a username that is already taken.
var ErrUserExists = errors.New("username already exists")

// Storage defines user and chat persistence operations.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// Chat operations. UpsertChat inserts a new chat or replaces the message
	// array of an existing (user_id, chat_id) pair.
	UpsertChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, userID int64, chatID string) (*models.Chat, error)
	ListChats(ctx context.Context, userID int64) ([]*models.Chat, error)

	// Stats
	CountUsers(ctx context.Context) (int64, error)
	CountChats(ctx context.Context) (int64, error)

	Close() error
}
