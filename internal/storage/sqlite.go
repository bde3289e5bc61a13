// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"medichat/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		chat_id TEXT NOT NULL,
		title TEXT,
		messages TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chats_user_chat ON chats(user_id, chat_id);
	CREATE INDEX IF NOT EXISTS idx_chats_created_at ON chats(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateUser inserts a user with an already-hashed password.
// Returns ErrUserExists when the username is taken; no partial write occurs.
func (s *SQLiteStorage) CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES (?, ?)`,
		username, hashedPassword,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, ErrUserExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Username: username, Password: hashedPassword}, nil
}

// GetUserByUsername returns a user by username, or ErrNotFound.
func (s *SQLiteStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Password)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertChat inserts a chat or replaces the messages of an existing one.
// The message array is stored as a JSON string and round-trips exactly.
func (s *SQLiteStorage) UpsertChat(ctx context.Context, chat *models.Chat) error {
	messagesJSON, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	chat.CreatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, chat_id, title, messages, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, chat_id) DO UPDATE SET
			messages = excluded.messages,
			created_at = excluded.created_at`,
		chat.UserID, chat.ChatID, chat.Title, string(messagesJSON), chat.CreatedAt,
	)
	return err
}

// GetChat returns a chat by (userID, chatID), or ErrNotFound.
func (s *SQLiteStorage) GetChat(ctx context.Context, userID int64, chatID string) (*models.Chat, error) {
	var chat models.Chat
	var messagesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, chat_id, title, messages, created_at
		 FROM chats WHERE user_id = ? AND chat_id = ?`, userID, chatID,
	).Scan(&chat.ID, &chat.UserID, &chat.ChatID, &chat.Title, &messagesJSON, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messagesJSON), &chat.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &chat, nil
}

// ListChats returns all chats for a user, newest first.
func (s *SQLiteStorage) ListChats(ctx context.Context, userID int64) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_id, title, messages, created_at
		 FROM chats WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		var chat models.Chat
		var messagesJSON string
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.ChatID, &chat.Title, &messagesJSON, &chat.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(messagesJSON), &chat.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

// CountUsers returns the total number of users.
func (s *SQLiteStorage) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountChats returns the total number of chats.
func (s *SQLiteStorage) CountChats(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
