package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"medichat/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "chatbot.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUser_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "hash1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero user ID")
	}

	if _, err := s.CreateUser(ctx, "alice", "hash2"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username: expected ErrUserExists, got %v", err)
	}

	// The rejected insert must not overwrite the original row.
	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.Password != "hash1" {
		t.Errorf("password changed by rejected insert: %s", got.Password)
	}
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetUserByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertChat_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatal(err)
	}

	messages := []models.Message{
		{Role: models.RoleSystem, Content: "You are a doctor."},
		{Role: models.RoleUser, Content: "I feel cold and tired"},
		{Role: models.RoleAssistant, Content: "How long have you felt this way?"},
	}
	chat := &models.Chat{UserID: u.ID, ChatID: "chat-1", Title: "I feel cold and tired", Messages: messages}
	if err := s.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}

	got, err := s.GetChat(ctx, u.ID, "chat-1")
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if !reflect.DeepEqual(got.Messages, messages) {
		t.Errorf("messages did not round-trip: %+v", got.Messages)
	}
	if got.Title != "I feel cold and tired" {
		t.Errorf("Title=%q", got.Title)
	}

	// Updating replaces messages without creating a second row.
	chat.Messages = append(messages, models.Message{Role: models.RoleUser, Content: "About a week"})
	if err := s.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("UpsertChat update: %v", err)
	}
	got, err = s.GetChat(ctx, u.ID, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 4 {
		t.Errorf("expected 4 messages after update, got %d", len(got.Messages))
	}
	n, err := s.CountChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 chat row, got %d", n)
	}
}

func TestGetChat_WrongUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "carol", "hash")
	chat := &models.Chat{UserID: u.ID, ChatID: "c1", Title: "t", Messages: []models.Message{}}
	if err := s.UpsertChat(ctx, chat); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetChat(ctx, u.ID+1, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("chat must not be visible to another user, got %v", err)
	}
}

func TestListChats_Order(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "dave", "hash")
	for _, id := range []string{"first", "second", "third"} {
		chat := &models.Chat{UserID: u.ID, ChatID: id, Title: id, Messages: []models.Message{{Role: models.RoleUser, Content: id}}}
		if err := s.UpsertChat(ctx, chat); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := s.ListChats(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("expected 3 chats, got %d", len(chats))
	}
	for i := 1; i < len(chats); i++ {
		if chats[i].CreatedAt.After(chats[i-1].CreatedAt) {
			t.Errorf("chats not ordered newest first at index %d", i)
		}
	}
}
