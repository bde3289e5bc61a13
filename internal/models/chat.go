package models

import "time"

// Message roles. The first message of a conversation, when present, is a
// synthesized system instruction embedding the patient's health summary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. The JSON form round-trips exactly
// through chat persistence.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a persisted multi-turn conversation belonging to a user.
type Chat struct {
	ID        int64     `json:"-" db:"id"`
	UserID    int64     `json:"-" db:"user_id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	Title     string    `json:"title" db:"title"`
	Messages  []Message `json:"messages" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User is a registered account. Password holds the bcrypt hash, never plaintext.
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Password string `json:"-" db:"password"`
}
