package domain

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Session struct {
	ID        string    `json:"session_id"`
	Greeting  string    `json:"greeting"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Turn      int         `json:"turn"`
	CreatedAt time.Time   `json:"created_at"`
}
