package contract

import "time"

type SendRequest struct {
	// UserID defaults to the caller; admins set it to reply into a user's conversation.
	UserID        string `json:"user_id"`
	CounterpartID string `json:"counterpart_id"`
	Text          string `json:"text"`
	// As is "me" (default) or "admin".
	As string `json:"as"`
}

type SendResponse struct {
	MessageID string `json:"message_id"`
}

type MessageView struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	HTML      string     `json:"html,omitempty"`
	Timestamp *time.Time `json:"timestamp"`
	Duration  float64    `json:"duration,omitempty"`
	Ephemeral bool       `json:"ephemeral,omitempty"`
}

// MessagesEvent is one SSE data payload, or the whole response when not streaming.
type MessagesEvent struct {
	Messages []MessageView `json:"messages"`
}

type DirectoryEntry struct {
	UserID          string     `json:"user_id"`
	CounterpartID   string     `json:"counterpart_id"`
	DisplayName     string     `json:"display_name"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     int        `json:"unread_count"`
}

type DirectoryResponse struct {
	Entries []DirectoryEntry `json:"entries"`
}

// ConversationsResponse lists one user's conversations, newest first.
type ConversationsResponse struct {
	Conversations []DirectoryEntry `json:"conversations"`
}

type ProfileRequest struct {
	Nickname string `json:"nickname"`
	// Email defaults to the address of the ID token.
	Email string `json:"email"`
}

type ProfileResponse struct {
	UserID    string     `json:"user_id"`
	Nickname  string     `json:"nickname"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at"`
}
