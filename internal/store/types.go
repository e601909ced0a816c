// Package store persists conversations and messages in a single SQLite
// file, with full-text search and JSON export/import.
package store

import "time"

// Status is a conversation's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Topic groups conversations into an optionally nested forest.
type Topic struct {
	ID       string
	Name     string
	ParentID *string
}

// Conversation is a persistent session.
type Conversation struct {
	ID        string
	Title     string
	TopicID   *string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a conversation. Assistant messages must carry a
// non-nil ModelRef; the store rejects ones that don't.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	ModelRef       *string
	Timestamp      time.Time
}

// Event names delivered to observers.
const (
	EventConversationCreated = "conversation-created"
	EventMessageAppended     = "message-appended"
	EventConversationDeleted = "conversation-deleted"
	EventTitleChanged        = "title-changed"
)

// Observer receives store events synchronously, after the write that
// produced them commits. A panicking observer must not take down the
// writer; Store recovers and logs instead.
type Observer func(event string, payload any)

// ListFilters narrows ListConversations.
type ListFilters struct {
	TopicID  *string
	Status   *Status
	DateFrom *time.Time
	DateTo   *time.Time
}

// SearchFilters narrows SearchConversations, beyond the query text.
type SearchFilters struct {
	TopicID  *string
	DateFrom *time.Time
	DateTo   *time.Time
	Status   *Status
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Conversation Conversation
	Snippet      string
}

// ExportDocument is the top-level JSON export/import shape.
type ExportDocument struct {
	Version       string               `json:"version"`
	ExportDate    string               `json:"export_date"`
	Conversations []ExportConversation `json:"conversations"`
	Metadata      ExportMetadata       `json:"metadata"`
}

// ExportConversation is one conversation within an export document.
type ExportConversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Topic     string          `json:"topic,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []ExportMessage `json:"messages"`
}

// ExportMessage is one message within an export document.
type ExportMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExportMetadata is derived, informational summary data.
type ExportMetadata struct {
	MessageCount      int      `json:"message_count"`
	UserMessages      int      `json:"user_messages"`
	AssistantMessages int      `json:"assistant_messages"`
	ModelsUsed        []string `json:"models_used"`
}
