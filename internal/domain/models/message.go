package models

import "time"

// Role is the sender of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one persisted entry of a chat.
//
// Messages in a chat are ordered by (CreatedAt, Seq). Seq is assigned by
// the store on insert and is never exposed to clients.
type Message struct {
	ID            string         `json:"id" db:"id"`
	ChatID        string         `json:"chatId" db:"chat_id"`
	Role          Role           `json:"role" db:"role"`
	Content       string         `json:"content" db:"content"`
	ImageURL      *string        `json:"imageUrl,omitempty" db:"image_url"`
	File          *FileMeta      `json:"file,omitempty" db:"file"`
	UsedWebSearch bool           `json:"usedWebSearch" db:"used_web_search"`
	EditCount     int            `json:"editCount" db:"edit_count"`
	ModelID       string         `json:"modelId,omitempty" db:"model_id"`
	SearchResults []SearchResult `json:"searchResults,omitempty" db:"search_results"`
	Reasoning     *string        `json:"reasoning,omitempty" db:"reasoning"`
	ReplyToID     *string        `json:"replyToId,omitempty" db:"reply_to_id"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	Seq           int64          `json:"-" db:"seq"`
}

// FileMeta describes a file attached to a user message.
type FileMeta struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// SearchResult is one web-search hit injected into a prompt.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Before reports whether m sorts before other within a chat.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

// FindReply returns the index of the AI reply to the message at index i,
// or -1. Replies are matched by ReplyToID; messages without one fall back
// to positional adjacency.
func FindReply(messages []Message, i int) int {
	if i < 0 || i >= len(messages) || messages[i].Role != RoleUser {
		return -1
	}
	id := messages[i].ID
	for j := i + 1; j < len(messages); j++ {
		if messages[j].ReplyToID != nil && *messages[j].ReplyToID == id {
			return j
		}
	}
	if i+1 < len(messages) {
		next := messages[i+1]
		if next.Role == RoleAI && next.ReplyToID == nil {
			return i + 1
		}
	}
	return -1
}

// FindPrompt returns the index of the user message an AI message at index i
// replies to, or -1.
func FindPrompt(messages []Message, i int) int {
	if i < 0 || i >= len(messages) || messages[i].Role != RoleAI {
		return -1
	}
	if ref := messages[i].ReplyToID; ref != nil {
		for j := range messages {
			if messages[j].ID == *ref {
				return j
			}
		}
		return -1
	}
	for j := i - 1; j >= 0; j-- {
		if messages[j].Role == RoleUser {
			return j
		}
	}
	return -1
}

// IndexOf returns the position of the message with id, or -1.
func IndexOf(messages []Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}
