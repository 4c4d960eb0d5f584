package models

import "time"

// Chat is a conversation owned by one user. Branched chats point at the chat
// they were copied from through SourceChatID.
type Chat struct {
	ID                    string    `json:"id" db:"id"`
	UserID                string    `json:"userId" db:"user_id"`
	Title                 string    `json:"title" db:"title"`
	ModelID               string    `json:"modelId" db:"model_id"`
	SourceChatID          *string   `json:"sourceChatId,omitempty" db:"source_chat_id"`
	BranchedFromMessageID *string   `json:"branchedFromMessageId,omitempty" db:"branched_from_message_id"`
	ShareID               *string   `json:"shareId,omitempty" db:"share_id"`
	IsPublic              bool      `json:"isPublic" db:"is_public"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time `json:"updatedAt" db:"updated_at"`
}

// IsBranch reports whether the chat still references a source chat.
func (c *Chat) IsBranch() bool {
	return c.SourceChatID != nil && *c.SourceChatID != ""
}

// ChatWithMessages is a chat together with its ordered messages.
type ChatWithMessages struct {
	Chat
	Messages []Message `json:"messages"`
}

// DefaultChatTitle derives a title from the first user prompt.
func DefaultChatTitle(prompt string) string {
	const maxRunes = 50
	runes := []rune(prompt)
	if len(runes) == 0 {
		return "New Chat"
	}
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "..."
	}
	return string(runes)
}
