package services

import (
	"context"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// ChatService defines chat and message management outside the streaming flow.
type ChatService interface {
	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)

	// GetChat returns a chat with its ordered messages.
	GetChat(ctx context.Context, chatID, userID string) (*models.ChatWithMessages, error)

	// UpdateChat changes the title and/or model.
	UpdateChat(ctx context.Context, chatID, userID string, req *UpdateChatRequest) (*models.Chat, error)

	// DeleteChat removes a chat and its messages. Branches of the chat are
	// promoted to top level, not deleted.
	DeleteChat(ctx context.Context, chatID, userID string) error

	// DeleteMessage removes a message and, for user messages, its AI reply.
	// A chat left empty is deleted as well.
	DeleteMessage(ctx context.Context, messageID, userID string) (*DeleteMessageResult, error)

	// Branch copies a chat up to and including an AI message into a new chat.
	Branch(ctx context.Context, userID string, req *BranchRequest) (*models.Chat, error)

	// ShareChat makes a chat publicly readable through a share id.
	ShareChat(ctx context.Context, chatID, userID string) (*models.Chat, error)

	// UnshareChat revokes public access. The share id is kept so re-sharing
	// restores the same link.
	UnshareChat(ctx context.Context, chatID, userID string) (*models.Chat, error)

	// GetSharedChat returns a public chat by share id.
	// Unknown or private share ids are ErrNotFound.
	GetSharedChat(ctx context.Context, shareID string) (*models.ChatWithMessages, error)
}

// UpdateChatRequest is the DTO for updating a chat. Absent fields are unchanged.
type UpdateChatRequest struct {
	Title   *string `json:"title,omitempty"`
	ModelID *string `json:"modelId,omitempty"`
}

// BranchRequest is the DTO for branching a chat
type BranchRequest struct {
	SourceChatID    string `json:"sourceChatId"`
	FromAIMessageID string `json:"fromAiMessageId"`
	NewModelID      string `json:"newModelId"`
}

// DeleteMessageResult reports what a message deletion removed.
type DeleteMessageResult struct {
	DeletedIDs  []string `json:"deletedIds"`
	ChatDeleted bool     `json:"chatDeleted"`
}
