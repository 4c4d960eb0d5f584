package repositories

import (
	"context"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// ChatRepository defines data access for chats.
type ChatRepository interface {
	// CreateChat inserts a chat. An empty ID is assigned by the store.
	CreateChat(ctx context.Context, chat *models.Chat) error

	// GetChat retrieves a chat by ID without owner scoping; callers check
	// ownership through a ResourceAuthorizer.
	// Returns domain.ErrNotFound if not found
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)

	// GetChatByShareID retrieves a chat by its public share id.
	// Returns domain.ErrNotFound if not found
	GetChatByShareID(ctx context.Context, shareID string) (*models.Chat, error)

	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)

	// UpdateChat writes title, model, sharing fields and updated_at.
	// Returns domain.ErrNotFound if not found
	UpdateChat(ctx context.Context, chat *models.Chat) error

	// ClearBranchReferences detaches every chat branched from chatID and
	// returns how many were promoted.
	ClearBranchReferences(ctx context.Context, chatID string) (int, error)

	// DeleteChat removes a chat and, through the store's cascade, its messages.
	// Returns domain.ErrNotFound if not found
	DeleteChat(ctx context.Context, chatID string) error
}

// MessageRepository defines data access for messages.
type MessageRepository interface {
	// CreateMessage inserts a message and assigns ID (when empty), Seq and,
	// when zero, CreatedAt.
	CreateMessage(ctx context.Context, msg *models.Message) error

	// GetMessage retrieves a message by ID.
	// Returns domain.ErrNotFound if not found
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)

	// ListMessages returns a chat's messages ordered by (created_at, seq).
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)

	// UpdateMessage writes content and edit_count.
	// Returns domain.ErrNotFound if not found
	UpdateMessage(ctx context.Context, msg *models.Message) error

	// DeleteMessages removes the listed messages of a chat. Unknown ids are ignored.
	DeleteMessages(ctx context.Context, chatID string, messageIDs []string) error
}
