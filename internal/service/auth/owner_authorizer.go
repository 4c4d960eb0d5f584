package auth

import (
	"context"
	"fmt"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
)

// OwnerBasedAuthorizer implements ResourceAuthorizer using ownership checks.
// A user can access a chat they own and every message in it.
type OwnerBasedAuthorizer struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
}

var _ services.ResourceAuthorizer = (*OwnerBasedAuthorizer)(nil)

// NewOwnerBasedAuthorizer creates a new ownership-based authorizer
func NewOwnerBasedAuthorizer(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
) *OwnerBasedAuthorizer {
	return &OwnerBasedAuthorizer{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
	}
}

// CanAccessChat checks if user owns the chat
func (a *OwnerBasedAuthorizer) CanAccessChat(ctx context.Context, userID, chatID string) error {
	chat, err := a.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat for auth: %w", err)
	}
	if chat.UserID != userID {
		return fmt.Errorf("access denied to chat %s: %w", chatID, domain.ErrForbidden)
	}
	return nil
}

// CanAccessMessage checks if user can access a message (via its chat)
func (a *OwnerBasedAuthorizer) CanAccessMessage(ctx context.Context, userID, messageID string) error {
	msg, err := a.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message for auth: %w", err)
	}
	return a.CanAccessChat(ctx, userID, msg.ChatID)
}
