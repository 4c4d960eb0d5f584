package services

import "context"

// ResourceAuthorizer checks if a user can access resources.
// Current implementation: ownership-based (user owns chat).
//
// Services call the authorizer before operating on a resource. A resource
// owned by someone else is ErrForbidden; a missing one is ErrNotFound.
type ResourceAuthorizer interface {
	// CanAccessChat checks if user owns a chat
	CanAccessChat(ctx context.Context, userID, chatID string) error

	// CanAccessMessage checks if user owns a message (via its chat)
	CanAccessMessage(ctx context.Context, userID, messageID string) error
}
