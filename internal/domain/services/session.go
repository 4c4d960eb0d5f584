package services

import (
	"context"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

// SessionService orchestrates streamed generations. Errors returned before
// any frame was written (validation, ownership, not-found) are meant for a
// plain HTTP response; once streaming starts, failures end the stream with
// an error frame and the method returns nil.
type SessionService interface {
	// Send persists a user message (creating the chat when ChatID is empty)
	// and streams the AI reply.
	Send(ctx context.Context, req *SendRequest, sink frame.Sink) error

	// EditAndResubmit rewrites a user message, drops everything after it and
	// streams a fresh reply.
	EditAndResubmit(ctx context.Context, req *EditRequest, sink frame.Sink) error

	// Regenerate drops the reply to a user message and streams a new one.
	Regenerate(ctx context.Context, req *EditRequest, sink frame.Sink) error

	// GuestStream streams a reply without persistence using server keys.
	GuestStream(ctx context.Context, req *GuestRequest, sink frame.Sink) error

	// Interrupt cancels a running generation owned by userID.
	Interrupt(ctx context.Context, userID, streamID string) error
}

// ClientMessage is one history entry sent by the client.
type ClientMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// GenerationOptions are shared by every streamed request.
type GenerationOptions struct {
	ModelID       string `json:"modelId"`
	UseWebSearch  bool   `json:"useWebSearch"`
	UserAPIKey    string `json:"userApiKey,omitempty"`
	UserTavilyKey string `json:"userTavilyKey,omitempty"`
}

// SendRequest is the DTO for sending a message
type SendRequest struct {
	GenerationOptions
	UserID   string          `json:"-"` // Set by handler from auth context
	StreamID string          `json:"-"` // Set by handler, echoed in X-Stream-ID
	ChatID   string          `json:"chatId,omitempty"`
	Messages []ClientMessage `json:"messages"`
	FileData string          `json:"fileData,omitempty"` // base64, optionally a data URL
	FileMime string          `json:"fileMimeType,omitempty"`
	FileName string          `json:"fileName,omitempty"`
}

// EditRequest is the DTO for edit-and-resubmit and regenerate. NewContent is
// required for edits and ignored by regenerate.
type EditRequest struct {
	GenerationOptions
	UserID     string  `json:"-"`
	StreamID   string  `json:"-"`
	ChatID     string  `json:"chatId"`
	MessageID  string  `json:"messageId"`
	NewContent *string `json:"newContent,omitempty"`
}

// GuestRequest is the DTO for unauthenticated streaming
type GuestRequest struct {
	StreamID string          `json:"-"`
	ModelID  string          `json:"modelId"`
	Messages []ClientMessage `json:"messages"`
}
