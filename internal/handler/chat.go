package handler

import (
	"log/slog"
	"net/http"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

// ChatHandler handles chat and message management requests
// Handlers only communicate with services, never repositories
type ChatHandler struct {
	chatService services.ChatService
	logger      *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService services.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// ListChats retrieves the caller's chats
// GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	chats, err := h.chatService.ListChats(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chats)
}

// GetChat retrieves a chat with its messages
// GET /api/chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	chat, err := h.chatService.GetChat(r.Context(), chatID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}

// UpdateChat updates a chat's title or model
// PATCH /api/chats/{id}
func (h *ChatHandler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	var req services.UpdateChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := h.chatService.UpdateChat(r.Context(), chatID, userID, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}

// DeleteChat deletes a chat and its messages
// DELETE /api/chats/{id}
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	if err := h.chatService.DeleteChat(r.Context(), chatID, userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMessage deletes a message and its reply
// DELETE /api/messages/{id}
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := PathParam(w, r, "id", "Message ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	result, err := h.chatService.DeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// Branch copies a chat prefix into a new chat
// POST /api/chat/branch
func (h *ChatHandler) Branch(w http.ResponseWriter, r *http.Request) {
	var req services.BranchRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := httputil.GetUserID(r)
	chat, err := h.chatService.Branch(r.Context(), userID, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, chat)
}

// ShareChat publishes a chat under a share id
// POST /api/chats/{id}/share
func (h *ChatHandler) ShareChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	chat, err := h.chatService.ShareChat(r.Context(), chatID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}

// UnshareChat revokes public access to a chat
// DELETE /api/chats/{id}/share
func (h *ChatHandler) UnshareChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	chat, err := h.chatService.UnshareChat(r.Context(), chatID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}

// GetSharedChat returns a public chat
// GET /api/share/{shareId}
func (h *ChatHandler) GetSharedChat(w http.ResponseWriter, r *http.Request) {
	shareID, ok := PathParam(w, r, "shareId", "Share ID")
	if !ok {
		return
	}

	chat, err := h.chatService.GetSharedChat(r.Context(), shareID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}
