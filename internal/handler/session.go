package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/handler/sse"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

// SessionHandler serves the streamed generation endpoints
type SessionHandler struct {
	sessionService services.SessionService
	sseConfig      *sse.Config
	logger         *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService services.SessionService, sseConfig *sse.Config, logger *slog.Logger) *SessionHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &SessionHandler{
		sessionService: sessionService,
		sseConfig:      sseConfig,
		logger:         logger,
	}
}

// Send stores a user message and streams the reply
// POST /api/chat
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req services.SendRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = httputil.GetUserID(r)
	req.StreamID = uuid.NewString()

	serveStream(w, req.StreamID, h.sseConfig, h.logger, func(sink frame.Sink) error {
		return h.sessionService.Send(r.Context(), &req, sink)
	})
}

// EditAndResubmit rewrites a user message and streams a new reply
// POST /api/chat/edit
func (h *SessionHandler) EditAndResubmit(w http.ResponseWriter, r *http.Request) {
	var req services.EditRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = httputil.GetUserID(r)
	req.StreamID = uuid.NewString()

	serveStream(w, req.StreamID, h.sseConfig, h.logger, func(sink frame.Sink) error {
		return h.sessionService.EditAndResubmit(r.Context(), &req, sink)
	})
}

// Regenerate replaces the reply to a user message
// POST /api/chat/regenerate
func (h *SessionHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req services.EditRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = httputil.GetUserID(r)
	req.StreamID = uuid.NewString()

	serveStream(w, req.StreamID, h.sseConfig, h.logger, func(sink frame.Sink) error {
		return h.sessionService.Regenerate(r.Context(), &req, sink)
	})
}

// GuestChat streams a reply without authentication or persistence
// POST /api/guest/chat
func (h *SessionHandler) GuestChat(w http.ResponseWriter, r *http.Request) {
	var req services.GuestRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.StreamID = uuid.NewString()

	serveStream(w, req.StreamID, h.sseConfig, h.logger, func(sink frame.Sink) error {
		return h.sessionService.GuestStream(r.Context(), &req, sink)
	})
}

// Interrupt cancels a running generation
// POST /api/streams/{id}/interrupt
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	streamID, ok := PathParam(w, r, "id", "Stream ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	if err := h.sessionService.Interrupt(r.Context(), userID, streamID); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"streamId": streamID,
		"status":   "cancelled",
	})
}
