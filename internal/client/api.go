package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
)

// streamIDHeader carries the server's id for an open stream.
const streamIDHeader = "X-Stream-ID"

// APIError is a non-2xx response. Detail and Code come from the problem
// body; Code uses the same values as stream error frames.
type APIError struct {
	Status int
	Detail string
	Code   string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("request failed: %d: %s", e.Status, e.Detail)
}

// Stream is an open framed response.
type Stream struct {
	ID   string
	Body io.ReadCloser
}

// ModelInfo is one entry of the model catalog.
type ModelInfo struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	SupportsThinking bool   `json:"supportsThinking"`
	SupportsVision   bool   `json:"supportsVision"`
}

// ProviderInfo groups catalog models by provider.
type ProviderInfo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	ServerKey bool        `json:"serverKey"`
	Models    []ModelInfo `json:"models"`
}

// Catalog is the body of GET /api/models.
type Catalog struct {
	DefaultModel string         `json:"defaultModel"`
	Providers    []ProviderInfo `json:"providers"`
}

// API calls the chat server. Token may be empty for guest and public routes.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPI creates an API client. Streaming requests have no overall timeout;
// cancel them through their context.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// NewAPIWithClient creates an API client using httpClient.
func NewAPIWithClient(baseURL, token string, httpClient *http.Client) *API {
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// ListModels fetches the model catalog.
func (a *API) ListModels(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := a.doJSON(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats fetches the caller's chats.
func (a *API) ListChats(ctx context.Context) ([]models.Chat, error) {
	var out []models.Chat
	if err := a.doJSON(ctx, http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChat fetches a chat with its messages.
func (a *API) GetChat(ctx context.Context, chatID string) (*models.ChatWithMessages, error) {
	var out models.ChatWithMessages
	if err := a.doJSON(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChat changes a chat's title or model.
func (a *API) UpdateChat(ctx context.Context, chatID string, req *services.UpdateChatRequest) (*models.Chat, error) {
	var out models.Chat
	if err := a.doJSON(ctx, http.MethodPatch, "/api/chats/"+url.PathEscape(chatID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChat deletes a chat.
func (a *API) DeleteChat(ctx context.Context, chatID string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(chatID), nil, nil)
}

// DeleteMessage deletes a message and its reply.
func (a *API) DeleteMessage(ctx context.Context, messageID string) (*services.DeleteMessageResult, error) {
	var out services.DeleteMessageResult
	if err := a.doJSON(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Branch copies a chat up to an AI message.
func (a *API) Branch(ctx context.Context, req *services.BranchRequest) (*models.Chat, error) {
	var out models.Chat
	if err := a.doJSON(ctx, http.MethodPost, "/api/chat/branch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShareChat publishes a chat.
func (a *API) ShareChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var out models.Chat
	if err := a.doJSON(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/share", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnshareChat revokes public access to a chat.
func (a *API) UnshareChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var out models.Chat
	if err := a.doJSON(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(chatID)+"/share", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSharedChat fetches a public chat.
func (a *API) GetSharedChat(ctx context.Context, shareID string) (*models.ChatWithMessages, error) {
	var out models.ChatWithMessages
	if err := a.doJSON(ctx, http.MethodGet, "/api/share/"+url.PathEscape(shareID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Interrupt cancels a running stream.
func (a *API) Interrupt(ctx context.Context, streamID string) error {
	return a.doJSON(ctx, http.MethodPost, "/api/streams/"+url.PathEscape(streamID)+"/interrupt", nil, nil)
}

// Send opens a streamed send.
func (a *API) Send(ctx context.Context, req *services.SendRequest) (*Stream, error) {
	return a.openStream(ctx, "/api/chat", req)
}

// EditAndResubmit opens a streamed edit.
func (a *API) EditAndResubmit(ctx context.Context, req *services.EditRequest) (*Stream, error) {
	return a.openStream(ctx, "/api/chat/edit", req)
}

// Regenerate opens a streamed regenerate.
func (a *API) Regenerate(ctx context.Context, req *services.EditRequest) (*Stream, error) {
	return a.openStream(ctx, "/api/chat/regenerate", req)
}

// GuestChat opens an unauthenticated stream.
func (a *API) GuestChat(ctx context.Context, req *services.GuestRequest) (*Stream, error) {
	return a.openStream(ctx, "/api/guest/chat", req)
}

func (a *API) openStream(ctx context.Context, path string, body interface{}) (*Stream, error) {
	resp, err := a.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return &Stream{ID: resp.Header.Get(streamIDHeader), Body: resp.Body}, nil
}

func (a *API) doJSON(ctx context.Context, method, path string, body, dest interface{}) error {
	resp, err := a.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends a request and returns the response for 2xx statuses.
func (a *API) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if gjson.ValidBytes(data) {
		apiErr.Detail = gjson.GetBytes(data, "detail").String()
		apiErr.Code = gjson.GetBytes(data, "code").String()
	}
	return nil, apiErr
}

// defaultTimeout bounds non-streaming calls made by the CLI.
const defaultTimeout = 30 * time.Second

// WithTimeout derives a context for a non-streaming call.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}
