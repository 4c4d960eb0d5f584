package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

// NoticeLevel grades a user-facing notification.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notifier shows transient notifications.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level NoticeLevel, message string)

func (f NotifierFunc) Notify(level NoticeLevel, message string) { f(level, message) }

const serverKeyNotice = "Using the server's API key for this chat. Add your own key in settings to use your own quota."

// SendOptions configure a streamed request.
type SendOptions struct {
	ModelID       string
	UseWebSearch  bool
	UserAPIKey    string
	UserTavilyKey string
	FileData      string
	FileMimeType  string
	FileName      string
}

func (o SendOptions) generation() services.GenerationOptions {
	return services.GenerationOptions{
		ModelID:       o.ModelID,
		UseWebSearch:  o.UseWebSearch,
		UserAPIKey:    o.UserAPIKey,
		UserTavilyKey: o.UserTavilyKey,
	}
}

// streamer runs one interaction's stream against the store.
type streamer struct {
	store    *Store
	reader   *Reader
	notifier Notifier
	observer Handler
	logger   *slog.Logger

	mu      sync.Mutex
	streams map[string]string // placeholder id -> server stream id
}

func newStreamer(store *Store, notifier Notifier, logger *slog.Logger) *streamer {
	if notifier == nil {
		notifier = NotifierFunc(func(NoticeLevel, string) {})
	}
	return &streamer{
		store:    store,
		reader:   NewReader(logger),
		notifier: notifier,
		logger:   logger,
		streams:  make(map[string]string),
	}
}

// run opens the stream for turn and feeds it to the store. Any failure
// rolls the turn back and is reported through the notifier.
func (s *streamer) run(ctx context.Context, turn Turn, open func(ctx context.Context) (*Stream, error)) (*models.Message, error) {
	stream, err := open(ctx)
	if err != nil {
		s.fail(turn, err)
		return nil, err
	}

	s.mu.Lock()
	s.streams[turn.PlaceholderID] = stream.ID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, turn.PlaceholderID)
		s.mu.Unlock()
	}()

	msg, err := s.reader.Read(stream.Body, turn.PlaceholderID, s)
	if err != nil {
		s.fail(turn, err)
		return nil, err
	}
	return msg, nil
}

func (s *streamer) streamID(placeholderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.streams[placeholderID]
	return id, ok && id != ""
}

func (s *streamer) fail(turn Turn, err error) {
	s.store.Rollback(turn.PlaceholderID)
	s.logger.Debug("interaction rolled back", "placeholder_id", turn.PlaceholderID, "error", err)
	s.notifier.Notify(NoticeError, userMessage(err))
}

func (s *streamer) OnChatInfo(placeholderID string, info frame.ChatInfo) {
	s.store.ApplyChatInfo(placeholderID, info)
	if s.observer != nil {
		s.observer.OnChatInfo(placeholderID, info)
	}
}

func (s *streamer) OnSnapshot(placeholderID string, acc Accumulator) {
	if s.store.ApplySnapshot(placeholderID, acc) && s.observer != nil {
		s.observer.OnSnapshot(placeholderID, acc)
	}
}

func (s *streamer) OnKeyUsage(placeholderID string, source string) {
	if s.store.NoteKeyUsage(s.store.ChatOf(placeholderID), source) {
		s.notifier.Notify(NoticeInfo, serverKeyNotice)
	}
	if s.observer != nil {
		s.observer.OnKeyUsage(placeholderID, source)
	}
}

func (s *streamer) OnComplete(placeholderID string, msg models.Message) {
	s.store.Confirm(placeholderID, msg)
	if s.observer != nil {
		s.observer.OnComplete(placeholderID, msg)
	}
}

// userMessage picks the text shown for a failed action.
func userMessage(err error) string {
	var streamErr *StreamError
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrGuestTrialExhausted):
		return "You have used all guest messages. Sign in to keep chatting."
	case errors.As(err, &streamErr):
		return streamErr.Message
	case errors.As(err, &apiErr) && apiErr.Code == frame.CodeCredential:
		return "API key rejected: " + apiErr.Detail
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	default:
		return "Something went wrong. Please try again."
	}
}

func toClientMessages(history []models.Message) []services.ClientMessage {
	out := make([]services.ClientMessage, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleAI && m.Content == "" {
			continue
		}
		out = append(out, services.ClientMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Conversation ties the Store, Reader and API together for a signed-in user.
type Conversation struct {
	*streamer
	api *API
}

// NewConversation creates a Conversation over api.
func NewConversation(api *API, store *Store, notifier Notifier, logger *slog.Logger) *Conversation {
	return &Conversation{
		streamer: newStreamer(store, notifier, logger),
		api:      api,
	}
}

// SetObserver receives every frame after the store has applied it.
func (c *Conversation) SetObserver(h Handler) {
	c.observer = h
}

// Store returns the underlying state store.
func (c *Conversation) Store() *Store {
	return c.store
}

// LoadChats refreshes the chat list.
func (c *Conversation) LoadChats(ctx context.Context) error {
	chats, err := c.api.ListChats(ctx)
	if err != nil {
		return err
	}
	c.store.SetChats(chats)
	return nil
}

// OpenChat loads a chat's messages and makes it active.
func (c *Conversation) OpenChat(ctx context.Context, chatID string) error {
	chat, err := c.api.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	c.store.UpsertChat(chat.Chat)
	c.store.SetMessages(chat.ID, chat.Messages)
	c.store.SetActive(chat.ID)
	return nil
}

// HandleSendMessage sends content to chatID, or to a new chat when chatID
// is empty, and streams the reply into the store.
func (c *Conversation) HandleSendMessage(ctx context.Context, chatID, content string, opts SendOptions) (*models.Message, error) {
	var history []models.Message
	if chatID != "" {
		history = c.store.History(chatID)
	}
	turn := c.store.BeginSend(chatID, content, opts.ModelID)

	req := &services.SendRequest{
		GenerationOptions: opts.generation(),
		ChatID:            chatID,
		Messages: append(toClientMessages(history), services.ClientMessage{
			Role:    models.RoleUser,
			Content: content,
		}),
		FileData: opts.FileData,
		FileMime: opts.FileMimeType,
		FileName: opts.FileName,
	}
	return c.run(ctx, turn, func(ctx context.Context) (*Stream, error) {
		return c.api.Send(ctx, req)
	})
}

// HandleEditAndResubmit rewrites a user message and streams a new reply.
func (c *Conversation) HandleEditAndResubmit(ctx context.Context, chatID, messageID, newContent string, opts SendOptions) (*models.Message, error) {
	turn, err := c.store.BeginEdit(chatID, messageID, newContent, opts.ModelID)
	if err != nil {
		c.notifier.Notify(NoticeError, "This message cannot be edited right now.")
		return nil, err
	}

	req := &services.EditRequest{
		GenerationOptions: opts.generation(),
		ChatID:            chatID,
		MessageID:         messageID,
		NewContent:        &newContent,
	}
	return c.run(ctx, turn, func(ctx context.Context) (*Stream, error) {
		return c.api.EditAndResubmit(ctx, req)
	})
}

// HandleRegenerate replaces the reply to a message, optionally under a
// different model.
func (c *Conversation) HandleRegenerate(ctx context.Context, chatID, messageID string, opts SendOptions) (*models.Message, error) {
	turn, err := c.store.BeginRegenerate(chatID, messageID, opts.ModelID)
	if err != nil {
		c.notifier.Notify(NoticeError, "This reply cannot be regenerated right now.")
		return nil, err
	}

	req := &services.EditRequest{
		GenerationOptions: opts.generation(),
		ChatID:            chatID,
		MessageID:         messageID,
	}
	return c.run(ctx, turn, func(ctx context.Context) (*Stream, error) {
		return c.api.Regenerate(ctx, req)
	})
}

// HandleBranch copies a chat up to an AI message and opens the copy.
func (c *Conversation) HandleBranch(ctx context.Context, sourceChatID, fromAIMessageID, newModelID string) (*models.Chat, error) {
	chat, err := c.api.Branch(ctx, &services.BranchRequest{
		SourceChatID:    sourceChatID,
		FromAIMessageID: fromAIMessageID,
		NewModelID:      newModelID,
	})
	if err != nil {
		c.notifier.Notify(NoticeError, userMessage(err))
		return nil, err
	}
	c.store.UpsertChat(*chat)

	if err := c.OpenChat(ctx, chat.ID); err != nil {
		c.notifier.Notify(NoticeError, userMessage(err))
		return chat, err
	}
	return chat, nil
}

// HandleDeleteMessage deletes a message and its reply.
func (c *Conversation) HandleDeleteMessage(ctx context.Context, chatID, messageID string) error {
	result, err := c.api.DeleteMessage(ctx, messageID)
	if err != nil {
		c.notifier.Notify(NoticeError, userMessage(err))
		return err
	}
	c.store.RemoveMessages(chatID, result.DeletedIDs)
	if result.ChatDeleted {
		c.store.RemoveChat(chatID)
	}
	return nil
}

// HandleDeleteChat deletes a chat; its branches become top level.
func (c *Conversation) HandleDeleteChat(ctx context.Context, chatID string) error {
	if err := c.api.DeleteChat(ctx, chatID); err != nil {
		c.notifier.Notify(NoticeError, userMessage(err))
		return err
	}
	c.store.RemoveChat(chatID)
	return nil
}

// Interrupt stops the stream feeding placeholderID.
func (c *Conversation) Interrupt(ctx context.Context, placeholderID string) error {
	streamID, ok := c.streamID(placeholderID)
	if !ok {
		return ErrUnknownMessage
	}
	return c.api.Interrupt(ctx, streamID)
}
