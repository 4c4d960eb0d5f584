package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
)

// Storage keys used by guest mode.
const (
	guestChatsKey = "guest/chats"
	guestTrialKey = "guest/trialCount"
)

// ErrGuestTrialExhausted blocks guest actions once the trial is used up.
var ErrGuestTrialExhausted = errors.New("guest trial exhausted")

// GuestSession runs the conversation state machine against the guest
// endpoint and keeps chats in device storage.
type GuestSession struct {
	*streamer
	api     *API
	storage Storage
	limit   int

	trialMu sync.Mutex
	used    int
}

// NewGuestSession loads saved guest chats and the trial counter.
func NewGuestSession(api *API, storage Storage, notifier Notifier, logger *slog.Logger) (*GuestSession, error) {
	g := &GuestSession{
		streamer: newStreamer(NewStore(), notifier, logger),
		api:      api,
		storage:  storage,
		limit:    config.GuestTrialLimit,
	}

	var chats []models.ChatWithMessages
	if _, err := loadJSON(storage, guestChatsKey, &chats); err != nil {
		return nil, err
	}
	list := make([]models.Chat, 0, len(chats))
	for _, c := range chats {
		list = append(list, c.Chat)
		g.store.SetMessages(c.ID, c.Messages)
	}
	g.store.SetChats(list)

	if _, err := loadJSON(storage, guestTrialKey, &g.used); err != nil {
		return nil, err
	}
	return g, nil
}

// SetObserver receives every frame after the store has applied it.
func (g *GuestSession) SetObserver(h Handler) {
	g.observer = h
}

// Store returns the underlying state store.
func (g *GuestSession) Store() *Store {
	return g.store
}

// Remaining reports how many trial generations are left.
func (g *GuestSession) Remaining() int {
	g.trialMu.Lock()
	defer g.trialMu.Unlock()
	if g.used >= g.limit {
		return 0
	}
	return g.limit - g.used
}

// consume takes one trial generation.
func (g *GuestSession) consume() error {
	g.trialMu.Lock()
	defer g.trialMu.Unlock()
	if g.used >= g.limit {
		return ErrGuestTrialExhausted
	}
	g.used++
	return saveJSON(g.storage, guestTrialKey, g.used)
}

// refund returns a trial generation taken for an action that never reached
// the server.
func (g *GuestSession) refund() {
	g.trialMu.Lock()
	defer g.trialMu.Unlock()
	if g.used > 0 {
		g.used--
	}
	if err := saveJSON(g.storage, guestTrialKey, g.used); err != nil {
		g.logger.Error("failed to save guest trial count", "error", err)
	}
}

// Send streams a reply to content. An empty chatID starts a new local chat.
func (g *GuestSession) Send(ctx context.Context, chatID, content, modelID string) (*models.Message, error) {
	if err := g.consume(); err != nil {
		g.notifier.Notify(NoticeError, userMessage(err))
		return nil, err
	}

	created := false
	if chatID == "" {
		now := g.store.now()
		chat := models.Chat{
			ID:        localChatPrefix + uuid.NewString(),
			Title:     models.DefaultChatTitle(content),
			ModelID:   modelID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		g.store.UpsertChat(chat)
		chatID = chat.ID
		created = true
	}

	history := g.store.History(chatID)
	turn := g.store.BeginSend(chatID, content, modelID)
	msg, err := g.stream(ctx, turn, append(history, models.Message{Role: models.RoleUser, Content: content}), modelID)
	if err != nil && created && len(g.store.History(chatID)) == 0 {
		g.store.RemoveChat(chatID)
	}
	return msg, g.finish(err)
}

// Edit rewrites a user message and streams a new reply.
func (g *GuestSession) Edit(ctx context.Context, chatID, messageID, newContent, modelID string) (*models.Message, error) {
	if err := g.consume(); err != nil {
		g.notifier.Notify(NoticeError, userMessage(err))
		return nil, err
	}
	turn, err := g.store.BeginEdit(chatID, messageID, newContent, modelID)
	if err != nil {
		g.refund()
		return nil, err
	}
	msg, err := g.stream(ctx, turn, g.store.History(chatID), modelID)
	return msg, g.finish(err)
}

// Regenerate replaces the reply to a message.
func (g *GuestSession) Regenerate(ctx context.Context, chatID, messageID, modelID string) (*models.Message, error) {
	if err := g.consume(); err != nil {
		g.notifier.Notify(NoticeError, userMessage(err))
		return nil, err
	}
	turn, err := g.store.BeginRegenerate(chatID, messageID, modelID)
	if err != nil {
		g.refund()
		return nil, err
	}
	msg, err := g.stream(ctx, turn, g.store.History(chatID), modelID)
	return msg, g.finish(err)
}

// DeleteMessage removes a message and its reply; an emptied chat is removed.
func (g *GuestSession) DeleteMessage(chatID, messageID string) error {
	history := g.store.History(chatID)
	idx := models.IndexOf(history, messageID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", messageID, ErrUnknownMessage)
	}
	ids := []string{messageID}
	if reply := models.FindReply(history, idx); reply >= 0 {
		ids = append(ids, history[reply].ID)
	}
	g.store.RemoveMessages(chatID, ids)
	if len(g.store.Display(chatID)) == 0 {
		g.store.RemoveChat(chatID)
	}
	return g.persist()
}

// DeleteChat removes a local chat.
func (g *GuestSession) DeleteChat(chatID string) error {
	g.store.RemoveChat(chatID)
	return g.persist()
}

func (g *GuestSession) stream(ctx context.Context, turn Turn, history []models.Message, modelID string) (*models.Message, error) {
	req := &services.GuestRequest{
		ModelID:  modelID,
		Messages: toClientMessages(history),
	}
	return g.run(ctx, turn, func(ctx context.Context) (*Stream, error) {
		return g.api.GuestChat(ctx, req)
	})
}

// finish saves chats whatever the outcome and returns err, or the save
// error when err is nil.
func (g *GuestSession) finish(err error) error {
	if perr := g.persist(); perr != nil {
		g.logger.Error("failed to save guest chats", "error", perr)
		if err == nil {
			return perr
		}
	}
	return err
}

// persist writes confirmed chats and messages to storage.
func (g *GuestSession) persist() error {
	chats := g.store.Chats()
	out := make([]models.ChatWithMessages, 0, len(chats))
	for _, c := range chats {
		var msgs []models.Message
		for _, e := range g.store.Display(c.ID) {
			if !e.IsStreaming && !e.Pending {
				msgs = append(msgs, e.Message)
			}
		}
		out = append(out, models.ChatWithMessages{Chat: c, Messages: msgs})
	}
	return saveJSON(g.storage, guestChatsKey, out)
}
