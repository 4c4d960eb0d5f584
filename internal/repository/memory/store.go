// Package memory is an in-process implementation of the chat and message
// repositories. It mirrors the PostgreSQL schema's cascade rules and is used
// by tests and by servers started without DATABASE_URL.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
)

// Store holds every chat and message behind one lock.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]models.Chat
	messages map[string]models.Message
	seq      int64
	txMu     sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		chats:    make(map[string]models.Chat),
		messages: make(map[string]models.Message),
	}
}

// Chats returns a ChatRepository backed by s.
func (s *Store) Chats() repositories.ChatRepository { return &ChatRepository{store: s} }

// Messages returns a MessageRepository backed by s.
func (s *Store) Messages() repositories.MessageRepository { return &MessageRepository{store: s} }

// TxManager returns a TransactionManager backed by s.
func (s *Store) TxManager() repositories.TransactionManager { return &TransactionManager{store: s} }

type txKey struct{}

// TransactionManager restores the store's previous state when fn fails.
// Transactions are serialized; they are not isolated from non-transactional
// writers running concurrently.
type TransactionManager struct {
	store *Store
}

// ExecTx runs fn, rolling back every change made by it if it returns an error.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s := tm.store
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	chats := maps.Clone(s.chats)
	messages := maps.Clone(s.messages)
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.chats, s.messages = chats, messages
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneChat(c models.Chat) models.Chat {
	c.SourceChatID = clonePtr(c.SourceChatID)
	c.BranchedFromMessageID = clonePtr(c.BranchedFromMessageID)
	c.ShareID = clonePtr(c.ShareID)
	return c
}

func cloneMessage(m models.Message) models.Message {
	m.ImageURL = clonePtr(m.ImageURL)
	m.Reasoning = clonePtr(m.Reasoning)
	m.ReplyToID = clonePtr(m.ReplyToID)
	if m.File != nil {
		f := *m.File
		m.File = &f
	}
	if m.SearchResults != nil {
		m.SearchResults = append([]models.SearchResult(nil), m.SearchResults...)
	}
	return m
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
