package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// MessageRepository implements repositories.MessageRepository in memory.
type MessageRepository struct {
	store *Store
}

func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return fmt.Errorf("chat %s: %w", msg.ChatID, domain.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrConflict)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.seq++
	msg.Seq = s.seq
	s.messages[msg.ID] = cloneMessage(*msg)
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	m := cloneMessage(msg)
	return &m, nil
}

func (r *MessageRepository) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := []models.Message{}
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			messages = append(messages, cloneMessage(msg))
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Before(&messages[j])
	})
	return messages, nil
}

func (r *MessageRepository) UpdateMessage(ctx context.Context, msg *models.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[msg.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}
	existing.Content = msg.Content
	existing.EditCount = msg.EditCount
	s.messages[msg.ID] = existing
	return nil
}

func (r *MessageRepository) DeleteMessages(ctx context.Context, chatID string, messageIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range messageIDs {
		if msg, ok := s.messages[id]; ok && msg.ChatID == chatID {
			delete(s.messages, id)
		}
	}
	return nil
}
