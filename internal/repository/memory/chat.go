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

// ChatRepository implements repositories.ChatRepository in memory.
type ChatRepository struct {
	store *Store
}

func (r *ChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if _, exists := s.chats[chat.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("chat %s already exists", chat.ID),
			ResourceType: "chat",
			ResourceID:   chat.ID,
		}
	}
	if chat.IsBranch() {
		if _, ok := s.chats[*chat.SourceChatID]; !ok {
			return fmt.Errorf("source chat: %w", domain.ErrNotFound)
		}
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = chat.CreatedAt
	}
	s.chats[chat.ID] = cloneChat(*chat)
	return nil
}

func (r *ChatRepository) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	c := cloneChat(chat)
	return &c, nil
}

func (r *ChatRepository) GetChatByShareID(ctx context.Context, shareID string) (*models.Chat, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chat := range s.chats {
		if chat.ShareID != nil && *chat.ShareID == shareID {
			c := cloneChat(chat)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("share %s: %w", shareID, domain.ErrNotFound)
}

func (r *ChatRepository) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := []models.Chat{}
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, cloneChat(chat))
		}
	}
	sort.SliceStable(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
	return chats, nil
}

func (r *ChatRepository) UpdateChat(ctx context.Context, chat *models.Chat) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.chats[chat.ID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chat.ID, domain.ErrNotFound)
	}
	if chat.ShareID != nil {
		for id, other := range s.chats {
			if id != chat.ID && other.ShareID != nil && *other.ShareID == *chat.ShareID {
				return fmt.Errorf("share id in use: %w", domain.ErrConflict)
			}
		}
	}
	existing.Title = chat.Title
	existing.ModelID = chat.ModelID
	existing.ShareID = clonePtr(chat.ShareID)
	existing.IsPublic = chat.IsPublic
	existing.UpdatedAt = chat.UpdatedAt
	s.chats[chat.ID] = existing
	return nil
}

func (r *ChatRepository) ClearBranchReferences(ctx context.Context, chatID string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachBranchesLocked(chatID), nil
}

func (r *ChatRepository) DeleteChat(ctx context.Context, chatID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	delete(s.chats, chatID)
	// ON DELETE CASCADE for messages, ON DELETE SET NULL for branch sources.
	for id, msg := range s.messages {
		if msg.ChatID == chatID {
			delete(s.messages, id)
		}
	}
	for id, chat := range s.chats {
		if chat.SourceChatID != nil && *chat.SourceChatID == chatID {
			chat.SourceChatID = nil
			s.chats[id] = chat
		}
	}
	return nil
}

func (s *Store) detachBranchesLocked(chatID string) int {
	n := 0
	for id, chat := range s.chats {
		if chat.SourceChatID != nil && *chat.SourceChatID == chatID {
			chat.SourceChatID = nil
			chat.BranchedFromMessageID = nil
			s.chats[id] = chat
			n++
		}
	}
	return n
}
