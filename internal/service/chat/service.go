package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
)

// Service implements the ChatService interface
type Service struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	txManager   repositories.TransactionManager
	authorizer  services.ResourceAuthorizer
	logger      *slog.Logger
}

// NewService creates a new chat service
func NewService(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	txManager repositories.TransactionManager,
	authorizer services.ResourceAuthorizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		authorizer:  authorizer,
		logger:      logger,
	}
}

var _ services.ChatService = (*Service)(nil)

// ListChats retrieves the user's chats
func (s *Service) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.chatRepo.ListChats(ctx, userID)
}

// GetChat retrieves a chat with its messages
func (s *Service) GetChat(ctx context.Context, chatID, userID string) (*models.ChatWithMessages, error) {
	if err := s.authorizer.CanAccessChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.loadChat(ctx, chatID)
}

func (s *Service) loadChat(ctx context.Context, chatID string) (*models.ChatWithMessages, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &models.ChatWithMessages{Chat: *chat, Messages: messages}, nil
}

// UpdateChat updates a chat's title and/or model
func (s *Service) UpdateChat(ctx context.Context, chatID, userID string, req *services.UpdateChatRequest) (*models.Chat, error) {
	if err := validateUpdateChatRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.authorizer.CanAccessChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		chat.Title = strings.TrimSpace(*req.Title)
	}
	if req.ModelID != nil {
		chat.ModelID = strings.TrimSpace(*req.ModelID)
	}
	chat.UpdatedAt = time.Now().UTC()

	if err := s.chatRepo.UpdateChat(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat updated",
		"id", chat.ID,
		"title", chat.Title,
		"model_id", chat.ModelID,
		"user_id", userID,
	)
	return chat, nil
}

// DeleteChat deletes a chat, promoting its branches to top-level chats
func (s *Service) DeleteChat(ctx context.Context, chatID, userID string) error {
	if err := s.authorizer.CanAccessChat(ctx, userID, chatID); err != nil {
		return err
	}

	var promoted int
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		promoted, err = s.chatRepo.ClearBranchReferences(ctx, chatID)
		if err != nil {
			return fmt.Errorf("clear branch references: %w", err)
		}
		return s.chatRepo.DeleteChat(ctx, chatID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("chat deleted",
		"id", chatID,
		"promoted_branches", promoted,
		"user_id", userID,
	)
	return nil
}

// DeleteMessage deletes a message and the AI reply that follows a user message.
// The chat is deleted when nothing is left in it.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string) (*services.DeleteMessageResult, error) {
	if err := s.authorizer.CanAccessMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}

	result := &services.DeleteMessageResult{}
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		msg, err := s.messageRepo.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		messages, err := s.messageRepo.ListMessages(ctx, msg.ChatID)
		if err != nil {
			return err
		}

		idx := models.IndexOf(messages, messageID)
		result.DeletedIDs = []string{messageID}
		if reply := models.FindReply(messages, idx); reply >= 0 {
			result.DeletedIDs = append(result.DeletedIDs, messages[reply].ID)
		}
		if err := s.messageRepo.DeleteMessages(ctx, msg.ChatID, result.DeletedIDs); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}

		if len(messages) > len(result.DeletedIDs) {
			return nil
		}
		if _, err := s.chatRepo.ClearBranchReferences(ctx, msg.ChatID); err != nil {
			return fmt.Errorf("clear branch references: %w", err)
		}
		if err := s.chatRepo.DeleteChat(ctx, msg.ChatID); err != nil {
			return err
		}
		result.ChatDeleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("message deleted",
		"id", messageID,
		"deleted", len(result.DeletedIDs),
		"chat_deleted", result.ChatDeleted,
		"user_id", userID,
	)
	return result, nil
}

// Branch creates a new chat holding copies of the source chat's messages up
// to and including the cutoff AI message.
func (s *Service) Branch(ctx context.Context, userID string, req *services.BranchRequest) (*models.Chat, error) {
	if err := validateBranchRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.authorizer.CanAccessChat(ctx, userID, req.SourceChatID); err != nil {
		return nil, err
	}

	var branch *models.Chat
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		source, err := s.loadChat(ctx, req.SourceChatID)
		if err != nil {
			return err
		}

		cutoff := models.IndexOf(source.Messages, req.FromAIMessageID)
		if cutoff < 0 {
			return fmt.Errorf("message %s in chat %s: %w", req.FromAIMessageID, req.SourceChatID, domain.ErrNotFound)
		}
		if source.Messages[cutoff].Role != models.RoleAI {
			return fmt.Errorf("%w: branch point must be an AI message", domain.ErrValidation)
		}

		modelID := strings.TrimSpace(req.NewModelID)
		if modelID == "" {
			modelID = source.ModelID
		}
		now := time.Now().UTC()
		branch = &models.Chat{
			UserID:                userID,
			Title:                 source.Title,
			ModelID:               modelID,
			SourceChatID:          &source.ID,
			BranchedFromMessageID: &req.FromAIMessageID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := s.chatRepo.CreateChat(ctx, branch); err != nil {
			return fmt.Errorf("create branch: %w", err)
		}

		for _, msg := range copyPrefix(source.Messages[:cutoff+1], branch.ID) {
			if err := s.messageRepo.CreateMessage(ctx, &msg); err != nil {
				return fmt.Errorf("copy message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat branched",
		"id", branch.ID,
		"source_chat_id", req.SourceChatID,
		"from_message_id", req.FromAIMessageID,
		"user_id", userID,
	)
	return branch, nil
}

// copyPrefix returns independent copies of messages for chatID with fresh
// ids. Reply references inside the prefix follow the new ids; creation times
// are preserved so the copy sorts like the source.
func copyPrefix(messages []models.Message, chatID string) []models.Message {
	ids := make(map[string]string, len(messages))
	for _, msg := range messages {
		ids[msg.ID] = uuid.NewString()
	}

	out := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		c := msg
		c.ID = ids[msg.ID]
		c.ChatID = chatID
		c.Seq = 0
		if msg.ImageURL != nil {
			v := *msg.ImageURL
			c.ImageURL = &v
		}
		if msg.Reasoning != nil {
			v := *msg.Reasoning
			c.Reasoning = &v
		}
		if msg.File != nil {
			f := *msg.File
			c.File = &f
		}
		if msg.SearchResults != nil {
			c.SearchResults = append([]models.SearchResult(nil), msg.SearchResults...)
		}
		c.ReplyToID = nil
		if msg.ReplyToID != nil {
			if mapped, ok := ids[*msg.ReplyToID]; ok {
				c.ReplyToID = &mapped
			}
		}
		out = append(out, c)
	}
	return out
}

// ShareChat makes a chat public, minting a share id on first use
func (s *Service) ShareChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if err := s.authorizer.CanAccessChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.ShareID == nil {
		shareID := uuid.NewString()
		chat.ShareID = &shareID
	}
	chat.IsPublic = true
	chat.UpdatedAt = time.Now().UTC()
	if err := s.chatRepo.UpdateChat(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat shared", "id", chatID, "share_id", *chat.ShareID, "user_id", userID)
	return chat, nil
}

// UnshareChat makes a chat private again
func (s *Service) UnshareChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	if err := s.authorizer.CanAccessChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	chat.IsPublic = false
	chat.UpdatedAt = time.Now().UTC()
	if err := s.chatRepo.UpdateChat(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat unshared", "id", chatID, "user_id", userID)
	return chat, nil
}

// GetSharedChat returns a public chat without owner details
func (s *Service) GetSharedChat(ctx context.Context, shareID string) (*models.ChatWithMessages, error) {
	chat, err := s.chatRepo.GetChatByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !chat.IsPublic {
		return nil, fmt.Errorf("share %s: %w", shareID, domain.ErrNotFound)
	}
	shared, err := s.loadChat(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("share %s: %w", shareID, domain.ErrNotFound)
		}
		return nil, err
	}
	shared.UserID = ""
	return shared, nil
}

// Validation methods

func validateUpdateChatRequest(req *services.UpdateChatRequest) error {
	if req.Title == nil && req.ModelID == nil {
		return errors.New("nothing to update")
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.NilOrNotEmpty,
			validation.By(trimmedLength(1, config.MaxChatTitleLength)),
		),
		validation.Field(&req.ModelID, validation.NilOrNotEmpty),
	)
}

func validateBranchRequest(req *services.BranchRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.SourceChatID, validation.Required),
		validation.Field(&req.FromAIMessageID, validation.Required),
	)
}

// trimmedLength checks the rune length of a *string after trimming spaces.
func trimmedLength(lo, hi int) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(*string)
		if !ok || s == nil {
			return nil
		}
		n := len([]rune(strings.TrimSpace(*s)))
		if n < lo || n > hi {
			return fmt.Errorf("the length must be between %d and %d", lo, hi)
		}
		return nil
	}
}
