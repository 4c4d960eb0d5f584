package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	mstream "github.com/haowjy/meridian-stream-go"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/service/llm"
)

// Service implements the SessionService interface
type Service struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	txManager   repositories.TransactionManager
	authorizer  services.ResourceAuthorizer
	router      domainllm.ProviderRouter
	augmenter   *llm.Augmenter
	streams     *streams
	config      *config.Config
	logger      *slog.Logger
}

// NewService creates a new session service
func NewService(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	txManager repositories.TransactionManager,
	authorizer services.ResourceAuthorizer,
	router domainllm.ProviderRouter,
	augmenter *llm.Augmenter,
	registry *mstream.Registry,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		authorizer:  authorizer,
		router:      router,
		augmenter:   augmenter,
		streams:     newStreams(registry, cfg.Debug),
		config:      cfg,
		logger:      logger,
	}
}

var _ services.SessionService = (*Service)(nil)

// Send persists the user message, creating the chat when needed, and
// streams the reply.
func (s *Service) Send(ctx context.Context, req *services.SendRequest, sink frame.Sink) error {
	if err := validateSendRequest(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	att, err := decodeAttachment(req.FileData, req.FileMime, req.FileName)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	var history []models.Message
	if req.ChatID != "" {
		if err := s.authorizer.CanAccessChat(ctx, req.UserID, req.ChatID); err != nil {
			return err
		}
		history, err = s.messageRepo.ListMessages(ctx, req.ChatID)
		if err != nil {
			return err
		}
	}

	var (
		chat    *models.Chat
		created bool
		userMsg *models.Message
	)
	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		if req.ChatID == "" {
			chat = &models.Chat{
				UserID:    req.UserID,
				Title:     models.DefaultChatTitle(strings.TrimSpace(prompt)),
				ModelID:   req.ModelID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.chatRepo.CreateChat(ctx, chat); err != nil {
				return fmt.Errorf("create chat: %w", err)
			}
			created = true
		} else {
			var err error
			if chat, err = s.chatRepo.GetChat(ctx, req.ChatID); err != nil {
				return err
			}
		}

		userMsg = &models.Message{
			ChatID:   chat.ID,
			Role:     models.RoleUser,
			Content:  prompt,
			ImageURL: att.imageURL,
			File:     att.file,
			ModelID:  req.ModelID,
		}
		if err := s.messageRepo.CreateMessage(ctx, userMsg); err != nil {
			return fmt.Errorf("create user message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("user message persisted",
		"chat_id", chat.ID,
		"message_id", userMsg.ID,
		"new_chat", created,
		"user_id", req.UserID,
	)

	info := frame.ChatInfo{UserMessage: userMsg}
	if created {
		info.Chat = chat
	}

	route := s.router.Route(req.ModelID)
	current := toPrompt(*userMsg, route.Vision)
	current.Content += att.text

	g := &generation{
		streamID:  req.StreamID,
		ownerID:   req.UserID,
		chatInfo:  &info,
		model:     req.ModelID,
		route:     route,
		prompt:    append(buildPrompt(history, route.Vision), current),
		opts:      req.GenerationOptions,
		chatID:    chat.ID,
		replyTo:   userMsg,
		persisted: true,
		compensate: func(ctx context.Context) error {
			if created {
				return s.chatRepo.DeleteChat(ctx, chat.ID)
			}
			return s.messageRepo.DeleteMessages(ctx, chat.ID, []string{userMsg.ID})
		},
	}
	return s.generate(ctx, g, sink)
}

// EditAndResubmit replaces a user message's content, discards everything
// after it and streams a new reply.
func (s *Service) EditAndResubmit(ctx context.Context, req *services.EditRequest, sink frame.Sink) error {
	if err := validateEditRequest(req, true); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return s.resubmit(ctx, req, sink, true)
}

// Regenerate discards the reply to a user message and streams a new one.
// MessageID may name the user message or its AI reply.
func (s *Service) Regenerate(ctx context.Context, req *services.EditRequest, sink frame.Sink) error {
	if err := validateEditRequest(req, false); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return s.resubmit(ctx, req, sink, false)
}

func (s *Service) resubmit(ctx context.Context, req *services.EditRequest, sink frame.Sink, edit bool) error {
	if err := s.authorizer.CanAccessChat(ctx, req.UserID, req.ChatID); err != nil {
		return err
	}

	var (
		anchor  models.Message
		history []models.Message
	)
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		messages, err := s.messageRepo.ListMessages(ctx, req.ChatID)
		if err != nil {
			return err
		}
		idx := models.IndexOf(messages, req.MessageID)
		if idx < 0 {
			return fmt.Errorf("message %s in chat %s: %w", req.MessageID, req.ChatID, domain.ErrNotFound)
		}
		if messages[idx].Role == models.RoleAI {
			if edit {
				return fmt.Errorf("%w: only user messages can be edited", domain.ErrValidation)
			}
			if idx = models.FindPrompt(messages, idx); idx < 0 {
				return fmt.Errorf("%w: reply has no prompt to regenerate from", domain.ErrValidation)
			}
		}

		var discard []string
		for _, m := range messages[idx+1:] {
			discard = append(discard, m.ID)
		}
		if len(discard) > 0 {
			if err := s.messageRepo.DeleteMessages(ctx, req.ChatID, discard); err != nil {
				return fmt.Errorf("truncate history: %w", err)
			}
		}

		anchor = messages[idx]
		if edit {
			anchor.Content = strings.TrimSpace(*req.NewContent)
			anchor.EditCount++
			if err := s.messageRepo.UpdateMessage(ctx, &anchor); err != nil {
				return fmt.Errorf("update message: %w", err)
			}
		}
		history = messages[:idx]
		s.logger.Info("history truncated",
			"chat_id", req.ChatID,
			"message_id", anchor.ID,
			"discarded", len(discard),
			"edit", edit,
		)
		return nil
	})
	if err != nil {
		return err
	}

	route := s.router.Route(req.ModelID)
	g := &generation{
		streamID:  req.StreamID,
		ownerID:   req.UserID,
		chatInfo:  &frame.ChatInfo{UserMessage: &anchor},
		model:     req.ModelID,
		route:     route,
		prompt:    append(buildPrompt(history, route.Vision), toPrompt(anchor, route.Vision)),
		opts:      req.GenerationOptions,
		chatID:    req.ChatID,
		replyTo:   &anchor,
		persisted: true,
	}
	return s.generate(ctx, g, sink)
}

// GuestStream streams a reply for an unauthenticated caller. Nothing is
// persisted and only server keys are used.
func (s *Service) GuestStream(ctx context.Context, req *services.GuestRequest, sink frame.Sink) error {
	if !s.config.GuestEnabled {
		return fmt.Errorf("guest mode disabled: %w", domain.ErrForbidden)
	}
	if err := validateGuestRequest(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	route := s.router.Route(req.ModelID)
	prompt := make([]domainllm.PromptMessage, 0, len(req.Messages))
	for _, m := range trimHistory(req.Messages, config.MaxHistoryMessages) {
		prompt = append(prompt, domainllm.PromptMessage{Role: m.Role, Content: m.Content})
	}

	g := &generation{
		streamID:   req.StreamID,
		model:      req.ModelID,
		route:      route,
		prompt:     prompt,
		opts:       services.GenerationOptions{ModelID: req.ModelID},
		serverOnly: true,
	}
	return s.generate(ctx, g, sink)
}

// Interrupt cancels a running generation owned by userID.
func (s *Service) Interrupt(ctx context.Context, userID, streamID string) error {
	found, allowed := s.streams.cancel(streamID, userID)
	if !found {
		return fmt.Errorf("stream %s: %w", streamID, domain.ErrNotFound)
	}
	if !allowed {
		return fmt.Errorf("stream %s: %w", streamID, domain.ErrForbidden)
	}
	s.logger.Info("stream interrupted", "stream_id", streamID, "user_id", userID)
	return nil
}

// touchChat records the model of a completed reply and bumps updated_at.
func (s *Service) touchChat(ctx context.Context, chatID, modelID string, at time.Time) error {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	chat.ModelID = modelID
	chat.UpdatedAt = at
	if err := s.chatRepo.UpdateChat(ctx, chat); err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return nil
}

// buildPrompt converts stored history, newest last, into prompt messages.
func buildPrompt(history []models.Message, vision bool) []domainllm.PromptMessage {
	history = trimHistory(history, config.MaxHistoryMessages-1)
	prompt := make([]domainllm.PromptMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role == models.RoleAI && m.Content == "" {
			continue
		}
		prompt = append(prompt, toPrompt(m, vision))
	}
	return prompt
}

func toPrompt(m models.Message, vision bool) domainllm.PromptMessage {
	p := domainllm.PromptMessage{Role: m.Role, Content: m.Content}
	if vision && m.ImageURL != nil {
		img := *m.ImageURL
		p.ImageURL = &img
	}
	return p
}

func trimHistory[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}

func newStreamID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Validation methods

func validateSendRequest(req *services.SendRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Messages, validation.Required, validation.Each(validation.By(validateClientMessage))),
		validation.Field(&req.FileMime, validation.When(req.FileData != "", validation.Required)),
	); err != nil {
		return err
	}
	if err := validateOptions(&req.GenerationOptions); err != nil {
		return err
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != models.RoleUser {
		return fmt.Errorf("last message must have role %q", models.RoleUser)
	}
	if strings.TrimSpace(last.Content) == "" && req.FileData == "" {
		return fmt.Errorf("message content cannot be blank")
	}
	return nil
}

func validateEditRequest(req *services.EditRequest, edit bool) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.MessageID, validation.Required),
		validation.Field(&req.NewContent,
			validation.When(edit, validation.Required),
			validation.By(maxLength(config.MaxMessageLength)),
		),
	); err != nil {
		return err
	}
	if edit && strings.TrimSpace(*req.NewContent) == "" {
		return fmt.Errorf("newContent: cannot be blank")
	}
	return validateOptions(&req.GenerationOptions)
}

func validateGuestRequest(req *services.GuestRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ModelID, validation.Required),
		validation.Field(&req.Messages, validation.Required, validation.Each(validation.By(validateClientMessage))),
	); err != nil {
		return err
	}
	if req.Messages[len(req.Messages)-1].Role != models.RoleUser {
		return fmt.Errorf("last message must have role %q", models.RoleUser)
	}
	return nil
}

func validateOptions(opts *services.GenerationOptions) error {
	return validation.ValidateStruct(opts,
		validation.Field(&opts.ModelID, validation.Required),
	)
}

func validateClientMessage(value interface{}) error {
	m, ok := value.(services.ClientMessage)
	if !ok {
		return fmt.Errorf("invalid message")
	}
	if m.Role != models.RoleUser && m.Role != models.RoleAI {
		return fmt.Errorf("role must be %q or %q", models.RoleUser, models.RoleAI)
	}
	if len(m.Content) > config.MaxMessageLength {
		return fmt.Errorf("content exceeds %d bytes", config.MaxMessageLength)
	}
	return nil
}

func maxLength(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(*string)
		if !ok || s == nil {
			return nil
		}
		if len(*s) > n {
			return fmt.Errorf("content exceeds %d bytes", n)
		}
		return nil
	}
}
