package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/service/llm"
)

// generation describes one streamed reply.
type generation struct {
	streamID string
	ownerID  string
	chatInfo *frame.ChatInfo
	model    string
	route    domainllm.Route
	prompt   []domainllm.PromptMessage
	opts     services.GenerationOptions

	// persisted generations write the AI reply to chatID, replying to replyTo
	persisted bool
	chatID    string
	replyTo   *models.Message

	// serverOnly ignores user keys
	serverOnly bool

	// compensate undoes this request's writes when generation fails
	compensate func(ctx context.Context) error
}

var errEmptyResponse = &domain.UpstreamError{
	Kind:    domain.ErrUpstreamTransient,
	Message: "The model returned an empty response. Please try again.",
}

// generate runs g as a registered stream. Frames go to sink in order:
// chat_info, key_usage, words, then complete or error.
func (s *Service) generate(ctx context.Context, g *generation, sink frame.Sink) error {
	streamID := newStreamID(g.streamID)
	logger := s.logger.With("stream_id", streamID, "model", g.model, "provider", g.route.Provider)

	err := s.streams.run(ctx, streamID, g.ownerID, sink, logger, func(ctx context.Context, out *output) error {
		if g.chatInfo != nil {
			out.emit(*g.chatInfo)
		}
		return s.stream(ctx, g, out)
	})
	if err == nil {
		return nil
	}

	var startErr *streamStartError
	if !errors.As(err, &startErr) {
		// The failure was reported in-band.
		return nil
	}
	logger.Warn("generation not started", "error", err)
	s.rollback(ctx, g, logger)
	return err
}

// stream runs the upstream generation and writes frames. It returns the
// failure that ended the stream, already reported as an error frame.
func (s *Service) stream(ctx context.Context, g *generation, out *output) error {
	prompt := g.prompt
	var results []models.SearchResult
	if g.opts.UseWebSearch {
		prompt, results = s.augmenter.Augment(ctx, prompt, g.opts.UserTavilyKey)
	}

	prompt = llm.FitHistory(prompt, g.route.PromptBudget)
	out.logger.Debug("prompt prepared",
		"messages", len(prompt),
		"estimated_tokens", llm.EstimatePromptTokens(prompt),
		"search_results", len(results),
	)

	req := &domainllm.GenerateRequest{
		Model:     g.route.UpstreamModel,
		Messages:  prompt,
		Reasoning: g.route.Reasoning,
	}

	events, source, err := s.open(ctx, g, req, out)
	if err != nil {
		return s.fail(ctx, g, out, err)
	}
	out.emit(frame.KeyUsage{Source: string(source)})

	var acc llm.Accumulator
	for {
		select {
		case <-ctx.Done():
			return s.fail(ctx, g, out, domain.ErrStreamInterrupted)

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return s.fail(ctx, g, out, domain.ErrStreamInterrupted)
				}
				return s.complete(ctx, g, out, &acc, results)
			}
			if ev.Err != nil {
				return s.fail(ctx, g, out, ev.Err)
			}
			if ev.Delta == nil || ev.Delta.Text == "" {
				continue
			}
			acc.Add(*ev.Delta)
			out.emit(deltaFrame(*ev.Delta))
		}
	}
}

// open resolves a credential and starts the upstream stream. A rejected
// user key is retried once with the server key.
func (s *Service) open(ctx context.Context, g *generation, req *domainllm.GenerateRequest, out *output) (<-chan domainllm.StreamEvent, domainllm.KeySource, error) {
	var (
		cred domainllm.Credential
		err  error
	)
	if g.serverOnly {
		var ok bool
		if cred, ok = s.router.ServerCredential(g.model); !ok {
			return nil, "", &domain.UpstreamError{
				Kind:     domain.ErrUpstreamCredential,
				Provider: g.route.Provider,
				Message:  "This model is not available in guest mode.",
			}
		}
	} else if cred, err = s.router.Resolve(g.model, g.opts.UserAPIKey); err != nil {
		return nil, "", err
	}

	events, err := s.startStream(ctx, cred, req)
	if err == nil {
		return events, cred.Source, nil
	}
	if cred.Source != domainllm.KeySourceUser || !errors.Is(err, domain.ErrUpstreamCredential) {
		return nil, "", err
	}

	fallback, ok := s.router.ServerCredential(g.model)
	if !ok {
		return nil, "", err
	}
	out.logger.Info("user key rejected, retrying with server key", "error", err)
	events, err = s.startStream(ctx, fallback, req)
	if err != nil {
		return nil, "", err
	}
	return events, fallback.Source, nil
}

func (s *Service) startStream(ctx context.Context, cred domainllm.Credential, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	gen, err := s.router.Generator(cred)
	if err != nil {
		return nil, err
	}
	return gen.Stream(ctx, req)
}

// complete persists the AI reply and emits the complete frame.
func (s *Service) complete(ctx context.Context, g *generation, out *output, acc *llm.Accumulator, results []models.SearchResult) error {
	content := acc.Content()
	reasoning := acc.Reasoning()
	if content == "" && reasoning == nil {
		return s.fail(ctx, g, out, errEmptyResponse)
	}

	reply := models.Message{
		ChatID:        g.chatID,
		Role:          models.RoleAI,
		Content:       content,
		Reasoning:     reasoning,
		ModelID:       g.model,
		UsedWebSearch: len(results) > 0,
		SearchResults: results,
	}
	if g.replyTo != nil {
		id := g.replyTo.ID
		reply.ReplyToID = &id
	}

	if g.persisted {
		if err := out.persist(func() error {
			return s.txManager.ExecTx(context.WithoutCancel(ctx), func(ctx context.Context) error {
				if err := s.messageRepo.CreateMessage(ctx, &reply); err != nil {
					return err
				}
				return s.touchChat(ctx, g.chatID, g.model, reply.CreatedAt)
			})
		}); err != nil {
			out.logger.Error("failed to persist AI message", "error", err, "chat_id", g.chatID)
			return s.fail(ctx, g, out, err)
		}
	} else {
		reply.ID = uuid.NewString()
		reply.CreatedAt = time.Now().UTC()
	}

	out.logger.Info("generation complete",
		"chat_id", g.chatID,
		"message_id", reply.ID,
		"deltas", acc.Deltas(),
		"content_length", len(content),
	)
	out.emit(frame.Complete{Message: reply})
	return nil
}

// fail undoes the request's writes, then reports err as an error frame
// and returns it. Storage is restored before the frame is written.
func (s *Service) fail(ctx context.Context, g *generation, out *output, err error) error {
	if ctx.Err() != nil && !errors.Is(err, domain.ErrStreamInterrupted) {
		err = errors.Join(domain.ErrStreamInterrupted, err)
	}
	if errors.Is(err, domain.ErrStreamInterrupted) {
		out.logger.Info("generation interrupted")
	} else {
		out.logger.Warn("generation failed", "error", err)
	}
	s.rollback(ctx, g, out.logger)
	out.emit(errorFrame(err))
	return err
}

// rollback runs g's compensation. The request context may already be
// done, so it runs without it.
func (s *Service) rollback(ctx context.Context, g *generation, logger *slog.Logger) {
	if g.compensate == nil {
		return
	}
	if err := s.txManager.ExecTx(context.WithoutCancel(ctx), g.compensate); err != nil {
		logger.Error("failed to roll back after generation error", "error", err)
	}
}

func deltaFrame(d domainllm.Delta) frame.Event {
	switch d.Kind {
	case domainllm.DeltaReasoning:
		return frame.ReasoningWord{Content: d.Text}
	case domainllm.DeltaThought:
		return frame.ThoughtWord{Content: d.Text}
	default:
		return frame.ContentWord{Content: d.Text}
	}
}

// errorFrame converts err into a frame that is safe to show to end users.
func errorFrame(err error) frame.Error {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrStreamInterrupted):
		return frame.Error{Message: "Generation stopped.", Code: frame.CodeInterrupted}
	case errors.As(err, &upstream):
		code := frame.CodeUpstream
		if errors.Is(upstream, domain.ErrUpstreamCredential) {
			code = frame.CodeCredential
		}
		return frame.Error{Message: upstream.Message, Code: code}
	default:
		return frame.Error{Message: "Something went wrong while generating the response.", Code: frame.CodeInternal}
	}
}
