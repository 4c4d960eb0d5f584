package adapters

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

const (
	anthropicMaxTokens      = 8192
	anthropicThinkingBudget = 4096
)

// AnthropicAdapter streams Claude models through the Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates an adapter authenticated with apiKey. opts
// are appended after the key, e.g. option.WithBaseURL in tests.
func NewAnthropicAdapter(apiKey string, opts ...option.RequestOption) *AnthropicAdapter {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Stream opens a message stream. The first event is read before returning
// so a rejected key fails the call instead of the stream.
func (a *AnthropicAdapter) Stream(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: anthropicMaxTokens,
	}
	if req.Reasoning {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(anthropicThinkingBudget)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = errors.New("stream closed before the first event")
		}
		return nil, classifyError(a.Name(), anthropicStatus(err), err)
	}

	out := make(chan domainllm.StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			if ev, ok := fromAnthropicEvent(stream.Current()); ok {
				if !send(ctx, out, ev) {
					return
				}
			}
			if !stream.Next() {
				break
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(ctx, out, domainllm.StreamEvent{Err: classifyError(a.Name(), anthropicStatus(err), err)})
		}
	}()
	return out, nil
}

// fromAnthropicEvent keeps text and thinking deltas; every other event is
// bookkeeping.
func fromAnthropicEvent(event anthropic.MessageStreamEventUnion) (domainllm.StreamEvent, bool) {
	e, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
	if !ok {
		return domainllm.StreamEvent{}, false
	}
	switch e.Delta.Type {
	case "text_delta":
		if e.Delta.Text != "" {
			return domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaContent, Text: e.Delta.Text}}, true
		}
	case "thinking_delta":
		if e.Delta.Thinking != "" {
			return domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaReasoning, Text: e.Delta.Thinking}}, true
		}
	}
	return domainllm.StreamEvent{}, false
}

func toAnthropicMessages(messages []domainllm.PromptMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleAI {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		if msg.ImageURL != nil {
			if mimeType, data, ok := parseDataURL(*msg.ImageURL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mimeType, data))
			}
		}
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
