package adapters

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// OpenAIAdapter streams from any OpenAI-compatible chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
	name   string
}

// NewOpenAIAdapter creates an adapter. An empty baseURL uses the OpenAI API.
func NewOpenAIAdapter(name, apiKey, baseURL string) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		name:   name,
	}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Stream opens a chat completion stream. HTTP errors, including rejected
// keys, are reported by the opening request.
func (a *OpenAIAdapter) Stream(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
	})
	if err != nil {
		return nil, classifyError(a.name, openAIStatus(err), err)
	}

	out := make(chan domainllm.StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, out, domainllm.StreamEvent{Err: classifyError(a.name, openAIStatus(err), err)})
				}
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta
			if delta.ReasoningContent != "" {
				if !send(ctx, out, domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaReasoning, Text: delta.ReasoningContent}}) {
					return
				}
			}
			if delta.Content != "" {
				if !send(ctx, out, domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaContent, Text: delta.Content}}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func toOpenAIMessages(messages []domainllm.PromptMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAI {
			role = openai.ChatMessageRoleAssistant
		}
		if msg.ImageURL == nil || msg.Role != models.RoleUser {
			out[i] = openai.ChatCompletionMessage{Role: role, Content: msg.Content}
			continue
		}
		out[i] = openai.ChatCompletionMessage{
			Role: role,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: msg.Content},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: *msg.ImageURL}},
			},
		}
	}
	return out
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
