package adapters

import (
	"encoding/base64"
	"strings"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// convertToLibraryRequest converts a backend request to the meridian-llm-go
// shape. Image attachments are not forwarded on this path.
func convertToLibraryRequest(req *domainllm.GenerateRequest) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, len(req.Messages))
	for i, msg := range req.Messages {
		text := msg.Content
		messages[i] = llmprovider.Message{
			Role: libraryRole(msg.Role),
			Blocks: []*llmprovider.Block{{
				BlockType:   "text",
				Sequence:    0,
				TextContent: &text,
			}},
		}
	}

	return &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    req.Model,
	}
}

func libraryRole(role models.Role) string {
	if role == models.RoleAI {
		return "assistant"
	}
	return "user"
}

// convertFromLibraryEvent maps a library event to a backend event. ok is
// false for events that carry nothing to forward (metadata, tool deltas).
func convertFromLibraryEvent(provider string, event llmprovider.StreamEvent) (domainllm.StreamEvent, bool) {
	if event.Error != nil {
		return domainllm.StreamEvent{Err: classifyError(provider, 0, event.Error)}, true
	}
	d := event.Delta
	if d == nil || d.TextDelta == nil || *d.TextDelta == "" {
		return domainllm.StreamEvent{}, false
	}
	switch d.DeltaType {
	case "text_delta":
		return domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaContent, Text: *d.TextDelta}}, true
	case "thinking_delta":
		return domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaReasoning, Text: *d.TextDelta}}, true
	}
	return domainllm.StreamEvent{}, false
}

// parseDataURL splits "data:<mime>;base64,<payload>". ok is false for other URLs.
func parseDataURL(url string) (mimeType, payload string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		data = base64.StdEncoding.EncodeToString([]byte(data))
	}
	return mimeType, data, true
}
