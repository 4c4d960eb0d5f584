package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// per-message framing overhead in chat formats
const messageOverheadTokens = 4

// getCodec returns the cl100k_base tokenizer.
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for text. Falls back to
// four bytes per token when the codec is unavailable.
func EstimateTokens(text string) int {
	c, err := getCodec()
	if err == nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

// EstimatePromptTokens sums EstimateTokens over messages.
func EstimatePromptTokens(messages []domainllm.PromptMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + messageOverheadTokens
	}
	return total
}

// FitHistory drops the oldest messages until the estimate fits budget. The
// last message is always kept. A budget <= 0 disables trimming.
func FitHistory(messages []domainllm.PromptMessage, budget int) []domainllm.PromptMessage {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content) + messageOverheadTokens
		if used+cost > budget && i < len(messages)-1 {
			break
		}
		used += cost
		start = i
	}
	return messages[start:]
}
