package llm

import (
	"strings"

	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// Accumulator folds streamed deltas into the final content and reasoning.
// Thought and reasoning deltas share one buffer.
//
// Not thread-safe; owned by the goroutine draining the stream.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	deltas    int
}

// Add appends one delta.
func (a *Accumulator) Add(d domainllm.Delta) {
	a.deltas++
	switch d.Kind {
	case domainllm.DeltaReasoning, domainllm.DeltaThought:
		a.reasoning.WriteString(d.Text)
	default:
		a.content.WriteString(d.Text)
	}
}

// Content returns the accumulated content.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Reasoning returns the accumulated reasoning, or nil when none was streamed.
func (a *Accumulator) Reasoning() *string {
	if a.reasoning.Len() == 0 {
		return nil
	}
	s := a.reasoning.String()
	return &s
}

// Deltas returns how many deltas were added.
func (a *Accumulator) Deltas() int {
	return a.deltas
}
