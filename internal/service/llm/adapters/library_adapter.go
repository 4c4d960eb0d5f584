package adapters

import (
	"context"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/haowjy/meridian-llm-go/providers/lorem"
	"github.com/haowjy/meridian-llm-go/providers/openrouter"

	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// LibraryAdapter wraps a meridian-llm-go provider as a Generator.
type LibraryAdapter struct {
	provider llmprovider.Provider
	name     string
}

// NewOpenRouterAdapter creates an adapter for OpenRouter with apiKey.
func NewOpenRouterAdapter(apiKey string) (*LibraryAdapter, error) {
	provider, err := openrouter.NewProvider(apiKey)
	if err != nil {
		return nil, classifyError("openrouter", 0, err)
	}
	return &LibraryAdapter{provider: provider, name: "openrouter"}, nil
}

// NewLoremAdapter creates an adapter for the offline lorem provider.
func NewLoremAdapter() *LibraryAdapter {
	return &LibraryAdapter{provider: lorem.NewProvider(), name: "lorem"}
}

// NewLibraryAdapter wraps an existing provider.
func NewLibraryAdapter(name string, provider llmprovider.Provider) *LibraryAdapter {
	return &LibraryAdapter{provider: provider, name: name}
}

// Name returns the provider name.
func (a *LibraryAdapter) Name() string {
	return a.name
}

// Stream opens a streaming completion. The first upstream event is read
// before returning so a rejected key surfaces as an error from Stream
// rather than mid-stream.
func (a *LibraryAdapter) Stream(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	libEventCh, err := a.provider.StreamResponse(ctx, convertToLibraryRequest(req))
	if err != nil {
		return nil, classifyError(a.name, 0, err)
	}

	// Peek until the first forwardable event or the end of the stream.
	var first *domainllm.StreamEvent
	for first == nil {
		select {
		case <-ctx.Done():
			go drain(libEventCh)
			return nil, ctx.Err()
		case libEvent, open := <-libEventCh:
			if !open {
				ch := make(chan domainllm.StreamEvent)
				close(ch)
				return ch, nil
			}
			ev, ok := convertFromLibraryEvent(a.name, libEvent)
			if !ok {
				continue
			}
			if ev.Err != nil && isCredential(ev.Err) {
				go drain(libEventCh)
				return nil, ev.Err
			}
			first = &ev
		}
	}

	out := make(chan domainllm.StreamEvent)
	go func() {
		defer close(out)
		if !send(ctx, out, *first) || first.Err != nil {
			go drain(libEventCh)
			return
		}
		for libEvent := range libEventCh {
			if ctx.Err() != nil {
				go drain(libEventCh)
				return
			}
			ev, ok := convertFromLibraryEvent(a.name, libEvent)
			if !ok {
				continue
			}
			if !send(ctx, out, ev) || ev.Err != nil {
				go drain(libEventCh)
				return
			}
		}
	}()
	return out, nil
}

// send delivers ev unless ctx is cancelled first.
func send(ctx context.Context, out chan<- domainllm.StreamEvent, ev domainllm.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain consumes a producer's remaining events so it can exit.
func drain[T any](ch <-chan T) {
	for range ch {
	}
}
