package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
)

func anthropicEvent(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func TestAnthropicAdapterStreamsThinkingAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "good" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		anthropicEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"test-model","content":[],"stop_reason":null,"usage":{"input_tokens":3,"output_tokens":1}}}`)
		anthropicEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"adding"}}`)
		anthropicEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		anthropicEvent(w, "content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"2+2 "}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"is 4"}}`)
		anthropicEvent(w, "content_block_stop", `{"type":"content_block_stop","index":1}`)
		anthropicEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`)
		anthropicEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("good", option.WithBaseURL(srv.URL), option.WithHTTPClient(srv.Client()))
	req := prompt("2+2?")
	req.Reasoning = true
	ch, err := a.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	content, reasoning, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if content != "2+2 is 4" || reasoning != "adding" {
		t.Errorf("content = %q, reasoning = %q", content, reasoning)
	}
}

func TestAnthropicAdapterRejectedKeyFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("bad", option.WithBaseURL(srv.URL), option.WithHTTPClient(srv.Client()), option.WithMaxRetries(0))
	ch, err := a.Stream(context.Background(), prompt("hi"))
	if ch != nil {
		t.Error("Stream() returned a channel for a rejected key")
	}
	if !errors.Is(err, domain.ErrUpstreamCredential) {
		t.Fatalf("Stream() error = %v, want ErrUpstreamCredential", err)
	}
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusUnauthorized || upstream.Provider != "anthropic" {
		t.Errorf("upstream error = %+v", upstream)
	}
}
