package client

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/iotest"
	"time"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingHandler keeps every callback it receives.
type recordingHandler struct {
	infos     []frame.ChatInfo
	snapshots []Accumulator
	sources   []string
	completed []models.Message
}

func (h *recordingHandler) OnChatInfo(_ string, info frame.ChatInfo) {
	h.infos = append(h.infos, info)
}

func (h *recordingHandler) OnSnapshot(_ string, acc Accumulator) {
	h.snapshots = append(h.snapshots, acc)
}

func (h *recordingHandler) OnKeyUsage(_ string, source string) {
	h.sources = append(h.sources, source)
}

func (h *recordingHandler) OnComplete(_ string, msg models.Message) {
	h.completed = append(h.completed, msg)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func encodeFrames(t *testing.T, events ...frame.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	for _, ev := range events {
		if err := w.Send(ev); err != nil {
			t.Fatalf("Send(%T): %v", ev, err)
		}
	}
	return buf.Bytes()
}

func TestReaderAccumulatesSnapshots(t *testing.T) {
	final := models.Message{ID: "a1", Role: models.RoleAI, Content: "Hello", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	data := encodeFrames(t,
		frame.ChatInfo{Chat: &models.Chat{ID: "c1"}},
		frame.KeyUsage{Source: frame.KeySourceServerDefault},
		frame.ReasoningWord{Content: "th"},
		frame.ThoughtWord{Content: "ink"},
		frame.ContentWord{Content: "Hel"},
		frame.ContentWord{Content: "lo"},
		frame.Complete{Message: final},
	)
	body := &closeTracker{Reader: bytes.NewReader(data)}
	h := &recordingHandler{}

	msg, err := NewReader(discardLogger()).Read(body, "p1", h)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if msg.ID != "a1" || msg.Content != "Hello" {
		t.Errorf("Read() = %+v, want confirmed message a1", msg)
	}
	if !body.closed {
		t.Error("body was not closed")
	}

	want := []Accumulator{
		{Reasoning: "th"},
		{Reasoning: "think"},
		{Content: "Hel", Reasoning: "think"},
		{Content: "Hello", Reasoning: "think"},
	}
	if len(h.snapshots) != len(want) {
		t.Fatalf("got %d snapshots, want %d", len(h.snapshots), len(want))
	}
	for i := range want {
		if h.snapshots[i] != want[i] {
			t.Errorf("snapshot %d = %+v, want %+v", i, h.snapshots[i], want[i])
		}
	}
	if len(h.infos) != 1 || h.infos[0].Chat.ID != "c1" {
		t.Errorf("chat infos = %+v", h.infos)
	}
	if len(h.sources) != 1 || h.sources[0] != frame.KeySourceServerDefault {
		t.Errorf("key usage = %v", h.sources)
	}
	if len(h.completed) != 1 {
		t.Errorf("OnComplete called %d times, want 1", len(h.completed))
	}
}

func TestReaderMultibyteOneByteAtATime(t *testing.T) {
	data := encodeFrames(t,
		frame.ContentWord{Content: "héllo "},
		frame.ContentWord{Content: "wörld 👋"},
		frame.Complete{Message: models.Message{ID: "a1", Content: "héllo wörld 👋"}},
	)
	body := io.NopCloser(iotest.OneByteReader(bytes.NewReader(data)))
	h := &recordingHandler{}

	if _, err := NewReader(discardLogger()).Read(body, "p1", h); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	last := h.snapshots[len(h.snapshots)-1]
	if last.Content != "héllo wörld 👋" {
		t.Errorf("content = %q, want %q", last.Content, "héllo wörld 👋")
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantCode string
	}{
		{
			name:     "error frame",
			data:     encodeFrames(t, frame.ContentWord{Content: "par"}, frame.Error{Message: "Model unavailable", Code: frame.CodeUpstream}),
			wantCode: frame.CodeUpstream,
		},
		{
			name:     "interrupted",
			data:     encodeFrames(t, frame.Error{Message: "Generation stopped", Code: frame.CodeInterrupted}),
			wantCode: frame.CodeInterrupted,
		},
		{
			name:     "eof before terminal frame",
			data:     encodeFrames(t, frame.ContentWord{Content: "partial"}),
			wantCode: CodeTruncated,
		},
		{
			name:     "empty body",
			data:     nil,
			wantCode: CodeTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &closeTracker{Reader: bytes.NewReader(tt.data)}
			h := &recordingHandler{}

			msg, err := NewReader(discardLogger()).Read(body, "p1", h)
			if msg != nil {
				t.Errorf("Read() message = %+v, want nil", msg)
			}
			var streamErr *StreamError
			if !errors.As(err, &streamErr) {
				t.Fatalf("Read() error = %v, want *StreamError", err)
			}
			if streamErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", streamErr.Code, tt.wantCode)
			}
			if streamErr.Message == "" {
				t.Error("StreamError has no message")
			}
			if len(h.completed) != 0 {
				t.Error("OnComplete called for a failed stream")
			}
			if !body.closed {
				t.Error("body was not closed")
			}
		})
	}
}

func TestReaderReadFailure(t *testing.T) {
	data := encodeFrames(t, frame.ContentWord{Content: "abc"})
	broken := errors.New("connection reset")
	body := io.NopCloser(io.MultiReader(bytes.NewReader(data), iotest.ErrReader(broken)))

	_, err := NewReader(discardLogger()).Read(body, "p1", &recordingHandler{})
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != CodeTruncated {
		t.Fatalf("Read() error = %v, want truncated StreamError", err)
	}
	if !errors.Is(err, broken) {
		t.Errorf("Read() error does not wrap the read failure: %v", err)
	}
}
