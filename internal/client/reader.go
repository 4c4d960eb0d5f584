package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

// CodeTruncated marks a stream that ended without a terminal frame.
const CodeTruncated = "truncated"

// Accumulator is the text received so far for one placeholder.
type Accumulator struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// Handler receives decoded frames for one stream, in order.
type Handler interface {
	OnChatInfo(placeholderID string, info frame.ChatInfo)
	// OnSnapshot is called after every fragment with the full text so far.
	OnSnapshot(placeholderID string, acc Accumulator)
	OnKeyUsage(placeholderID string, source string)
	OnComplete(placeholderID string, msg models.Message)
}

// StreamError ends a stream that did not complete. Message is fit for end
// users.
type StreamError struct {
	Message string
	Code    string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Reader consumes a framed response body.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a Reader. Malformed frames are logged to logger and
// skipped.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

// Read dispatches frames from body to h until a terminal frame and returns
// the confirmed AI message. An error frame, a read failure, or EOF before a
// terminal frame returns a *StreamError. body is always closed.
func (r *Reader) Read(body io.ReadCloser, placeholderID string, h Handler) (*models.Message, error) {
	defer body.Close()

	sc := frame.NewScanner(body, r.logger)
	var acc Accumulator
	for {
		ev, err := sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &StreamError{Message: "The response ended unexpectedly.", Code: CodeTruncated}
			}
			return nil, &StreamError{Message: "The connection was interrupted.", Code: CodeTruncated, Cause: err}
		}

		switch e := ev.(type) {
		case frame.ChatInfo:
			h.OnChatInfo(placeholderID, e)
		case frame.ContentWord:
			acc.Content += e.Content
			h.OnSnapshot(placeholderID, acc)
		case frame.ReasoningWord:
			acc.Reasoning += e.Content
			h.OnSnapshot(placeholderID, acc)
		case frame.ThoughtWord:
			acc.Reasoning += e.Content
			h.OnSnapshot(placeholderID, acc)
		case frame.KeyUsage:
			h.OnKeyUsage(placeholderID, e.Source)
		case frame.Complete:
			msg := e.Message
			h.OnComplete(placeholderID, msg)
			return &msg, nil
		case frame.Error:
			return nil, &StreamError{Message: e.Message, Code: e.Code}
		}
	}
}
