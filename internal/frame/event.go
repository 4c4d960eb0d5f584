// Package frame implements the line-oriented event framing used on
// streaming chat responses. Each frame is a single line:
//
//	data: {"type":"content_word","content":"Hel"}
//
// Lines that do not start with the data marker (keep-alive comments,
// blank lines) carry no event.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// Type discriminates frame payloads.
type Type string

const (
	TypeChatInfo      Type = "chat_info"
	TypeContentWord   Type = "content_word"
	TypeReasoningWord Type = "reasoning_word"
	TypeThoughtWord   Type = "google_thought_word"
	TypeKeyUsage      Type = "key_usage"
	TypeComplete      Type = "complete"
	TypeError         Type = "error"
)

// Key usage sources.
const (
	KeySourceServerDefault = "server_default"
	KeySourceUser          = "user"
)

// Error codes carried by Error frames.
const (
	CodeCredential  = "credential_error"
	CodeUpstream    = "upstream_error"
	CodeInternal    = "internal_error"
	CodeInterrupted = "interrupted"
)

// Event is one decoded frame. The set of implementations is closed.
type Event interface {
	Type() Type
	isEvent()
}

// ChatInfo announces a newly created chat and/or the confirmed user message.
type ChatInfo struct {
	Chat        *models.Chat
	UserMessage *models.Message
}

// ContentWord is an incremental content fragment.
type ContentWord struct{ Content string }

// ReasoningWord is an incremental reasoning fragment.
type ReasoningWord struct{ Content string }

// ThoughtWord is an incremental reasoning fragment from providers that
// expose "thought" parts.
type ThoughtWord struct{ Content string }

// KeyUsage reports which credential served the stream.
type KeyUsage struct{ Source string }

// Complete is terminal and carries the confirmed AI message.
type Complete struct{ Message models.Message }

// Error is terminal and carries a message fit for end users.
type Error struct {
	Message string
	Code    string
}

func (ChatInfo) Type() Type      { return TypeChatInfo }
func (ContentWord) Type() Type   { return TypeContentWord }
func (ReasoningWord) Type() Type { return TypeReasoningWord }
func (ThoughtWord) Type() Type   { return TypeThoughtWord }
func (KeyUsage) Type() Type      { return TypeKeyUsage }
func (Complete) Type() Type      { return TypeComplete }
func (Error) Type() Type         { return TypeError }

func (ChatInfo) isEvent()      {}
func (ContentWord) isEvent()   {}
func (ReasoningWord) isEvent() {}
func (ThoughtWord) isEvent()   {}
func (KeyUsage) isEvent()      {}
func (Complete) isEvent()      {}
func (Error) isEvent()         {}

// IsTerminal reports whether no frames may follow ev.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Complete, Error:
		return true
	}
	return false
}

// ErrMalformedFrame is returned for payloads that are not a known event.
var ErrMalformedFrame = errors.New("malformed frame")

// wire is the JSON shape shared by every frame type.
type wire struct {
	Type        Type            `json:"type"`
	Chat        *models.Chat    `json:"chat,omitempty"`
	UserMessage *models.Message `json:"userMessage,omitempty"`
	Content     *string         `json:"content,omitempty"`
	Source      string          `json:"source,omitempty"`
	Message     *models.Message `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
	Code        string          `json:"code,omitempty"`
}

// Marshal encodes ev as a JSON payload without the line marker.
func Marshal(ev Event) ([]byte, error) {
	w := wire{Type: ev.Type()}
	switch e := ev.(type) {
	case ChatInfo:
		w.Chat, w.UserMessage = e.Chat, e.UserMessage
	case ContentWord:
		w.Content = &e.Content
	case ReasoningWord:
		w.Content = &e.Content
	case ThoughtWord:
		w.Content = &e.Content
	case KeyUsage:
		w.Source = e.Source
	case Complete:
		w.Message = &e.Message
	case Error:
		w.Error, w.Code = e.Message, e.Code
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", ErrMalformedFrame, ev)
	}
	return json.Marshal(w)
}

// Unmarshal decodes a JSON payload into its event.
func Unmarshal(data []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch w.Type {
	case TypeChatInfo:
		if w.Chat == nil && w.UserMessage == nil {
			return nil, fmt.Errorf("%w: chat_info without chat or userMessage", ErrMalformedFrame)
		}
		return ChatInfo{Chat: w.Chat, UserMessage: w.UserMessage}, nil
	case TypeContentWord, TypeReasoningWord, TypeThoughtWord:
		if w.Content == nil {
			return nil, fmt.Errorf("%w: %s without content", ErrMalformedFrame, w.Type)
		}
		switch w.Type {
		case TypeContentWord:
			return ContentWord{Content: *w.Content}, nil
		case TypeReasoningWord:
			return ReasoningWord{Content: *w.Content}, nil
		default:
			return ThoughtWord{Content: *w.Content}, nil
		}
	case TypeKeyUsage:
		return KeyUsage{Source: w.Source}, nil
	case TypeComplete:
		if w.Message == nil {
			return nil, fmt.Errorf("%w: complete without message", ErrMalformedFrame)
		}
		return Complete{Message: *w.Message}, nil
	case TypeError:
		msg := w.Error
		if msg == "" {
			msg = "stream failed"
		}
		return Error{Message: msg, Code: w.Code}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, w.Type)
}
