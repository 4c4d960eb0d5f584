package config

import "time"

const (
	// MaxChatTitleLength fits the VARCHAR(255) title column.
	MaxChatTitleLength = 255

	// MaxMessageLength bounds a single user message in characters.
	MaxMessageLength = 100_000

	// MaxHistoryMessages bounds the history a client may send to the guest endpoint.
	MaxHistoryMessages = 200

	// MaxFileBytes bounds a decoded file attachment.
	MaxFileBytes = 8 << 20

	// DefaultMaxSearchResults is how many web results are injected into a prompt.
	DefaultMaxSearchResults = 5

	// GuestTrialLimit is how many generations a guest may start on one device.
	GuestTrialLimit = 10

	// StreamKeepAliveInterval is how often idle streams receive a comment line.
	StreamKeepAliveInterval = 10 * time.Second
)
