package sse

import (
	"time"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
)

// Config holds configuration for streamed responses
type Config struct {
	// KeepAliveInterval is how often to send keep-alive comments so proxies
	// do not close idle connections while the model is thinking
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default stream configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: config.StreamKeepAliveInterval,
	}
}
