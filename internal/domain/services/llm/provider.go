package llm

import (
	"context"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// DeltaKind distinguishes content from reasoning fragments.
type DeltaKind int

const (
	DeltaContent DeltaKind = iota
	// DeltaReasoning is reasoning exposed as a separate text channel.
	DeltaReasoning
	// DeltaThought is reasoning exposed as "thought" parts.
	DeltaThought
)

// Delta is one normalized fragment of a generation.
type Delta struct {
	Kind DeltaKind
	Text string
}

// StreamEvent carries either a Delta or a terminal Err. The channel closes
// after the last event.
type StreamEvent struct {
	Delta *Delta
	Err   error
}

// PromptMessage is one entry of the history sent upstream.
type PromptMessage struct {
	Role     models.Role
	Content  string
	ImageURL *string
}

// GenerateRequest is a provider-agnostic completion request.
type GenerateRequest struct {
	Model    string
	Messages []PromptMessage
	// Reasoning asks providers that gate reasoning output to stream it.
	Reasoning bool
}

// Generator streams completions from one upstream provider with one credential.
//
// Stream fails fast, before returning a channel, when the credential is
// rejected (domain.ErrUpstreamCredential). Later failures arrive as a final
// event with Err set. Cancelling ctx stops the producer and closes the channel.
type Generator interface {
	Name() string
	Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)
}

// KeySource tells which credential served a generation.
type KeySource string

const (
	KeySourceUser          KeySource = "user"
	KeySourceServerDefault KeySource = "server_default"
)

// Credential is a resolved upstream API key.
type Credential struct {
	Provider string
	APIKey   string
	Source   KeySource
}

// Route describes how a client model id is served.
type Route struct {
	Provider      string
	UpstreamModel string
	Reasoning     bool
	Vision        bool

	// PromptBudget is the token budget for history; 0 means unknown.
	PromptBudget int
}

// ProviderRouter maps model ids to providers and builds generators.
type ProviderRouter interface {
	// Route returns how model is served. Unknown ids get a default route.
	Route(model string) Route

	// Resolve picks the credential for model, preferring userKey.
	// Returns domain.ErrUpstreamCredential when no key is available.
	Resolve(model, userKey string) (Credential, error)

	// ServerCredential returns the server-held credential for model, if any.
	ServerCredential(model string) (Credential, bool)

	// Generator returns a generator for cred's provider.
	Generator(cred Credential) (Generator, error)
}

// Searcher runs a web search for prompt augmentation.
type Searcher interface {
	Search(ctx context.Context, query, apiKey string, maxResults int) ([]models.SearchResult, error)
}
