package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
)

// DefaultGoogleBaseURL is the Generative Language API root.
const DefaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleAdapter streams from the Gemini streamGenerateContent endpoint.
// Parts flagged as thoughts are emitted as DeltaThought.
type GoogleAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleAdapter creates an adapter. An empty baseURL uses DefaultGoogleBaseURL.
func NewGoogleAdapter(apiKey, baseURL string, httpClient *http.Client) *GoogleAdapter {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (a *GoogleAdapter) Name() string {
	return "google"
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	ThinkingConfig *geminiThinking `json:"thinkingConfig,omitempty"`
}

type geminiThinking struct {
	IncludeThoughts bool `json:"includeThoughts"`
}

func buildGeminiRequest(req *domainllm.GenerateRequest) geminiRequest {
	body := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == models.RoleAI {
			role = "model"
		}
		parts := []geminiPart{{Text: msg.Content}}
		if msg.ImageURL != nil {
			if mimeType, data, ok := parseDataURL(*msg.ImageURL); ok {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mimeType, Data: data}})
			}
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: parts})
	}
	if req.Reasoning {
		body.GenerationConfig = &geminiGenConfig{ThinkingConfig: &geminiThinking{IncludeThoughts: true}}
	}
	return body
}

// Stream opens the SSE stream. Non-200 responses are returned as errors.
func (a *GoogleAdapter) Stream(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	payload, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", a.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(a.Name(), 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, classifyError(a.Name(), resp.StatusCode, fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg))
	}

	out := make(chan domainllm.StreamEvent)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()
		a.readStream(ctx, resp.Body, out)
	}()
	return out, nil
}

func (a *GoogleAdapter) readStream(ctx context.Context, body io.Reader, out chan<- domainllm.StreamEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := []byte(strings.TrimPrefix(line, "data: "))
		if !gjson.ValidBytes(data) {
			continue
		}

		if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
			status := int(gjson.GetBytes(data, "error.code").Int())
			send(ctx, out, domainllm.StreamEvent{Err: classifyError(a.Name(), status, fmt.Errorf("gemini: %s", msg.String()))})
			return
		}

		ok := true
		gjson.GetBytes(data, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
			text := part.Get("text").String()
			if text == "" {
				return true
			}
			kind := domainllm.DeltaContent
			if part.Get("thought").Bool() {
				kind = domainllm.DeltaThought
			}
			ok = send(ctx, out, domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: kind, Text: text}})
			return ok
		})
		if !ok {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, domainllm.StreamEvent{Err: classifyError(a.Name(), 0, err)})
	}
}
