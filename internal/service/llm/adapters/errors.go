package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
)

// credentialHints are lower-cased fragments upstream APIs use when a key is
// missing or rejected.
var credentialHints = []string{
	"401",
	"403",
	"unauthorized",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"api key not valid",
	"api_key_invalid",
	"no auth credentials",
	"authentication",
	"permission denied",
}

// classifyError wraps err as a domain.UpstreamError. status is the HTTP
// status when known, 0 otherwise. Context cancellation is passed through.
func classifyError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return err
	}

	credential := status == http.StatusUnauthorized || status == http.StatusForbidden ||
		errors.Is(err, llmprovider.ErrInvalidAPIKey)
	if !credential && (status == 0 || status == http.StatusBadRequest) {
		credential = looksLikeCredentialError(err)
	}
	if credential {
		return &domain.UpstreamError{
			Kind:     domain.ErrUpstreamCredential,
			Provider: provider,
			Status:   status,
			Message:  fmt.Sprintf("The API key was rejected by %s. Check the key or remove it to use the default.", provider),
			Cause:    err,
		}
	}

	msg := "The model provider failed to complete the response. Please try again."
	if status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		msg = "The model provider is rate limiting requests. Please try again shortly."
	}
	return &domain.UpstreamError{
		Kind:     domain.ErrUpstreamTransient,
		Provider: provider,
		Status:   status,
		Message:  msg,
		Cause:    err,
	}
}

func looksLikeCredentialError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range credentialHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func isCredential(err error) bool {
	return errors.Is(err, domain.ErrUpstreamCredential)
}
