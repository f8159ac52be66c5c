// Package perception wraps the generative model: single-shot and streamed
// generation, credential rotation, strategy classification and voice
// transcription.
package perception

import (
	"context"
	"errors"
	"strings"

	"ghostbot/internal/types"

	"google.golang.org/genai"
)

var (
	// ErrUnavailable means no credential in the pool produced a usable model.
	ErrUnavailable = errors.New("model unavailable: all API keys failed")
	// ErrBlocked means the response was withheld by the provider's safety or
	// recitation filters.
	ErrBlocked = errors.New("response blocked by provider")
	// ErrEmpty means the provider returned no text.
	ErrEmpty = errors.New("empty model response")
	// ErrInvalidKey is returned by factories for keys that can never work.
	ErrInvalidKey = errors.New("invalid API key")
)

// Media is an inline binary attachment (image, audio) for the final user turn.
type Media struct {
	MIMEType string
	Data     []byte
}

// Request is one generation call.
type Request struct {
	// Operation labels the call in logs and metrics (classify, stream, ...).
	Operation string
	// Prompt is sent as a single user turn when Turns is empty, otherwise it
	// is appended as the final user turn.
	Prompt string
	Turns  []types.Turn
	Media  []Media
	// Safety applies the configured harm-category thresholds.
	Safety bool
}

// Model is the generative model collaborator.
type Model interface {
	// Generate returns the full text of one non-streamed call.
	Generate(ctx context.Context, req Request) (string, error)
	// Stream returns text deltas as they arrive. Blocked chunks are skipped.
	// The error channel carries at most one error and is closed after the
	// text channel.
	Stream(ctx context.Context, req Request) (<-chan string, <-chan error)
}

// Complete is a single-turn Generate without safety settings.
func Complete(ctx context.Context, m Model, operation, prompt string) (string, error) {
	return m.Generate(ctx, Request{Operation: operation, Prompt: prompt})
}

// Collect drains a stream into one string.
func Collect(text <-chan string, errs <-chan error) (string, error) {
	var sb strings.Builder
	for delta := range text {
		sb.WriteString(delta)
	}
	if err := <-errs; err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// IsCredentialError reports whether err means the key is exhausted or
// rejected, so the next key should be tried.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidKey) {
		return true
	}
	if apiErr, ok := asAPIError(err); ok {
		switch apiErr.Code {
		case 401, 403, 429:
			return true
		}
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED", "PERMISSION_DENIED", "UNAUTHENTICATED":
			return true
		}
		if apiErr.Code == 400 && strings.Contains(apiErr.Message, "API key") {
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "API key") ||
		strings.Contains(msg, "Resource has been exhausted") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}
