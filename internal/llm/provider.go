package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// Provider is one model backend. The retry and failover policy lives in
// Gateway, so providers make exactly one call per Generate.
type Provider interface {
	Name() string
	Generate(ctx context.Context, request *Request) (string, error)
}

// Request is a prompt, the recent conversation, and the new shopper message
type Request struct {
	System      string
	History     []llms.ChatMessage
	Message     string
	MaxTokens   int
	Temperature float64
}

const (
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.9
)

func (r *Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

func (r *Request) temperature() float64 {
	if r.Temperature > 0 {
		return r.Temperature
	}
	return DefaultTemperature
}

var (
	ErrRateLimited     = errors.New("rate limited")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrInvalidResponse = errors.New("invalid response")
)

// ProviderError ties a provider failure to one of the sentinel kinds.
// errors.Is matches both the kind and the underlying cause.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Classify maps an SDK error onto ErrRateLimited, ErrUnavailable or
// ErrInvalidResponse. Already classified errors pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	return &ProviderError{Provider: provider, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	for _, k := range []error{ErrRateLimited, ErrInvalidResponse, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return kindForStatus(genaiErr.Code)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return kindForStatus(anthropicErr.StatusCode)
	}

	// langchaingo's OpenAI client only reports the status in the message
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return ErrRateLimited
	}
	return ErrUnavailable
}

func kindForStatus(code int) error {
	if code == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrUnavailable
}
