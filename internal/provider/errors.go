package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/opencode-ai/core/pkg/types"
)

// Classify maps a provider error onto the canonical error kinds. The
// provider id is recorded on auth errors so the UI can point at the
// failing credentials.
func Classify(providerID string, err error) *types.NamedError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return types.NewAbortedError()
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication"):
		return types.NewAuthError(providerID, msg)
	case strings.Contains(lower, "max_tokens") && strings.Contains(lower, "output"):
		return types.NewNamedError(types.ErrOutputLength, msg)
	default:
		return types.NewNamedError(types.ErrUnknown, msg)
	}
}

// Retryable reports whether a provider error is transient and worth a
// bounded retry: rate limits, overload and transport hiccups. Auth
// failures and cancellations are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid api key"):
		return false
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "overloaded"), strings.Contains(lower, "503"),
		strings.Contains(lower, "502"), strings.Contains(lower, "500"),
		strings.Contains(lower, "connection reset"), strings.Contains(lower, "timeout"),
		strings.Contains(lower, "temporarily unavailable"):
		return true
	default:
		return false
	}
}
