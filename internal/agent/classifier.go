package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fabrica-build/fabrica/internal/constants"
)

// RateLimitError marks provider throttling. RetryAfter carries the
// provider-suggested wait, zero when the provider gave none.
type RateLimitError struct {
	// RetryAfter is the provider-suggested delay before retrying.
	RetryAfter time.Duration

	// Message is the original provider error text.
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// rateLimitMarkers are the substrings that identify provider throttling in
// agent error output.
var rateLimitMarkers = []string{
	"rate limit",
	"quota exceeded",
	"too many requests",
	"429",
}

// retryAfterPattern extracts a duration like "31s", "90s", or "1m30s" that
// follows a retry hint in provider error text. It covers both prose forms
// ("retry after 90s") and the structured hint form (`retry_after:"31s"`).
var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry[_ -]?after|try again in|wait)\D*?(\d+(?:\.\d+)?(?:ms|s|m|h)(?:\d+(?:\.\d+)?(?:ms|s|m|h))*)`)

// ClassifyRateLimit inspects error text for rate-limit markers. It returns a
// RateLimitError when the text indicates throttling, nil otherwise. A
// provider-suggested delay is parsed from the text when present.
func ClassifyRateLimit(text string) *RateLimitError {
	lower := strings.ToLower(text)

	limited := false
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			limited = true
			break
		}
	}
	if !limited {
		return nil
	}

	rl := &RateLimitError{Message: strings.TrimSpace(text)}
	if m := retryAfterPattern.FindStringSubmatch(text); m != nil {
		if d, err := time.ParseDuration(m[1]); err == nil {
			rl.RetryAfter = d
		}
	}
	return rl
}

// RetryDelay computes the wait before retrying err. For rate-limit errors
// with a provider-suggested delay it returns that delay plus a fixed safety
// buffer, clamped to maxDelay (zero maxDelay means unconstrained). For all
// other errors it returns zero, leaving backoff to the caller's retry policy.
func RetryDelay(err error, maxDelay time.Duration) time.Duration {
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		return 0
	}

	delay := rl.RetryAfter + constants.RateLimitBuffer
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// IsRateLimited reports whether err carries a RateLimitError in its chain.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
