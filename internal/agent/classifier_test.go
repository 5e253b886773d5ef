package agent

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyRateLimit(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		wantHit   bool
		wantDelay time.Duration
	}{
		{
			name:      "rate limit with retry-after seconds",
			text:      "API error 429: rate limit exceeded, retry after 31s",
			wantHit:   true,
			wantDelay: 31 * time.Second,
		},
		{
			name:      "quota exceeded with compound duration",
			text:      "quota exceeded for model, try again in 1m30s",
			wantHit:   true,
			wantDelay: 90 * time.Second,
		},
		{
			name:      "structured retry_after hint",
			text:      `rate limit exceeded, retry_after:"31s"`,
			wantHit:   true,
			wantDelay: 31 * time.Second,
		},
		{
			name:      "too many requests without suggestion",
			text:      "too many requests",
			wantHit:   true,
			wantDelay: 0,
		},
		{
			name:      "bare 429 status",
			text:      "unexpected status 429",
			wantHit:   true,
			wantDelay: 0,
		},
		{
			name:    "ordinary failure is not a rate limit",
			text:    "compile error: undefined symbol",
			wantHit: false,
		},
		{
			name:    "authentication failure is not a rate limit",
			text:    "invalid api key",
			wantHit: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rl := ClassifyRateLimit(tc.text)
			if !tc.wantHit {
				require.Nil(t, rl)
				return
			}
			require.NotNil(t, rl)
			require.Equal(t, tc.wantDelay, rl.RetryAfter)
		})
	}
}

func TestRetryDelay(t *testing.T) {
	t.Run("adds the safety buffer to the suggested delay", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", &RateLimitError{RetryAfter: 90 * time.Second})
		require.Equal(t, 95*time.Second, RetryDelay(err, 0))
	})

	t.Run("clamps to the configured ceiling", func(t *testing.T) {
		err := error(&RateLimitError{RetryAfter: 90 * time.Second})
		require.Equal(t, 60*time.Second, RetryDelay(err, 60*time.Second))
	})

	t.Run("zero ceiling means unconstrained", func(t *testing.T) {
		err := error(&RateLimitError{RetryAfter: 10 * time.Minute})
		require.Equal(t, 10*time.Minute+5*time.Second, RetryDelay(err, 0))
	})

	t.Run("no suggested delay yields zero", func(t *testing.T) {
		err := error(&RateLimitError{})
		require.Equal(t, time.Duration(0), RetryDelay(err, time.Minute))
	})

	t.Run("non rate-limit errors yield zero", func(t *testing.T) {
		require.Equal(t, time.Duration(0), RetryDelay(errors.New("boom"), time.Minute))
	})
}

func TestIsRateLimited(t *testing.T) {
	require.True(t, IsRateLimited(fmt.Errorf("outer: %w", &RateLimitError{})))
	require.False(t, IsRateLimited(errors.New("outer")))
	require.False(t, IsRateLimited(nil))
}
