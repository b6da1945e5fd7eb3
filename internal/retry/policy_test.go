package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postwave/post-gateway/internal/adapter"
	"github.com/postwave/post-gateway/internal/retry"
)

func intPtr(n int) *int { return &n }

func TestDecideClassification(t *testing.T) {
	p := retry.NewPolicy(5*time.Minute, 15*time.Minute)

	cases := []struct {
		name       string
		attempt    int
		maxRetries int
		resp       adapter.Response
		giveUp     bool
		after      time.Duration
		counts     bool
	}{
		{
			name: "unauthorized gives up immediately",
			resp: adapter.Response{StatusCode: 401, Error: "bad token"},
			maxRetries: 3, giveUp: true,
		},
		{
			name: "forbidden gives up even with budget left",
			resp: adapter.Response{StatusCode: 403},
			maxRetries: 3, giveUp: true,
		},
		{
			name:    "budget exhausted gives up regardless of classification",
			attempt: 3, maxRetries: 3,
			resp:   adapter.Response{StatusCode: 500},
			giveUp: true,
		},
		{
			name:    "rate limited past budget still gives up",
			attempt: 3, maxRetries: 3,
			resp:   adapter.Response{StatusCode: 429},
			giveUp: true,
		},
		{
			name:       "429 waits out the cooldown without burning a retry",
			maxRetries: 3,
			resp:       adapter.Response{StatusCode: 429},
			after:      15 * time.Minute,
		},
		{
			name:       "zero remaining header counts as rate limited",
			maxRetries: 3,
			resp:       adapter.Response{StatusCode: 200, RateLimitRemaining: intPtr(0)},
			after:      15 * time.Minute,
		},
		{
			name:       "server error backs off linearly, first attempt",
			maxRetries: 3,
			resp:       adapter.Response{StatusCode: 503},
			after:      5 * time.Minute, counts: true,
		},
		{
			name:    "server error backs off linearly, third attempt",
			attempt: 2, maxRetries: 3,
			resp:  adapter.Response{StatusCode: 500},
			after: 15 * time.Minute, counts: true,
		},
		{
			name:       "network error is transient",
			maxRetries: 3,
			resp:       adapter.Response{StatusCode: 0, Error: "dial tcp: timeout"},
			after:      5 * time.Minute, counts: true,
		},
		{
			name:       "other 4xx is permanent",
			maxRetries: 3,
			resp:       adapter.Response{StatusCode: 422},
			giveUp:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := p.Decide(tc.attempt, tc.maxRetries, tc.resp)
			require.Equal(t, tc.giveUp, dec.GiveUp)
			if !tc.giveUp {
				require.Equal(t, tc.after, dec.After)
				require.Equal(t, tc.counts, dec.CountsAsRetry)
			}
		})
	}
}

func TestDecideHonorsPlatformReset(t *testing.T) {
	p := retry.NewPolicy(5*time.Minute, 15*time.Minute)
	now := time.Now()
	p.SetNow(func() time.Time { return now })

	reset := now.Add(7 * time.Minute)
	dec := p.Decide(0, 3, adapter.Response{StatusCode: 429, RateLimitReset: &reset})
	require.False(t, dec.GiveUp)
	require.Equal(t, 7*time.Minute, dec.After)
	require.False(t, dec.CountsAsRetry)

	// A reset time in the past falls back to the cooldown.
	past := now.Add(-time.Minute)
	dec = p.Decide(0, 3, adapter.Response{StatusCode: 429, RateLimitReset: &past})
	require.Equal(t, 15*time.Minute, dec.After)
}

func TestNewPolicyDefaults(t *testing.T) {
	p := retry.NewPolicy(0, 0)
	require.Equal(t, 5*time.Minute, p.BackoffStep)
	require.Equal(t, 15*time.Minute, p.RateLimitCooldown)
}
