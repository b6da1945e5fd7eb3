package retry

import (
	"net/http"
	"time"

	"github.com/postwave/post-gateway/internal/adapter"
)

// Decision is the outcome of classifying one failed dispatch attempt.
type Decision struct {
	GiveUp bool
	// After is how long to wait before the next attempt when not giving up.
	After time.Duration
	// CountsAsRetry is false for rate-limit reschedules, which do not burn
	// retry budget.
	CountsAsRetry bool
	Reason        string
}

// Policy maps (attempt count, failure kind) to the next action. It is a pure
// function of its inputs; all state lives with the caller.
type Policy struct {
	// BackoffStep scales linearly with the attempt number:
	// wait = BackoffStep * (attempt + 1). Default 5 minutes.
	BackoffStep time.Duration
	// RateLimitCooldown is used for 429s when the platform supplies no reset
	// time. Default 15 minutes.
	RateLimitCooldown time.Duration
	now               func() time.Time
}

func NewPolicy(backoffStep, rateLimitCooldown time.Duration) Policy {
	if backoffStep <= 0 {
		backoffStep = 5 * time.Minute
	}
	if rateLimitCooldown <= 0 {
		rateLimitCooldown = 15 * time.Minute
	}
	return Policy{BackoffStep: backoffStep, RateLimitCooldown: rateLimitCooldown, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (p *Policy) SetNow(now func() time.Time) { p.now = now }

// Decide classifies a failed response. attempt is the retry count before
// increment, so attempt >= maxRetries means the budget is spent.
func (p Policy) Decide(attempt, maxRetries int, resp adapter.Response) Decision {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth failures need a credential refresh, never an automatic retry.
		return Decision{GiveUp: true, Reason: "credentials rejected"}

	case attempt >= maxRetries:
		return Decision{GiveUp: true, Reason: "retries exhausted"}

	case rateLimited(resp):
		// Not counted against the retry budget; honor the platform's reset
		// time when it gives one.
		after := p.RateLimitCooldown
		if resp.RateLimitReset != nil {
			if d := resp.RateLimitReset.Sub(p.now()); d > 0 {
				after = d
			}
		}
		return Decision{After: after, Reason: "platform rate limited"}

	case transient(resp):
		return Decision{After: p.BackoffStep * time.Duration(attempt+1), CountsAsRetry: true, Reason: "transient error"}

	default:
		// Remaining 4xx: the request itself is bad, retrying cannot help.
		return Decision{GiveUp: true, Reason: "permanent error"}
	}
}

func rateLimited(resp adapter.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.RateLimitRemaining != nil && *resp.RateLimitRemaining == 0
}

// transient covers 5xx plus StatusCode 0, which adapters use for network
// errors and timeouts.
func transient(resp adapter.Response) bool {
	return resp.StatusCode == 0 || resp.StatusCode >= 500
}
