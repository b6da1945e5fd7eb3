package core

import (
	"time"
)

// Status is the lifecycle state of a ScheduledPost.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusQueued    Status = "queued"
	StatusPosting   Status = "posting"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further automatic transition can occur.
func (s Status) Terminal() bool {
	return s == StatusPosted || s == StatusFailed || s == StatusCancelled
}

// Dispatchable reports whether the scheduler may pick this post up.
func (s Status) Dispatchable() bool {
	return s == StatusScheduled || s == StatusQueued || s == StatusRetrying
}

// Cancellable reports whether a user cancel is still allowed.
// Once dispatch is in flight the attempt must resolve first.
func (s Status) Cancellable() bool {
	return s == StatusScheduled || s == StatusQueued || s == StatusRetrying
}

type ScheduledPost struct {
	ID           string            `json:"id"`
	Channel      string            `json:"channel"`
	Body         string            `json:"body"`
	Hashtags     []string          `json:"hashtags,omitempty"`
	MediaRefs    []string          `json:"media_refs,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	Status       Status            `json:"status"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	ExternalID   *string           `json:"external_id,omitempty"`
	ExternalURL  *string           `json:"external_url,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	PostedAt     *time.Time        `json:"posted_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// QueuedAt is when the current dispatch claim was taken. A queued post
	// whose claim has outlived the claim TTL is treated as abandoned.
	QueuedAt *time.Time `json:"queued_at,omitempty"`

	// Version is bumped by the store on every successful update.
	Version int64 `json:"-"`
}

// Due reports whether the post is eligible for dispatch at the given time.
func (p *ScheduledPost) Due(now time.Time) bool {
	return p.Status.Dispatchable() && !p.ScheduledFor.After(now)
}

// TransitionTo validates and applies a status change along the lifecycle
// graph. An illegal edge returns a TransitionError and leaves the post
// untouched.
func (p *ScheduledPost) TransitionTo(next Status) error {
	if !validTransition(p.Status, next) {
		return &TransitionError{From: p.Status, To: next}
	}
	p.Status = next
	return nil
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusQueued || to == StatusCancelled
	case StatusQueued:
		// Back to scheduled when the rate limiter denies the reservation.
		return to == StatusPosting || to == StatusScheduled || to == StatusCancelled
	case StatusPosting:
		return to == StatusPosted || to == StatusRetrying || to == StatusFailed
	case StatusRetrying:
		return to == StatusQueued || to == StatusCancelled
	default:
		// Terminal states have no outgoing edges.
		return false
	}
}

// Credentials is per-channel auth material. Adapters receive it read-only
// per call; only the credential store retains it.
type Credentials struct {
	Channel     string     `json:"channel"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether a token is present and not expired.
func (c Credentials) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// Stats is a per-channel posting summary.
type Stats struct {
	Channel     string  `json:"channel"`
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}
