package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/postwave/post-gateway/internal/core"
)

// Response is the normalized result of one platform API call. Adapters only
// report facts; classifying a failure as retryable is the retry policy's job.
type Response struct {
	Success     bool
	StatusCode  int
	ExternalID  string
	ExternalURL string
	Error       string

	// Rate-limit hints from platform response headers, when present.
	RateLimitRemaining *int
	RateLimitReset     *time.Time
}

// ConnStatus is the result of a credential verification probe.
type ConnStatus string

const (
	Connected    ConnStatus = "connected"
	Unauthorized ConnStatus = "unauthorized"
	StatusError  ConnStatus = "error"
	Disconnected ConnStatus = "disconnected"
)

// Adapter translates a generic post into one platform-specific API call and
// normalizes the response. Implementations must not retry and must not touch
// the post store.
type Adapter interface {
	Dispatch(ctx context.Context, post core.ScheduledPost, creds core.Credentials) Response
	Verify(ctx context.Context, creds core.Credentials) ConnStatus
}

// Registry maps channel names to adapters. Adding a platform means one
// Register call plus a limiter config row; the scheduler never changes.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(channel string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[channel] = a
}

func (r *Registry) Lookup(channel string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[channel]
	return a, ok
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
