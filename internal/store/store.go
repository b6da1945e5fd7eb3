package store

import (
	"context"
	"errors"
	"time"

	"github.com/postwave/post-gateway/internal/core"
)

var (
	// ErrNotFound is returned when no post exists for an id.
	ErrNotFound = errors.New("post_not_found")

	// ErrConflict is returned when creating a post whose id already exists.
	ErrConflict = errors.New("post_already_exists")
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Channel  string
	Statuses []core.Status
	// DueBefore selects posts with scheduled_for <= the given instant.
	DueBefore *time.Time
	Limit     int
}

// Store is the single source of truth for post state. Implementations must
// make Update linearizable per id: two concurrent updates to the same post
// never interleave, which is what makes the dispatch claim atomic.
//
// A mutator returning an error aborts the update and surfaces that error
// unchanged; the stored post is left as it was.
type Store interface {
	Create(ctx context.Context, post *core.ScheduledPost) error
	Get(ctx context.Context, id string) (core.ScheduledPost, error)
	Update(ctx context.Context, id string, mutate func(p *core.ScheduledPost) error) (core.ScheduledPost, error)
	// List returns matching posts ordered by scheduled_for ascending.
	List(ctx context.Context, f Filter) ([]core.ScheduledPost, error)
}

func (f Filter) matchStatus(s core.Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if s == want {
			return true
		}
	}
	return false
}
