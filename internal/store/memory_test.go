package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/store"
)

func newPost(channel string, scheduledFor time.Time) core.ScheduledPost {
	return core.ScheduledPost{
		ID:           uuid.NewString(),
		Channel:      channel,
		Body:         "hello",
		ScheduledFor: scheduledFor,
		Status:       core.StatusScheduled,
		MaxRetries:   3,
		CreatedAt:    time.Now(),
	}
}

func TestMemoryCreateGet(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	p := newPost("twitter", time.Now())
	p.Hashtags = []string{"go"}
	p.Metadata = map[string]string{"k": "v"}
	require.NoError(t, m.Create(ctx, &p))

	require.ErrorIs(t, m.Create(ctx, &p), store.ErrConflict)

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Body, got.Body)
	require.Equal(t, []string{"go"}, got.Hashtags)

	_, err = m.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	p := newPost("twitter", time.Now())
	p.Hashtags = []string{"go"}
	require.NoError(t, m.Create(ctx, &p))

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	got.Hashtags[0] = "mutated"
	got.Status = core.StatusFailed

	again, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"go"}, again.Hashtags)
	require.Equal(t, core.StatusScheduled, again.Status)
}

func TestMemoryUpdate(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	p := newPost("twitter", time.Now())
	require.NoError(t, m.Create(ctx, &p))

	updated, err := m.Update(ctx, p.ID, func(sp *core.ScheduledPost) error {
		return sp.TransitionTo(core.StatusQueued)
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusQueued, updated.Status)
	require.Equal(t, int64(1), updated.Version)

	// A failing mutator leaves the stored post untouched.
	boom := errors.New("boom")
	_, err = m.Update(ctx, p.ID, func(sp *core.ScheduledPost) error {
		sp.Status = core.StatusFailed
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusQueued, got.Status)
	require.Equal(t, int64(1), got.Version)

	_, err = m.Update(ctx, "missing", func(sp *core.ScheduledPost) error { return nil })
	require.ErrorIs(t, err, store.ErrNotFound)
}

// Concurrent claims on one post: the queued transition is only legal once, so
// exactly one worker wins.
func TestMemoryUpdateClaimIsExclusive(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	p := newPost("twitter", time.Now())
	require.NoError(t, m.Create(ctx, &p))

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, p.ID, func(sp *core.ScheduledPost) error {
				if sp.Status == core.StatusQueued {
					return errors.New("already claimed")
				}
				return sp.TransitionTo(core.StatusQueued)
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestMemoryList(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Now()

	late := newPost("twitter", base.Add(2*time.Hour))
	early := newPost("twitter", base.Add(-time.Hour))
	mid := newPost("linkedin", base)
	require.NoError(t, m.Create(ctx, &late))
	require.NoError(t, m.Create(ctx, &early))
	require.NoError(t, m.Create(ctx, &mid))

	_, err := m.Update(ctx, mid.ID, func(sp *core.ScheduledPost) error {
		return sp.TransitionTo(core.StatusCancelled)
	})
	require.NoError(t, err)

	// Ordered by scheduled_for ascending.
	all, err := m.List(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, early.ID, all[0].ID)
	require.Equal(t, mid.ID, all[1].ID)
	require.Equal(t, late.ID, all[2].ID)

	byChannel, err := m.List(ctx, store.Filter{Channel: "twitter"})
	require.NoError(t, err)
	require.Len(t, byChannel, 2)

	byStatus, err := m.List(ctx, store.Filter{Statuses: []core.Status{core.StatusCancelled}})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, mid.ID, byStatus[0].ID)

	due, err := m.List(ctx, store.Filter{
		Statuses:  []core.Status{core.StatusScheduled},
		DueBefore: &base,
	})
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, early.ID, due[0].ID)

	limited, err := m.List(ctx, store.Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}
