package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postwave/post-gateway/internal/core"
)

func TestTransitionGraph(t *testing.T) {
	allowed := map[core.Status][]core.Status{
		core.StatusScheduled: {core.StatusQueued, core.StatusCancelled},
		core.StatusQueued:    {core.StatusPosting, core.StatusScheduled, core.StatusCancelled},
		core.StatusPosting:   {core.StatusPosted, core.StatusRetrying, core.StatusFailed},
		core.StatusRetrying:  {core.StatusQueued, core.StatusCancelled},
		core.StatusPosted:    {},
		core.StatusFailed:    {},
		core.StatusCancelled: {},
	}
	all := []core.Status{
		core.StatusScheduled, core.StatusQueued, core.StatusPosting,
		core.StatusPosted, core.StatusFailed, core.StatusRetrying, core.StatusCancelled,
	}

	for from, tos := range allowed {
		ok := make(map[core.Status]bool)
		for _, to := range tos {
			ok[to] = true
		}
		for _, to := range all {
			p := core.ScheduledPost{Status: from}
			err := p.TransitionTo(to)
			if ok[to] {
				require.NoError(t, err, "%s -> %s should be legal", from, to)
				require.Equal(t, to, p.Status)
			} else {
				require.Error(t, err, "%s -> %s should be rejected", from, to)
				require.ErrorIs(t, err, core.ErrInvalidTransition)
				require.Equal(t, from, p.Status, "post must be untouched after rejected transition")
			}
		}
	}
}

func TestTransitionErrorUnwraps(t *testing.T) {
	p := core.ScheduledPost{Status: core.StatusPosted}
	err := p.TransitionTo(core.StatusPosting)
	require.ErrorIs(t, err, core.ErrInvalidTransition)
	var te *core.TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, core.StatusPosted, te.From)
}

func TestDue(t *testing.T) {
	now := time.Now()
	p := core.ScheduledPost{Status: core.StatusScheduled, ScheduledFor: now.Add(-time.Second)}
	require.True(t, p.Due(now))

	p.ScheduledFor = now.Add(time.Second)
	require.False(t, p.Due(now))

	p.ScheduledFor = now.Add(-time.Second)
	p.Status = core.StatusPosted
	require.False(t, p.Due(now), "terminal posts are never due")
}

func TestCredentialsValid(t *testing.T) {
	now := time.Now()
	require.False(t, core.Credentials{}.Valid(now))
	require.True(t, core.Credentials{AccessToken: "tok"}.Valid(now))

	past := now.Add(-time.Minute)
	require.False(t, core.Credentials{AccessToken: "tok", ExpiresAt: &past}.Valid(now))

	future := now.Add(time.Minute)
	require.True(t, core.Credentials{AccessToken: "tok", ExpiresAt: &future}.Valid(now))
}
