// Package publish is the entry point collaborators use to schedule and
// publish posts. It validates the channel, owns post creation, and reuses the
// scheduler's dispatch routine for the immediate path so both share one rate
// limit window.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/postwave/post-gateway/internal/adapter"
	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/creds"
	"github.com/postwave/post-gateway/internal/metrics"
	"github.com/postwave/post-gateway/internal/scheduler"
	"github.com/postwave/post-gateway/internal/stats"
	"github.com/postwave/post-gateway/internal/store"
)

// Request carries the caller-supplied fields for schedule and publish-now.
type Request struct {
	Channel      string
	Body         string
	Hashtags     []string
	MediaRefs    []string
	ScheduledFor time.Time // zero value means "now"
	MaxRetries   *int
	Metadata     map[string]string
}

// ResultStatus is the immediate-publish outcome surfaced to the caller.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultPending ResultStatus = "pending"
)

// Result is what publish-now returns: either a live external post, a
// permanent failure, or a pending post the scheduler will finish.
type Result struct {
	Status     ResultStatus      `json:"status"`
	Message    string            `json:"message"`
	PostID     string            `json:"post_id"`
	ExternalID string            `json:"external_id,omitempty"`
	URL        string            `json:"url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

var errNotCancellable = errors.New("post not cancellable")

type Publisher struct {
	store             store.Store
	adapters          *adapter.Registry
	creds             *creds.Store
	dispatcher        *scheduler.Dispatcher
	stats             *stats.Aggregator
	defaultMaxRetries int
	log               zerolog.Logger
	now               func() time.Time
}

func New(st store.Store, reg *adapter.Registry, cs *creds.Store, d *scheduler.Dispatcher,
	agg *stats.Aggregator, defaultMaxRetries int, log zerolog.Logger) *Publisher {

	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 3
	}
	return &Publisher{
		store:             st,
		adapters:          reg,
		creds:             cs,
		dispatcher:        d,
		stats:             agg,
		defaultMaxRetries: defaultMaxRetries,
		log:               log.With().Str("component", "publisher").Logger(),
		now:               time.Now,
	}
}

// SetNow overrides the clock. Test hook.
func (p *Publisher) SetNow(now func() time.Time) { p.now = now }

// Schedule validates the request and persists a post for the scheduler loop.
// Returns the new post id.
func (p *Publisher) Schedule(ctx context.Context, req Request) (string, error) {
	post, err := p.create(ctx, req)
	if err != nil {
		return "", err
	}
	p.log.Info().Str("post_id", post.ID).Str("channel", post.Channel).
		Time("scheduled_for", post.ScheduledFor).Msg("post scheduled")
	return post.ID, nil
}

// PublishNow persists a post due immediately and runs the dispatch routine
// synchronously.
func (p *Publisher) PublishNow(ctx context.Context, req Request) (Result, error) {
	req.ScheduledFor = time.Time{}
	post, err := p.create(ctx, req)
	if err != nil {
		return Result{}, err
	}

	outcome, post, err := p.dispatcher.Dispatch(ctx, post.ID)
	if err != nil {
		// Infrastructure error: the post stays durably pending for the loop.
		return Result{Status: ResultPending, Message: err.Error(), PostID: post.ID, Metadata: req.Metadata}, nil
	}

	res := Result{PostID: post.ID, Metadata: post.Metadata}
	switch outcome {
	case scheduler.OutcomePosted:
		res.Status = ResultSuccess
		res.Message = "posted"
		if post.ExternalID != nil {
			res.ExternalID = *post.ExternalID
		}
		if post.ExternalURL != nil {
			res.URL = *post.ExternalURL
		}
	case scheduler.OutcomeFailed:
		res.Status = ResultFailed
		if post.ErrorMessage != nil {
			res.Message = *post.ErrorMessage
		}
	default:
		res.Status = ResultPending
		res.Message = "queued for the scheduler"
	}
	return res, nil
}

func (p *Publisher) create(ctx context.Context, req Request) (core.ScheduledPost, error) {
	if _, ok := p.adapters.Lookup(req.Channel); !ok {
		metrics.ScheduleTotal.WithLabelValues(req.Channel, "unsupported_channel").Inc()
		return core.ScheduledPost{}, fmt.Errorf("%w: %q", core.ErrUnsupportedChannel, req.Channel)
	}
	if req.Body == "" {
		metrics.ScheduleTotal.WithLabelValues(req.Channel, "error").Inc()
		return core.ScheduledPost{}, errors.New("empty post body")
	}

	now := p.now()
	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	maxRetries := p.defaultMaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	post := core.ScheduledPost{
		ID:           uuid.NewString(),
		Channel:      req.Channel,
		Body:         req.Body,
		Hashtags:     req.Hashtags,
		MediaRefs:    req.MediaRefs,
		ScheduledFor: scheduledFor,
		Status:       core.StatusScheduled,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		Metadata:     req.Metadata,
	}
	if err := p.store.Create(ctx, &post); err != nil {
		metrics.ScheduleTotal.WithLabelValues(req.Channel, "error").Inc()
		return core.ScheduledPost{}, fmt.Errorf("create post: %w", err)
	}
	p.stats.RecordCreated(post.Channel)
	metrics.ScheduleTotal.WithLabelValues(post.Channel, "ok").Inc()
	return post, nil
}

// Cancel withdraws a pending post. Returns false once dispatch has begun or
// the post is already terminal.
func (p *Publisher) Cancel(ctx context.Context, id string) (bool, error) {
	post, err := p.store.Update(ctx, id, func(sp *core.ScheduledPost) error {
		if !sp.Status.Cancellable() {
			return errNotCancellable
		}
		return sp.TransitionTo(core.StatusCancelled)
	})
	if err != nil {
		if errors.Is(err, errNotCancellable) {
			metrics.CancelTotal.WithLabelValues("rejected").Inc()
			return false, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			metrics.CancelTotal.WithLabelValues("not_found").Inc()
		}
		return false, err
	}
	p.stats.RecordCancelled(post.Channel)
	metrics.CancelTotal.WithLabelValues("ok").Inc()
	p.log.Info().Str("post_id", id).Msg("post cancelled")
	return true, nil
}

// Status returns the post's current state.
func (p *Publisher) Status(ctx context.Context, id string) (core.ScheduledPost, error) {
	return p.store.Get(ctx, id)
}

// List returns posts filtered by channel and/or status, oldest scheduled
// first.
func (p *Publisher) List(ctx context.Context, channel string, status core.Status, limit int) ([]core.ScheduledPost, error) {
	f := store.Filter{Channel: channel, Limit: limit}
	if status != "" {
		f.Statuses = []core.Status{status}
	}
	return p.store.List(ctx, f)
}

// Stats returns counters for one channel, or for all channels when the name
// is empty.
func (p *Publisher) Stats(channel string) []core.Stats {
	if channel != "" {
		return []core.Stats{p.stats.Channel(channel)}
	}
	return p.stats.All()
}

// Verify probes a channel's credentials against the live platform.
func (p *Publisher) Verify(ctx context.Context, channel string) (adapter.ConnStatus, error) {
	a, ok := p.adapters.Lookup(channel)
	if !ok {
		return adapter.Disconnected, fmt.Errorf("%w: %q", core.ErrUnsupportedChannel, channel)
	}
	cred, ok := p.creds.Get(channel)
	if !ok {
		return adapter.Disconnected, nil
	}
	return a.Verify(ctx, cred), nil
}
