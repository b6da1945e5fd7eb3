package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/postwave/post-gateway/internal/adapter"
	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/creds"
	"github.com/postwave/post-gateway/internal/metrics"
	"github.com/postwave/post-gateway/internal/ratelimit"
	"github.com/postwave/post-gateway/internal/retry"
	"github.com/postwave/post-gateway/internal/stats"
	"github.com/postwave/post-gateway/internal/store"
)

// Outcome summarizes one pass through the dispatch routine.
type Outcome int

const (
	// OutcomeSkipped: the post was not claimable (already in flight,
	// cancelled, or not due). Nothing changed.
	OutcomeSkipped Outcome = iota
	// OutcomeRateLimited: our limiter denied the reservation; the post was
	// pushed forward by the cooldown and stays pending.
	OutcomeRateLimited
	OutcomePosted
	OutcomeRetrying
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePosted:
		return "posted"
	case OutcomeRetrying:
		return "retry"
	case OutcomeFailed:
		return "failed"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "skipped"
	}
}

// errNotDue aborts a claim on a post that is no longer eligible.
var errNotDue = errors.New("post not due")

// DispatcherConfig carries the knobs for the dispatch routine.
type DispatcherConfig struct {
	CallTimeout time.Duration // per adapter call, default 30s
	Cooldown    time.Duration // reschedule delay on limiter denial, default 15m
	// ClaimTTL bounds how long a queued claim is honored. A queued post older
	// than this is debris from a crash between claim and posting and gets
	// re-adopted. Default 1m; the claim window itself is sub-second.
	ClaimTTL time.Duration
	// PaceQPS/PaceBurst cap process-wide outbound calls; zero disables pacing.
	PaceQPS   float64
	PaceBurst int
}

// Dispatcher drives one post through rate limiter -> adapter -> retry policy
// -> store update. It is shared by the scheduler loop and the immediate
// publish path, so both see the same limiter state.
type Dispatcher struct {
	store    store.Store
	creds    *creds.Store
	adapters *adapter.Registry
	limiter  ratelimit.Limiter
	policy   retry.Policy
	stats    *stats.Aggregator
	pace     *rate.Limiter
	log      zerolog.Logger

	callTimeout time.Duration
	cooldown    time.Duration
	claimTTL    time.Duration
	now         func() time.Time
}

func NewDispatcher(st store.Store, cs *creds.Store, reg *adapter.Registry, lim ratelimit.Limiter,
	pol retry.Policy, agg *stats.Aggregator, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = time.Minute
	}
	var pace *rate.Limiter
	if cfg.PaceQPS > 0 {
		burst := cfg.PaceBurst
		if burst <= 0 {
			burst = 1
		}
		pace = rate.NewLimiter(rate.Limit(cfg.PaceQPS), burst)
	}
	return &Dispatcher{
		store:       st,
		creds:       cs,
		adapters:    reg,
		limiter:     lim,
		policy:      pol,
		stats:       agg,
		pace:        pace,
		log:         log.With().Str("component", "dispatcher").Logger(),
		callTimeout: cfg.CallTimeout,
		cooldown:    cfg.Cooldown,
		claimTTL:    cfg.ClaimTTL,
		now:         time.Now,
	}
}

// SetNow overrides the clock. Test hook.
func (d *Dispatcher) SetNow(now func() time.Time) { d.now = now }

// Dispatch attempts one post. The returned error covers infrastructure
// failures only; post-level outcomes (failed, retrying) are reported through
// Outcome and the post itself.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) (Outcome, core.ScheduledPost, error) {
	now := d.now()

	// Exclusive claim. A post already queued, in flight, or terminal makes
	// the transition fail, so no two workers ever dispatch the same post.
	// A queued claim older than the TTL is left over from a crash between
	// claim and posting; adopting it keeps the post from being skipped on
	// every tick forever.
	post, err := d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
		if !p.Due(now) {
			return errNotDue
		}
		if p.Status == core.StatusQueued {
			if p.QueuedAt != nil && now.Sub(*p.QueuedAt) < d.claimTTL {
				// Claimed by a dispatch still in flight.
				return &core.TransitionError{From: p.Status, To: core.StatusQueued}
			}
			p.QueuedAt = &now
			return nil
		}
		if err := p.TransitionTo(core.StatusQueued); err != nil {
			return err
		}
		p.QueuedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotDue) || errors.Is(err, core.ErrInvalidTransition) {
			metrics.DispatchTotal.WithLabelValues("unknown", OutcomeSkipped.String()).Inc()
			return OutcomeSkipped, core.ScheduledPost{}, nil
		}
		return OutcomeSkipped, core.ScheduledPost{}, err
	}

	// Credentials and adapter are knowable before spending a window slot;
	// a granted reservation must always proceed to a platform call.
	cred, okCred := d.creds.Get(post.Channel)
	if !okCred || !cred.Valid(now) {
		return d.failBeforeCall(ctx, id, "credentials missing or expired")
	}
	a, okAdapter := d.adapters.Lookup(post.Channel)
	if !okAdapter {
		return d.failBeforeCall(ctx, id, "no adapter registered for channel "+post.Channel)
	}

	ok, err := d.limiter.TryReserve(ctx, post.Channel)
	if err != nil {
		// Limiter backend failure: release the claim, leave the post pending.
		_, uerr := d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
			if err := p.TransitionTo(core.StatusScheduled); err != nil {
				return err
			}
			p.QueuedAt = nil
			return nil
		})
		if uerr != nil {
			d.log.Error().Err(uerr).Str("post_id", id).Msg("release claim after limiter error")
		}
		return OutcomeSkipped, post, err
	}
	if !ok {
		// Denied: push forward by the cooldown. Not a retry.
		post, err = d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
			if err := p.TransitionTo(core.StatusScheduled); err != nil {
				return err
			}
			p.ScheduledFor = now.Add(d.cooldown)
			p.QueuedAt = nil
			return nil
		})
		if err != nil {
			return OutcomeSkipped, post, err
		}
		metrics.RateLimitDenied.WithLabelValues(post.Channel).Inc()
		metrics.DispatchTotal.WithLabelValues(post.Channel, OutcomeRateLimited.String()).Inc()
		d.log.Info().Str("post_id", id).Str("channel", post.Channel).
			Time("rescheduled_for", post.ScheduledFor).Msg("rate limit window full, rescheduled")
		return OutcomeRateLimited, post, nil
	}

	post, err = d.store.Update(ctx, id, d.toPosting)
	if err != nil {
		// A cancel can still slip in between claim and posting; give the
		// reservation up and move on.
		if errors.Is(err, core.ErrInvalidTransition) {
			d.log.Debug().Str("post_id", id).Msg("claim lost before posting")
			return OutcomeSkipped, core.ScheduledPost{}, nil
		}
		return OutcomeSkipped, post, err
	}

	return d.attempt(ctx, post, cred, a)
}

func (d *Dispatcher) toPosting(p *core.ScheduledPost) error {
	if err := p.TransitionTo(core.StatusPosting); err != nil {
		return err
	}
	p.QueuedAt = nil
	return nil
}

// failBeforeCall resolves a claimed post that can never reach the platform
// (no credentials, no adapter). No window slot has been reserved yet.
func (d *Dispatcher) failBeforeCall(ctx context.Context, id, msg string) (Outcome, core.ScheduledPost, error) {
	_, err := d.store.Update(ctx, id, d.toPosting)
	if err != nil {
		if errors.Is(err, core.ErrInvalidTransition) {
			d.log.Debug().Str("post_id", id).Msg("claim lost before posting")
			return OutcomeSkipped, core.ScheduledPost{}, nil
		}
		return OutcomeSkipped, core.ScheduledPost{}, err
	}
	post, err := d.fail(ctx, id, msg)
	return OutcomeFailed, post, err
}

// attempt runs the adapter call for a post already in POSTING and records the
// terminal or retrying outcome.
func (d *Dispatcher) attempt(ctx context.Context, post core.ScheduledPost, cred core.Credentials, a adapter.Adapter) (Outcome, core.ScheduledPost, error) {
	now := d.now()
	id := post.ID

	if d.pace != nil {
		if err := d.pace.Wait(ctx); err != nil {
			return OutcomeSkipped, post, err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	metrics.InFlight.Inc()
	start := time.Now()
	resp := a.Dispatch(cctx, post, cred)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	metrics.InFlight.Dec()

	if resp.Success {
		posted, err := d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
			if err := p.TransitionTo(core.StatusPosted); err != nil {
				return err
			}
			extID, extURL := resp.ExternalID, resp.ExternalURL
			postedAt := d.now()
			p.ExternalID = &extID
			p.ExternalURL = &extURL
			p.PostedAt = &postedAt
			p.ErrorMessage = nil
			return nil
		})
		if err != nil {
			return OutcomeSkipped, posted, err
		}
		d.stats.RecordPosted(posted.Channel)
		metrics.DispatchTotal.WithLabelValues(posted.Channel, OutcomePosted.String()).Inc()
		d.log.Info().Str("post_id", id).Str("channel", posted.Channel).
			Str("external_id", resp.ExternalID).Msg("posted")
		return OutcomePosted, posted, nil
	}

	dec := d.policy.Decide(post.RetryCount, post.MaxRetries, resp)
	if dec.GiveUp {
		msg := resp.Error
		if msg == "" {
			msg = dec.Reason
		}
		failed, err := d.fail(ctx, id, msg)
		return OutcomeFailed, failed, err
	}

	retrying, err := d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
		if err := p.TransitionTo(core.StatusRetrying); err != nil {
			return err
		}
		if dec.CountsAsRetry {
			p.RetryCount++
		}
		p.ScheduledFor = now.Add(dec.After)
		msg := resp.Error
		if msg == "" {
			msg = dec.Reason
		}
		p.ErrorMessage = &msg
		return nil
	})
	if err != nil {
		return OutcomeSkipped, retrying, err
	}
	metrics.DispatchTotal.WithLabelValues(retrying.Channel, OutcomeRetrying.String()).Inc()
	d.log.Warn().Str("post_id", id).Str("channel", retrying.Channel).
		Int("retry_count", retrying.RetryCount).Dur("after", dec.After).
		Str("reason", dec.Reason).Msg("dispatch failed, will retry")
	return OutcomeRetrying, retrying, nil
}

func (d *Dispatcher) fail(ctx context.Context, id, msg string) (core.ScheduledPost, error) {
	post, err := d.store.Update(ctx, id, func(p *core.ScheduledPost) error {
		if err := p.TransitionTo(core.StatusFailed); err != nil {
			return err
		}
		p.ErrorMessage = &msg
		return nil
	})
	if err != nil {
		return post, err
	}
	d.stats.RecordFailed(post.Channel)
	metrics.DispatchTotal.WithLabelValues(post.Channel, OutcomeFailed.String()).Inc()
	d.log.Error().Str("post_id", id).Str("channel", post.Channel).Str("error", msg).Msg("dispatch failed permanently")
	return post, nil
}
