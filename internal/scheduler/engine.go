package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/metrics"
	"github.com/postwave/post-gateway/internal/store"
)

// EngineOptions tunes the control loop.
type EngineOptions struct {
	PollInterval time.Duration // default 60s
	BatchSize    int           // due posts per tick, default 100
}

// Engine is the background control loop: wake on a fixed interval, select due
// posts, and drive each through the dispatch routine. Posts for the same
// channel run sequentially in scheduled_for order; channels run in parallel.
type Engine struct {
	store      store.Store
	dispatcher *Dispatcher
	interval   time.Duration
	batch      int
	log        zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(st store.Store, d *Dispatcher, opt EngineOptions, log zerolog.Logger) *Engine {
	if opt.PollInterval <= 0 {
		opt.PollInterval = 60 * time.Second
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 100
	}
	return &Engine{
		store:      st,
		dispatcher: d,
		interval:   opt.PollInterval,
		batch:      opt.BatchSize,
		log:        log.With().Str("component", "scheduler").Logger(),
		now:        time.Now,
	}
}

// SetNow overrides the clock. Test hook.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// Start launches the loop. It is an error to start a running engine twice;
// the second call is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx)
	e.log.Info().Dur("poll_interval", e.interval).Msg("scheduler started")
}

// Stop signals the loop and waits for in-flight dispatches to finish, up to
// the given context's deadline. Pending ticks are abandoned.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		e.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// First pass immediately; posts due at startup should not wait a full
	// interval.
	e.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single dispatch pass and returns how many posts were
// attempted. Exported so embedders and tests can drive ticks directly.
func (e *Engine) RunOnce(ctx context.Context) int {
	now := e.now()
	due, err := e.store.List(ctx, store.Filter{
		Statuses:  []core.Status{core.StatusScheduled, core.StatusQueued, core.StatusRetrying},
		DueBefore: &now,
		Limit:     e.batch,
	})
	if err != nil {
		metrics.TickErrors.Inc()
		e.log.Error().Err(err).Msg("select due posts")
		return 0
	}
	metrics.TickDue.Observe(float64(len(due)))
	if len(due) == 0 {
		return 0
	}

	// Group by channel, preserving scheduled_for order within each. One
	// goroutine per channel keeps per-channel ordering while independent
	// channels proceed in parallel.
	byChannel := make(map[string][]string)
	for _, p := range due {
		byChannel[p.Channel] = append(byChannel[p.Channel], p.ID)
	}

	var wg sync.WaitGroup
	for channel, ids := range byChannel {
		wg.Add(1)
		go func(channel string, ids []string) {
			defer wg.Done()
			for _, id := range ids {
				select {
				case <-ctx.Done():
					return
				default:
				}
				// One post's failure never interrupts the rest.
				if _, _, err := e.dispatcher.Dispatch(ctx, id); err != nil {
					e.log.Error().Err(err).Str("post_id", id).Str("channel", channel).Msg("dispatch error")
				}
			}
		}(channel, ids)
	}
	wg.Wait()
	return len(due)
}
