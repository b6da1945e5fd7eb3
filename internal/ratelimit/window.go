package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limiter admits or denies a dispatch attempt for a channel. A granted
// reservation is consumed immediately: callers must proceed to dispatch,
// never probe speculatively.
type Limiter interface {
	TryReserve(ctx context.Context, channel string) (bool, error)
}

// Window is an in-process sliding-window limiter: per channel, an ordered
// sequence of attempt timestamps bounded to the trailing window, evicted
// lazily on each reservation.
type Window struct {
	window time.Duration
	limits map[string]int
	now    func() time.Time
	log    zerolog.Logger

	mu     sync.Mutex // guards the channels map and warned set
	chans  map[string]*channelWindow
	warned map[string]struct{}
}

type channelWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewWindow builds a limiter over the given per-channel hourly quotas.
// limits maps channel name to max attempts per window.
func NewWindow(window time.Duration, limits map[string]int, log zerolog.Logger) *Window {
	if window <= 0 {
		window = time.Hour
	}
	cp := make(map[string]int, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Window{
		window: window,
		limits: cp,
		now:    time.Now,
		log:    log,
		chans:  make(map[string]*channelWindow),
		warned: make(map[string]struct{}),
	}
}

// SetNow overrides the clock. Test hook.
func (w *Window) SetNow(now func() time.Time) { w.now = now }

// TryReserve evicts stale timestamps and, if the channel is under quota,
// records the attempt and grants the reservation. Check and increment are a
// single atomic step under the channel's lock.
func (w *Window) TryReserve(ctx context.Context, channel string) (bool, error) {
	limit, known := w.limits[channel]

	w.mu.Lock()
	cw, ok := w.chans[channel]
	if !ok {
		cw = &channelWindow{}
		w.chans[channel] = cw
	}
	if !known {
		if _, done := w.warned[channel]; !done {
			w.warned[channel] = struct{}{}
			w.log.Warn().Str("channel", channel).Msg("no rate limit configured; treating channel as unlimited")
		}
	}
	w.mu.Unlock()

	if !known {
		return true, nil
	}

	now := w.now()
	cutoff := now.Add(-w.window)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	// Evict everything older than the trailing window. Stamps are appended
	// in order, so the survivors are a suffix.
	i := 0
	for i < len(cw.stamps) && !cw.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cw.stamps = append(cw.stamps[:0], cw.stamps[i:]...)
	}

	if len(cw.stamps) >= limit {
		return false, nil
	}
	cw.stamps = append(cw.stamps, now)
	return true, nil
}
