// Package stats keeps per-channel posting counters. Only the component that
// just transitioned a post (facade on create/cancel, dispatcher on terminal
// outcomes) updates them.
package stats

import (
	"sort"
	"sync"

	"github.com/postwave/post-gateway/internal/core"
)

type Aggregator struct {
	mu    sync.Mutex
	byChn map[string]*counters
}

type counters struct {
	total      int64
	successful int64
	failed     int64
	pending    int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{byChn: make(map[string]*counters)}
}

func (a *Aggregator) get(channel string) *counters {
	c, ok := a.byChn[channel]
	if !ok {
		c = &counters{}
		a.byChn[channel] = c
	}
	return c
}

// RecordCreated counts a new post as pending.
func (a *Aggregator) RecordCreated(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.get(channel)
	c.total++
	c.pending++
}

func (a *Aggregator) RecordPosted(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.get(channel)
	c.pending--
	c.successful++
}

func (a *Aggregator) RecordFailed(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.get(channel)
	c.pending--
	c.failed++
}

// RecordCancelled removes a pending post without counting it as an outcome.
func (a *Aggregator) RecordCancelled(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.get(channel).pending--
}

// Channel returns a snapshot for one channel.
func (a *Aggregator) Channel(channel string) core.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(channel, a.get(channel))
}

// All returns snapshots for every channel seen so far, sorted by name.
func (a *Aggregator) All() []core.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Stats, 0, len(a.byChn))
	for name, c := range a.byChn {
		out = append(out, snapshot(name, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func snapshot(channel string, c *counters) core.Stats {
	s := core.Stats{
		Channel:    channel,
		Total:      c.total,
		Successful: c.successful,
		Failed:     c.failed,
		Pending:    c.pending,
	}
	if done := c.successful + c.failed; done > 0 {
		s.SuccessRate = float64(c.successful) / float64(done)
	}
	return s
}
