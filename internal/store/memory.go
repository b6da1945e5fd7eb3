package store

import (
	"context"
	"sort"
	"sync"

	"github.com/postwave/post-gateway/internal/core"
)

// Memory is the in-process Store backend. Each post is guarded by its own
// mutex so updates to independent posts never contend.
type Memory struct {
	mu    sync.RWMutex
	posts map[string]*memEntry
}

type memEntry struct {
	mu   sync.Mutex
	post core.ScheduledPost
}

func NewMemory() *Memory {
	return &Memory{posts: make(map[string]*memEntry)}
}

func (m *Memory) Create(ctx context.Context, post *core.ScheduledPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.ID]; ok {
		return ErrConflict
	}
	m.posts[post.ID] = &memEntry{post: clonePost(*post)}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (core.ScheduledPost, error) {
	m.mu.RLock()
	e, ok := m.posts[id]
	m.mu.RUnlock()
	if !ok {
		return core.ScheduledPost{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePost(e.post), nil
}

func (m *Memory) Update(ctx context.Context, id string, mutate func(p *core.ScheduledPost) error) (core.ScheduledPost, error) {
	m.mu.RLock()
	e, ok := m.posts[id]
	m.mu.RUnlock()
	if !ok {
		return core.ScheduledPost{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := clonePost(e.post)
	if err := mutate(&next); err != nil {
		return core.ScheduledPost{}, err
	}
	next.Version = e.post.Version + 1
	e.post = clonePost(next)
	return next, nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]core.ScheduledPost, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.posts))
	for _, e := range m.posts {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]core.ScheduledPost, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		p := clonePost(e.post)
		e.mu.Unlock()
		if f.Channel != "" && p.Channel != f.Channel {
			continue
		}
		if !f.matchStatus(p.Status) {
			continue
		}
		if f.DueBefore != nil && p.ScheduledFor.After(*f.DueBefore) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// clonePost deep-copies slices and the metadata bag so callers can never
// mutate stored state behind the entry lock.
func clonePost(p core.ScheduledPost) core.ScheduledPost {
	cp := p
	if p.Hashtags != nil {
		cp.Hashtags = append([]string(nil), p.Hashtags...)
	}
	if p.MediaRefs != nil {
		cp.MediaRefs = append([]string(nil), p.MediaRefs...)
	}
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	if p.ExternalID != nil {
		v := *p.ExternalID
		cp.ExternalID = &v
	}
	if p.ExternalURL != nil {
		v := *p.ExternalURL
		cp.ExternalURL = &v
	}
	if p.ErrorMessage != nil {
		v := *p.ErrorMessage
		cp.ErrorMessage = &v
	}
	if p.PostedAt != nil {
		v := *p.PostedAt
		cp.PostedAt = &v
	}
	if p.QueuedAt != nil {
		v := *p.QueuedAt
		cp.QueuedAt = &v
	}
	return cp
}
