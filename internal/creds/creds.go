// Package creds holds per-channel auth material. It is the only component
// that retains credentials; adapters get a read-only copy per call.
package creds

import (
	"sync"
	"time"

	"github.com/postwave/post-gateway/internal/core"
)

type Store struct {
	mu    sync.RWMutex
	byChn map[string]core.Credentials
}

func NewStore() *Store {
	return &Store{byChn: make(map[string]core.Credentials)}
}

// Put installs or replaces a channel's credentials. Called by the external
// credential-refresh collaborator.
func (s *Store) Put(c core.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChn[c.Channel] = c
}

func (s *Store) Get(channel string) (core.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byChn[channel]
	return c, ok
}

func (s *Store) Delete(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChn, channel)
}

// Valid reports whether the channel has a usable token right now.
func (s *Store) Valid(channel string, now time.Time) bool {
	c, ok := s.Get(channel)
	return ok && c.Valid(now)
}
