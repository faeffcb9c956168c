package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// Registry keeps live sessions in an expiring LRU. A session idle for longer
// than the TTL, or pushed out by newer ones, is closed and forgotten.
type Registry struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Session]
}

func NewRegistry(maxSessions int, ttl time.Duration) *Registry {
	onEvict := func(id string, s *Session) {
		log.Debug().Str("session", id).Msg("session evicted")
		s.Close()
	}
	return &Registry{cache: expirable.NewLRU[string, *Session](maxSessions, onEvict, ttl)}
}

// Get returns the session for id, creating it if needed, and renews its TTL.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cache.Get(id)
	if !ok {
		s = New(id)
	}
	r.cache.Add(id, s)
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	return r.cache.Peek(id)
}

// Remove closes and drops the session for id.
func (r *Registry) Remove(id string) {
	r.cache.Remove(id)
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
