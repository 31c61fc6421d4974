// Package session keeps in-memory verification sessions with sliding
// expiration. Sessions are process-local; losing them on restart is
// acceptable because every session is reconstructible by re-uploading.
package session

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/attestry/attestry/internal/verification/domain"
)

// Store holds live sessions keyed by session id.
type Store struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a session store. Sessions idle longer than ttl are
// evicted by the cache's background sweeper, which runs every sweep
// interval. A non-positive sweep defaults to half the ttl.
func NewStore(ttl, sweep time.Duration, logger *slog.Logger) *Store {
	if sweep <= 0 {
		sweep = ttl / 2
	}
	c := cache.New(ttl, sweep)
	s := &Store{cache: c, ttl: ttl, logger: logger}
	c.OnEvicted(func(id string, _ any) {
		logger.Debug("session expired", "session_id", id)
	})
	return s
}

// Get returns the session for an id and renews its expiration. The second
// return is false when the id is unknown or already expired.
func (s *Store) Get(id string) (*domain.Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*domain.Session)
	// Sliding expiration: any access keeps the session alive.
	s.cache.Set(id, sess, s.ttl)
	return sess, true
}

// GetOrCreate returns the session for an id, creating a fresh one when the
// id is unknown, expired, or empty. The returned bool is true when a new
// session was created.
func (s *Store) GetOrCreate(id string) (*domain.Session, bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}
	sess := domain.NewSession()
	s.cache.Set(sess.ID, sess, s.ttl)
	s.logger.Debug("session created", "session_id", sess.ID)
	return sess, true
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	return s.cache.ItemCount()
}
