package relay

import (
	"context"
	"sync"
	"time"
)

type storeEntry struct {
	session  *Session
	lastSeen time.Time
}

// Store maps session ids to live sessions. TTL and MaxSessions bound growth
// from calls that never reach teardown; zero disables either policy.
type Store struct {
	TTL         time.Duration
	MaxSessions int
	OnEvict     func(id string) // called with the lock held

	mu      sync.Mutex
	entries map[string]*storeEntry
	now     func() time.Time
}

func NewStore(ttl time.Duration, maxSessions int) *Store {
	return &Store{
		TTL:         ttl,
		MaxSessions: maxSessions,
		entries:     make(map[string]*storeEntry),
		now:         time.Now,
	}
}

// Create returns the live session for id, constructing an empty one if absent.
func (s *Store) Create(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[id]; ok {
		e.lastSeen = now
		return e.session
	}

	if s.MaxSessions > 0 && len(s.entries) >= s.MaxSessions {
		s.evictOldestLocked()
	}

	sess := newSession(id, now)
	s.entries[id] = &storeEntry{session: sess, lastSeen: now}
	return sess
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Delete removes id only while it still maps to sess, so a call that ends
// after eviction cannot drop a newer session registered under the same id.
func (s *Store) Delete(id string, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.session != sess {
		return false
	}
	delete(s.entries, id)
	return true
}

// Touch marks the session as active for the idle reaper.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.lastSeen = s.now()
	}
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.entries {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		s.dropLocked(oldestID)
		if s.OnEvict != nil {
			s.OnEvict(oldestID)
		}
	}
}

// dropLocked removes id and signals the owning call to end.
func (s *Store) dropLocked(id string) {
	e := s.entries[id]
	delete(s.entries, id)
	close(e.session.evicted)
}

// Reap drops sessions idle longer than TTL and returns their ids.
func (s *Store) Reap(now time.Time) []string {
	if s.TTL <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > s.TTL {
			s.dropLocked(id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// Run reaps every interval until ctx is done. onReap may be nil.
func (s *Store) Run(ctx context.Context, interval time.Duration, onReap func(ids []string)) {
	if s.TTL <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ids := s.Reap(s.now()); len(ids) > 0 && onReap != nil {
				onReap(ids)
			}
		}
	}
}
