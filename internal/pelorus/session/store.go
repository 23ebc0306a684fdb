// Package session implements the per-user conversation state store.
//
// A session is a single slot per owner key holding the payload a follow-up
// reply needs (pending intent, resolved vessel identifier, fetched data).
// Exactly one session exists per owner at a time; Save replaces silently
// because a user can only be in one conversation at once. Entries expire
// after a TTL, lazily on read and eagerly via the periodic sweeper.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTTL is the session lifetime when the caller passes a
	// non-positive ttl to Save.
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is the cadence of the background eviction sweep.
	DefaultSweepInterval = time.Minute
)

// State classifies the outcome of a Get.
type State int

const (
	// StateNone means no session exists for the owner.
	StateNone State = iota
	// StateActive means a live session was found and its payload returned.
	StateActive
	// StateExpired means a session existed but its TTL had lapsed; the
	// entry has been deleted and no payload is returned. Apart from the
	// state tag this is indistinguishable from StateNone.
	StateExpired
)

type entry struct {
	payload   map[string]any
	createdAt time.Time
	expiresAt time.Time
}

// Store holds active sessions keyed by normalized owner key. It is safe for
// concurrent use; expiry is always evaluated under the same mutex as
// mutation, so a sweep can never remove a session re-saved after the sweep
// started.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	sweepInterval time.Duration
	stopSweep     context.CancelFunc
	sweepDone     chan struct{}

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewStore creates an empty session store. sweepInterval controls the
// background eviction cadence once StartSweeper is called; non-positive
// values fall back to DefaultSweepInterval.
func NewStore(sweepInterval time.Duration) *Store {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Store{
		sessions:      make(map[string]*entry),
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// Save stores payload for ownerKey, replacing any existing session (last
// writer wins). CreatedAt is stamped now and ExpiresAt now+ttl; a
// non-positive ttl falls back to DefaultTTL.
func (s *Store) Save(ownerKey string, payload map[string]any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[ownerKey] = &entry{
		payload:   payload,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// Get returns the stored payload for ownerKey. Reading is not a "touch":
// the TTL is never refreshed. An expired entry is deleted on sight and
// reported as StateExpired with a nil payload.
func (s *Store) Get(ownerKey string) (map[string]any, State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[ownerKey]
	if !ok {
		return nil, StateNone
	}
	if s.now().After(e.expiresAt) {
		delete(s.sessions, ownerKey)
		return nil, StateExpired
	}
	return e.payload, StateActive
}

// Clear removes the session for ownerKey unconditionally, reporting whether
// one existed (expired or not).
func (s *Store) Clear(ownerKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[ownerKey]
	delete(s.sessions, ownerKey)
	return ok
}

// Len returns the number of stored sessions, including not-yet-swept
// expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were evicted.
// It runs under the store mutex, so a session saved while the sweep is
// pending cannot be deleted by it.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// StartSweeper launches the background eviction goroutine. It keeps memory
// bounded for owners who never send another message. Call StopSweeper (or
// cancel ctx) to stop it; starting twice is a no-op.
func (s *Store) StartSweeper(ctx context.Context) {
	s.mu.Lock()
	if s.stopSweep != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	s.sweepDone = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(); removed > 0 {
					slog.Debug("session sweep evicted expired sessions", "removed", removed)
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
// Safe to call when the sweeper was never started.
func (s *Store) StopSweeper() {
	s.mu.Lock()
	cancel := s.stopSweep
	done := s.sweepDone
	s.stopSweep = nil
	s.sweepDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
