// internal/session/store.go
package session

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the authoritative in-memory table of sessions. All reads return
// copies; mutation only happens through Update and Stop.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new Active session and returns its id.
func (s *Store) Create(tokenAddress string, buyAmount *big.Int, slippageBps int) string {
	now := s.now()
	id := fmt.Sprintf("session-%d-%s", now.UnixMilli(), uuid.NewString())

	amount := new(big.Int)
	if buyAmount != nil {
		amount.Set(buyAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &Session{
		ID:           id,
		TokenAddress: strings.ToLower(tokenAddress),
		BuyAmount:    amount,
		SlippageBps:  slippageBps,
		Status:       StatusActive,
		StartTime:    now,
		LastUpdate:   now,
	}
	return id
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Update applies mutate atomically and stamps LastUpdate. A status change
// that would move a session backwards out of a terminal state is discarded.
// Returns false if the session does not exist.
func (s *Store) Update(id string, mutate func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	next := sess.clone()
	mutate(&next)
	next.ID = sess.ID
	if !canMove(sess.Status, next.Status) {
		next.Status = sess.Status
	}
	next.LastUpdate = s.now()
	*sess = next
	return true
}

// Stop marks the session Stopped and returns the status it had before.
// Calling it on an already stopped session changes nothing.
func (s *Store) Stop(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	prev := sess.Status
	if prev != StatusStopped {
		sess.Status = StatusStopped
		sess.LastUpdate = s.now()
	}
	return prev, true
}

// List returns every session ordered by start time.
func (s *Store) List() []Session {
	return s.filter(func(*Session) bool { return true })
}

// ListActive returns sessions that are still Active or Monitoring.
func (s *Store) ListActive() []Session {
	return s.filter(func(sess *Session) bool { return !sess.Status.Terminal() })
}

// Len returns the number of retained sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Evict drops terminal sessions untouched for longer than ttl and returns
// the evicted ids.
func (s *Store) Evict(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.Status.Terminal() && sess.LastUpdate.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

func (s *Store) filter(keep func(*Session) bool) []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
