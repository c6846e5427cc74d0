package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Session is the state of one conversation.
type Session struct {
	ID        string
	Memory    *Memory
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	turn       chan struct{}
}

func newSession(id string, historyTurns int) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Memory:     NewMemory(historyTurns),
		CreatedAt:  now,
		lastActive: now,
		turn:       make(chan struct{}, 1),
	}
}

// Lock acquires the session for one turn. It blocks until the previous turn
// finished or ctx is done.
func (s *Session) Lock(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		s.touch()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the session acquired by Lock.
func (s *Session) Unlock() {
	s.touch()
	<-s.turn
}

// LastActive returns the time of the last Lock or Unlock.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Store is a volatile, process local session registry. It is safe for
// concurrent access.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	historyTurns int
}

// NewStore constructs an empty store whose sessions keep historyTurns turns.
func NewStore(historyTurns int) *Store {
	return &Store{sessions: make(map[string]*Session), historyTurns: historyTurns}
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// GetOrCreate returns the session with the given id, creating it lazily.
// created reports whether a new session was allocated.
func (s *Store) GetOrCreate(id string) (sess *Session, created bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = newSession(id, s.historyTurns)
	s.sessions[id] = sess
	return sess, true
}

// Delete removes a session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the session ids in lexical order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneIdle deletes sessions inactive for longer than maxIdle and returns
// how many were removed. Sessions in the middle of a turn are kept.
func (s *Store) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if len(sess.turn) > 0 || sess.LastActive().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}
