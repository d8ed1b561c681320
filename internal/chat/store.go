package chat

import (
	"sync"
	"time"
)

// storedSession holds all state the Store keeps for a single chat session.
type storedSession struct {
	ID       string
	History  []Turn
	Summary  string
	LastUsed time.Time
}

// Store is a thread-safe in-memory session registry with TTL eviction.
// Not designed for multi-replica deployments; this runtime is single
// process, matching the spec's scope.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storedSession
	ttl      time.Duration
	maxTurns int
	done     chan struct{}
}

// NewStore creates a Store with the given TTL and maxTurns limit, and
// starts a background goroutine that periodically evicts expired
// sessions. Call Close when the store is no longer needed.
func NewStore(ttl time.Duration, maxTurns int) *Store {
	if ttl < minCleanupInterval {
		ttl = minCleanupInterval
	}
	s := &Store{
		sessions: make(map[string]*storedSession),
		ttl:      ttl,
		maxTurns: maxTurns,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// AppendTurn adds a completed exchange to the session, enforcing maxTurns.
// The session is created automatically on first write.
func (s *Store) AppendTurn(id string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &storedSession{ID: id, LastUsed: time.Now()}
		s.sessions[id] = sess
	}
	sess.History = append(sess.History, turn)
	if len(sess.History) > s.maxTurns {
		sess.History = sess.History[len(sess.History)-s.maxTurns:]
	}
	sess.LastUsed = time.Now()
}

// GetSessionContext atomically returns both turn history and summary.
func (s *Store) GetSessionContext(id string) ([]Turn, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ""
	}
	result := make([]Turn, len(sess.History))
	copy(result, sess.History)
	return result, sess.Summary
}

// Compact replaces old turns with a summary, keeping the newest keepN.
func (s *Store) Compact(id string, summary string, keepN int) (compacted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || len(sess.History) <= keepN {
		return 0
	}
	compacted = len(sess.History) - keepN
	sess.Summary = summary
	sess.History = sess.History[len(sess.History)-keepN:]
	sess.LastUsed = time.Now()
	return compacted
}

// Delete explicitly removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background cleanup goroutine. Safe to call repeatedly.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			cutoff := time.Now().Add(-s.ttl)
			for id, sess := range s.sessions {
				if sess.LastUsed.Before(cutoff) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
