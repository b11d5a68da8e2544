package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
)

// Session is a capture session addressable by id.
type Session struct {
	ID        string
	Workflow  *capture.Workflow
	CreatedAt time.Time
}

type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Add registers workflow under a fresh id and returns its session.
func (s *SessionStore) Add(workflow *capture.Workflow) *Session {
	session := &Session{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		CreatedAt: time.Now(),
	}
	s.Set(session.ID, session)
	return session
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

// GetAll returns the sessions oldest first.
func (s *SessionStore) GetAll() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes the session and disposes its workflow, abandoning any
// capture still in progress.
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if exists {
		session.Workflow.Dispose()
	}
	return exists
}

// Expire deletes sessions created before cutoff and returns how many.
func (s *SessionStore) Expire(cutoff time.Time) int {
	var expired []string
	s.mu.RLock()
	for id, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if s.Delete(id) {
			n++
		}
	}
	return n
}

// PendingOrphans returns the permanent photos that live sessions are
// still holding for a catalog retry.
func (s *SessionStore) PendingOrphans() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[string]bool)
	for _, session := range s.sessions {
		if path := session.Workflow.Snapshot().OrphanPath; path != "" {
			pending[path] = true
		}
	}
	return pending
}

// PendingTemps returns the temp photos of sessions that are still
// analyzing or confirming.
func (s *SessionStore) PendingTemps() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[string]bool)
	for _, session := range s.sessions {
		snap := session.Workflow.Snapshot()
		if snap.State != capture.Analyzing && snap.State != capture.Confirming {
			continue
		}
		if path := snap.Draft.TempImagePath; path != "" {
			pending[path] = true
		}
	}
	return pending
}
