package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/viatel/triagebot/internal/models"
)

// MemoryStore implements Store with an in-process map. Sessions are lost on
// restart and there is no eviction; an abandoned mid-conversation session
// stays until the user finishes or cancels.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, key string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}

	now := time.Now().UTC()
	sess := &models.Session{
		Answers:   make(map[models.StepID]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[key] = sess
	slog.Debug("MemoryStore session created", "key", key)
	return sess, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, key string, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = time.Now().UTC()
	s.sessions[key] = sess
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	slog.Debug("MemoryStore session cleared", "key", key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

// Len reports the number of live sessions. Used by tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
