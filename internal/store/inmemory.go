package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viatel/triagebot/internal/models"
)

// InMemoryStore keeps leads and the notification outbox in process memory.
// It is the default backend when no database DSN is configured.
type InMemoryStore struct {
	mu            sync.Mutex
	leads         []models.Lead
	notifications map[string]*Notification
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{notifications: make(map[string]*Notification)}
}

// AddLead implements Store.
func (s *InMemoryStore) AddLead(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	s.leads = append(s.leads, lead)
	slog.Debug("InMemoryStore lead added", "leadID", lead.ID, "userID", lead.UserID)
	return nil
}

// GetLeads implements Store.
func (s *InMemoryStore) GetLeads() ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leads := make([]models.Lead, len(s.leads))
	copy(leads, s.leads)
	return leads, nil
}

// EnqueueNotification implements Store.
func (s *InMemoryStore) EnqueueNotification(destination, body string) (string, error) {
	if destination == "" {
		return "", models.ErrEmptyDestination
	}
	if body == "" {
		return "", models.ErrEmptyNotification
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	n := &Notification{
		ID:          uuid.New().String(),
		Destination: destination,
		Body:        body,
		Status:      NotificationStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.notifications[n.ID] = n
	slog.Debug("InMemoryStore notification enqueued", "id", n.ID, "destination", destination)
	return n.ID, nil
}

// ClaimDueNotifications implements Store.
func (s *InMemoryStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Notification
	for _, n := range s.notifications {
		if n.Status != NotificationStatusQueued {
			continue
		}
		if n.NextAttemptAt != nil && n.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, n)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Notification, 0, len(due))
	for _, n := range due {
		n.Status = NotificationStatusSending
		n.UpdatedAt = now
		claimed = append(claimed, *n)
	}
	return claimed, nil
}

// MarkNotificationSent implements Store.
func (s *InMemoryStore) MarkNotificationSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	n.Status = NotificationStatusSent
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// FailNotification implements Store.
func (s *InMemoryStore) FailNotification(id, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	n.Status = NotificationStatusQueued
	n.Attempts++
	n.LastError = errMsg
	n.NextAttemptAt = &nextAttemptAt
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// RequeueStaleNotifications implements Store.
func (s *InMemoryStore) RequeueStaleNotifications(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications {
		if n.Status == NotificationStatusSending && n.UpdatedAt.Before(staleBefore) {
			n.Status = NotificationStatusQueued
			n.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}
