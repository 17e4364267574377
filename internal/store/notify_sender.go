// Package store provides the NotifySender that drains the notification outbox.
package store

import (
	"context"
	"log/slog"
	"time"
)

// SendFunc performs the actual delivery of one operator notification.
type SendFunc func(ctx context.Context, n Notification) error

// NotifySender periodically claims due notifications and attempts delivery.
// Failed sends are rescheduled with exponential backoff, so operator
// notifications have at-least-once semantics instead of fire-and-forget.
type NotifySender struct {
	store          Store
	send           SendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
}

// NewNotifySender creates a NotifySender polling at the given interval.
func NewNotifySender(st Store, send SendFunc, pollInterval time.Duration) *NotifySender {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &NotifySender{
		store:          st,
		send:           send,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
	}
}

// RecoverStale requeues notifications stuck in the sending state from a
// previous run. Call once at startup before Run.
func (s *NotifySender) RecoverStale() error {
	n, err := s.store.RequeueStaleNotifications(time.Now().Add(-s.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("NotifySender.RecoverStale requeued notifications", "count", n)
	}
	return nil
}

// Run starts the polling loop and blocks until the context is cancelled.
func (s *NotifySender) Run(ctx context.Context) {
	slog.Info("NotifySender.Run starting", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("NotifySender.Run stopping")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *NotifySender) poll(ctx context.Context) {
	now := time.Now()
	due, err := s.store.ClaimDueNotifications(now, s.claimLimit)
	if err != nil {
		slog.Error("NotifySender.poll claim failed", "error", err)
		return
	}

	for _, n := range due {
		slog.Debug("NotifySender.poll delivering", "id", n.ID, "destination", n.Destination, "attempts", n.Attempts)
		if err := s.send(ctx, n); err != nil {
			slog.Error("NotifySender.poll delivery failed", "id", n.ID, "error", err)
			if failErr := s.store.FailNotification(n.ID, err.Error(), now.Add(backoffFor(n.Attempts))); failErr != nil {
				slog.Error("NotifySender.poll failed to record failure", "id", n.ID, "error", failErr)
			}
			continue
		}
		if err := s.store.MarkNotificationSent(n.ID); err != nil {
			slog.Error("NotifySender.poll failed to mark sent", "id", n.ID, "error", err)
			continue
		}
		slog.Info("NotifySender.poll delivered", "id", n.ID, "destination", n.Destination)
	}
}

// backoffFor returns the retry delay after the given number of prior
// attempts: 10s, 20s, 40s, ... capped at one hour.
func backoffFor(attempts int) time.Duration {
	if attempts > 8 {
		attempts = 8
	}
	backoff := time.Duration(10*(1<<attempts)) * time.Second
	if backoff > time.Hour {
		backoff = time.Hour
	}
	return backoff
}
