// Package store provides lead and notification persistence backends for
// triagebot.
//
// It includes an in-memory store for single-process deployments plus SQLite
// and PostgreSQL backends. Besides completed leads, the store holds the
// durable outbox of operator notifications so a lead is never lost to a
// transient delivery failure.
package store

import (
	"strings"
	"time"

	"github.com/viatel/triagebot/internal/models"
)

// NotificationStatus represents the lifecycle state of an outbox notification.
type NotificationStatus string

const (
	NotificationStatusQueued  NotificationStatus = "queued"
	NotificationStatusSending NotificationStatus = "sending"
	NotificationStatusSent    NotificationStatus = "sent"
)

// Notification is a durable outgoing operator message.
type Notification struct {
	ID            string             `json:"id"`
	Destination   string             `json:"destination"`
	Body          string             `json:"body"`
	Status        NotificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	NextAttemptAt *time.Time         `json:"next_attempt_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Store defines the persistence contract shared by all backends.
type Store interface {
	// AddLead persists a completed lead record.
	AddLead(lead models.Lead) error

	// GetLeads returns all stored leads, oldest first.
	GetLeads() ([]models.Lead, error)

	// EnqueueNotification inserts a queued operator notification and returns its ID.
	EnqueueNotification(destination, body string) (string, error)

	// ClaimDueNotifications marks up to limit queued notifications whose
	// next_attempt_at <= now (or is unset) as sending and returns them.
	ClaimDueNotifications(now time.Time, limit int) ([]Notification, error)

	// MarkNotificationSent marks a notification as successfully delivered.
	MarkNotificationSent(id string) error

	// FailNotification records a delivery failure and schedules a retry.
	FailNotification(id, errMsg string, nextAttemptAt time.Time) error

	// RequeueStaleNotifications resets notifications stuck in sending since
	// before staleBefore back to queued (crash recovery).
	RequeueStaleNotifications(staleBefore time.Time) (int, error)

	// Close releases database resources.
	Close() error
}

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use URL or key=value form; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
