// Package store provides the PostgreSQL-backed lead and notification store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/viatel/triagebot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists leads and notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL using the configured DSN and
// applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// AddLead implements Store.
func (s *PostgresStore) AddLead(lead models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	answers, err := json.Marshal(lead.Answers)
	if err != nil {
		return fmt.Errorf("encode lead answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO leads (id, user_id, display_name, username, channel, answers, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lead.ID, lead.UserID, nilIfEmpty(lead.DisplayName), nilIfEmpty(lead.Username), lead.Channel, string(answers), lead.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddLead failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("PostgresStore AddLead succeeded", "leadID", lead.ID, "userID", lead.UserID)
	return nil
}

// GetLeads implements Store.
func (s *PostgresStore) GetLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, display_name, username, channel, answers, created_at FROM leads ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// EnqueueNotification implements Store.
func (s *PostgresStore) EnqueueNotification(destination, body string) (string, error) {
	if destination == "" {
		return "", models.ErrEmptyDestination
	}
	if body == "" {
		return "", models.ErrEmptyNotification
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, destination, body, status, attempts, created_at, updated_at) VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		id, destination, body, NotificationStatusQueued, now, now,
	)
	if err != nil {
		slog.Error("PostgresStore EnqueueNotification failed", "error", err, "destination", destination)
		return "", fmt.Errorf("failed to enqueue notification: %w", err)
	}
	slog.Debug("PostgresStore notification enqueued", "id", id, "destination", destination)
	return id, nil
}

// ClaimDueNotifications implements Store. The claim uses FOR UPDATE SKIP
// LOCKED so multiple instances never double-send a notification.
func (s *PostgresStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, destination, body, status, attempts, next_attempt_at, last_error, created_at, updated_at
		 FROM notifications
		 WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		 ORDER BY created_at LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		NotificationStatusQueued, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}

	var claimed []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range claimed {
		if _, err := tx.Exec(
			`UPDATE notifications SET status = $1, updated_at = $2 WHERE id = $3`,
			NotificationStatusSending, now, claimed[i].ID,
		); err != nil {
			return nil, fmt.Errorf("failed to claim notification %s: %w", claimed[i].ID, err)
		}
		claimed[i].Status = NotificationStatusSending
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return claimed, nil
}

// MarkNotificationSent implements Store.
func (s *PostgresStore) MarkNotificationSent(id string) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = $1, updated_at = $2 WHERE id = $3`,
		NotificationStatusSent, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", id, err)
	}
	return nil
}

// FailNotification implements Store.
func (s *PostgresStore) FailNotification(id, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = $1, attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = $4 WHERE id = $5`,
		NotificationStatusQueued, errMsg, nextAttemptAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification failure for %s: %w", id, err)
	}
	return nil
}

// RequeueStaleNotifications implements Store.
func (s *PostgresStore) RequeueStaleNotifications(staleBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE notifications SET status = $1, updated_at = $2 WHERE status = $3 AND updated_at < $4`,
		NotificationStatusQueued, time.Now().UTC(), NotificationStatusSending, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
