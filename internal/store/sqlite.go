// Package store provides the SQLite-backed lead and notification store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/viatel/triagebot/internal/models"
)

// DefaultDirPermissions defines the permissions used when creating the
// database directory.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists leads and notifications in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at the DSN
// file path and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open database", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// AddLead implements Store.
func (s *SQLiteStore) AddLead(lead models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	answers, err := json.Marshal(lead.Answers)
	if err != nil {
		return fmt.Errorf("encode lead answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO leads (id, user_id, display_name, username, channel, answers, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.UserID, nilIfEmpty(lead.DisplayName), nilIfEmpty(lead.Username), lead.Channel, string(answers), lead.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddLead failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("SQLiteStore AddLead succeeded", "leadID", lead.ID, "userID", lead.UserID)
	return nil
}

// GetLeads implements Store.
func (s *SQLiteStore) GetLeads() ([]models.Lead, error) {
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
func (s *SQLiteStore) EnqueueNotification(destination, body string) (string, error) {
	if destination == "" {
		return "", models.ErrEmptyDestination
	}
	if body == "" {
		return "", models.ErrEmptyNotification
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, destination, body, status, attempts, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, destination, body, NotificationStatusQueued, now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore EnqueueNotification failed", "error", err, "destination", destination)
		return "", fmt.Errorf("failed to enqueue notification: %w", err)
	}
	slog.Debug("SQLiteStore notification enqueued", "id", id, "destination", destination)
	return id, nil
}

// ClaimDueNotifications implements Store.
func (s *SQLiteStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, destination, body, status, attempts, next_attempt_at, last_error, created_at, updated_at
		 FROM notifications
		 WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at LIMIT ?`,
		NotificationStatusQueued, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}
	defer rows.Close()

	var due []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claimed := make([]Notification, 0, len(due))
	for _, n := range due {
		res, err := s.db.Exec(
			`UPDATE notifications SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			NotificationStatusSending, now, n.ID, NotificationStatusQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim notification %s: %w", n.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue
		}
		n.Status = NotificationStatusSending
		claimed = append(claimed, n)
	}
	return claimed, nil
}

// MarkNotificationSent implements Store.
func (s *SQLiteStore) MarkNotificationSent(id string) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = ?, updated_at = ? WHERE id = ?`,
		NotificationStatusSent, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", id, err)
	}
	return nil
}

// FailNotification implements Store.
func (s *SQLiteStore) FailNotification(id, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		NotificationStatusQueued, errMsg, nextAttemptAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification failure for %s: %w", id, err)
	}
	return nil
}

// RequeueStaleNotifications implements Store.
func (s *SQLiteStore) RequeueStaleNotifications(staleBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE notifications SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		NotificationStatusQueued, time.Now().UTC(), NotificationStatusSending, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
