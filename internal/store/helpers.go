package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/viatel/triagebot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanLead scans a Lead from sql.Rows.
func scanLead(rows *sql.Rows) (models.Lead, error) {
	var lead models.Lead
	var displayName, username sql.NullString
	var answersJSON string
	err := rows.Scan(&lead.ID, &lead.UserID, &displayName, &username, &lead.Channel, &answersJSON, &lead.CreatedAt)
	if err != nil {
		return lead, fmt.Errorf("scan lead failed: %w", err)
	}
	lead.DisplayName = displayName.String
	lead.Username = username.String
	if err := json.Unmarshal([]byte(answersJSON), &lead.Answers); err != nil {
		return lead, fmt.Errorf("decode lead answers failed: %w", err)
	}
	return lead, nil
}

// scanNotification scans a Notification from sql.Rows.
func scanNotification(rows *sql.Rows) (Notification, error) {
	var n Notification
	var lastError sql.NullString
	var nextAttemptAt sql.NullTime
	err := rows.Scan(
		&n.ID, &n.Destination, &n.Body, &n.Status, &n.Attempts,
		&nextAttemptAt, &lastError, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, fmt.Errorf("scan notification failed: %w", err)
	}
	n.LastError = lastError.String
	if nextAttemptAt.Valid {
		n.NextAttemptAt = &nextAttemptAt.Time
	}
	return n, nil
}
