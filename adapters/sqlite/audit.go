package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snoreguard/panel/core"
)

func (a *Adapter) AppendAudit(ctx context.Context, entry *core.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var payload sql.NullString
	if entry.Context != nil {
		b, err := json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: *entry.UserID, Valid: true}
	}

	q := `INSERT INTO system_logs (user_id, timestamp, log_level, message, context) VALUES (?, ?, ?, ?, ?)`
	res, err := a.db.ExecContext(ctx, q, userID, entry.CreatedAt.UTC(), string(entry.Level), entry.Message, payload)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	entry.ID = id
	return nil
}

func (a *Adapter) ListAudit(ctx context.Context, userID *int64, limit int) ([]*core.AuditEntry, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	q := `SELECT log_id, user_id, timestamp, log_level, message, context FROM system_logs`
	args := []any{}
	if userID != nil {
		q += ` WHERE user_id = ?`
		args = append(args, *userID)
	}
	q += ` ORDER BY log_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	entries := make([]*core.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

func scanAudit(row rowScanner) (*core.AuditEntry, error) {
	var (
		entry   core.AuditEntry
		userID  sql.NullInt64
		level   string
		payload sql.NullString
	)
	if err := row.Scan(&entry.ID, &userID, &entry.CreatedAt, &level, &entry.Message, &payload); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	entry.Level = core.LogLevel(level)
	entry.CreatedAt = entry.CreatedAt.UTC()
	if userID.Valid {
		id := userID.Int64
		entry.UserID = &id
	}
	if payload.Valid && payload.String != "" {
		// entries written by older tools may hold plain text
		if err := json.Unmarshal([]byte(payload.String), &entry.Context); err != nil {
			entry.Context = map[string]any{"raw": payload.String}
		}
	}
	return &entry, nil
}
