package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snoreguard/panel/core"
)

func (a *Adapter) AppendAudit(ctx context.Context, entry *core.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var payload *string
	if entry.Context != nil {
		b, err := json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		s := string(b)
		payload = &s
	}

	query := `INSERT INTO system_logs (user_id, timestamp, log_level, message, context) VALUES ($1, $2, $3, $4, $5) RETURNING log_id`
	err := a.pool.QueryRow(ctx, query, entry.UserID, entry.CreatedAt, string(entry.Level), entry.Message, payload).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (a *Adapter) ListAudit(ctx context.Context, userID *int64, limit int) ([]*core.AuditEntry, error) {
	// a NULL limit means no limit
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	q := `SELECT log_id, user_id, timestamp, log_level, message, context FROM system_logs
	      WHERE ($1::bigint IS NULL OR user_id = $1)
	      ORDER BY log_id DESC LIMIT $2`

	rows, err := a.pool.Query(ctx, q, userID, lim)
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

func scanAudit(row pgx.Row) (*core.AuditEntry, error) {
	var (
		entry   core.AuditEntry
		level   string
		payload *string
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.CreatedAt, &level, &entry.Message, &payload); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	entry.Level = core.LogLevel(level)
	entry.CreatedAt = entry.CreatedAt.UTC()
	if payload != nil && *payload != "" {
		// entries written by older tools may hold plain text
		if err := json.Unmarshal([]byte(*payload), &entry.Context); err != nil {
			entry.Context = map[string]any{"raw": *payload}
		}
	}
	return &entry, nil
}
