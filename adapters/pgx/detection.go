package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snoreguard/panel/core"
)

const detectionColumns = `detection_id, user_id, timestamp, class_name, confidence::float8, COALESCE(model_type, ''), COALESCE(audio_file, ''), COALESCE(pump_activated, 0) <> 0, COALESCE(notes, '')`

func (a *Adapter) AppendDetection(ctx context.Context, d *core.Detection) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO detection_history (user_id, timestamp, class_name, confidence, model_type, audio_file, pump_activated, notes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING detection_id`
	err := a.pool.QueryRow(ctx, query, d.UserID, d.CreatedAt, d.ClassName, d.Confidence,
		d.ModelType, d.AudioFile, activeFlag(d.PumpActivated), d.Notes).Scan(&d.ID)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (a *Adapter) ListDetections(ctx context.Context, userID int64, limit int) ([]*core.Detection, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	q := `SELECT ` + detectionColumns + ` FROM detection_history WHERE user_id = $1 ORDER BY timestamp DESC, detection_id DESC LIMIT $2`
	rows, err := a.pool.Query(ctx, q, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	detections := make([]*core.Detection, 0)
	for rows.Next() {
		var d core.Detection
		if err := rows.Scan(&d.ID, &d.UserID, &d.CreatedAt, &d.ClassName, &d.Confidence,
			&d.ModelType, &d.AudioFile, &d.PumpActivated, &d.Notes); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.CreatedAt = d.CreatedAt.UTC()
		detections = append(detections, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return detections, nil
}

func (a *Adapter) SummarizeDetections(ctx context.Context, userID int64, since time.Time, snoreClass string) (*core.DetectionSummary, error) {
	q := `SELECT COUNT(*),
	             COALESCE(SUM(CASE WHEN class_name = $1 THEN 1 ELSE 0 END), 0),
	             COALESCE(AVG(confidence), 0)::float8
	      FROM detection_history
	      WHERE user_id = $2 AND timestamp >= $3`

	var summary core.DetectionSummary
	if err := a.pool.QueryRow(ctx, q, snoreClass, userID, since).Scan(&summary.Total, &summary.Snoring, &summary.AverageConfidence); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &summary, nil
}

func (a *Adapter) GetSettings(ctx context.Context, userID int64) (*core.UserSettings, error) {
	q := `SELECT user_id, COALESCE(auto_detect_enabled, 0) <> 0, COALESCE(detection_delay, 5),
	             COALESCE(confidence_threshold, 0.85)::float8, COALESCE(notification_enabled, 1) <> 0,
	             COALESCE(updated_at, created_at, CURRENT_TIMESTAMP)
	      FROM user_settings WHERE user_id = $1`

	var s core.UserSettings
	err := a.pool.QueryRow(ctx, q, userID).Scan(&s.UserID, &s.AutoDetectEnabled, &s.DetectionDelay,
		&s.ConfidenceThreshold, &s.NotificationEnabled, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (a *Adapter) SaveSettings(ctx context.Context, s *core.UserSettings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	q := `INSERT INTO user_settings (user_id, auto_detect_enabled, detection_delay, confidence_threshold, notification_enabled, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      ON CONFLICT (user_id) DO UPDATE SET
	          auto_detect_enabled = EXCLUDED.auto_detect_enabled,
	          detection_delay = EXCLUDED.detection_delay,
	          confidence_threshold = EXCLUDED.confidence_threshold,
	          notification_enabled = EXCLUDED.notification_enabled,
	          updated_at = EXCLUDED.updated_at`
	_, err := a.pool.Exec(ctx, q, s.UserID, activeFlag(s.AutoDetectEnabled), s.DetectionDelay,
		s.ConfidenceThreshold, activeFlag(s.NotificationEnabled), s.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}
