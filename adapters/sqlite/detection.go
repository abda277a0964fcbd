package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/snoreguard/panel/core"
)

const detectionColumns = `detection_id, user_id, timestamp, class_name, confidence, COALESCE(model_type, ''), COALESCE(audio_file, ''), COALESCE(pump_activated, 0), COALESCE(notes, '')`

func (a *Adapter) AppendDetection(ctx context.Context, d *core.Detection) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	q := `INSERT INTO detection_history (user_id, timestamp, class_name, confidence, model_type, audio_file, pump_activated, notes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := a.db.ExecContext(ctx, q, d.UserID, d.CreatedAt.UTC(), d.ClassName, d.Confidence,
		d.ModelType, d.AudioFile, d.PumpActivated, d.Notes)
	if err != nil {
		return translate(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	d.ID = id
	return nil
}

func (a *Adapter) ListDetections(ctx context.Context, userID int64, limit int) ([]*core.Detection, error) {
	if limit <= 0 {
		limit = -1
	}

	q := `SELECT ` + detectionColumns + ` FROM detection_history WHERE user_id = ? ORDER BY timestamp DESC, detection_id DESC LIMIT ?`
	rows, err := a.db.QueryContext(ctx, q, userID, limit)
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
	             COALESCE(SUM(CASE WHEN class_name = ? THEN 1 ELSE 0 END), 0),
	             AVG(confidence)
	      FROM detection_history
	      WHERE user_id = ? AND timestamp >= ?`

	var (
		summary core.DetectionSummary
		avg     sql.NullFloat64
	)
	if err := a.db.QueryRowContext(ctx, q, snoreClass, userID, since.UTC()).Scan(&summary.Total, &summary.Snoring, &avg); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	summary.AverageConfidence = avg.Float64
	return &summary, nil
}

func (a *Adapter) GetSettings(ctx context.Context, userID int64) (*core.UserSettings, error) {
	q := `SELECT user_id, COALESCE(auto_detect_enabled, 0), COALESCE(detection_delay, 5),
	             COALESCE(confidence_threshold, 0.85), COALESCE(notification_enabled, 1), updated_at
	      FROM user_settings WHERE user_id = ?`

	var (
		s         core.UserSettings
		updatedAt sql.NullTime
	)
	err := a.db.QueryRowContext(ctx, q, userID).Scan(&s.UserID, &s.AutoDetectEnabled, &s.DetectionDelay,
		&s.ConfidenceThreshold, &s.NotificationEnabled, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if updatedAt.Valid {
		s.UpdatedAt = updatedAt.Time.UTC()
	}
	return &s, nil
}

func (a *Adapter) SaveSettings(ctx context.Context, s *core.UserSettings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	q := `INSERT INTO user_settings (user_id, auto_detect_enabled, detection_delay, confidence_threshold, notification_enabled, updated_at)
	      VALUES (?, ?, ?, ?, ?, ?)
	      ON CONFLICT (user_id) DO UPDATE SET
	          auto_detect_enabled = excluded.auto_detect_enabled,
	          detection_delay = excluded.detection_delay,
	          confidence_threshold = excluded.confidence_threshold,
	          notification_enabled = excluded.notification_enabled,
	          updated_at = excluded.updated_at`
	_, err := a.db.ExecContext(ctx, q, s.UserID, s.AutoDetectEnabled, s.DetectionDelay,
		s.ConfidenceThreshold, s.NotificationEnabled, s.UpdatedAt.UTC())
	if err != nil {
		return translate(err)
	}
	return nil
}
