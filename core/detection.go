package core

import (
	"context"
	"time"
)

// Detection is one classification of a recorded sound clip.
//
// Confidence is a percentage in [0, 100], the scale the classifier reports.
type Detection struct {
	ID            int64     `json:"detection_id"`
	UserID        int64     `json:"-"`
	ClassName     string    `json:"class_name"`
	Confidence    float64   `json:"confidence"`
	ModelType     string    `json:"model_type,omitempty"`
	AudioFile     string    `json:"audio_file,omitempty"`
	PumpActivated bool      `json:"pump_activated"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

// DetectionInput is what the detection engine reports for a clip
type DetectionInput struct {
	ClassName     string  `json:"class_name"`
	Confidence    float64 `json:"confidence"`
	ModelType     string  `json:"model_type"`
	AudioFile     string  `json:"audio_file"`
	PumpActivated bool    `json:"pump_activated"`
	Notes         string  `json:"notes"`
}

// DetectionSummary aggregates detections over a time window
type DetectionSummary struct {
	Total             int     `json:"total_detections"`
	Snoring           int     `json:"snoring_detected"`
	AverageConfidence float64 `json:"average_confidence"`
	PeriodDays        int     `json:"period_days"`
}

// UserSettings controls automatic detection for one user.
// DetectionDelay is in minutes; ConfidenceThreshold is a fraction in [0, 1].
type UserSettings struct {
	UserID              int64     `json:"-"`
	AutoDetectEnabled   bool      `json:"auto_detect_enabled"`
	DetectionDelay      int       `json:"detection_delay"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	NotificationEnabled bool      `json:"notification_enabled"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultUserSettings are served until the user saves their own.
func DefaultUserSettings(userID int64) UserSettings {
	return UserSettings{
		UserID:              userID,
		AutoDetectEnabled:   false,
		DetectionDelay:      5,
		ConfidenceThreshold: 0.85,
		NotificationEnabled: true,
	}
}

// SettingsInput carries a partial settings update. A nil field is left
// unchanged.
type SettingsInput struct {
	AutoDetectEnabled   *bool    `json:"auto_detect_enabled"`
	DetectionDelay      *int     `json:"detection_delay"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	NotificationEnabled *bool    `json:"notification_enabled"`
}

// DetectionStorage keeps the per-user detection history.
type DetectionStorage interface {
	// AppendDetection reports ErrUserNotFound for an unknown user
	AppendDetection(ctx context.Context, d *Detection) error

	// ListDetections returns the newest detections first
	ListDetections(ctx context.Context, userID int64, limit int) ([]*Detection, error)

	// SummarizeDetections counts detections created at or after since.
	// Snoring counts those whose class is snoreClass.
	SummarizeDetections(ctx context.Context, userID int64, since time.Time, snoreClass string) (*DetectionSummary, error)
}

type SettingsStorage interface {
	// GetSettings reports ErrSettingsNotFound when the user never saved any
	GetSettings(ctx context.Context, userID int64) (*UserSettings, error)

	// SaveSettings inserts or replaces the settings of s.UserID
	SaveSettings(ctx context.Context, s *UserSettings) error
}

// DetectionHandler is what the HTTP layer needs for detection history and
// settings.
type DetectionHandler interface {
	RecordDetection(ctx context.Context, userID int64, input DetectionInput) (*Detection, error)
	History(ctx context.Context, userID int64, limit int) ([]*Detection, error)
	Summary(ctx context.Context, userID int64, days int) (*DetectionSummary, error)

	Settings(ctx context.Context, userID int64) (*UserSettings, error)
	UpdateSettings(ctx context.Context, userID int64, input SettingsInput) (*UserSettings, error)
}
