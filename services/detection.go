package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500

	DefaultSummaryDays = 7
	MaxSummaryDays     = 365

	// DefaultSnoreClass is the label the bundled classifier emits for snoring.
	DefaultSnoreClass = "กรน"
)

// between accepts ints and floats in [min, max]. Unlike validation.Min it
// does not skip zero values.
func between(min, max float64) validation.Rule {
	return validation.By(func(value interface{}) error {
		var v float64
		switch n := value.(type) {
		case int:
			v = float64(n)
		case float64:
			v = n
		default:
			return fmt.Errorf("must be a number")
		}
		if v < min || v > max {
			return fmt.Errorf("must be between %g and %g", min, max)
		}
		return nil
	})
}

type detectionRecord struct {
	core.DetectionInput
}

func (r detectionRecord) Validate() error {
	return validation.ValidateStruct(&r.DetectionInput,
		validation.Field(&r.ClassName, validation.Required, validation.RuneLength(1, 50)),
		validation.Field(&r.Confidence, between(0, 100)),
		validation.Field(&r.ModelType, validation.RuneLength(0, 50)),
		validation.Field(&r.Notes, validation.RuneLength(0, 1000)),
	)
}

type settingsRecord struct {
	core.UserSettings
}

func (r settingsRecord) Validate() error {
	return validation.ValidateStruct(&r.UserSettings,
		validation.Field(&r.DetectionDelay, between(1, 60)),
		validation.Field(&r.ConfidenceThreshold, between(0, 1)),
	)
}

// DetectionService keeps each user's detection history and detection
// settings.
type DetectionService struct {
	detections core.DetectionStorage
	settings   core.SettingsStorage
	activity   core.ActivityRecorder
	logger     logging.Logger

	snoreClass string
	now        func() time.Time
}

var _ core.DetectionHandler = (*DetectionService)(nil)

type DetectionOption func(*DetectionService)

// WithSnoreClass sets the class name counted as snoring in summaries.
func WithSnoreClass(class string) DetectionOption {
	return func(s *DetectionService) {
		if class != "" {
			s.snoreClass = class
		}
	}
}

func WithDetectionClock(now func() time.Time) DetectionOption {
	return func(s *DetectionService) { s.now = now }
}

func NewDetectionService(detections core.DetectionStorage, settings core.SettingsStorage, activity core.ActivityRecorder, logger logging.Logger, opts ...DetectionOption) *DetectionService {
	if logger == nil {
		logger = logging.Nop()
	}
	if activity == nil {
		activity = core.ActivityRecorderFunc(func(context.Context, *int64, core.LogLevel, string, map[string]any) {})
	}
	s := &DetectionService{
		detections: detections,
		settings:   settings,
		activity:   activity,
		logger:     logger.With("component", "detections"),
		snoreClass: DefaultSnoreClass,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordDetection appends a classification result to the user's history.
// Results that triggered the pump are also written to the activity log.
func (s *DetectionService) RecordDetection(ctx context.Context, userID int64, input core.DetectionInput) (*core.Detection, error) {
	input.ClassName = strings.TrimSpace(input.ClassName)
	if err := toValidationError(detectionRecord{input}.Validate()); err != nil {
		return nil, err
	}

	d := &core.Detection{
		UserID:        userID,
		ClassName:     input.ClassName,
		Confidence:    input.Confidence,
		ModelType:     strings.TrimSpace(input.ModelType),
		AudioFile:     input.AudioFile,
		PumpActivated: input.PumpActivated,
		Notes:         input.Notes,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.detections.AppendDetection(ctx, d); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	s.logger.Debug(ctx, "detection recorded", "user_id", userID, "class_name", d.ClassName, "confidence", d.Confidence)
	if d.PumpActivated {
		s.activity.Record(ctx, &userID, core.LevelInfo, "Snoring response triggered", map[string]any{
			"detection_id": d.ID,
			"class_name":   d.ClassName,
			"confidence":   d.Confidence,
		})
	}
	return d, nil
}

// History returns the newest detections of userID. limit <= 0 means
// DefaultHistoryLimit; larger limits are capped at MaxHistoryLimit.
func (s *DetectionService) History(ctx context.Context, userID int64, limit int) ([]*core.Detection, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	history, err := s.detections.ListDetections(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	return history, nil
}

// Summary aggregates the last days of detections. The average confidence
// is rounded to two decimals.
func (s *DetectionService) Summary(ctx context.Context, userID int64, days int) (*core.DetectionSummary, error) {
	if days <= 0 {
		days = DefaultSummaryDays
	}
	if days > MaxSummaryDays {
		return nil, core.NewValidationError("days", fmt.Sprintf("must be at most %d", MaxSummaryDays))
	}

	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	summary, err := s.detections.SummarizeDetections(ctx, userID, since, s.snoreClass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	summary.AverageConfidence = math.Round(summary.AverageConfidence*100) / 100
	summary.PeriodDays = days
	return summary, nil
}

// Settings returns the saved settings, or the defaults when the user never
// saved any.
func (s *DetectionService) Settings(ctx context.Context, userID int64) (*core.UserSettings, error) {
	settings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrSettingsNotFound) {
			defaults := core.DefaultUserSettings(userID)
			return &defaults, nil
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	return settings, nil
}

// UpdateSettings applies the non-nil fields of input on top of the current
// settings and saves the result.
func (s *DetectionService) UpdateSettings(ctx context.Context, userID int64, input core.SettingsInput) (*core.UserSettings, error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	if input.AutoDetectEnabled != nil {
		settings.AutoDetectEnabled = *input.AutoDetectEnabled
		changed["auto_detect_enabled"] = *input.AutoDetectEnabled
	}
	if input.DetectionDelay != nil {
		settings.DetectionDelay = *input.DetectionDelay
		changed["detection_delay"] = *input.DetectionDelay
	}
	if input.ConfidenceThreshold != nil {
		settings.ConfidenceThreshold = *input.ConfidenceThreshold
		changed["confidence_threshold"] = *input.ConfidenceThreshold
	}
	if input.NotificationEnabled != nil {
		settings.NotificationEnabled = *input.NotificationEnabled
		changed["notification_enabled"] = *input.NotificationEnabled
	}

	if err := toValidationError(settingsRecord{*settings}.Validate()); err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return settings, nil
	}

	settings.UpdatedAt = s.now().UTC()
	if err := s.settings.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInternal, err)
	}

	s.activity.Record(ctx, &userID, core.LevelInfo, "Settings updated", changed)
	return settings, nil
}
