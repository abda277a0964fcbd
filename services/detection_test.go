package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoreguard/panel/adapters/memory"
	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

// countingSettings counts writes and can fail reads.
type countingSettings struct {
	*memory.Store
	saves  int
	getErr error
}

func (c *countingSettings) GetSettings(ctx context.Context, userID int64) (*core.UserSettings, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.Store.GetSettings(ctx, userID)
}

func (c *countingSettings) SaveSettings(ctx context.Context, s *core.UserSettings) error {
	c.saves++
	return c.Store.SaveSettings(ctx, s)
}

type detectionEnv struct {
	store    *memory.Store
	settings *countingSettings
	clock    *manualClock
	activity *recordedActivity
	service  *DetectionService
	userID   int64
}

func newDetectionEnv(t *testing.T, opts ...DetectionOption) *detectionEnv {
	t.Helper()

	store := memory.New()
	u := &core.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), u))

	env := &detectionEnv{
		store:    store,
		settings: &countingSettings{Store: store},
		clock:    newManualClock(),
		activity: &recordedActivity{},
		userID:   u.ID,
	}
	opts = append([]DetectionOption{WithDetectionClock(env.clock.Now)}, opts...)
	env.service = NewDetectionService(store, env.settings, env.activity, logging.Nop(), opts...)
	return env
}

func TestDetectionService_RecordDetection(t *testing.T) {
	tests := []struct {
		name      string
		input     core.DetectionInput
		wantField string
	}{
		{name: "snore", input: core.DetectionInput{ClassName: "กรน", Confidence: 92.4, ModelType: "cnn"}},
		{name: "zero confidence", input: core.DetectionInput{ClassName: "เงียบ", Confidence: 0}},
		{name: "full confidence", input: core.DetectionInput{ClassName: "กรน", Confidence: 100}},
		{name: "blank class", input: core.DetectionInput{ClassName: "   ", Confidence: 50}, wantField: "class_name"},
		{name: "confidence above 100", input: core.DetectionInput{ClassName: "กรน", Confidence: 100.5}, wantField: "confidence"},
		{name: "negative confidence", input: core.DetectionInput{ClassName: "กรน", Confidence: -0.1}, wantField: "confidence"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			env := newDetectionEnv(t)
			ctx := context.Background()

			// Act
			d, err := env.service.RecordDetection(ctx, env.userID, test.input)

			// Assert
			if test.wantField != "" {
				require.ErrorIs(t, err, core.ErrValidation)
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, verr.Fields, test.wantField)

				history, err := env.store.ListDetections(ctx, env.userID, 0)
				require.NoError(t, err)
				assert.Empty(t, history, "rejected detections are not stored")
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, d.ID)
			assert.Equal(t, env.clock.Now(), d.CreatedAt)
			assert.Equal(t, test.input.Confidence, d.Confidence)
		})
	}
}

func TestDetectionService_PumpActivationIsLogged(t *testing.T) {
	env := newDetectionEnv(t)
	ctx := context.Background()

	_, err := env.service.RecordDetection(ctx, env.userID, core.DetectionInput{ClassName: "กรน", Confidence: 90})
	require.NoError(t, err)
	assert.Empty(t, env.activity.messages(), "plain detections stay out of the activity log")

	d, err := env.service.RecordDetection(ctx, env.userID, core.DetectionInput{ClassName: "กรน", Confidence: 95, PumpActivated: true})
	require.NoError(t, err)

	require.Equal(t, []string{"Snoring response triggered"}, env.activity.messages())
	entry := env.activity.entries[0]
	require.NotNil(t, entry.UserID)
	assert.Equal(t, env.userID, *entry.UserID)
	assert.Equal(t, d.ID, entry.Context["detection_id"])
}

func TestDetectionService_RecordDetectionUnknownUser(t *testing.T) {
	env := newDetectionEnv(t)

	_, err := env.service.RecordDetection(context.Background(), env.userID+100, core.DetectionInput{ClassName: "กรน", Confidence: 60})

	assert.ErrorIs(t, err, core.ErrInternal)
}

func TestDetectionService_HistoryLimit(t *testing.T) {
	env := newDetectionEnv(t)
	ctx := context.Background()
	for i := 0; i < MaxHistoryLimit+10; i++ {
		require.NoError(t, env.store.AppendDetection(ctx, &core.Detection{
			UserID:    env.userID,
			ClassName: "กรน",
			CreatedAt: env.clock.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero uses default", limit: 0, want: DefaultHistoryLimit},
		{name: "negative uses default", limit: -3, want: DefaultHistoryLimit},
		{name: "explicit", limit: 7, want: 7},
		{name: "capped", limit: MaxHistoryLimit * 4, want: MaxHistoryLimit},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			history, err := env.service.History(ctx, env.userID, test.limit)

			require.NoError(t, err)
			assert.Len(t, history, test.want)
			assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt), "newest first")
		})
	}
}

func TestDetectionService_Summary(t *testing.T) {
	// Arrange
	env := newDetectionEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	for _, d := range []core.Detection{
		{ClassName: "กรน", Confidence: 90.111, CreatedAt: now.Add(-time.Hour)},
		{ClassName: "กรน", Confidence: 80, CreatedAt: now.Add(-48 * time.Hour)},
		{ClassName: "พูด", Confidence: 33.3, CreatedAt: now.Add(-72 * time.Hour)},
		{ClassName: "กรน", Confidence: 10, CreatedAt: now.Add(-10 * 24 * time.Hour)},
	} {
		d.UserID = env.userID
		require.NoError(t, env.store.AppendDetection(ctx, &d))
	}

	tests := []struct {
		name        string
		days        int
		wantTotal   int
		wantSnoring int
		wantAverage float64
		wantDays    int
	}{
		{name: "default window", days: 0, wantTotal: 3, wantSnoring: 2, wantAverage: 67.8, wantDays: DefaultSummaryDays},
		{name: "one day", days: 1, wantTotal: 1, wantSnoring: 1, wantAverage: 90.11, wantDays: 1},
		{name: "whole history", days: 30, wantTotal: 4, wantSnoring: 3, wantAverage: 53.35, wantDays: 30},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			summary, err := env.service.Summary(ctx, env.userID, test.days)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, test.wantTotal, summary.Total)
			assert.Equal(t, test.wantSnoring, summary.Snoring)
			assert.InDelta(t, test.wantAverage, summary.AverageConfidence, 1e-9)
			assert.Equal(t, test.wantDays, summary.PeriodDays)
		})
	}
}

func TestDetectionService_SummaryEmptyWindow(t *testing.T) {
	env := newDetectionEnv(t)

	summary, err := env.service.Summary(context.Background(), env.userID, 7)

	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.AverageConfidence)
}

func TestDetectionService_SummaryRejectsLongWindow(t *testing.T) {
	env := newDetectionEnv(t)

	_, err := env.service.Summary(context.Background(), env.userID, MaxSummaryDays+1)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "days")
}

func TestDetectionService_SnoreClassIsConfigurable(t *testing.T) {
	env := newDetectionEnv(t, WithSnoreClass("snore"))
	ctx := context.Background()
	for _, class := range []string{"snore", "กรน", "snore"} {
		_, err := env.service.RecordDetection(ctx, env.userID, core.DetectionInput{ClassName: class, Confidence: 50})
		require.NoError(t, err)
	}

	summary, err := env.service.Summary(ctx, env.userID, 1)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Snoring)
}

func TestDetectionService_SettingsDefaults(t *testing.T) {
	env := newDetectionEnv(t)

	settings, err := env.service.Settings(context.Background(), env.userID)

	require.NoError(t, err)
	assert.Equal(t, core.DefaultUserSettings(env.userID), *settings)
	assert.Zero(t, env.settings.saves, "reading defaults does not persist them")
}

func TestDetectionService_SettingsStorageError(t *testing.T) {
	env := newDetectionEnv(t)
	env.settings.getErr = errors.New("connection reset")

	_, err := env.service.Settings(context.Background(), env.userID)

	assert.ErrorIs(t, err, core.ErrInternal)
}

func TestDetectionService_UpdateSettings(t *testing.T) {
	intp := func(v int) *int { return &v }
	floatp := func(v float64) *float64 { return &v }
	boolp := func(v bool) *bool { return &v }

	t.Run("merges onto defaults", func(t *testing.T) {
		// Arrange
		env := newDetectionEnv(t)
		ctx := context.Background()

		// Act
		updated, err := env.service.UpdateSettings(ctx, env.userID, core.SettingsInput{
			AutoDetectEnabled: boolp(true),
			DetectionDelay:    intp(10),
		})

		// Assert
		require.NoError(t, err)
		assert.True(t, updated.AutoDetectEnabled)
		assert.Equal(t, 10, updated.DetectionDelay)
		assert.Equal(t, 0.85, updated.ConfidenceThreshold)
		assert.True(t, updated.NotificationEnabled)
		assert.Equal(t, env.clock.Now(), updated.UpdatedAt)

		stored, err := env.store.GetSettings(ctx, env.userID)
		require.NoError(t, err)
		assert.Equal(t, 10, stored.DetectionDelay)

		require.Equal(t, []string{"Settings updated"}, env.activity.messages())
		assert.Equal(t, map[string]any{"auto_detect_enabled": true, "detection_delay": 10}, env.activity.entries[0].Context)
	})

	t.Run("merges onto saved settings", func(t *testing.T) {
		env := newDetectionEnv(t)
		ctx := context.Background()
		_, err := env.service.UpdateSettings(ctx, env.userID, core.SettingsInput{ConfidenceThreshold: floatp(0.6)})
		require.NoError(t, err)

		updated, err := env.service.UpdateSettings(ctx, env.userID, core.SettingsInput{NotificationEnabled: boolp(false)})

		require.NoError(t, err)
		assert.Equal(t, 0.6, updated.ConfidenceThreshold)
		assert.False(t, updated.NotificationEnabled)
		assert.Equal(t, 2, env.settings.saves)
	})

	t.Run("empty update is not saved", func(t *testing.T) {
		env := newDetectionEnv(t)

		settings, err := env.service.UpdateSettings(context.Background(), env.userID, core.SettingsInput{})

		require.NoError(t, err)
		assert.Equal(t, 5, settings.DetectionDelay)
		assert.Zero(t, env.settings.saves)
		assert.Empty(t, env.activity.messages())
	})

	invalid := []struct {
		name      string
		input     core.SettingsInput
		wantField string
	}{
		{name: "delay zero", input: core.SettingsInput{DetectionDelay: intp(0)}, wantField: "detection_delay"},
		{name: "delay above 60", input: core.SettingsInput{DetectionDelay: intp(61)}, wantField: "detection_delay"},
		{name: "threshold above 1", input: core.SettingsInput{ConfidenceThreshold: floatp(1.5)}, wantField: "confidence_threshold"},
		{name: "negative threshold", input: core.SettingsInput{ConfidenceThreshold: floatp(-0.2)}, wantField: "confidence_threshold"},
	}
	for _, test := range invalid {
		t.Run(test.name, func(t *testing.T) {
			env := newDetectionEnv(t)

			_, err := env.service.UpdateSettings(context.Background(), env.userID, test.input)

			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, test.wantField)
			assert.Zero(t, env.settings.saves)
			assert.Empty(t, env.activity.messages())
		})
	}
}
