package services

import (
	"context"
	"time"

	"github.com/snoreguard/panel/internal/logging"
)

// Sweeper periodically removes expired sessions until its context ends.
type Sweeper struct {
	sessions *SessionManager
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(sessions *SessionManager, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run blocks, sweeping once immediately and then every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.sessions.SweepExpired(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, "session sweep failed", "error", err)
	}
}
