package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

var _ core.ActivityRecorder = (*ActivityLogger)(nil)

const DefaultActivityQueueSize = 256

// ActivityLogger writes audit entries on a background worker. Record never
// blocks on storage; a full queue, a storage error or a panicking store is
// reported on the operational logger and dropped.
type ActivityLogger struct {
	storage core.AuditStorage
	logger  logging.Logger
	now     func() time.Time

	queue chan *core.AuditEntry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewActivityLogger(storage core.AuditStorage, logger logging.Logger, queueSize int) *ActivityLogger {
	if logger == nil {
		logger = logging.Nop()
	}
	if queueSize <= 0 {
		queueSize = DefaultActivityQueueSize
	}

	a := &ActivityLogger{
		storage: storage,
		logger:  logger.With("component", "activity"),
		now:     time.Now,
		queue:   make(chan *core.AuditEntry, queueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues an entry. userID is nil for system events.
func (a *ActivityLogger) Record(ctx context.Context, userID *int64, level core.LogLevel, message string, fields map[string]any) {
	if level == "" {
		level = core.LevelInfo
	}

	entry := &core.AuditEntry{
		Level:     level,
		Message:   message,
		Context:   fields,
		CreatedAt: a.now().UTC(),
	}
	if userID != nil {
		id := *userID
		entry.UserID = &id
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn(ctx, "activity dropped after close", "message", message)
		return
	}

	select {
	case a.queue <- entry:
	default:
		a.logger.Warn(ctx, "activity queue full, entry dropped", "message", message)
	}
}

// Close stops accepting entries and waits until the queue has been written.
func (a *ActivityLogger) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
}

func (a *ActivityLogger) run() {
	defer close(a.done)
	for entry := range a.queue {
		a.write(entry)
	}
}

func (a *ActivityLogger) write(entry *core.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(ctx, "activity store panicked", "panic", fmt.Sprint(r), "message", entry.Message)
		}
	}()

	if err := a.storage.AppendAudit(ctx, entry); err != nil {
		a.logger.Error(ctx, "failed to write activity", "error", err, "message", entry.Message)
	}
}
