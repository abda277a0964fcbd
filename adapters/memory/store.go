// Package memory is a process-local core.AuthStorage. It backs tests and
// the "memory" database driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snoreguard/panel/core"
)

var _ core.AuthStorage = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	users      map[int64]*core.User
	byUsername map[string]int64
	byEmail    map[string]int64
	nextUserID int64

	sessions map[string]*core.Session // key: token hash

	audit       []*core.AuditEntry
	nextAuditID int64

	detections      []*core.Detection
	nextDetectionID int64
	settings        map[int64]core.UserSettings

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[int64]*core.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		sessions:   make(map[string]*core.Session),
		settings:   make(map[int64]core.UserSettings),
		now:        time.Now,
	}
}

func copyUser(u *core.User) *core.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func copySession(s *core.Session) *core.Session {
	c := *s
	return &c
}

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// uniqueness is checked and claimed inside one critical section
	if _, taken := s.byUsername[u.Username]; taken {
		return &core.ConstraintError{Constraint: "users.username"}
	}
	if _, taken := s.byEmail[u.Email]; taken {
		return &core.ConstraintError{Constraint: "users.email"}
	}

	s.nextUserID++
	u.ID = s.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}

	s.users[u.ID] = copyUser(u)
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) UpdateProfile(_ context.Context, id int64, email, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	if email != u.Email {
		if _, taken := s.byEmail[email]; taken {
			return &core.ConstraintError{Constraint: "users.email"}
		}
		delete(s.byEmail, u.Email)
		s.byEmail[email] = id
		u.Email = email
	}
	u.FullName = fullName
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id int64, hash, salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordSalt = salt
	return nil
}

func (s *Store) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	t := at.UTC()
	u.LastLogin = &t
	return nil
}

func (s *Store) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return core.ErrUserNotFound
	}
	if _, taken := s.sessions[sess.TokenHash]; taken {
		return &core.ConstraintError{Constraint: "sessions.token_hash"}
	}
	s.sessions[sess.TokenHash] = copySession(sess)
	return nil
}

func (s *Store) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return copySession(sess), nil
}

func (s *Store) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendAudit(_ context.Context, e *core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	e.ID = s.nextAuditID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	c := *e
	if e.UserID != nil {
		id := *e.UserID
		c.UserID = &id
	}
	if e.Context != nil {
		c.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	s.audit = append(s.audit, &c)
	return nil
}

func (s *Store) ListAudit(_ context.Context, userID *int64, limit int) ([]*core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.AuditEntry, 0)
	for _, e := range s.audit {
		if userID != nil && (e.UserID == nil || *e.UserID != *userID) {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AppendDetection(_ context.Context, d *core.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[d.UserID]; !ok {
		return core.ErrUserNotFound
	}

	s.nextDetectionID++
	d.ID = s.nextDetectionID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}

	c := *d
	s.detections = append(s.detections, &c)
	return nil
}

func (s *Store) ListDetections(_ context.Context, userID int64, limit int) ([]*core.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Detection, 0)
	for _, d := range s.detections {
		if d.UserID != userID {
			continue
		}
		c := *d
		out = append(out, &c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SummarizeDetections(_ context.Context, userID int64, since time.Time, snoreClass string) (*core.DetectionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &core.DetectionSummary{}
	var sum float64
	for _, d := range s.detections {
		if d.UserID != userID || d.CreatedAt.Before(since) {
			continue
		}
		summary.Total++
		sum += d.Confidence
		if d.ClassName == snoreClass {
			summary.Snoring++
		}
	}
	if summary.Total > 0 {
		summary.AverageConfidence = sum / float64(summary.Total)
	}
	return summary, nil
}

func (s *Store) GetSettings(_ context.Context, userID int64) (*core.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[userID]
	if !ok {
		return nil, core.ErrSettingsNotFound
	}
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings *core.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[settings.UserID]; !ok {
		return core.ErrUserNotFound
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = s.now().UTC()
	}
	s.settings[settings.UserID] = *settings
	return nil
}
