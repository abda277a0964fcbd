package core

import "time"

type SessionConfig struct {
	// MaxAge is the lifetime of an ordinary login
	MaxAge time.Duration
	// RememberMeMaxAge is used when the client asks to stay signed in
	RememberMeMaxAge time.Duration
}

type CreateSessionResult struct {
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:           24 * time.Hour,
		RememberMeMaxAge: 30 * 24 * time.Hour,
	}
}

// TTL picks the session lifetime for a login.
func (c SessionConfig) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return c.RememberMeMaxAge
	}
	return c.MaxAge
}
