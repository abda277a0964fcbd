package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/utils/v2"

	"github.com/snoreguard/panel/core"
)

const (
	localsUser    = "user"
	localsSession = "session"
)

// RequireAuth resolves the request token and stores the user and session
// for downstream handlers, both in Locals and in the request context.
// Requests without a valid session stop here with 401.
func (a *Adapter) RequireAuth(c fiber.Ctx) error {
	data, err := a.resolve(c)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	attach(c, data)
	return c.Next()
}

// OptionalAuth attaches the user when the request carries a valid session
// and lets every request through.
func (a *Adapter) OptionalAuth(c fiber.Ctx) error {
	data, err := a.resolve(c)
	switch {
	case err == nil:
		attach(c, data)
	case errors.Is(err, core.ErrInternal):
		a.logger.Warn(c.Context(), "optional auth lookup failed", "error", err)
	}
	return c.Next()
}

func (a *Adapter) resolve(c fiber.Ctx) (*core.SessionData, error) {
	token := extractToken(c)
	if token == "" {
		return nil, core.ErrMissingToken
	}
	return a.auth.Validate(c.Context(), token)
}

func attach(c fiber.Ctx, data *core.SessionData) {
	c.Locals(localsUser, data.User)
	c.Locals(localsSession, data.Session)

	ctx := core.WithUser(c.Context(), data.User)
	ctx = core.WithSession(ctx, data.Session)
	c.SetContext(ctx)
}

// UserFrom returns the user attached by RequireAuth or OptionalAuth.
func UserFrom(c fiber.Ctx) *core.User {
	u, _ := c.Locals(localsUser).(*core.User)
	return u
}

// SessionFrom returns the session attached by RequireAuth or OptionalAuth.
func SessionFrom(c fiber.Ctx) *core.Session {
	s, _ := c.Locals(localsSession).(*core.Session)
	return s
}

// Audit records message for the authenticated actor once the rest of the
// chain has answered with a status below 400.
func Audit(recorder core.ActivityRecorder, message string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if recorder == nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			return nil
		}

		var userID *int64
		if u, ok := core.UserFromContext(c.Context()); ok {
			id := u.ID
			userID = &id
		}

		// Request strings point into fasthttp buffers that are reused after
		// the handler returns; the recorder writes asynchronously.
		fields := map[string]any{
			"method":     utils.CopyString(c.Method()),
			"path":       utils.CopyString(c.Path()),
			"ip_address": utils.CopyString(c.IP()),
		}
		if action := c.Params("action"); action != "" {
			fields["action"] = utils.CopyString(action)
		}

		recorder.Record(c.Context(), userID, core.LevelInfo, message, fields)
		return nil
	}
}
