package fiber

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/snoreguard/panel"
	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

const SessionCookie = "session_id"

var ErrRoutesNotRegistered = errors.New("fiber adapter: routes not registered")

type Adapter struct {
	app *fiber.App

	cookieSecure bool

	auth       core.AuthHandler
	detections core.DetectionHandler
	activity   core.ActivityRecorder
	logger     logging.Logger
	now        func() time.Time
}

var _ panel.HTTPAdapter = (*Adapter)(nil)

type Option func(*Adapter)

// WithSecureCookie marks the session cookie Secure. Enable it behind TLS.
func WithSecureCookie(secure bool) Option {
	return func(a *Adapter) { a.cookieSecure = secure }
}

func New(app *fiber.App, opts ...Option) *Adapter {
	a := &Adapter{
		app:    app,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes mounts every registered endpoint the panel serves itself.
// External endpoints are left for Protect.
func (a *Adapter) RegisterRoutes(p *panel.Panel) error {
	a.auth = p.Auth
	a.detections = p.Detections
	a.activity = p.Activity
	if p.Logger != nil {
		a.logger = p.Logger.With("component", "http")
	}

	handlers := a.handlers()
	for _, ep := range p.Endpoints.Endpoints() {
		if ep.External {
			continue
		}
		handler, ok := handlers[ep.OperationID]
		if !ok {
			return fmt.Errorf("fiber adapter: no handler for operation %q", ep.OperationID)
		}
		chain := a.chain(*ep, handler)
		a.app.Add([]string{ep.Method}, ep.Path, chain[0], chain[1:]...)
	}

	return nil
}

// Protect mounts handler on every endpoint behind RequireAuth. Endpoints
// with an Audit message are recorded after a successful response.
func (a *Adapter) Protect(endpoints []core.Endpoint, handler fiber.Handler) error {
	if a.auth == nil {
		return ErrRoutesNotRegistered
	}
	for _, ep := range endpoints {
		ep.Protected = true
		chain := a.chain(ep, handler)
		a.app.Add([]string{ep.Method}, ep.Path, chain[0], chain[1:]...)
	}
	return nil
}

func (a *Adapter) chain(ep core.Endpoint, handler fiber.Handler) []any {
	var chain []any
	if ep.Protected {
		chain = append(chain, a.RequireAuth)
	}
	if ep.Audit != "" {
		chain = append(chain, Audit(a.activity, ep.Audit))
	}
	return append(chain, handler)
}

func (a *Adapter) handlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		"register":        a.register,
		"login":           a.login,
		"logout":          a.logout,
		"validateSession": a.validate,
		"getSession":      a.session,
		"getProfile":      a.profile,
		"updateProfile":   a.updateProfile,
		"changePassword":  a.changePassword,
		"listActivity":    a.listActivity,

		"listDetections":   a.listDetections,
		"recordDetection":  a.recordDetection,
		"detectionSummary": a.detectionSummary,
		"getSettings":      a.settings,
		"updateSettings":   a.updateSettings,
	}
}
