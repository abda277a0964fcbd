package fiber

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/utils/v2"

	"github.com/snoreguard/panel/core"
)

func (a *Adapter) register(c fiber.Ctx) error {
	var input core.RegisterInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	user, err := a.auth.Register(c.Context(), input)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Registration successful",
		"user_id": user.ID,
	})
}

func (a *Adapter) login(c fiber.Ctx) error {
	var input core.LoginInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	result, err := a.auth.Login(c.Context(), input, clientInfo(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		HTTPOnly: true,
		Secure:   a.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":    true,
		"message":    "Login successful",
		"session_id": result.Token,
		"expires_at": result.Session.ExpiresAt,
		"user":       result.User,
	})
}

// logout always succeeds for the client, even without a token.
func (a *Adapter) logout(c fiber.Ctx) error {
	token := extractToken(c)
	if token == "" {
		token = bodyToken(c)
	}

	if err := a.auth.Logout(c.Context(), token); err != nil {
		return a.handleAuthError(c, err)
	}

	c.ClearCookie(SessionCookie)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

// validate answers 200 with valid=false for missing or dead sessions so
// that clients can poll it without tripping auth error handling.
func (a *Adapter) validate(c fiber.Ctx) error {
	token := extractToken(c)
	if token == "" {
		token = bodyToken(c)
	}
	if token == "" {
		return c.JSON(fiber.Map{"valid": false, "message": "No session provided"})
	}

	data, err := a.auth.Validate(c.Context(), token)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"valid": true, "user": data.User.Public()})
	case errors.Is(err, core.ErrUnauthorized):
		return c.JSON(fiber.Map{"valid": false, "message": "Session expired or invalid"})
	default:
		a.logger.Error(c.Context(), "session validation failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"valid": false, "message": "Validation error"})
	}
}

func (a *Adapter) session(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"user":    UserFrom(c).Public(),
		"session": SessionFrom(c),
	})
}

func (a *Adapter) profile(c fiber.Ctx) error {
	user := UserFrom(c)
	return c.JSON(fiber.Map{
		"user":       user.Public(),
		"created_at": user.CreatedAt,
		"last_login": user.LastLogin,
	})
}

func (a *Adapter) updateProfile(c fiber.Ctx) error {
	var input core.ProfileInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	user, err := a.auth.UpdateProfile(c.Context(), UserFrom(c).ID, input)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Profile updated",
		"user":    user.Public(),
	})
}

func (a *Adapter) changePassword(c fiber.Ctx) error {
	var input core.ChangePasswordInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	if err := a.auth.ChangePassword(c.Context(), UserFrom(c).ID, input); err != nil {
		return a.handleAuthError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password changed",
	})
}

func (a *Adapter) listActivity(c fiber.Ctx) error {
	entries, err := a.auth.ListActivity(c.Context(), UserFrom(c).ID, fiber.Query[int](c, "limit"))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	if entries == nil {
		entries = []*core.AuditEntry{}
	}
	return c.JSON(entries)
}

func (a *Adapter) listDetections(c fiber.Ctx) error {
	history, err := a.detections.History(c.Context(), UserFrom(c).ID, fiber.Query[int](c, "limit"))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	if history == nil {
		history = []*core.Detection{}
	}
	return c.JSON(history)
}

func (a *Adapter) recordDetection(c fiber.Ctx) error {
	var input core.DetectionInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	detection, err := a.detections.RecordDetection(c.Context(), UserFrom(c).ID, input)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"message":   "Detection recorded",
		"detection": detection,
	})
}

func (a *Adapter) detectionSummary(c fiber.Ctx) error {
	summary, err := a.detections.Summary(c.Context(), UserFrom(c).ID, fiber.Query[int](c, "days"))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.JSON(summary)
}

func (a *Adapter) settings(c fiber.Ctx) error {
	settings, err := a.detections.Settings(c.Context(), UserFrom(c).ID)
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.JSON(settings)
}

func (a *Adapter) updateSettings(c fiber.Ctx) error {
	var input core.SettingsInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	settings, err := a.detections.UpdateSettings(c.Context(), UserFrom(c).ID, input)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "Settings updated",
		"settings": settings,
	})
}

// extractToken extracts the session token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
// A blank bearer value counts as absent.
func extractToken(c fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if token := strings.TrimSpace(authHeader[7:]); token != "" {
			return token
		}
	}

	return c.Cookies(SessionCookie)
}

// bodyToken reads {"session_id": "..."} for clients that cannot set
// headers or cookies. A missing or malformed body yields "".
func bodyToken(c fiber.Ctx) string {
	if len(c.Body()) == 0 {
		return ""
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return ""
	}
	return body.SessionID
}

func clientInfo(c fiber.Ctx) core.ClientInfo {
	return core.ClientInfo{
		IPAddress: utils.CopyString(c.IP()),
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
	}
}

func invalidBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(core.ErrorResponse{
		Success: false,
		Message: "Invalid request body",
		Code:    "INVALID_BODY",
	})
}

// handleAuthError maps service errors to HTTP responses. Messages are
// fixed per status; details only reach the operational log.
func (a *Adapter) handleAuthError(c fiber.Ctx, err error) error {
	status, resp := mapError(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(c.Context(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(resp)
}

func mapError(err error) (int, core.ErrorResponse) {
	switch {
	case errors.Is(err, core.ErrValidation):
		resp := core.ErrorResponse{Message: "Invalid input", Code: "VALIDATION_ERROR"}
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		return http.StatusBadRequest, resp

	case errors.Is(err, core.ErrDuplicateUser):
		return http.StatusConflict, core.ErrorResponse{Message: "Username or email is already taken", Code: "DUPLICATE_USER"}

	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, core.ErrorResponse{Message: "Invalid username or password", Code: "INVALID_CREDENTIALS"}

	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrMissingToken):
		return http.StatusUnauthorized, core.ErrorResponse{Message: "Authentication required", Code: "AUTH_REQUIRED"}

	default:
		return http.StatusInternalServerError, core.ErrorResponse{Message: "Internal server error", Code: "INTERNAL_ERROR"}
	}
}
