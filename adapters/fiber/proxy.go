package fiber

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/proxy"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
)

const (
	HeaderPanelUser   = "X-Panel-User"
	HeaderPanelUserID = "X-Panel-User-ID"
)

type ProxyConfig struct {
	// Upstream is the device controller, e.g. http://127.0.0.1:8081
	Upstream string
	Timeout  time.Duration
	Logger   logging.Logger
}

// DeviceProxy forwards authenticated requests to the device controller.
// The panel credentials are stripped and replaced with the resolved
// identity, so the controller never sees session tokens.
func DeviceProxy(cfg ProxyConfig) fiber.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	forward := proxy.Balancer(proxy.Config{
		Servers:       []string{cfg.Upstream},
		Timeout:       cfg.Timeout,
		ModifyRequest: identify,
	})

	return func(c fiber.Ctx) error {
		err := forward(c)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, fiber.ErrUnauthorized):
			return c.Status(http.StatusUnauthorized).JSON(core.ErrorResponse{
				Message: "Authentication required",
				Code:    "AUTH_REQUIRED",
			})
		default:
			cfg.Logger.Error(c.Context(), "device upstream failed", "upstream", cfg.Upstream, "path", c.Path(), "error", err)
			return c.Status(http.StatusBadGateway).JSON(core.ErrorResponse{
				Message: "Device controller unavailable",
				Code:    "DEVICE_UNAVAILABLE",
			})
		}
	}
}

func identify(c fiber.Ctx) error {
	req := c.Request()
	req.Header.Del(fiber.HeaderAuthorization)
	req.Header.DelCookie(SessionCookie)

	user := UserFrom(c)
	if user == nil {
		return fiber.ErrUnauthorized
	}
	req.Header.Set(HeaderPanelUser, user.Username)
	req.Header.Set(HeaderPanelUserID, strconv.FormatInt(user.ID, 10))
	return nil
}
