// Package server assembles and runs the panel HTTP server.
// It opens the configured storage, mounts the auth routes and the device
// proxy, sweeps expired sessions and shuts down gracefully on signals.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/snoreguard/panel"
	fiberadapter "github.com/snoreguard/panel/adapters/fiber"
	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/config"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/internal/storage"
	"github.com/snoreguard/panel/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *storage.Store
	http    *fiber.App
	panel   *panel.Panel
	sweeper *services.Sweeper
}

// Option tweaks App construction. Used by tests.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput redirects the operational and access logs.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

func accessLogFormat() string {
	format := []string{
		"${time}|${respHeader:X-Request-ID}",
		"${status}|${latency}",
		"${ip}",
		"${method}|${path}",
		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

func NewApp(ctx context.Context, c *config.Config, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(o.logOutput, c.LogLevel)

	store, err := storage.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	httpApp := fiber.New(fiber.Config{AppName: "snoreguard-panel"})
	httpApp.Use(recover.New())
	httpApp.Use(requestid.New())
	httpApp.Use(logger.New(logger.Config{
		Stream:     o.logOutput,
		Format:     accessLogFormat(),
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "Local",
	}))

	adapter := fiberadapter.New(httpApp, fiberadapter.WithSecureCookie(c.CookieSecure))

	sessionConfig := c.SessionConfig()
	p, err := panel.New(panel.Config{
		Secret:            c.Secret,
		Database:          store,
		HTTP:              adapter,
		DisableCache:      !c.CacheEnabled,
		Cache:             panel.NewInMemoryCache(core.CacheConfig{TTL: c.CacheTTL, MaxSize: c.CacheMaxSize}),
		SessionConfig:     &sessionConfig,
		Logger:            log,
		BasePath:          c.BasePath,
		SnoreClass:        c.SnoreClass,
		ActivityQueueSize: c.ActivityQueueSize,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("panel init error: %w", err)
	}

	if c.DeviceUpstream != "" {
		devices := services.DeviceEndpoints()
		if err := p.Endpoints.RegisterPlugin(devices); err != nil {
			p.Close()
			store.Close()
			return nil, err
		}
		proxy := fiberadapter.DeviceProxy(fiberadapter.ProxyConfig{Upstream: c.DeviceUpstream, Logger: log})
		if err := adapter.Protect(devices, proxy); err != nil {
			p.Close()
			store.Close()
			return nil, err
		}
	}

	return &App{
		config:  c,
		logger:  log,
		store:   store,
		http:    httpApp,
		panel:   p,
		sweeper: services.NewSweeper(p.Sessions, c.SweepInterval, log),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
// In-flight requests finish, then queued activity entries are flushed and
// storage is closed.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(ctx, cancelFunc)

	app.logger.Info(ctx, "Starting app...", "addr", app.config.Addr(), "driver", app.store.Driver)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	err := app.http.Listen(app.config.Addr(), fiber.ListenConfig{
		GracefulContext:       ctx,
		ShutdownTimeout:       shutdownTimeout,
		DisableStartupMessage: true,
	})
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
	}

	cancelFunc()
	wg.Wait()

	app.panel.Close()
	app.store.Close()

	app.logger.Info(context.Background(), "Stopped")
	return err
}
