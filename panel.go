package panel

import (
	"fmt"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/pkg/cache"
	"github.com/snoreguard/panel/pkg/crypto"
	"github.com/snoreguard/panel/services"
)

// interfaces
type (
	AuthStorage      = core.AuthStorage
	Cache            = core.Cache
	AuthHandler      = core.AuthHandler
	DetectionHandler = core.DetectionHandler
	ActivityRecorder = core.ActivityRecorder

	PasswordHandler = crypto.PasswordHandler
	Logger          = logging.Logger
)

// structs
type (
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig
	Endpoint      = core.Endpoint
)

type (
	User        = core.User
	PublicUser  = core.PublicUser
	Session     = core.Session
	SessionData = core.SessionData
	AuditEntry  = core.AuditEntry
	CacheStats  = core.CacheStats

	Detection        = core.Detection
	DetectionSummary = core.DetectionSummary
	UserSettings     = core.UserSettings

	RegisterInput       = core.RegisterInput
	LoginInput          = core.LoginInput
	LoginResult         = core.LoginResult
	ProfileInput        = core.ProfileInput
	ChangePasswordInput = core.ChangePasswordInput
	ClientInfo          = core.ClientInfo
	DetectionInput      = core.DetectionInput
	SettingsInput       = core.SettingsInput
)

const (
	defaultBasePath  = "/api/auth"
	defaultSecretLen = 32
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache     = cache.NewInMemoryCache
	NewArgon2            = crypto.NewArgon2
	DefaultSessionConfig = core.DefaultSessionConfig
)

var (
	ErrValidation         = core.ErrValidation
	ErrDuplicateUser      = core.ErrDuplicateUser
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrUnauthorized       = core.ErrUnauthorized
	ErrInternal           = core.ErrInternal
)

var (
	ErrDBAdapterRequired   = core.ErrDBAdapterRequired
	ErrHTTPAdapterRequired = core.ErrHTTPAdapterRequired
	ErrSecretRequired      = core.ErrSecretRequired
	ErrSecretTooShort      = core.ErrSecretTooShort
)

// HTTPAdapter mounts the panel's routes on an HTTP framework.
type HTTPAdapter interface {
	RegisterRoutes(p *Panel) error
}

type Config struct {
	// Required config
	Secret   string
	Database AuthStorage
	HTTP     HTTPAdapter

	// Optional config
	Cache             Cache
	DisableCache      bool
	SessionConfig     *SessionConfig
	PasswordHasher    PasswordHandler
	Logger            Logger
	BasePath          string
	ActivityQueueSize int
	// SnoreClass is the classifier label counted as snoring in detection
	// summaries
	SnoreClass string
}

// Panel is the assembled authentication core.
type Panel struct {
	Auth        *services.AuthService
	Sessions    *services.SessionManager
	Credentials *services.CredentialStore
	Activity    *services.ActivityLogger
	Detections  *services.DetectionService
	Endpoints   *services.EndpointRegistry
	Logger      Logger
	BasePath    string
}

func New(config Config) (*Panel, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}

	// Set Defaults

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var cacheAdapter Cache
	if !config.DisableCache {
		cacheAdapter = config.Cache
		if cacheAdapter == nil {
			cacheAdapter = NewInMemoryCache(CacheConfig{})
		}
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = NewArgon2()
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	sessions := services.NewSessionManager(
		sessionConfig,
		config.Database,
		cacheAdapter,
		[]byte(config.Secret),
		services.WithSessionLogger(logger),
	)
	credentials := services.NewCredentialStore(config.Database, passwordHasher, logger)
	activity := services.NewActivityLogger(config.Database, logger, config.ActivityQueueSize)

	detections := services.NewDetectionService(config.Database, config.Database, activity, logger,
		services.WithSnoreClass(config.SnoreClass))

	endpoints := services.NewEndpointRegistry(basePath)
	for _, plugin := range [][]Endpoint{services.UserEndpoints(), services.DetectionEndpoints()} {
		if err := endpoints.RegisterPlugin(plugin); err != nil {
			activity.Close()
			return nil, err
		}
	}

	p := &Panel{
		Auth:        services.NewAuthService(credentials, sessions, activity, config.Database, logger),
		Sessions:    sessions,
		Credentials: credentials,
		Activity:    activity,
		Detections:  detections,
		Endpoints:   endpoints,
		Logger:      logger,
		BasePath:    basePath,
	}

	if err := config.HTTP.RegisterRoutes(p); err != nil {
		activity.Close()
		return nil, err
	}

	return p, nil
}

// Close flushes pending activity entries. Call it after the HTTP server
// has stopped.
func (p *Panel) Close() {
	p.Activity.Close()
}
