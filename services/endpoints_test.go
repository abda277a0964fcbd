package services

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoreguard/panel/core"
)

// Requirement: AuthEndpoints returns framework-agnostic route templates for
// every auth operation, with only /session behind authentication.
func TestAuthEndpoints(t *testing.T) {
	tests := []struct {
		name          string
		wantPath      string
		wantMethod    string
		wantOpID      string
		wantProtected bool
	}{
		{name: "register", wantPath: "/register", wantMethod: http.MethodPost, wantOpID: "register"},
		{name: "login", wantPath: "/login", wantMethod: http.MethodPost, wantOpID: "login"},
		{name: "logout", wantPath: "/logout", wantMethod: http.MethodPost, wantOpID: "logout"},
		{name: "validate", wantPath: "/validate", wantMethod: http.MethodPost, wantOpID: "validateSession"},
		{name: "session", wantPath: "/session", wantMethod: http.MethodGet, wantOpID: "getSession", wantProtected: true},
	}

	// Arrange
	endpoints := AuthEndpoints()
	require.Len(t, endpoints, len(tests))

	byPath := make(map[string]core.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		byPath[ep.Path] = ep
	}

	// Act & Assert
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ep, found := byPath[test.wantPath]
			require.True(t, found, "missing endpoint %q", test.wantPath)
			assert.Equal(t, test.wantMethod, ep.Method)
			assert.Equal(t, test.wantOpID, ep.OperationID)
			assert.Equal(t, test.wantProtected, ep.Protected)
			assert.NotEmpty(t, ep.Description)
		})
	}
}

// Requirement: All endpoints must have unique OperationIDs.
func TestEndpoints_OperationIDsAreUnique(t *testing.T) {
	seen := make(map[string]string)
	all := append(append(AuthEndpoints(), UserEndpoints()...), DetectionEndpoints()...)
	all = append(all, DeviceEndpoints()...)

	for _, ep := range all {
		if prev, dup := seen[ep.OperationID]; dup {
			t.Fatalf("OperationID %q used by both %s and %s", ep.OperationID, prev, ep.Path)
		}
		seen[ep.OperationID] = ep.Path
	}
}

func TestUserAndDeviceEndpoints_AreProtected(t *testing.T) {
	all := append(append(UserEndpoints(), DetectionEndpoints()...), DeviceEndpoints()...)
	for _, ep := range all {
		assert.True(t, ep.Protected, "%s %s must require auth", ep.Method, ep.Path)
	}
}

func TestDeviceEndpoints_AreServedExternally(t *testing.T) {
	for _, ep := range DeviceEndpoints() {
		assert.True(t, ep.External, "%s %s is proxied", ep.Method, ep.Path)
	}
	for _, ep := range append(append(AuthEndpoints(), UserEndpoints()...), DetectionEndpoints()...) {
		assert.False(t, ep.External, "%s %s is served by the panel", ep.Method, ep.Path)
	}
}

func TestDeviceEndpoints_IncludeDetectionControls(t *testing.T) {
	byOp := map[string]core.Endpoint{}
	for _, ep := range DeviceEndpoints() {
		byOp[ep.OperationID] = ep
	}

	for _, op := range []string{"startRecording", "setAutoDetect", "setDetectionDelay"} {
		ep, ok := byOp[op]
		require.True(t, ok, "missing %s", op)
		assert.Equal(t, http.MethodPost, ep.Method)
		assert.NotEmpty(t, ep.Audit)
	}
}

func TestDeviceEndpoints_HardwareActionsAreAudited(t *testing.T) {
	for _, ep := range DeviceEndpoints() {
		if ep.Method == http.MethodPost {
			assert.NotEmpty(t, ep.Audit, "%s should be audited", ep.Path)
		}
	}
}

// Requirement: NewEndpointRegistry pre-registers the auth endpoints under
// the base path.
func TestNewEndpointRegistry(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		wantPath string
	}{
		{name: "default base path", basePath: "/api/auth", wantPath: "/api/auth/login"},
		{name: "trailing slash", basePath: "/auth/", wantPath: "/auth/login"},
		{name: "no base path", basePath: "", wantPath: "/login"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reg := NewEndpointRegistry(test.basePath)

			assert.Len(t, reg.Endpoints(), len(AuthEndpoints()))

			ep, ok := reg.Lookup(http.MethodPost, test.wantPath)
			require.True(t, ok)
			assert.Equal(t, "login", ep.OperationID)

			_, ok = reg.Lookup(http.MethodGet, test.wantPath)
			assert.False(t, ok)
		})
	}
}

func TestNewEndpointRegistry_DoesNotAlterTemplates(t *testing.T) {
	_ = NewEndpointRegistry("/api/auth")

	for _, ep := range AuthEndpoints() {
		assert.NotContains(t, ep.Path, "/api/auth")
	}
}

func TestEndpointRegistry_RegisterPlugin(t *testing.T) {
	tests := []struct {
		name      string
		plugin    []core.Endpoint
		wantErr   bool
		wantTotal int
	}{
		{
			name:      "registers non-conflicting endpoints",
			plugin:    UserEndpoints(),
			wantTotal: len(AuthEndpoints()) + len(UserEndpoints()),
		},
		{
			name:      "same path different method is not a conflict",
			plugin:    []core.Endpoint{{Path: "/api/auth/login", Method: http.MethodGet, OperationID: "loginPage"}},
			wantTotal: len(AuthEndpoints()) + 1,
		},
		{
			name:      "conflict with base endpoint",
			plugin:    []core.Endpoint{{Path: "/api/auth/login", Method: http.MethodPost, OperationID: "dup"}},
			wantErr:   true,
			wantTotal: len(AuthEndpoints()),
		},
		{
			name: "duplicate inside batch registers nothing",
			plugin: []core.Endpoint{
				{Path: "/x", Method: http.MethodGet, OperationID: "x1"},
				{Path: "/y", Method: http.MethodGet, OperationID: "y"},
				{Path: "/x", Method: http.MethodGet, OperationID: "x2"},
			},
			wantErr:   true,
			wantTotal: len(AuthEndpoints()),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			reg := NewEndpointRegistry("/api/auth")

			// Act
			err := reg.RegisterPlugin(test.plugin)

			// Assert
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, reg.Endpoints(), test.wantTotal)
		})
	}
}

func TestEndpointRegistry_EndpointsAreSorted(t *testing.T) {
	reg := NewEndpointRegistry("/api/auth")
	require.NoError(t, reg.RegisterPlugin(UserEndpoints()))
	require.NoError(t, reg.RegisterPlugin(DetectionEndpoints()))

	eps := reg.Endpoints()
	for i := 1; i < len(eps); i++ {
		prev, cur := eps[i-1], eps[i]
		assert.True(t, prev.Path < cur.Path || (prev.Path == cur.Path && prev.Method <= cur.Method),
			"%s %s before %s %s", prev.Method, prev.Path, cur.Method, cur.Path)
	}
}
