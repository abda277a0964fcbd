package services

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/snoreguard/panel/core"
)

// AuthEndpoints returns the framework-agnostic routes mounted under the
// auth base path.
//
// Each endpoint is a template: the adapter supplies the handler and wraps
// Protected routes in its auth middleware.
func AuthEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:        "/register",
			Method:      http.MethodPost,
			OperationID: "register",
			Description: "Create an account with username, email and password",
		},
		{
			Path:        "/login",
			Method:      http.MethodPost,
			OperationID: "login",
			Description: "Verify credentials and issue a session token",
		},
		{
			Path:        "/logout",
			Method:      http.MethodPost,
			OperationID: "logout",
			Description: "Revoke the current session; succeeds for unknown tokens",
		},
		{
			Path:        "/validate",
			Method:      http.MethodPost,
			OperationID: "validateSession",
			Description: "Report whether the presented token is valid",
		},
		{
			Path:        "/session",
			Method:      http.MethodGet,
			OperationID: "getSession",
			Description: "Get the current user and session",
			Protected:   true,
		},
	}
}

// UserEndpoints returns the account routes, all behind authentication.
// Paths are absolute.
func UserEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:        "/api/user/profile",
			Method:      http.MethodGet,
			OperationID: "getProfile",
			Description: "Get the current user's profile",
			Protected:   true,
		},
		{
			Path:        "/api/user/profile",
			Method:      http.MethodPut,
			OperationID: "updateProfile",
			Description: "Update email and full name",
			Protected:   true,
		},
		{
			Path:        "/api/user/change-password",
			Method:      http.MethodPost,
			OperationID: "changePassword",
			Description: "Replace the password after re-verifying the old one",
			Protected:   true,
		},
		{
			Path:        "/api/logs",
			Method:      http.MethodGet,
			OperationID: "listActivity",
			Description: "List the current user's activity log",
			Protected:   true,
		},
	}
}

// DetectionEndpoints returns the detection history and settings routes.
func DetectionEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:        "/api/detection_history",
			Method:      http.MethodGet,
			OperationID: "listDetections",
			Description: "List the current user's newest detections",
			Protected:   true,
		},
		{
			Path:        "/api/detection_history",
			Method:      http.MethodPost,
			OperationID: "recordDetection",
			Description: "Store a classification result for the current user",
			Protected:   true,
		},
		{
			Path:        "/api/detection_stats",
			Method:      http.MethodGet,
			OperationID: "detectionSummary",
			Description: "Count detections and snoring over the last days",
			Protected:   true,
		},
		{
			Path:        "/api/settings",
			Method:      http.MethodGet,
			OperationID: "getSettings",
			Description: "Get the current user's detection settings",
			Protected:   true,
		},
		{
			Path:        "/api/settings",
			Method:      http.MethodPut,
			OperationID: "updateSettings",
			Description: "Change auto detection, delay, threshold or notifications",
			Protected:   true,
		},
	}
}

// DeviceEndpoints describes the hardware and recording actions handed to
// the device controller. Each successful state change is written to the
// activity log.
func DeviceEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:        "/api/device/pump/:action",
			Method:      http.MethodPost,
			OperationID: "controlPump",
			Description: "Start or stop an air pump",
			Protected:   true,
			External:    true,
			Audit:       "Pump control",
		},
		{
			Path:        "/api/device/valve/:action",
			Method:      http.MethodPost,
			OperationID: "controlValve",
			Description: "Open or close a valve",
			Protected:   true,
			External:    true,
			Audit:       "Valve control",
		},
		{
			Path:        "/api/device/pillow/:action",
			Method:      http.MethodPost,
			OperationID: "controlPillow",
			Description: "Inflate or deflate the pillow",
			Protected:   true,
			External:    true,
			Audit:       "Pillow control",
		},
		{
			Path:        "/api/device/record",
			Method:      http.MethodPost,
			OperationID: "startRecording",
			Description: "Record a clip and classify it",
			Protected:   true,
			External:    true,
			Audit:       "Recording started",
		},
		{
			Path:        "/api/device/auto_detect",
			Method:      http.MethodPost,
			OperationID: "setAutoDetect",
			Description: "Start or stop continuous detection",
			Protected:   true,
			External:    true,
			Audit:       "Auto detection changed",
		},
		{
			Path:        "/api/device/set_delay",
			Method:      http.MethodPost,
			OperationID: "setDetectionDelay",
			Description: "Set the minutes between automatic detections",
			Protected:   true,
			External:    true,
			Audit:       "Detection delay changed",
		},
		{
			Path:        "/api/device/status",
			Method:      http.MethodGet,
			OperationID: "deviceStatus",
			Description: "Read pump, valve and sensor state",
			Protected:   true,
			External:    true,
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// NewEndpointRegistry creates a new registry with the auth endpoints
// pre-registered under basePath. Registered paths are absolute.
func NewEndpointRegistry(basePath string) *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	basePath = strings.TrimSuffix(basePath, "/")
	for _, ep := range AuthEndpoints() {
		ep := ep
		ep.Path = basePath + ep.Path
		reg.endpoints[endpointKey(&ep)] = &ep
	}

	return reg
}

// RegisterPlugin registers additional endpoints to the registry.
// Returns error if any endpoint conflicts with existing endpoints
// or with other endpoints in the same batch.
//
// If an error occurs, no endpoints from the batch are registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool, len(endpoints))
	for i := range endpoints {
		key := endpointKey(&endpoints[i])

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", endpoints[i].Method, endpoints[i].Path)
		}
		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", endpoints[i].Method, endpoints[i].Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[endpointKey(&ep)] = &ep
	}

	return nil
}

// Lookup returns the endpoint registered for method and path.
func (r *EndpointRegistry) Lookup(method, path string) (*core.Endpoint, bool) {
	ep, ok := r.endpoints[method+":"+path]
	return ep, ok
}

// Endpoints returns all registered endpoints ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}
