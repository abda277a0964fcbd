package core

// Endpoint describes a route independently of the HTTP framework serving it.
type Endpoint struct {
	Path        string
	Method      string
	OperationID string
	Description string

	// Protected routes run behind the auth middleware
	Protected bool
	// External routes are served by a handler handed to the adapter
	// separately, such as the device proxy.
	External bool
	// Audit is the activity message recorded after a successful call.
	// Empty means the route is not audited.
	Audit string
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"` // per-field validation messages
}
