package authsdk

import "github.com/aussiebroadwan/portal/pkg/jwtx"

// ============================================================================
// Session Types
// ============================================================================

// LoginRequest is the body of POST /v1/session/login.
type LoginRequest struct {
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// User is the reconciled application user.
type User struct {
	ID    string `json:"id" example:"01J9ZC6W3Q4V0S9Y8A7B6C5D4E"`
	Email string `json:"email" example:"ada@example.com"`

	// Role is always set; "admin" or "editor"
	Role string `json:"role" example:"editor"`

	// Name falls back to the email when no display name is known
	Name string `json:"name" example:"Ada"`

	// Metadata is the identity provider's user metadata, passed through as-is
	Metadata map[string]any `json:"user_metadata,omitempty" swaggertype:"object"`
}

// State mirrors the agent's auth state. User is nil exactly when
// Authenticated is false, once Loading is false.
type State struct {
	User          *User  `json:"user"`
	Authenticated bool   `json:"authenticated"`
	Loading       bool   `json:"loading"`
	Error         string `json:"error,omitempty" example:"Invalid email or password."`
}

// LoginResponse is returned by POST /v1/session/login with 200 or 401.
type LoginResponse struct {
	OK    bool  `json:"ok"`
	State State `json:"state"`
}

// SessionResponse is returned by GET /v1/session and POST /v1/session/logout.
type SessionResponse struct {
	State State `json:"state"`
}

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the JSON body of every non-session error.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_request"`
	ErrorDescription string `json:"error_description,omitempty" example:"Request body must be valid JSON"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Service names the agent answering the probe
	Service string `json:"service" example:"portal-auth"`

	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// StartedAt is when the agent process started, RFC 3339 in UTC
	StartedAt string `json:"started_at,omitempty"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the profile store connection status
	Database string `json:"database"`

	// Reconciler reports whether the startup session query has settled
	Reconciler string `json:"reconciler"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
type JWKSResponse jwtx.JWKS
