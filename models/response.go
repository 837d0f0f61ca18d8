package models

import (
	"time"

	"github.com/use-agent/certcheck/parser"
)

// StartResponse is the response for POST /api/v1/verifications.
type StartResponse struct {
	VerificationID string `json:"verification_id"`

	// MaskedID is the display form of the identifier the result will be
	// checked against.
	MaskedID string `json:"masked_id"`

	Status string `json:"status"`

	// Opened reports that a browser context on the portal form is live and
	// waiting for the CAPTCHA to be solved.
	Opened bool `json:"opened"`

	// CodeFilled is false when no form field accepted the code.
	CodeFilled bool `json:"code_filled"`
}

// PollResponse is the response for GET /api/v1/verifications/:id.
type PollResponse struct {
	VerificationID string         `json:"verification_id,omitempty"`
	Status         string         `json:"status"`
	Result         *parser.Result `json:"result,omitempty"`
}

// AuditEntry is one piece of decision evidence. Screenshot is base64 PNG.
type AuditEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	Screenshot        string    `json:"screenshot,omitempty"`
	LayoutFingerprint string    `json:"layout_fingerprint,omitempty"`
	Transcript        string    `json:"transcript,omitempty"`
}

// AuditResponse is the response for GET /api/v1/verifications/:id/audit.
type AuditResponse struct {
	VerificationID string       `json:"verification_id"`
	Status         string       `json:"status"`
	Entries        []AuditEntry `json:"entries"`
}

// ErrorResponse wraps an ErrorDetail for failed requests.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// PortalProbe reports whether the portal answered a plain HTTPS request.
type PortalProbe struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status         string       `json:"status"`
	Uptime         string       `json:"uptime"`
	ActiveSessions int          `json:"active_sessions"`
	Portal         *PortalProbe `json:"portal,omitempty"`
	Version        string       `json:"version"`
}
