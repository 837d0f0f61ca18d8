package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/certcheck/models"
	"github.com/use-agent/certcheck/session"
	"github.com/use-agent/certcheck/verify"
)

// Verifier is the verification workflow behind the handlers.
type Verifier interface {
	Start(ctx context.Context, code string) (*verify.Started, error)
	Poll(ctx context.Context, id string) (session.Snapshot, error)
	MaskedExpectedID() string
}

// Sessions looks up sessions without touching their pages.
type Sessions interface {
	Get(id string) (*session.Session, error)
	Len() int
}

// StartVerification returns a handler for POST /api/v1/verifications.
//
//  1. Parse & validate the code.
//  2. Verifier.Start → browser context on the portal form, code filled in,
//     bounded by timeout.
//  3. Return 201 with the handle the client polls.
func StartVerification(v Verifier, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		// ── 2. Open portal session ──────────────────────────────────
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		started, err := v.Start(ctx, req.Code)
		if err != nil {
			if errors.Is(err, verify.ErrEmptyCode) {
				err = models.NewAPIError(models.ErrCodeInvalidInput, "code must not be blank", err)
			}
			respondError(c, err)
			return
		}

		// ── 3. Respond ──────────────────────────────────────────────
		c.JSON(http.StatusCreated, models.StartResponse{
			VerificationID: started.Session.ID,
			MaskedID:       v.MaskedExpectedID(),
			Status:         string(started.Session.Status),
			Opened:         started.Session.PageOpen,
			CodeFilled:     started.CodeFilled,
		})
	}
}

// PollVerification returns a handler for GET /api/v1/verifications/:id.
//
// Each call inspects the live page once, bounded by timeout. A decided
// session answers from memory.
func PollVerification(v Verifier, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		snap, err := v.Poll(ctx, c.Param("id"))
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.PollResponse{Status: "not_found"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.PollResponse{
			VerificationID: snap.ID,
			Status:         string(snap.Status),
			Result:         snap.Result,
		})
	}
}

// Audit returns a handler for GET /api/v1/verifications/:id/audit.
func Audit(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, models.PollResponse{Status: "not_found"})
			return
		}

		snap := sess.Snapshot()
		entries := make([]models.AuditEntry, 0, len(snap.Audit))
		for _, e := range snap.Audit {
			entry := models.AuditEntry{
				Timestamp:  e.Timestamp,
				Transcript: e.Transcript,
			}
			if e.Screenshot != nil {
				entry.Screenshot = base64.StdEncoding.EncodeToString(e.Screenshot)
			}
			if e.LayoutFingerprint != 0 {
				entry.LayoutFingerprint = fmt.Sprintf("%016x", e.LayoutFingerprint)
			}
			entries = append(entries, entry)
		}

		c.JSON(http.StatusOK, models.AuditResponse{
			VerificationID: snap.ID,
			Status:         string(snap.Status),
			Entries:        entries,
		})
	}
}

// respondError maps an APIError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	apiErr := models.AsAPIError(err)
	status := mapErrorToStatus(apiErr)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "code", apiErr.Code, "error", err)
	}
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   apiErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodePortalUnavailable:
		return http.StatusBadGateway // 502
	case models.ErrCodePortalTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
