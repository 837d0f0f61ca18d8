package portal

import (
	"context"
	"errors"

	"github.com/use-agent/certcheck/models"
)

// categorizeError wraps raw errors into typed APIErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.APIError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodePortalTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAPIError(models.ErrCodePortalTimeout, "request canceled", err)
	default:
		return models.NewAPIError(models.ErrCodePortalUnavailable, msg, err)
	}
}
