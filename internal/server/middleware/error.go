package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/vault"
)

// AbortWithError aborts the request with a JSON error response and adds the error to gin context for access logging.
func AbortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(status),
			Message: err.Error(),
		},
	})
}

// AbortWithReason aborts the request with the stable reason code of a
// denied access decision.
func AbortWithReason(c *gin.Context, status int, reason access.Reason) {
	c.AbortWithStatusJSON(status, objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(status),
			Message: reasonMessage(reason),
			Reason:  string(reason),
		},
	})
}

// statusForError maps the store error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, vault.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reasonMessage(reason access.Reason) string {
	switch reason {
	case access.ReasonSessionNotFound:
		return "session token is not recognized"
	case access.ReasonSessionExpired:
		return "session validity window has passed"
	case access.ReasonSessionRevoked:
		return "session has been revoked"
	case access.ReasonSessionExhausted:
		return "session allowances are exhausted"
	case access.ReasonNoDomainAssigned:
		return "actor has no live domain assignment"
	case access.ReasonCrossDomainViolation:
		return "resource domain does not match the assigned domain"
	case access.ReasonCategoryDenied:
		return "request touches a denied data category"
	case access.ReasonRiskDenied:
		return "risk score places the request in the denied tier"
	case access.ReasonStepUpRequired:
		return "elevated tier requires a step-up grant"
	default:
		return "access denied"
	}
}
