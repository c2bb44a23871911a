package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

// JSONError returns a JSON error response and adds the error to gin context for access logging.
func JSONError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(status),
			Message: err.Error(),
		},
	})
}

// ServiceError maps a service failure onto the HTTP error envelope using
// the store error taxonomy.
func ServiceError(c *gin.Context, err error) {
	JSONError(c, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, vault.ErrUnavailable), errors.Is(err, biz.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, biz.ErrInvalidPassword), errors.Is(err, biz.ErrInvalidToken), errors.Is(err, biz.ErrInvalidJWT):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
