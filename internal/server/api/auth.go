package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/server/middleware"
)

type AuthHandlersParams struct {
	fx.In

	AuthService *biz.AuthService
}

func NewAuthHandlers(params AuthHandlersParams) *AuthHandlers {
	return &AuthHandlers{
		AuthService: params.AuthService,
	}
}

type AuthHandlers struct {
	AuthService *biz.AuthService
}

// SignInRequest authenticates an actor and opens a session.
type SignInRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`

	// TTLSeconds bounds the session validity window. Zero takes the
	// server default.
	TTLSeconds  int64 `json:"ttlSeconds"`
	MaxRequests int64 `json:"maxRequests"`
	MaxBytes    int64 `json:"maxBytes"`
}

// SignIn handles actor authentication.
func (h *AuthHandlers) SignIn(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req SignInRequest
	)

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	result, err := h.AuthService.SignIn(ctx, req.Email, req.Password, biz.IssueOptions{
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
		MaxRequests: req.MaxRequests,
		MaxBytes:    req.MaxBytes,
	})
	if err != nil {
		if errors.Is(err, biz.ErrInvalidPassword) {
			JSONError(c, http.StatusUnauthorized, errors.New("Invalid email or password"))
			return
		}

		ServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, result)
}

// StepUpRequest proves a fresh re-authentication for the calling session.
type StepUpRequest struct {
	Password string `json:"password" binding:"required"`

	// TTLSeconds bounds the grant. Zero takes the server default.
	TTLSeconds int64 `json:"ttlSeconds"`
}

// StepUp re-authenticates the session holder and returns a short-lived
// grant accepted by the decision layer at the elevated tier.
func (h *AuthHandlers) StepUp(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req StepUpRequest
	)

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	token, err := middleware.ExtractTokenFromRequest(c.Request, nil)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	grant, err := h.AuthService.GrantStepUp(ctx, token, req.Password, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidPassword) {
			JSONError(c, http.StatusUnauthorized, errors.New("Invalid password"))
			return
		}

		ServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, grant)
}
