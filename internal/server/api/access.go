package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/server/middleware"
)

type AccessHandlersParams struct {
	fx.In

	AccessService *biz.AccessService
}

func NewAccessHandlers(params AccessHandlersParams) *AccessHandlers {
	return &AccessHandlers{
		AccessService: params.AccessService,
	}
}

type AccessHandlers struct {
	AccessService *biz.AccessService
}

// AuthorizeRequest asks for a decision without performing the operation.
type AuthorizeRequest struct {
	Domain     string          `json:"domain" binding:"required"`
	Action     string          `json:"action" binding:"required"`
	Categories []string        `json:"categories"`
	Payload    json.RawMessage `json:"payload"`

	// StepUpGrant optionally proves a recent re-authentication.
	StepUpGrant string `json:"stepUpGrant"`
}

// Authorize evaluates the full decision procedure for the calling session
// and returns the outcome. Denials are a normal result, not an error, so
// the status is 200 either way.
func (h *AccessHandlers) Authorize(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req AuthorizeRequest
	)

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	if !access.IsValidAction(req.Action) {
		JSONError(c, http.StatusBadRequest, errors.New("action must be one of read, write, admin"))
		return
	}

	token, err := middleware.ExtractTokenFromRequest(c.Request, middleware.DefaultTokenConfig)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	decision, err := h.AccessService.Authorize(ctx, &biz.AccessRequest{
		Token:       token,
		Domain:      req.Domain,
		Action:      access.Action(req.Action),
		Categories:  req.Categories,
		Payload:     req.Payload,
		StepUpGrant: req.StepUpGrant,
		Signals:     middleware.SignalsFromRequest(c),
	})
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}
