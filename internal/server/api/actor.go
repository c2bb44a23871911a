package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type ActorHandlersParams struct {
	fx.In

	ActorService *biz.ActorService
}

func NewActorHandlers(params ActorHandlersParams) *ActorHandlers {
	return &ActorHandlers{
		ActorService: params.ActorService,
	}
}

type ActorHandlers struct {
	ActorService *biz.ActorService
}

type RegisterActorRequest struct {
	Email       string   `json:"email"    binding:"required,email"`
	Password    string   `json:"password" binding:"required"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
}

// RegisterActor creates an actor in the caller's tenant. The email is the
// business key, so registering the same email twice is a conflict.
func (h *ActorHandlers) RegisterActor(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req RegisterActorRequest
	)

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	tenant, ok := callerTenant(ctx)
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return
	}

	actor, err := h.ActorService.Register(ctx, tenant, &biz.RegisterActorParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Roles:       req.Roles,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, actor.Info())
}

// GetActor fetches an actor by hash key, or by email when the email query
// parameter is set.
func (h *ActorHandlers) GetActor(c *gin.Context) {
	ctx := c.Request.Context()

	key, err := vault.ParseHashKey(c.Param("key"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	actor, err := h.ActorService.Get(ctx, key)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, actor.Info())
}

// LookupActor resolves an actor by email within the caller's tenant.
func (h *ActorHandlers) LookupActor(c *gin.Context) {
	ctx := c.Request.Context()

	email := c.Query("email")
	if email == "" {
		JSONError(c, http.StatusBadRequest, errors.New("email query parameter is required"))
		return
	}

	tenant, ok := callerTenant(ctx)
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return
	}

	actor, err := h.ActorService.GetByEmail(ctx, tenant, email)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, actor.Info())
}
