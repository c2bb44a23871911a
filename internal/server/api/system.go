package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type SystemHandlersParams struct {
	fx.In

	SystemService     *biz.SystemService
	ActorService      *biz.ActorService
	AssignmentService *biz.AssignmentService
	Store             vault.Store
}

func NewSystemHandlers(params SystemHandlersParams) *SystemHandlers {
	return &SystemHandlers{
		SystemService:     params.SystemService,
		ActorService:      params.ActorService,
		AssignmentService: params.AssignmentService,
		Store:             params.Store,
	}
}

type SystemHandlers struct {
	SystemService     *biz.SystemService
	ActorService      *biz.ActorService
	AssignmentService *biz.AssignmentService
	Store             vault.Store
}

// Health reports liveness of the process and its store.
func (h *SystemHandlers) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		JSONError(c, http.StatusServiceUnavailable, errors.New("store unreachable"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSystemStatus reports whether the vault has been initialized.
func (h *SystemHandlers) GetSystemStatus(c *gin.Context) {
	status, err := h.SystemService.Status(c.Request.Context())
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// InitializeRequest bootstraps the vault.
type InitializeRequest struct {
	TenantSlug    string `json:"tenantSlug"    binding:"required"`
	OwnerEmail    string `json:"ownerEmail"    binding:"required,email"`
	OwnerPassword string `json:"ownerPassword" binding:"required"`
	OwnerName     string `json:"ownerName"`
	DefaultDomain string `json:"defaultDomain" binding:"required"`
}

// InitializeSystem bootstraps the root tenant, the owner actor and the
// signing secret. Re-running against an initialized vault is a no-op.
func (h *SystemHandlers) InitializeSystem(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req InitializeRequest
	)

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	err = h.SystemService.Initialize(ctx, h.ActorService, h.AssignmentService, &biz.InitializeSystemParams{
		TenantSlug:    req.TenantSlug,
		OwnerEmail:    req.OwnerEmail,
		OwnerPassword: req.OwnerPassword,
		OwnerName:     req.OwnerName,
		DefaultDomain: req.DefaultDomain,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}

	status, err := h.SystemService.Status(ctx)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
