package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/contexts"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type EntityHandlersParams struct {
	fx.In

	EntityService *biz.EntityService
}

func NewEntityHandlers(params EntityHandlersParams) *EntityHandlers {
	return &EntityHandlers{
		EntityService: params.EntityService,
	}
}

type EntityHandlers struct {
	EntityService *biz.EntityService
}

// EnsureTenantRequest registers a tenant hub.
type EnsureTenantRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// EnsureTenant registers a tenant hub. Idempotent.
func (h *EntityHandlers) EnsureTenant(c *gin.Context) {
	var req EnsureTenantRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("Invalid request format"))
		return
	}

	hub, created, err := h.EntityService.EnsureTenant(c.Request.Context(), req.Slug)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant":  objects.NewTenantInfo(hub),
		"created": created,
	})
}

// GetTenant fetches a tenant hub by slug.
func (h *EntityHandlers) GetTenant(c *gin.Context) {
	hub, err := h.EntityService.GetTenant(c.Request.Context(), c.Param("slug"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewTenantInfo(hub))
}

// EnsureEntityRequest registers an entity hub inside the caller's tenant.
type EnsureEntityRequest struct {
	Kind        string `json:"kind"        binding:"required"`
	BusinessKey string `json:"businessKey" binding:"required"`
}

// EnsureEntity registers an entity hub. Idempotent: created reports
// whether this call made it.
func (h *EntityHandlers) EnsureEntity(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req EnsureEntityRequest
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

	hub, created, err := h.EntityService.Ensure(ctx, tenant, req.Kind, req.BusinessKey)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity":  objects.NewHubInfo(hub),
		"created": created,
	})
}

// GetEntity fetches an entity hub addressed by kind and business key.
func (h *EntityHandlers) GetEntity(c *gin.Context) {
	ctx := c.Request.Context()

	key, ok := entityKey(c)
	if !ok {
		return
	}

	hub, err := h.EntityService.Get(ctx, key)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewHubInfo(hub))
}

// PutPayload appends a full payload version. Identical payloads are
// absorbed without a new version.
func (h *EntityHandlers) PutPayload(c *gin.Context) {
	ctx := c.Request.Context()

	key, ok := entityKey(c)
	if !ok {
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	result, err := h.EntityService.Put(ctx, key, payload)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.PutResult{
		Version: objects.NewVersionInfo(result.Version),
		Created: result.Created,
	})
}

// PatchPayload applies a shallow JSON merge to the current payload and
// puts the result.
func (h *EntityHandlers) PatchPayload(c *gin.Context) {
	ctx := c.Request.Context()

	key, ok := entityKey(c)
	if !ok {
		return
	}

	patch, err := c.GetRawData()
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	result, err := h.EntityService.Patch(ctx, key, patch)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.PutResult{
		Version: objects.NewVersionInfo(result.Version),
		Created: result.Created,
	})
}

// GetPayload returns the current payload version, or the one effective at
// the instant passed in the `at` query parameter.
func (h *EntityHandlers) GetPayload(c *gin.Context) {
	ctx := c.Request.Context()

	key, ok := entityKey(c)
	if !ok {
		return
	}

	var (
		version *vault.Version
		err     error
	)

	if at := c.Query("at"); at != "" {
		instant, parseErr := time.Parse(time.RFC3339Nano, at)
		if parseErr != nil {
			JSONError(c, http.StatusBadRequest, errors.New("at must be an RFC 3339 timestamp"))
			return
		}

		version, err = h.EntityService.AsOf(ctx, key, instant)
	} else {
		version, err = h.EntityService.Current(ctx, key)
	}

	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewVersionInfo(version))
}

// GetHistory pages through the version log, oldest first.
func (h *EntityHandlers) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()

	key, ok := entityKey(c)
	if !ok {
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	page, err := h.EntityService.History(ctx, key, c.Query("cursor"), limit)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewHistoryPage(page))
}

// entityKey resolves the addressed entity from the path parameters and
// the caller's tenant. A false return means the response is written.
func entityKey(c *gin.Context) (vault.HashKey, bool) {
	tenant, ok := callerTenant(c.Request.Context())
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return vault.HashKey{}, false
	}

	return vault.Resolve(tenant, c.Param("kind"), c.Param("key")), true
}

// callerTenant returns the tenant of the session principal.
func callerTenant(ctx context.Context) (vault.HashKey, bool) {
	session, ok := contexts.GetSession(ctx)
	if !ok {
		return vault.HashKey{}, false
	}

	return session.TenantKey, true
}

// queryLimit parses the limit query parameter. A false return means the
// response is written.
func queryLimit(c *gin.Context) (int, bool) {
	limit := c.Query("limit")
	if limit == "" {
		return 0, true
	}

	parsed, err := strconv.Atoi(limit)
	if err != nil || parsed < 0 {
		JSONError(c, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
		return 0, false
	}

	return parsed, true
}
