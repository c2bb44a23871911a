package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type LinkHandlersParams struct {
	fx.In

	LinkService *biz.LinkService
}

func NewLinkHandlers(params LinkHandlersParams) *LinkHandlers {
	return &LinkHandlers{
		LinkService: params.LinkService,
	}
}

type LinkHandlers struct {
	LinkService *biz.LinkService
}

// EnsureLinkRequest records a relationship between entity hubs. Endpoint
// order does not matter.
type EnsureLinkRequest struct {
	Kind      string   `json:"kind"      binding:"required"`
	Endpoints []string `json:"endpoints" binding:"required,min=2"`
}

// EnsureLink records a relationship between hubs of the caller's tenant.
// Idempotent regardless of endpoint order.
func (h *LinkHandlers) EnsureLink(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req EnsureLinkRequest
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

	endpoints := make([]vault.HashKey, 0, len(req.Endpoints))

	for _, raw := range req.Endpoints {
		key, err := vault.ParseHashKey(raw)
		if err != nil {
			ServiceError(c, err)
			return
		}

		endpoints = append(endpoints, key)
	}

	link, created, err := h.LinkService.Ensure(ctx, tenant, req.Kind, endpoints...)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"link":    objects.NewLinkInfo(link),
		"created": created,
	})
}

// GetLink fetches a link by key.
func (h *LinkHandlers) GetLink(c *gin.Context) {
	key, ok := linkKey(c)
	if !ok {
		return
	}

	link, err := h.LinkService.Get(c.Request.Context(), key)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewLinkInfo(link))
}

// ListLinks lists links touching the endpoint entity, optionally filtered
// by kind.
func (h *LinkHandlers) ListLinks(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		JSONError(c, http.StatusBadRequest, errors.New("endpoint query parameter is required"))
		return
	}

	key, err := vault.ParseHashKey(endpoint)
	if err != nil {
		ServiceError(c, err)
		return
	}

	links, err := h.LinkService.ByEndpoint(c.Request.Context(), key, c.Query("kind"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	infos := make([]objects.LinkInfo, 0, len(links))
	for _, link := range links {
		infos = append(infos, objects.NewLinkInfo(link))
	}

	c.JSON(http.StatusOK, gin.H{"links": infos})
}

// PutLinkPayload appends a full payload version to the link.
func (h *LinkHandlers) PutLinkPayload(c *gin.Context) {
	key, ok := linkKey(c)
	if !ok {
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	result, err := h.LinkService.Put(c.Request.Context(), key, payload)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.PutResult{
		Version: objects.NewVersionInfo(result.Version),
		Created: result.Created,
	})
}

// GetLinkPayload returns the current payload version of the link.
func (h *LinkHandlers) GetLinkPayload(c *gin.Context) {
	key, ok := linkKey(c)
	if !ok {
		return
	}

	version, err := h.LinkService.Current(c.Request.Context(), key)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewVersionInfo(version))
}

// GetLinkHistory pages through the link's version log, oldest first.
func (h *LinkHandlers) GetLinkHistory(c *gin.Context) {
	key, ok := linkKey(c)
	if !ok {
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	page, err := h.LinkService.History(c.Request.Context(), key, c.Query("cursor"), limit)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewHistoryPage(page))
}

// linkKey parses the link key path parameter. A false return means the
// response is written.
func linkKey(c *gin.Context) (vault.HashKey, bool) {
	key, err := vault.ParseHashKey(c.Param("key"))
	if err != nil {
		ServiceError(c, err)
		return vault.HashKey{}, false
	}

	return key, true
}
