package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type AssignmentHandlersParams struct {
	fx.In

	AssignmentService *biz.AssignmentService
}

func NewAssignmentHandlers(params AssignmentHandlersParams) *AssignmentHandlers {
	return &AssignmentHandlers{
		AssignmentService: params.AssignmentService,
	}
}

type AssignmentHandlers struct {
	AssignmentService *biz.AssignmentService
}

// GrantAssignmentRequest binds an actor to a knowledge domain. Granting
// replaces the actor's previous assignment; an actor holds at most one
// live domain.
type GrantAssignmentRequest struct {
	ActorKey          string   `json:"actorKey" binding:"required"`
	Domain            string   `json:"domain"   binding:"required"`
	AllowedCategories []string `json:"allowedCategories"`
	DeniedCategories  []string `json:"deniedCategories"`
	GrantedBy         string   `json:"grantedBy"`
}

// GrantAssignment assigns the actor to a domain within the caller's tenant.
func (h *AssignmentHandlers) GrantAssignment(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req GrantAssignmentRequest
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

	actorKey, err := vault.ParseHashKey(req.ActorKey)
	if err != nil {
		ServiceError(c, err)
		return
	}

	assignment, err := h.AssignmentService.Grant(ctx, tenant, actorKey, domains.Assignment{
		Domain:            req.Domain,
		AllowedCategories: req.AllowedCategories,
		DeniedCategories:  req.DeniedCategories,
		GrantedBy:         req.GrantedBy,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}

// GetAssignment returns the actor's live domain assignment.
func (h *AssignmentHandlers) GetAssignment(c *gin.Context) {
	ctx := c.Request.Context()

	tenant, ok := callerTenant(ctx)
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return
	}

	actorKey, err := vault.ParseHashKey(c.Param("actorKey"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	assignment, err := h.AssignmentService.Get(ctx, tenant, actorKey)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}

// RevokeAssignment revokes the actor's live assignment. The revocation is
// a new version, not a deletion, so history keeps the grant.
func (h *AssignmentHandlers) RevokeAssignment(c *gin.Context) {
	ctx := c.Request.Context()

	tenant, ok := callerTenant(ctx)
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return
	}

	actorKey, err := vault.ParseHashKey(c.Param("actorKey"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	assignment, err := h.AssignmentService.Revoke(ctx, tenant, actorKey)
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}
