package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/contexts"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/server/biz"
	"github.com/keeldata/trustvault/internal/vault"
)

type SessionHandlersParams struct {
	fx.In

	SessionService *biz.SessionService
}

func NewSessionHandlers(params SessionHandlersParams) *SessionHandlers {
	return &SessionHandlers{
		SessionService: params.SessionService,
	}
}

type SessionHandlers struct {
	SessionService *biz.SessionService
}

// GetSession introspects one session by token digest.
func (h *SessionHandlers) GetSession(c *gin.Context) {
	session, err := h.SessionService.Get(c.Request.Context(), c.Param("digest"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewSessionInfo(session))
}

// ListSessions lists sessions of the caller's tenant, optionally filtered
// by actor and state.
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	caller, ok := contexts.GetSession(ctx)
	if !ok {
		JSONError(c, http.StatusUnauthorized, errors.New("no session in context"))
		return
	}

	filter := vault.SessionFilter{TenantKey: caller.TenantKey}

	if actor := c.Query("actor"); actor != "" {
		key, err := vault.ParseHashKey(actor)
		if err != nil {
			ServiceError(c, err)
			return
		}

		filter.ActorKey = key
	}

	if states := c.Query("state"); states != "" {
		for _, state := range strings.Split(states, ",") {
			state = strings.TrimSpace(state)
			if state != "" {
				filter.States = append(filter.States, vault.SessionState(state))
			}
		}
	}

	if limit := c.Query("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			JSONError(c, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}

		filter.Limit = parsed
	}

	sessions, err := h.SessionService.List(ctx, filter)
	if err != nil {
		ServiceError(c, err)
		return
	}

	infos := make([]objects.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, objects.NewSessionInfo(session))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": infos})
}

// RevokeSession force-closes one session by token digest.
func (h *SessionHandlers) RevokeSession(c *gin.Context) {
	session, err := h.SessionService.RevokeByDigest(c.Request.Context(), c.Param("digest"))
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.NewSessionInfo(session))
}
