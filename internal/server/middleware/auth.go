package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/contexts"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/server/biz"
)

const (
	deviceTrustHeader = "TV-Device-Trust"
	networkRiskHeader = "TV-Network-Risk"
)

// WithSessionAuth validates the bearer session token and installs the
// session principal into the request context. Sessions in a terminal
// state and unknown tokens are rejected with the stable reason code.
func WithSessionAuth(sessions *biz.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractTokenFromRequest(c.Request, nil)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		session, _, reason, err := sessions.Validate(c.Request.Context(), token, SignalsFromRequest(c))
		if err != nil {
			AbortWithError(c, statusForError(err), err)
			return
		}

		if reason != access.ReasonNone {
			AbortWithReason(c, http.StatusUnauthorized, reason)
			return
		}

		ctx := authz.NewSessionContext(c.Request.Context(), session.TenantKey, session.ActorKey, session.TokenDigest)
		ctx = contexts.WithSession(ctx, session)

		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// SignalsFromRequest reads the transport risk signals from the request
// headers. An absent or unparsable header leaves the signal nil, which
// the risk engine treats as worst case.
func SignalsFromRequest(c *gin.Context) risk.Signals {
	var signals risk.Signals

	if value := c.GetHeader(deviceTrustHeader); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			signals.DeviceTrust = &parsed
		}
	}

	if value := c.GetHeader(networkRiskHeader); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			signals.NetworkRisk = &parsed
		}
	}

	return signals
}

// WithSource marks the surface the request entered through.
func WithSource(source contexts.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := contexts.WithSource(c.Request.Context(), source)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
