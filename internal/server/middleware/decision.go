package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/server/biz"
)

const (
	domainHeader      = "TV-Domain"
	categoriesHeader  = "TV-Categories"
	stepUpGrantHeader = "TV-Step-Up-Grant"
)

// WithDecision runs the access decision procedure before the handler.
// The caller declares the resource domain and optional categories in
// headers; the request body is scanned for restricted content. Denials
// return 403 with the stable reason code. Served requests are charged
// against the session allowances afterwards.
func WithDecision(accessService *biz.AccessService, sessions *biz.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := strings.TrimSpace(c.GetHeader(domainHeader))
		if domain == "" {
			AbortWithError(c, http.StatusBadRequest, errors.New("TV-Domain header is required"))
			return
		}

		token, err := ExtractTokenFromRequest(c.Request, nil)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		payload, err := readBody(c)
		if err != nil {
			AbortWithError(c, http.StatusBadRequest, err)
			return
		}

		decision, err := accessService.Authorize(c.Request.Context(), &biz.AccessRequest{
			Token:       token,
			Domain:      domain,
			Action:      actionForMethod(c.Request.Method),
			Categories:  splitCategories(c.GetHeader(categoriesHeader)),
			Payload:     payload,
			StepUpGrant: c.GetHeader(stepUpGrantHeader),
			Signals:     SignalsFromRequest(c),
		})
		if err != nil {
			AbortWithError(c, statusForError(err), err)
			return
		}

		if !decision.Allowed {
			AbortWithReason(c, http.StatusForbidden, decision.Reason)
			return
		}

		c.Next()

		// Charge the served request. Accounting failures never undo a
		// response that already went out.
		served := int64(len(payload))
		if size := c.Writer.Size(); size > 0 {
			served += int64(size)
		}

		if _, err := sessions.RecordUsage(c.Request.Context(), token, served); err != nil {
			log.Warn(c.Request.Context(), "failed to record session usage", log.Cause(err))
		}
	}
}

// actionForMethod classifies the HTTP method into an operation class.
func actionForMethod(method string) access.Action {
	switch method {
	case http.MethodGet, http.MethodHead:
		return access.ActionRead
	case http.MethodDelete:
		return access.ActionAdmin
	default:
		return access.ActionWrite
	}
}

func splitCategories(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	var categories []string

	for _, category := range strings.Split(header, ",") {
		category = strings.TrimSpace(category)
		if category != "" {
			categories = append(categories, category)
		}
	}

	return categories
}

// readBody drains the request body and restores it for the handler.
func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
