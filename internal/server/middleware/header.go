package middleware

import (
	"errors"
	"net/http"
	"strings"
)

// TokenConfig configures where a session token may be carried.
type TokenConfig struct {
	// Headers lists the header names to check, in priority order.
	Headers []string
	// RequireBearer requires the Bearer prefix on the Authorization header.
	RequireBearer bool
	// AllowedPrefixes lists accepted value prefixes, such as "Bearer ".
	AllowedPrefixes []string
}

var DefaultTokenConfig = defaultTokenConfig()

func defaultTokenConfig() *TokenConfig {
	return &TokenConfig{
		Headers:         []string{"Authorization", "X-Session-Token", "TV-Session-Token"},
		RequireBearer:   false,
		AllowedPrefixes: []string{"Bearer ", "Token "},
	}
}

// ExtractTokenFromRequest extracts a session token from the request,
// checking the configured headers and prefixes in order.
func ExtractTokenFromRequest(r *http.Request, config *TokenConfig) (string, error) {
	if config == nil {
		config = DefaultTokenConfig
	}

	var lastError error

	for _, headerName := range config.Headers {
		headerValue := r.Header.Get(headerName)
		if headerValue == "" {
			continue
		}

		if strings.ToLower(headerName) == "authorization" && config.RequireBearer {
			if !strings.HasPrefix(headerValue, "Bearer ") {
				lastError = errors.New("Authorization header must start with 'Bearer '")
				continue
			}

			token := strings.TrimPrefix(headerValue, "Bearer ")
			if token == "" {
				lastError = errors.New("session token is required")
				continue
			}

			return token, nil
		}

		var (
			token       string
			foundPrefix bool
		)

		for _, prefix := range config.AllowedPrefixes {
			if strings.HasPrefix(headerValue, prefix) {
				token = strings.TrimPrefix(headerValue, prefix)
				foundPrefix = true

				break
			}
		}

		// No recognized prefix: take the raw value.
		if !foundPrefix {
			token = headerValue
		}

		if strings.TrimSpace(token) == "" {
			lastError = errors.New("session token is required")
			continue
		}

		return strings.TrimSpace(token), nil
	}

	if lastError != nil {
		return "", lastError
	}

	return "", errors.New("session token not found in any of the supported headers")
}
