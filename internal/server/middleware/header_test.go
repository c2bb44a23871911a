package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenFromRequest(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		config    *TokenConfig
		wantToken string
		wantErr   bool
	}{
		{
			name:      "bearer authorization",
			headers:   map[string]string{"Authorization": "Bearer tv-abc123"},
			wantToken: "tv-abc123",
		},
		{
			name:      "token prefix",
			headers:   map[string]string{"Authorization": "Token tv-abc123"},
			wantToken: "tv-abc123",
		},
		{
			name:      "raw value without prefix",
			headers:   map[string]string{"Authorization": "tv-abc123"},
			wantToken: "tv-abc123",
		},
		{
			name:      "session token header",
			headers:   map[string]string{"X-Session-Token": "tv-abc123"},
			wantToken: "tv-abc123",
		},
		{
			name:      "tv session token header",
			headers:   map[string]string{"TV-Session-Token": "tv-abc123"},
			wantToken: "tv-abc123",
		},
		{
			name: "authorization wins over alternates",
			headers: map[string]string{
				"Authorization":   "Bearer tv-first",
				"X-Session-Token": "tv-second",
			},
			wantToken: "tv-first",
		},
		{
			name:      "whitespace trimmed",
			headers:   map[string]string{"X-Session-Token": "  tv-abc123  "},
			wantToken: "tv-abc123",
		},
		{
			name:    "no headers",
			headers: map[string]string{},
			wantErr: true,
		},
		{
			name:    "empty bearer value",
			headers: map[string]string{"Authorization": "Bearer "},
			wantErr: true,
		},
		{
			name:    "require bearer rejects raw value",
			headers: map[string]string{"Authorization": "tv-abc123"},
			config: &TokenConfig{
				Headers:       []string{"Authorization"},
				RequireBearer: true,
			},
			wantErr: true,
		},
		{
			name:    "require bearer accepts bearer value",
			headers: map[string]string{"Authorization": "Bearer tv-abc123"},
			config: &TokenConfig{
				Headers:       []string{"Authorization"},
				RequireBearer: true,
			},
			wantToken: "tv-abc123",
		},
		{
			name:    "custom header list ignores others",
			headers: map[string]string{"Authorization": "Bearer tv-abc123"},
			config: &TokenConfig{
				Headers: []string{"X-Session-Token"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)

			for name, value := range tt.headers {
				req.Header.Set(name, value)
			}

			token, err := ExtractTokenFromRequest(req, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
