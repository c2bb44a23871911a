package objects

import (
	"time"

	"github.com/keeldata/trustvault/internal/vault"
)

type SessionInfo struct {
	Digest       string    `json:"digest"`
	HubKey       string    `json:"hubKey"`
	TenantKey    string    `json:"tenantKey"`
	ActorKey     string    `json:"actorKey"`
	State        string    `json:"state"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastScore    int       `json:"lastScore"`
	RequestCount int64     `json:"requestCount"`
	BytesMoved   int64     `json:"bytesMoved"`
	MaxRequests  int64     `json:"maxRequests"`
	MaxBytes     int64     `json:"maxBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IssuedSession carries the opaque token exactly once, at issue time.
// Only the digest is ever stored or returned afterwards.
type IssuedSession struct {
	Token   string      `json:"token"`
	Session SessionInfo `json:"session"`
}

// StepUpGrant is a short-lived proof of re-authentication bound to one
// session.
type StepUpGrant struct {
	Grant     string    `json:"grant"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewSessionInfo(s *vault.Session) SessionInfo {
	return SessionInfo{
		Digest:       s.TokenDigest,
		HubKey:       s.HubKey.String(),
		TenantKey:    s.TenantKey.String(),
		ActorKey:     s.ActorKey.String(),
		State:        string(s.State),
		IssuedAt:     s.IssuedAt,
		ExpiresAt:    s.ExpiresAt,
		LastScore:    s.LastScore,
		RequestCount: s.RequestCount,
		BytesMoved:   s.BytesMoved,
		MaxRequests:  s.MaxRequests,
		MaxBytes:     s.MaxBytes,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
