package objects

import (
	"time"

	"github.com/keeldata/trustvault/internal/vault"
)

// ActorProfile is the payload schema of an actor hub's version log.
// PasswordHash is hex-encoded bcrypt and must never leave the biz layer.
type ActorProfile struct {
	DisplayName  string   `json:"displayName"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles,omitempty"`
	PasswordHash string   `json:"passwordHash,omitempty"`
}

// Redacted returns a copy safe for serialization to clients.
func (p ActorProfile) Redacted() ActorProfile {
	p.PasswordHash = ""
	return p
}

type ActorInfo struct {
	Key         string    `json:"key"`
	TenantKey   string    `json:"tenantKey"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewActorInfo(hub *vault.Hub, profile ActorProfile) ActorInfo {
	return ActorInfo{
		Key:         hub.Key.String(),
		TenantKey:   hub.TenantKey.String(),
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Roles:       profile.Roles,
		CreatedAt:   hub.CreatedAt,
	}
}

type AuthResult struct {
	Token string    `json:"token"`
	Actor ActorInfo `json:"actor"`
}

type SystemStatus struct {
	Initialized bool   `json:"initialized"`
	Version     string `json:"version"`
}
