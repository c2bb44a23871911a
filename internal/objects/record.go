package objects

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keeldata/trustvault/internal/vault"
)

type TenantInfo struct {
	Key       string    `json:"key"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

type HubInfo struct {
	Key         string    `json:"key"`
	TenantKey   string    `json:"tenantKey"`
	Kind        string    `json:"kind"`
	BusinessKey string    `json:"businessKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LinkInfo struct {
	Key       string    `json:"key"`
	TenantKey string    `json:"tenantKey"`
	Kind      string    `json:"kind"`
	Endpoints []string  `json:"endpoints"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProvenanceInfo struct {
	ActorKey      string `json:"actorKey,omitempty"`
	SessionDigest string `json:"sessionDigest,omitempty"`
	Source        string `json:"source,omitempty"`
	RequestID     string `json:"requestID,omitempty"`
}

type VersionInfo struct {
	Key           string          `json:"key"`
	Payload       json.RawMessage `json:"payload"`
	Fingerprint   string          `json:"fingerprint"`
	EffectiveFrom time.Time       `json:"effectiveFrom"`
	EffectiveTo   *time.Time      `json:"effectiveTo,omitempty"`
	RecordedAt    time.Time       `json:"recordedAt"`
	Provenance    ProvenanceInfo  `json:"provenance"`
}

type HistoryPage struct {
	Versions   []VersionInfo `json:"versions"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type PutResult struct {
	Version VersionInfo `json:"version"`
	Created bool        `json:"created"`
}

// FormatFingerprint renders a payload fingerprint as fixed-width hex.
// JSON numbers cannot carry a full uint64.
func FormatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

func NewTenantInfo(hub *vault.Hub) TenantInfo {
	return TenantInfo{
		Key:       hub.Key.String(),
		Slug:      hub.BusinessKey,
		CreatedAt: hub.CreatedAt,
	}
}

func NewHubInfo(hub *vault.Hub) HubInfo {
	return HubInfo{
		Key:         hub.Key.String(),
		TenantKey:   hub.TenantKey.String(),
		Kind:        hub.Kind,
		BusinessKey: hub.BusinessKey,
		CreatedAt:   hub.CreatedAt,
	}
}

func NewLinkInfo(link *vault.Link) LinkInfo {
	endpoints := make([]string, 0, len(link.Endpoints))
	for _, ep := range link.Endpoints {
		endpoints = append(endpoints, ep.String())
	}

	return LinkInfo{
		Key:       link.Key.String(),
		TenantKey: link.TenantKey.String(),
		Kind:      link.Kind,
		Endpoints: endpoints,
		CreatedAt: link.CreatedAt,
	}
}

func NewProvenanceInfo(p vault.Provenance) ProvenanceInfo {
	info := ProvenanceInfo{
		SessionDigest: p.SessionDigest,
		Source:        p.Source,
		RequestID:     p.RequestID,
	}
	if !p.ActorKey.IsZero() {
		info.ActorKey = p.ActorKey.String()
	}

	return info
}

func NewVersionInfo(v *vault.Version) VersionInfo {
	info := VersionInfo{
		Key:           v.Key.String(),
		Payload:       json.RawMessage(v.Payload),
		Fingerprint:   FormatFingerprint(v.Fingerprint),
		EffectiveFrom: v.EffectiveFrom,
		RecordedAt:    v.RecordedAt,
		Provenance:    NewProvenanceInfo(v.Provenance),
	}
	if v.EffectiveTo != nil {
		to := *v.EffectiveTo
		info.EffectiveTo = &to
	}

	return info
}

func NewHistoryPage(page *vault.HistoryPage) HistoryPage {
	out := HistoryPage{
		Versions:   make([]VersionInfo, 0, len(page.Versions)),
		NextCursor: page.NextCursor,
	}
	for _, v := range page.Versions {
		out.Versions = append(out.Versions, NewVersionInfo(v))
	}

	return out
}
