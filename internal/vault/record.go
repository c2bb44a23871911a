package vault

import (
	"bytes"
	"slices"
	"time"
)

// Well-known hub kinds. Entity kinds are otherwise free-form strings
// chosen by callers.
const (
	KindTenant  = "tenant"
	KindActor   = "actor"
	KindSession = "session"
)

// NewTenantHub builds the self-scoped hub for a tenant slug.
func NewTenantHub(slug string) Hub {
	key := ResolveTenant(slug)

	return Hub{
		Key:         key,
		TenantKey:   key,
		Kind:        KindTenant,
		BusinessKey: slug,
	}
}

// NewHub builds a hub for a business entity inside a tenant.
func NewHub(tenant HashKey, kind string, businessKey string) Hub {
	return Hub{
		Key:         Resolve(tenant, kind, businessKey),
		TenantKey:   tenant,
		Kind:        kind,
		BusinessKey: businessKey,
	}
}

// NewLink builds a link between hubs. Endpoints are stored sorted so the
// record matches its derived key regardless of argument order.
func NewLink(tenant HashKey, kind string, endpoints ...HashKey) Link {
	sorted := slices.Clone(endpoints)
	slices.SortFunc(sorted, func(a, b HashKey) int {
		return bytes.Compare(a[:], b[:])
	})

	return Link{
		Key:       ResolveLink(tenant, kind, endpoints...),
		TenantKey: tenant,
		Kind:      kind,
		Endpoints: sorted,
	}
}

// Hub is the immutable identity record of a business entity. A hub never
// changes after creation; everything that varies about the entity lives
// in its versions.
type Hub struct {
	Key HashKey `json:"key"`

	// TenantKey scopes the hub. A tenant hub references itself.
	TenantKey HashKey `json:"tenant_key"`

	Kind        string    `json:"kind"`
	BusinessKey string    `json:"business_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a copy safe to hand to callers.
func (h *Hub) Clone() *Hub {
	if h == nil {
		return nil
	}

	clone := *h

	return &clone
}

// Link is the immutable record of a relationship between hubs. Like hubs,
// links carry no mutable state; qualifying attributes go into versions
// appended under the link key.
type Link struct {
	Key       HashKey   `json:"key"`
	TenantKey HashKey   `json:"tenant_key"`
	Kind      string    `json:"kind"`
	Endpoints []HashKey `json:"endpoints"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy safe to hand to callers.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}

	clone := *l
	clone.Endpoints = slices.Clone(l.Endpoints)

	return &clone
}

// HasEndpoint reports whether the link touches the given hub.
func (l *Link) HasEndpoint(key HashKey) bool {
	return slices.Contains(l.Endpoints, key)
}

// Provenance records who caused a version to be written and through
// which surface.
type Provenance struct {
	ActorKey      HashKey `json:"actor_key,omitempty"`
	SessionDigest string  `json:"session_digest,omitempty"`
	Source        string  `json:"source,omitempty"`
	RequestID     string  `json:"request_id,omitempty"`
}

// Version is one time-bounded state of a hub or link. Versions form an
// append-only log per key: the open version (nil EffectiveTo) is the
// current one, and at most one version is open at any instant.
type Version struct {
	Key HashKey `json:"key"`

	Payload     []byte `json:"payload"`
	Fingerprint uint64 `json:"fingerprint"`

	// EffectiveFrom..EffectiveTo is the half-open validity window.
	// A nil EffectiveTo means the version is still current.
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	// RecordedAt is the system time the version was appended, which can
	// differ from EffectiveFrom when the clock guard nudged the window.
	RecordedAt time.Time `json:"recorded_at"`

	Provenance Provenance `json:"provenance"`
}

// Current reports whether the version's validity window is still open.
func (v *Version) Current() bool {
	return v.EffectiveTo == nil
}

// EffectiveAt reports whether the version was valid at the given instant.
func (v *Version) EffectiveAt(t time.Time) bool {
	if t.Before(v.EffectiveFrom) {
		return false
	}

	return v.EffectiveTo == nil || t.Before(*v.EffectiveTo)
}

// Clone returns a copy safe to hand to callers.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}

	clone := *v
	clone.Payload = slices.Clone(v.Payload)

	if v.EffectiveTo != nil {
		to := *v.EffectiveTo
		clone.EffectiveTo = &to
	}

	return &clone
}

// PutResult reports the outcome of a version append. Created is false
// when the payload fingerprint matched the current version and the store
// left the log untouched.
type PutResult struct {
	Version *Version `json:"version"`
	Created bool     `json:"created"`
}

// HistoryPage is one page of a version log, oldest first. NextCursor is
// empty when the log is exhausted.
type HistoryPage struct {
	Versions   []*Version `json:"versions"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
