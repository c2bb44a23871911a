package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/xcache"
	"github.com/keeldata/trustvault/internal/vault"
)

// reservedKinds are hub kinds with managed payload schemas. The generic
// record surface must not write through them.
var reservedKinds = map[string]bool{
	vault.KindTenant:  true,
	vault.KindActor:   true,
	vault.KindSession: true,
	KindSystem:        true,
}

type EntityServiceParams struct {
	fx.In

	Store vault.Store
	Audit *audit.Dispatcher
	Hubs  xcache.Cache[vault.Hub]
}

func NewEntityService(params EntityServiceParams) *EntityService {
	hubs := params.Hubs
	if hubs == nil {
		hubs = xcache.NewNoop[vault.Hub]()
	}

	return &EntityService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
		hubs: hubs,
	}
}

// EntityService is the generic record surface: business hubs and their
// bitemporal version logs.
type EntityService struct {
	*AbstractService

	hubs xcache.Cache[vault.Hub]
}

// EnsureTenant registers a tenant hub. Idempotent per slug.
func (s *EntityService) EnsureTenant(ctx context.Context, slug string) (*vault.Hub, bool, error) {
	if err := authz.RequirePrincipal(ctx); err != nil {
		return nil, false, err
	}

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, false, fmt.Errorf("%w: tenant slug required", vault.ErrValidation)
	}

	if strings.EqualFold(slug, systemTenantSlug) {
		return nil, false, fmt.Errorf("%w: tenant slug %q is reserved", vault.ErrValidation, slug)
	}

	hub, created, err := s.store.EnsureHub(ctx, vault.NewTenantHub(slug))
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure tenant: %w", err)
	}

	if created {
		s.auditMutation(ctx, hub.Key, hub.Key, audit.RecordHub, hub.CreatedAt, provenanceFrom(ctx, "api"))
		log.Info(ctx, "tenant registered", log.String("slug", slug))
	}

	return hub, created, nil
}

// GetTenant resolves a tenant hub by slug.
func (s *EntityService) GetTenant(ctx context.Context, slug string) (*vault.Hub, error) {
	hub, err := s.store.GetHub(ctx, vault.ResolveTenant(slug))
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, hub.Key); err != nil {
		return nil, err
	}

	return hub, nil
}

// Ensure registers an entity hub under the tenant. Idempotent: the
// returned flag reports whether this call created it.
func (s *EntityService) Ensure(
	ctx context.Context,
	tenant vault.HashKey,
	kind, businessKey string,
) (*vault.Hub, bool, error) {
	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, false, err
	}

	if reservedKinds[kind] {
		return nil, false, fmt.Errorf("%w: kind %q is reserved", vault.ErrValidation, kind)
	}

	hub, created, err := s.store.EnsureHub(ctx, vault.NewHub(tenant, kind, businessKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure entity: %w", err)
	}

	if created {
		s.auditMutation(ctx, tenant, hub.Key, audit.RecordHub, hub.CreatedAt, provenanceFrom(ctx, "api"))
	}

	return hub, created, nil
}

// Get fetches an entity hub by key.
func (s *EntityService) Get(ctx context.Context, key vault.HashKey) (*vault.Hub, error) {
	hub, err := s.hubByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, hub.TenantKey); err != nil {
		return nil, err
	}

	return hub, nil
}

// hubByKey serves hub lookups through the cache. Hubs are immutable once
// created, so a cached row can never go stale; only hits are cached, a
// missing hub may be created a moment later.
func (s *EntityService) hubByKey(ctx context.Context, key vault.HashKey) (*vault.Hub, error) {
	cacheKey := "hub:" + key.String()

	if cached, err := s.hubs.Get(ctx, cacheKey); err == nil {
		return &cached, nil
	}

	hub, err := s.store.GetHub(ctx, key)
	if err != nil {
		return nil, err
	}

	_ = s.hubs.Set(ctx, cacheKey, *hub)

	return hub, nil
}

// Put appends a full payload version to the entity. Identical payloads
// are absorbed: the open version is returned unchanged.
func (s *EntityService) Put(ctx context.Context, key vault.HashKey, payload json.RawMessage) (*vault.PutResult, error) {
	hub, err := s.writableHub(ctx, key)
	if err != nil {
		return nil, err
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload must be a JSON document", vault.ErrValidation)
	}

	prov := provenanceFrom(ctx, "api")

	result, err := s.store.Put(ctx, key, payload, prov)
	if err != nil {
		return nil, err
	}

	metrics.RecordPut(ctx, hub.Kind, result.Created)

	if result.Created {
		s.auditMutation(ctx, hub.TenantKey, key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)
	}

	return result, nil
}

// Patch shallow-merges the given fields over the current payload and
// appends the result. Top-level nulls delete the field. A patch against
// an entity with no versions is rejected; there is nothing to merge
// into.
func (s *EntityService) Patch(ctx context.Context, key vault.HashKey, patch json.RawMessage) (*vault.PutResult, error) {
	hub, err := s.writableHub(ctx, key)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(patch)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: patch must be a JSON object", vault.ErrValidation)
	}

	current, err := s.store.Current(ctx, key)
	if err != nil {
		if vault.IsNotFound(err) {
			return nil, fmt.Errorf("%w: entity %s has no payload to patch", vault.ErrValidation, key)
		}

		return nil, err
	}

	merged := append([]byte(nil), current.Payload...)

	var mergeErr error

	parsed.ForEach(func(field, value gjson.Result) bool {
		path := escapePatchField(field.String())

		if value.Type == gjson.Null {
			merged, mergeErr = sjson.DeleteBytes(merged, path)
		} else {
			merged, mergeErr = sjson.SetRawBytes(merged, path, []byte(value.Raw))
		}

		return mergeErr == nil
	})

	if mergeErr != nil {
		return nil, fmt.Errorf("%w: failed to apply patch: %v", vault.ErrValidation, mergeErr)
	}

	prov := provenanceFrom(ctx, "api")

	result, err := s.store.Put(ctx, key, merged, prov)
	if err != nil {
		return nil, err
	}

	metrics.RecordPut(ctx, hub.Kind, result.Created)

	if result.Created {
		s.auditMutation(ctx, hub.TenantKey, key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)
	}

	return result, nil
}

// Current returns the open version of the entity.
func (s *EntityService) Current(ctx context.Context, key vault.HashKey) (*vault.Version, error) {
	if _, err := s.Get(ctx, key); err != nil {
		return nil, err
	}

	return s.store.Current(ctx, key)
}

// AsOf returns the version effective at the given instant.
func (s *EntityService) AsOf(ctx context.Context, key vault.HashKey, at time.Time) (*vault.Version, error) {
	if _, err := s.Get(ctx, key); err != nil {
		return nil, err
	}

	return s.store.AsOf(ctx, key, at)
}

// History pages through the version log, oldest first.
func (s *EntityService) History(ctx context.Context, key vault.HashKey, cursor string, limit int) (*vault.HistoryPage, error) {
	if _, err := s.Get(ctx, key); err != nil {
		return nil, err
	}

	return s.store.History(ctx, key, cursor, limit)
}

// writableHub resolves the hub and rejects writes through kinds whose
// payloads are managed elsewhere. Domain hubs never carry satellites.
func (s *EntityService) writableHub(ctx context.Context, key vault.HashKey) (*vault.Hub, error) {
	hub, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if reservedKinds[hub.Kind] || hub.Kind == domains.KindDomain {
		return nil, fmt.Errorf("%w: hub kind %q does not accept direct writes", vault.ErrValidation, hub.Kind)
	}

	return hub, nil
}

// escapePatchField neutralizes path metacharacters so a field name is
// addressed literally.
func escapePatchField(field string) string {
	return patchFieldEscaper.Replace(field)
}

var patchFieldEscaper = strings.NewReplacer(
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"|", `\|`,
	"#", `\#`,
	"@", `\@`,
)
