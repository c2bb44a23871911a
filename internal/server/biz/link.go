package biz

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/vault"
)

type LinkServiceParams struct {
	fx.In

	Store vault.Store
	Audit *audit.Dispatcher
}

func NewLinkService(params LinkServiceParams) *LinkService {
	return &LinkService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
	}
}

// LinkService relates entity hubs. A link's identity ignores endpoint
// order, so ensuring (a, b) and (b, a) lands on the same record.
type LinkService struct {
	*AbstractService
}

// Ensure records a relationship between hubs of the tenant.
func (s *LinkService) Ensure(
	ctx context.Context,
	tenant vault.HashKey,
	kind string,
	endpoints ...vault.HashKey,
) (*vault.Link, bool, error) {
	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, false, err
	}

	if kind == domains.LinkKind {
		return nil, false, fmt.Errorf("%w: link kind %q is reserved", vault.ErrValidation, kind)
	}

	for _, endpoint := range endpoints {
		hub, err := s.store.GetHub(ctx, endpoint)
		if err != nil {
			return nil, false, fmt.Errorf("link endpoint %s: %w", endpoint, err)
		}

		if hub.TenantKey != tenant {
			return nil, false, fmt.Errorf("%w: endpoint %s belongs to another tenant", vault.ErrValidation, endpoint)
		}
	}

	link, created, err := s.store.EnsureLink(ctx, vault.NewLink(tenant, kind, endpoints...))
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure link: %w", err)
	}

	if created {
		s.auditMutation(ctx, tenant, link.Key, audit.RecordLink, link.CreatedAt, provenanceFrom(ctx, "api"))
	}

	return link, created, nil
}

// Get fetches a link by key.
func (s *LinkService) Get(ctx context.Context, key vault.HashKey) (*vault.Link, error) {
	link, err := s.store.GetLink(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, link.TenantKey); err != nil {
		return nil, err
	}

	return link, nil
}

// ByEndpoint lists links touching the hub, optionally narrowed by kind.
func (s *LinkService) ByEndpoint(ctx context.Context, endpoint vault.HashKey, kind string) ([]*vault.Link, error) {
	hub, err := s.store.GetHub(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, hub.TenantKey); err != nil {
		return nil, err
	}

	return s.store.LinksByEndpoint(ctx, endpoint, kind)
}

// Put appends a payload version to the link. Relationship attributes
// version the same way entity payloads do.
func (s *LinkService) Put(ctx context.Context, key vault.HashKey, payload json.RawMessage) (*vault.PutResult, error) {
	link, err := s.writableLink(ctx, key)
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

	metrics.RecordPut(ctx, link.Kind, result.Created)

	if result.Created {
		s.auditMutation(ctx, link.TenantKey, key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)
	}

	return result, nil
}

// Current returns the link's open payload version.
func (s *LinkService) Current(ctx context.Context, key vault.HashKey) (*vault.Version, error) {
	if _, err := s.Get(ctx, key); err != nil {
		return nil, err
	}

	return s.store.Current(ctx, key)
}

// History pages through the link's version log, newest first.
func (s *LinkService) History(ctx context.Context, key vault.HashKey, cursor string, limit int) (*vault.HistoryPage, error) {
	if _, err := s.Get(ctx, key); err != nil {
		return nil, err
	}

	return s.store.History(ctx, key, cursor, limit)
}

// writableLink rejects writes to links whose payloads are managed
// elsewhere.
func (s *LinkService) writableLink(ctx context.Context, key vault.HashKey) (*vault.Link, error) {
	link, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if link.Kind == domains.LinkKind {
		return nil, fmt.Errorf("%w: link kind %q does not accept direct writes", vault.ErrValidation, link.Kind)
	}

	return link, nil
}
