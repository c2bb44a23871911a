package biz

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

type AssignmentServiceParams struct {
	fx.In

	Store vault.Store
	Audit *audit.Dispatcher
}

func NewAssignmentService(params AssignmentServiceParams) *AssignmentService {
	return &AssignmentService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
	}
}

// AssignmentService manages domain assignments: the link between an actor
// hub and a domain hub, qualified by assignment satellites. An actor holds
// at most one live assignment; granting a new domain revokes the old one.
type AssignmentService struct {
	*AbstractService
}

// Grant assigns the actor to a domain. The domain hub and the assignment
// link are created on demand; any other live assignment is revoked first.
func (s *AssignmentService) Grant(
	ctx context.Context,
	tenant, actorKey vault.HashKey,
	assignment domains.Assignment,
) (*domains.Assignment, error) {
	if assignment.Status == "" {
		assignment.Status = domains.StatusGranted
	}

	if assignment.GrantedAt.IsZero() {
		assignment.GrantedAt = xtime.Now()
	}

	if err := assignment.Validate(); err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, err
	}

	if _, err := s.store.GetHub(ctx, actorKey); err != nil {
		return nil, fmt.Errorf("assignment actor: %w", err)
	}

	current, currentLink, err := s.liveAssignment(ctx, actorKey)
	if err != nil {
		return nil, err
	}

	prov := provenanceFrom(ctx, "api")

	// One live domain per actor: replace, never accumulate.
	if current != nil && current.Domain != assignment.Domain {
		if err := s.revokeOn(ctx, tenant, currentLink, *current, prov); err != nil {
			return nil, err
		}
	}

	domainHub := vault.NewHub(tenant, domains.KindDomain, assignment.Domain)

	ensuredDomain, createdDomain, err := s.store.EnsureHub(ctx, domainHub)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure domain hub: %w", err)
	}

	if createdDomain {
		s.auditMutation(ctx, tenant, ensuredDomain.Key, audit.RecordHub, ensuredDomain.CreatedAt, prov)
	}

	link := vault.NewLink(tenant, domains.LinkKind, actorKey, ensuredDomain.Key)

	ensuredLink, createdLink, err := s.store.EnsureLink(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure assignment link: %w", err)
	}

	if createdLink {
		s.auditMutation(ctx, tenant, ensuredLink.Key, audit.RecordLink, ensuredLink.CreatedAt, prov)
	}

	payload, err := assignment.Encode()
	if err != nil {
		return nil, err
	}

	result, err := s.store.Put(ctx, ensuredLink.Key, payload, prov)
	if err != nil {
		return nil, fmt.Errorf("failed to write assignment: %w", err)
	}

	s.auditMutation(ctx, tenant, ensuredLink.Key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)

	log.Info(ctx, "domain assignment granted",
		log.String("actor_key", actorKey.String()),
		log.String("domain", assignment.Domain))

	return &assignment, nil
}

// Revoke ends the actor's live assignment. Revoking an actor with no live
// assignment is not found.
func (s *AssignmentService) Revoke(ctx context.Context, tenant, actorKey vault.HashKey) (*domains.Assignment, error) {
	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, err
	}

	current, link, err := s.liveAssignment(ctx, actorKey)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, fmt.Errorf("%w: actor %s has no live assignment", vault.ErrNotFound, actorKey)
	}

	prov := provenanceFrom(ctx, "api")
	if err := s.revokeOn(ctx, tenant, link, *current, prov); err != nil {
		return nil, err
	}

	revoked := *current
	revoked.Status = domains.StatusRevoked

	log.Info(ctx, "domain assignment revoked",
		log.String("actor_key", actorKey.String()),
		log.String("domain", current.Domain))

	return &revoked, nil
}

// Get returns the actor's live assignment, or not found.
func (s *AssignmentService) Get(ctx context.Context, tenant, actorKey vault.HashKey) (*domains.Assignment, error) {
	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, err
	}

	assignment, _, err := s.liveAssignment(ctx, actorKey)
	if err != nil {
		return nil, err
	}

	if assignment == nil {
		return nil, fmt.Errorf("%w: actor %s has no live assignment", vault.ErrNotFound, actorKey)
	}

	return assignment, nil
}

// Live returns the actor's live assignment, or nil when there is none.
// The gate treats nil as a denial; absence is not an error here.
func (s *AssignmentService) Live(ctx context.Context, actorKey vault.HashKey) (*domains.Assignment, error) {
	assignment, _, err := s.liveAssignment(ctx, actorKey)

	return assignment, err
}

func (s *AssignmentService) liveAssignment(
	ctx context.Context,
	actorKey vault.HashKey,
) (*domains.Assignment, *vault.Link, error) {
	links, err := s.store.LinksByEndpoint(ctx, actorKey, domains.LinkKind)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list assignment links: %w", err)
	}

	for _, link := range links {
		version, err := s.store.Current(ctx, link.Key)
		if err != nil {
			if vault.IsNotFound(err) {
				continue
			}

			return nil, nil, err
		}

		assignment, err := domains.ParseAssignment(version.Payload)
		if err != nil {
			return nil, nil, err
		}

		if assignment.Live() {
			return &assignment, link, nil
		}
	}

	return nil, nil, nil
}

func (s *AssignmentService) revokeOn(
	ctx context.Context,
	tenant vault.HashKey,
	link *vault.Link,
	assignment domains.Assignment,
	prov vault.Provenance,
) error {
	assignment.Status = domains.StatusRevoked

	payload, err := assignment.Encode()
	if err != nil {
		return err
	}

	result, err := s.store.Put(ctx, link.Key, payload, prov)
	if err != nil {
		return fmt.Errorf("failed to revoke assignment: %w", err)
	}

	s.auditMutation(ctx, tenant, link.Key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)

	return nil
}
