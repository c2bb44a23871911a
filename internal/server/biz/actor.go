package biz

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/vault"
)

// Actor pairs an actor hub with its current profile. The profile still
// carries the credential hash; call Info before handing it outward.
type Actor struct {
	Hub     *vault.Hub
	Profile objects.ActorProfile
}

func (a *Actor) Info() objects.ActorInfo {
	return objects.NewActorInfo(a.Hub, a.Profile.Redacted())
}

type ActorServiceParams struct {
	fx.In

	Store vault.Store
	Audit *audit.Dispatcher
}

func NewActorService(params ActorServiceParams) *ActorService {
	return &ActorService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
	}
}

type ActorService struct {
	*AbstractService
}

type RegisterActorParams struct {
	Email       string
	Password    string
	DisplayName string
	Roles       []string
}

func (p *RegisterActorParams) validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", vault.ErrValidation)
	}

	if p.Password == "" {
		return fmt.Errorf("%w: password is required", vault.ErrValidation)
	}

	return nil
}

// Register creates an actor hub keyed by email and appends the credential
// satellite. Registering an email that already has a credential is a
// conflict.
func (s *ActorService) Register(ctx context.Context, tenant vault.HashKey, params *RegisterActorParams) (*Actor, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	if err := authz.RequireTenant(ctx, tenant); err != nil {
		return nil, err
	}

	hub := vault.NewHub(tenant, vault.KindActor, params.Email)

	ensured, created, err := s.store.EnsureHub(ctx, hub)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure actor hub: %w", err)
	}

	if !created {
		if _, err := s.store.Current(ctx, ensured.Key); err == nil {
			return nil, fmt.Errorf("%w: actor %s already registered", vault.ErrConflict, params.Email)
		} else if !vault.IsNotFound(err) {
			return nil, err
		}
	}

	hashedPassword, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	profile := objects.ActorProfile{
		DisplayName:  params.DisplayName,
		Email:        params.Email,
		Roles:        params.Roles,
		PasswordHash: hashedPassword,
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor profile: %w", err)
	}

	prov := provenanceFrom(ctx, "api")

	result, err := s.store.Put(ctx, ensured.Key, payload, prov)
	if err != nil {
		return nil, fmt.Errorf("failed to write actor profile: %w", err)
	}

	if created {
		s.auditMutation(ctx, tenant, ensured.Key, audit.RecordHub, ensured.CreatedAt, prov)
	}

	s.auditMutation(ctx, tenant, ensured.Key, audit.RecordSatellite, result.Version.EffectiveFrom, prov)

	log.Debug(ctx, "actor registered", log.String("actor_key", ensured.Key.String()))

	return &Actor{Hub: ensured, Profile: profile}, nil
}

// Get fetches an actor by hub key.
func (s *ActorService) Get(ctx context.Context, key vault.HashKey) (*Actor, error) {
	hub, err := s.store.GetHub(ctx, key)
	if err != nil {
		return nil, err
	}

	if hub.Kind != vault.KindActor {
		return nil, fmt.Errorf("%w: hub %s is not an actor", vault.ErrNotFound, key)
	}

	if err := authz.RequireTenant(ctx, hub.TenantKey); err != nil {
		return nil, err
	}

	profile, err := s.currentProfile(ctx, hub.Key)
	if err != nil {
		return nil, err
	}

	return &Actor{Hub: hub, Profile: profile}, nil
}

// GetByEmail fetches an actor through its derived key.
func (s *ActorService) GetByEmail(ctx context.Context, tenant vault.HashKey, email string) (*Actor, error) {
	return s.Get(ctx, vault.Resolve(tenant, vault.KindActor, email))
}

func (s *ActorService) currentProfile(ctx context.Context, key vault.HashKey) (objects.ActorProfile, error) {
	version, err := s.store.Current(ctx, key)
	if err != nil {
		return objects.ActorProfile{}, err
	}

	var profile objects.ActorProfile
	if err := json.Unmarshal(version.Payload, &profile); err != nil {
		return objects.ActorProfile{}, fmt.Errorf("malformed actor profile: %w", err)
	}

	return profile, nil
}
