package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/build"
	"github.com/keeldata/trustvault/internal/domains"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/objects"
	"github.com/keeldata/trustvault/internal/pkg/xcache/live"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

const (
	// SystemKeyInitialized is the key holding the initialized flag.
	SystemKeyInitialized = "system_initialized"

	// SystemKeyVersion is the key holding the build version the vault
	// was initialized or last upgraded with.
	SystemKeyVersion = "system_version"

	// SystemKeySecretKey is the key holding the token signing secret.
	//
	//nolint:gosec // Key name, not a secret.
	SystemKeySecretKey = "system_signing_secret"

	// SystemKeyRootTenant is the key holding the root tenant slug.
	SystemKeyRootTenant = "system_root_tenant"

	// SystemKeyDefaultDomain is the key holding the domain the owner is
	// assigned to at bootstrap.
	SystemKeyDefaultDomain = "system_default_domain"
)

// systemTenantSlug scopes the bootstrap records. The reserved tenant
// only ever holds system values; business tenants get their own hubs.
const systemTenantSlug = "trustvault.system"

// KindSystem is the hub kind for system value hubs.
const KindSystem = "system"

type systemValue struct {
	Value string `json:"value"`
}

// SystemSnapshot is the cached view of the system values read on hot
// paths (secret key on every token operation).
type SystemSnapshot struct {
	Initialized   bool
	Version       string
	SecretKey     string
	RootTenant    string
	DefaultDomain string
}

type SystemServiceParams struct {
	fx.In

	Store vault.Store
	Audit *audit.Dispatcher
}

func NewSystemService(params SystemServiceParams) *SystemService {
	s := &SystemService{
		AbstractService: &AbstractService{
			store: params.Store,
			audit: params.Audit,
		},
	}

	s.snapshot = live.NewCache(live.Options[SystemSnapshot]{
		Name:            "system_snapshot",
		RefreshFunc:     s.refreshSnapshot,
		RefreshInterval: time.Minute,
	})

	return s
}

type SystemService struct {
	*AbstractService

	snapshot *live.Cache[SystemSnapshot]
}

func (s *SystemService) IsInitialized(ctx context.Context) (bool, error) {
	value, err := s.getSystemValue(ctx, SystemKeyInitialized)
	if err != nil {
		if vault.IsNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return strings.EqualFold(value, "true"), nil
}

// Status reports initialization state and the running build version.
func (s *SystemService) Status(ctx context.Context) (*objects.SystemStatus, error) {
	initialized, err := s.IsInitialized(ctx)
	if err != nil {
		return nil, err
	}

	return &objects.SystemStatus{
		Initialized: initialized,
		Version:     build.Version,
	}, nil
}

// SecretKey returns the token signing secret through the snapshot cache.
func (s *SystemService) SecretKey(ctx context.Context) (string, error) {
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return "", err
	}

	if snap.SecretKey == "" {
		return "", fmt.Errorf("signing secret not found: %w", ErrNotInitialized)
	}

	return snap.SecretKey, nil
}

// RootTenant returns the root tenant key derived from the stored slug.
func (s *SystemService) RootTenant(ctx context.Context) (vault.HashKey, error) {
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return vault.HashKey{}, err
	}

	if snap.RootTenant == "" {
		return vault.HashKey{}, fmt.Errorf("root tenant not found: %w", ErrNotInitialized)
	}

	return vault.ResolveTenant(snap.RootTenant), nil
}

// DefaultDomain returns the bootstrap domain name.
func (s *SystemService) DefaultDomain(ctx context.Context) (string, error) {
	snap, err := s.currentSnapshot(ctx)
	if err != nil {
		return "", err
	}

	return snap.DefaultDomain, nil
}

type InitializeSystemParams struct {
	TenantSlug    string
	OwnerEmail    string
	OwnerPassword string
	OwnerName     string
	DefaultDomain string
}

func (p *InitializeSystemParams) validate() error {
	if p.TenantSlug == "" {
		return fmt.Errorf("%w: tenant slug is required", vault.ErrValidation)
	}

	if p.OwnerEmail == "" {
		return fmt.Errorf("%w: owner email is required", vault.ErrValidation)
	}

	if p.OwnerPassword == "" {
		return fmt.Errorf("%w: owner password is required", vault.ErrValidation)
	}

	if p.DefaultDomain == "" {
		return fmt.Errorf("%w: default domain is required", vault.ErrValidation)
	}

	return nil
}

// Initialize bootstraps the vault: root tenant hub, owner actor with a
// credential satellite, signing secret, owner domain assignment. Re-running
// against an initialized vault is a no-op; re-running after a partial
// bootstrap resumes it, since every step is idempotent per key.
func (s *SystemService) Initialize(
	ctx context.Context,
	actors *ActorService,
	assignments *AssignmentService,
	params *InitializeSystemParams,
) error {
	if err := params.validate(); err != nil {
		return err
	}

	// Bootstrap predates any principal; the sequence runs as system.
	ctx = authz.WithSystemBypass(ctx, "system-initialize")

	initialized, err := s.IsInitialized(ctx)
	if err != nil {
		return fmt.Errorf("failed to check initialization status: %w", err)
	}

	if initialized {
		return nil
	}

	secretKey, err := GenerateSecretKey()
	if err != nil {
		return fmt.Errorf("failed to generate secret key: %w", err)
	}

	tenantHub := vault.NewTenantHub(params.TenantSlug)
	if _, _, err := s.store.EnsureHub(ctx, tenantHub); err != nil {
		return fmt.Errorf("failed to create root tenant: %w", err)
	}

	log.Info(ctx, "created root tenant", log.String("slug", params.TenantSlug))

	owner, err := actors.Register(ctx, tenantHub.Key, &RegisterActorParams{
		Email:       params.OwnerEmail,
		Password:    params.OwnerPassword,
		DisplayName: params.OwnerName,
		Roles:       []string{"owner"},
	})
	if err != nil {
		if !vault.IsConflict(err) {
			return fmt.Errorf("failed to create owner actor: %w", err)
		}

		// A partial bootstrap left the owner behind; pick it up.
		owner, err = actors.GetByEmail(ctx, tenantHub.Key, params.OwnerEmail)
		if err != nil {
			return fmt.Errorf("failed to load owner actor: %w", err)
		}
	}

	log.Info(ctx, "created owner actor", log.String("actor_key", owner.Hub.Key.String()))

	_, err = assignments.Grant(ctx, tenantHub.Key, owner.Hub.Key, domains.Assignment{
		Domain:    params.DefaultDomain,
		Status:    domains.StatusGranted,
		GrantedBy: "system",
		GrantedAt: xtime.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to assign owner domain: %w", err)
	}

	for key, value := range map[string]string{
		SystemKeySecretKey:     secretKey,
		SystemKeyRootTenant:    params.TenantSlug,
		SystemKeyDefaultDomain: params.DefaultDomain,
		SystemKeyVersion:       build.Version,
	} {
		if err := s.setSystemValue(ctx, key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	// The flag goes last so a partial bootstrap stays resumable.
	if err := s.setSystemValue(ctx, SystemKeyInitialized, "true"); err != nil {
		return fmt.Errorf("failed to set initialized flag: %w", err)
	}

	if err := s.snapshot.Load(ctx, true); err != nil {
		log.Warn(ctx, "failed to refresh system snapshot", log.Cause(err))
	}

	log.Info(ctx, "system initialized", log.String("tenant", params.TenantSlug))

	return nil
}

// Stop releases the snapshot refresh worker.
func (s *SystemService) Stop() {
	s.snapshot.Stop()
}

func (s *SystemService) currentSnapshot(ctx context.Context) (SystemSnapshot, error) {
	snap := s.snapshot.GetData()
	if snap.Initialized {
		return snap, nil
	}

	// Not initialized as far as the cache knows; reload once before
	// reporting that to the caller.
	if err := s.snapshot.Load(ctx, false); err != nil {
		return SystemSnapshot{}, err
	}

	return s.snapshot.GetData(), nil
}

func (s *SystemService) refreshSnapshot(
	ctx context.Context,
	current SystemSnapshot,
	lastUpdate time.Time,
) (SystemSnapshot, time.Time, bool, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return current, lastUpdate, false, err
	}

	return snap, xtime.Now(), snap != current, nil
}

func (s *SystemService) loadSnapshot(ctx context.Context) (SystemSnapshot, error) {
	var snap SystemSnapshot

	for key, target := range map[string]*string{
		SystemKeyVersion:       &snap.Version,
		SystemKeySecretKey:     &snap.SecretKey,
		SystemKeyRootTenant:    &snap.RootTenant,
		SystemKeyDefaultDomain: &snap.DefaultDomain,
	} {
		value, err := s.getSystemValue(ctx, key)
		if err != nil {
			if vault.IsNotFound(err) {
				continue
			}

			return SystemSnapshot{}, err
		}

		*target = value
	}

	initialized, err := s.IsInitialized(ctx)
	if err != nil {
		return SystemSnapshot{}, err
	}

	snap.Initialized = initialized

	return snap, nil
}

func systemHub(key string) vault.Hub {
	return vault.NewHub(vault.ResolveTenant(systemTenantSlug), KindSystem, key)
}

func (s *SystemService) getSystemValue(ctx context.Context, key string) (string, error) {
	version, err := s.store.Current(ctx, systemHub(key).Key)
	if err != nil {
		return "", err
	}

	var value systemValue
	if err := json.Unmarshal(version.Payload, &value); err != nil {
		return "", fmt.Errorf("malformed system value %s: %w", key, err)
	}

	return value.Value, nil
}

func (s *SystemService) setSystemValue(ctx context.Context, key, value string) error {
	hub := systemHub(key)
	if _, _, err := s.store.EnsureHub(ctx, hub); err != nil {
		return err
	}

	payload, err := json.Marshal(systemValue{Value: value})
	if err != nil {
		return err
	}

	_, err = s.store.Put(ctx, hub.Key, payload, vault.Provenance{Source: "system"})

	return err
}
