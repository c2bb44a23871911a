package biz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/authz"
	"github.com/keeldata/trustvault/internal/pkg/watcher"
	"github.com/keeldata/trustvault/internal/pkg/xcache"
	"github.com/keeldata/trustvault/internal/pkg/xcache/live"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/vault"
)

// riskSignals builds signals from literal values.
func riskSignals(deviceTrust, networkRisk int) risk.Signals {
	return risk.Signals{DeviceTrust: &deviceTrust, NetworkRisk: &networkRisk}
}

// testServices wires the full service graph over the in-memory backend.
type testServices struct {
	Store       vault.Store
	Risk        *risk.Engine
	System      *SystemService
	Actors      *ActorService
	Assignments *AssignmentService
	Sessions    *SessionService
	Auth        *AuthService
	Entities    *EntityService
	Links       *LinkService
	Access      *AccessService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	store := vault.NewMemoryStore()

	dispatcher, err := audit.New(audit.Config{Enabled: false}, nil)
	require.NoError(t, err)

	engine, err := risk.NewEngine(risk.DefaultConfig())
	require.NoError(t, err)

	notifier := watcher.NewMemoryWatcher[live.CacheEvent[string]](watcher.MemoryWatcherOptions{})

	system := NewSystemService(SystemServiceParams{Store: store, Audit: dispatcher})
	actors := NewActorService(ActorServiceParams{Store: store, Audit: dispatcher})
	assignments := NewAssignmentService(AssignmentServiceParams{Store: store, Audit: dispatcher})
	sessions := NewSessionService(SessionServiceParams{
		Store:    store,
		Audit:    dispatcher,
		Risk:     engine,
		Notifier: notifier,
	})
	auth := NewAuthService(AuthServiceParams{
		SystemService:  system,
		ActorService:   actors,
		SessionService: sessions,
		Store:          store,
	})
	entities := NewEntityService(EntityServiceParams{
		Store: store,
		Audit: dispatcher,
		Hubs:  xcache.NewFromConfig[vault.Hub](xcache.Config{Mode: xcache.ModeMemory}),
	})
	links := NewLinkService(LinkServiceParams{Store: store, Audit: dispatcher})
	accessSvc := NewAccessService(AccessServiceParams{
		Store:             store,
		Audit:             dispatcher,
		Risk:              engine,
		SessionService:    sessions,
		AssignmentService: assignments,
		AuthService:       auth,
	})

	t.Cleanup(func() {
		sessions.Stop()
		system.Stop()
	})

	return &testServices{
		Store:       store,
		Risk:        engine,
		System:      system,
		Actors:      actors,
		Assignments: assignments,
		Sessions:    sessions,
		Auth:        auth,
		Entities:    entities,
		Links:       links,
		Access:      accessSvc,
	}
}

// initializedServices bootstraps the system and returns the root tenant
// and owner ready for use.
func initializedServices(t *testing.T) (*testServices, vault.HashKey, *Actor) {
	t.Helper()

	svcs := newTestServices(t)
	ctx := t.Context()

	err := svcs.System.Initialize(ctx, svcs.Actors, svcs.Assignments, &InitializeSystemParams{
		TenantSlug:    "acme",
		OwnerEmail:    "owner@example.com",
		OwnerPassword: "password123",
		OwnerName:     "System Owner",
		DefaultDomain: "operations",
	})
	require.NoError(t, err)

	tenant := vault.ResolveTenant("acme")

	owner, err := svcs.Actors.GetByEmail(authz.NewTestContext(ctx), tenant, "owner@example.com")
	require.NoError(t, err)

	return svcs, tenant, owner
}
