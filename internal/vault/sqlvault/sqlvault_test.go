package sqlvault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func installClock(t *testing.T, at time.Time) *fakeClock {
	t.Helper()

	clock := &fakeClock{now: at}
	xtime.SetUTCNowFunc(clock.Now)
	t.Cleanup(xtime.ResetUTCNowFunc)

	return clock
}

func openTestStore(t *testing.T) (*Store, vault.HashKey) {
	t.Helper()

	store, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tenant, created, err := store.EnsureHub(context.Background(), vault.NewTenantHub("acme"))
	require.NoError(t, err)
	require.True(t, created)

	return store, tenant.Key
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open("oracle", "dsn")
	require.ErrorIs(t, err, vault.ErrValidation)
}

func TestOpenIsRerunnable(t *testing.T) {
	// Migrations must tolerate an already-migrated database.
	store, err := Open("sqlite3", "file:rerun?mode=memory&cache=shared")
	require.NoError(t, err)

	again, err := Open("sqlite3", "file:rerun?mode=memory&cache=shared")
	require.NoError(t, err)

	require.NoError(t, again.Close())
	require.NoError(t, store.Close())
}

func TestRebind(t *testing.T) {
	plain := &Store{dialect: dialectSQLite}
	require.Equal(t, "SELECT * FROM hubs WHERE hash_key = ?", plain.rebind("SELECT * FROM hubs WHERE hash_key = ?"))

	dollar := &Store{dialect: dialectPostgres, dollar: true}
	require.Equal(t,
		"UPDATE sessions SET state = $1, updated_at = $2 WHERE token_digest = $3",
		dollar.rebind("UPDATE sessions SET state = ?, updated_at = ? WHERE token_digest = ?"),
	)
}

func TestInsertIgnoreDialects(t *testing.T) {
	sqlite := &Store{dialect: dialectSQLite}
	require.Equal(t,
		"INSERT INTO hubs (a, b) VALUES (?, ?) ON CONFLICT DO NOTHING",
		sqlite.insertIgnore("hubs", "a, b", 2),
	)

	mysql := &Store{dialect: dialectMySQL}
	require.Equal(t,
		"INSERT IGNORE INTO hubs (a, b) VALUES (?, ?)",
		mysql.insertIgnore("hubs", "a, b", 2),
	)
}

func TestSQLStoreEnsureHub(t *testing.T) {
	ctx := context.Background()
	store, tenant := openTestStore(t)

	hub, created, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, hub.CreatedAt.IsZero())

	again, created, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, hub.Key, again.Key)

	forged := vault.NewHub(tenant, "dataset", "payroll")
	forged.BusinessKey = "ledger"
	_, _, err = store.EnsureHub(ctx, forged)
	require.ErrorIs(t, err, vault.ErrConflict)

	fetched, err := store.GetHub(ctx, hub.Key)
	require.NoError(t, err)
	require.Equal(t, "payroll", fetched.BusinessKey)
	require.Equal(t, tenant, fetched.TenantKey)

	_, err = store.GetHub(ctx, vault.Resolve(tenant, "dataset", "missing"))
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestSQLStoreEnsureLink(t *testing.T) {
	ctx := context.Background()
	store, tenant := openTestStore(t)

	actor, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, vault.KindActor, "user-7"))
	require.NoError(t, err)

	domain, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "domain", "finance"))
	require.NoError(t, err)

	link, created, err := store.EnsureLink(ctx, vault.NewLink(tenant, "assignment", actor.Key, domain.Key))
	require.NoError(t, err)
	require.True(t, created)

	reversed, created, err := store.EnsureLink(ctx, vault.NewLink(tenant, "assignment", domain.Key, actor.Key))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, link.Key, reversed.Key)

	missing := vault.Resolve(tenant, "domain", "void")
	_, _, err = store.EnsureLink(ctx, vault.NewLink(tenant, "assignment", actor.Key, missing))
	require.ErrorIs(t, err, vault.ErrNotFound)

	fetched, err := store.GetLink(ctx, link.Key)
	require.NoError(t, err)
	require.Len(t, fetched.Endpoints, 2)
	require.True(t, fetched.HasEndpoint(actor.Key))

	assignments, err := store.LinksByEndpoint(ctx, actor.Key, "assignment")
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	none, err := store.LinksByEndpoint(ctx, actor.Key, "membership")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLStorePutLifecycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := openTestStore(t)

	hub, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	first, err := store.Put(ctx, hub.Key, []byte(`{"rows":10}`), vault.Provenance{Source: "api"})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.True(t, first.Version.EffectiveFrom.Equal(base))

	// Identical payload is a no-op.
	clock.Advance(time.Minute)

	noop, err := store.Put(ctx, hub.Key, []byte(`{"rows":10}`), vault.Provenance{})
	require.NoError(t, err)
	require.False(t, noop.Created)
	require.True(t, noop.Version.EffectiveFrom.Equal(base))
	require.Equal(t, "api", noop.Version.Provenance.Source, "no-op returns the stored version")

	// A changed payload closes the current version.
	clock.Advance(time.Minute)

	second, err := store.Put(ctx, hub.Key, []byte(`{"rows":11}`), vault.Provenance{})
	require.NoError(t, err)
	require.True(t, second.Created)

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)

	closed, open := history.Versions[0], history.Versions[1]
	require.NotNil(t, closed.EffectiveTo)
	require.True(t, closed.EffectiveTo.Equal(base.Add(2*time.Minute)))
	require.True(t, open.EffectiveFrom.Equal(closed.EffectiveTo.Add(vault.Epsilon)))
	require.True(t, open.Current())
}

func TestSQLStorePutFrozenClock(t *testing.T) {
	ctx := context.Background()
	installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := openTestStore(t)

	hub, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"rows":%d}`, i)), vault.Provenance{})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 3)

	for i := 1; i < len(history.Versions); i++ {
		prev, next := history.Versions[i-1], history.Versions[i]
		require.True(t, next.EffectiveFrom.After(prev.EffectiveFrom))
		require.NotNil(t, prev.EffectiveTo)
		require.True(t, prev.EffectiveTo.Before(next.EffectiveFrom))
	}
}

func TestSQLStorePutValidation(t *testing.T) {
	ctx := context.Background()
	store, tenant := openTestStore(t)

	_, err := store.Put(ctx, tenant, nil, vault.Provenance{})
	require.ErrorIs(t, err, vault.ErrValidation)

	_, err = store.Put(ctx, vault.Resolve(tenant, "dataset", "missing"), []byte(`{}`), vault.Provenance{})
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestSQLStorePutOnLink(t *testing.T) {
	ctx := context.Background()
	store, tenant := openTestStore(t)

	actor, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, vault.KindActor, "user-7"))
	require.NoError(t, err)

	domain, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "domain", "finance"))
	require.NoError(t, err)

	link, _, err := store.EnsureLink(ctx, vault.NewLink(tenant, "assignment", actor.Key, domain.Key))
	require.NoError(t, err)

	put, err := store.Put(ctx, link.Key, []byte(`{"status":"granted"}`), vault.Provenance{})
	require.NoError(t, err)
	require.True(t, put.Created)

	current, err := store.Current(ctx, link.Key)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"granted"}`, string(current.Payload))
}

func TestSQLStoreCurrentAndAsOf(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := openTestStore(t)

	hub, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	_, err = store.Current(ctx, hub.Key)
	require.ErrorIs(t, err, vault.ErrNotFound)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":10}`), vault.Provenance{})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":11}`), vault.Provenance{})
	require.NoError(t, err)

	current, err := store.Current(ctx, hub.Key)
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":11}`, string(current.Payload))

	_, err = store.AsOf(ctx, hub.Key, base.Add(-time.Second))
	require.ErrorIs(t, err, vault.ErrNotFound)

	v, err := store.AsOf(ctx, hub.Key, base.Add(time.Minute))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":10}`, string(v.Payload))

	v, err = store.AsOf(ctx, hub.Key, base.Add(72*time.Hour))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":11}`, string(v.Payload))
}

func TestSQLStoreHistoryPagination(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := openTestStore(t)

	hub, _, err := store.EnsureHub(ctx, vault.NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err = store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"rows":%d}`, i)), vault.Provenance{})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	var collected []*vault.Version

	cursor := ""

	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)

		page, err := store.History(ctx, hub.Key, cursor, 3)
		require.NoError(t, err)

		collected = append(collected, page.Versions...)

		if page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	require.Len(t, collected, 7)

	for i := 1; i < len(collected); i++ {
		require.True(t, collected[i].EffectiveFrom.After(collected[i-1].EffectiveFrom))
	}

	_, err = store.History(ctx, hub.Key, "!!!garbage!!!", 3)
	require.ErrorIs(t, err, vault.ErrValidation)
}

func testSQLSession(tenant vault.HashKey, token string, issued time.Time) *vault.Session {
	digest := vault.TokenDigest(token)

	return &vault.Session{
		TokenDigest: digest,
		HubKey:      vault.Resolve(tenant, vault.KindSession, digest),
		TenantKey:   tenant,
		ActorKey:    vault.Resolve(tenant, vault.KindActor, "user-7"),
		State:       vault.SessionIssued,
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(time.Hour),
	}
}

func TestSQLStoreSessions(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := openTestStore(t)

	session := testSQLSession(tenant, "tv-token", base)
	require.NoError(t, store.InsertSession(ctx, session))
	require.False(t, session.CreatedAt.IsZero())

	require.ErrorIs(t, store.InsertSession(ctx, testSQLSession(tenant, "tv-token", base)), vault.ErrConflict)

	fetched, err := store.GetSession(ctx, session.TokenDigest)
	require.NoError(t, err)
	require.Equal(t, vault.SessionIssued, fetched.State)
	require.Equal(t, session.ActorKey, fetched.ActorKey)
	require.True(t, fetched.IssuedAt.Equal(base))

	clock.Advance(time.Minute)

	mutated, err := store.MutateSession(ctx, session.TokenDigest, func(s *vault.Session) error {
		s.RequestCount += 3
		s.BytesMoved += 1024

		return s.TransitionTo(vault.SessionActive)
	})
	require.NoError(t, err)
	require.Equal(t, vault.SessionActive, mutated.State)
	require.Equal(t, int64(3), mutated.RequestCount)
	require.True(t, mutated.UpdatedAt.After(fetched.UpdatedAt))

	// A failing mutation rolls the row back.
	boom := errors.New("boom")

	_, err = store.MutateSession(ctx, session.TokenDigest, func(s *vault.Session) error {
		s.RequestCount = 999

		return boom
	})
	require.ErrorIs(t, err, boom)

	fetched, err = store.GetSession(ctx, session.TokenDigest)
	require.NoError(t, err)
	require.Equal(t, int64(3), fetched.RequestCount)

	_, err = store.GetSession(ctx, vault.TokenDigest("tv-unknown"))
	require.ErrorIs(t, err, vault.ErrNotFound)

	_, err = store.MutateSession(ctx, vault.TokenDigest("tv-unknown"), func(s *vault.Session) error { return nil })
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestSQLStoreListAndDeleteSessions(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := openTestStore(t)
	actor := vault.Resolve(tenant, vault.KindActor, "user-7")

	var digests []string

	states := []vault.SessionState{vault.SessionIssued, vault.SessionActive, vault.SessionRevoked, vault.SessionExpired}
	for i, state := range states {
		session := testSQLSession(tenant, fmt.Sprintf("tv-token-%d", i), clock.Now())
		session.State = state

		require.NoError(t, store.InsertSession(ctx, session))
		digests = append(digests, session.TokenDigest)
		clock.Advance(time.Minute)
	}

	all, err := store.ListSessions(ctx, vault.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	mine, err := store.ListSessions(ctx, vault.SessionFilter{TenantKey: tenant, ActorKey: actor})
	require.NoError(t, err)
	require.Len(t, mine, 4)

	terminal, err := store.ListSessions(ctx, vault.SessionFilter{
		States: []vault.SessionState{vault.SessionRevoked, vault.SessionExpired, vault.SessionExhausted},
	})
	require.NoError(t, err)
	require.Len(t, terminal, 2)

	stale, err := store.ListSessions(ctx, vault.SessionFilter{
		UpdatedBefore: base.Add(90 * time.Second),
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)

	deleted, err := store.DeleteSessions(ctx, []string{digests[0], digests[1], "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	remaining, err := store.ListSessions(ctx, vault.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	zero, err := store.DeleteSessions(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, zero)
}

func TestSQLStorePing(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
