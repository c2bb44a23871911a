package vault

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/keeldata/trustvault/internal/pkg/xtest"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

func installClock(t *testing.T, at time.Time) *fakeClock {
	t.Helper()

	clock := &fakeClock{now: at}
	xtime.SetUTCNowFunc(clock.Now)
	t.Cleanup(xtime.ResetUTCNowFunc)

	return clock
}

func newTestStore(t *testing.T) (*MemoryStore, HashKey) {
	t.Helper()

	store := NewMemoryStore()

	tenant, created, err := store.EnsureHub(context.Background(), NewTenantHub("acme"))
	require.NoError(t, err)
	require.True(t, created)

	return store, tenant.Key
}

func TestMemoryStoreEnsureHub(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	hub, created, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "dataset", hub.Kind)
	require.False(t, hub.CreatedAt.IsZero())

	// Same identity again is a no-op.
	again, created, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, hub.Key, again.Key)
	require.Equal(t, hub.CreatedAt, again.CreatedAt)

	// Same key with a different business identity is a conflict.
	forged := NewHub(tenant, "dataset", "payroll")
	forged.BusinessKey = "ledger"
	_, _, err = store.EnsureHub(ctx, forged)
	require.ErrorIs(t, err, ErrConflict)

	fetched, err := store.GetHub(ctx, hub.Key)
	require.NoError(t, err)
	require.Equal(t, hub.BusinessKey, fetched.BusinessKey)

	_, err = store.GetHub(ctx, Resolve(tenant, "dataset", "missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreEnsureHubValidation(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	_, _, err := store.EnsureHub(ctx, NewHub(tenant, "", "payroll"))
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = store.EnsureHub(ctx, NewHub(tenant, "dataset", ""))
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = store.EnsureHub(ctx, NewHub(HashKey{}, "dataset", "payroll"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestMemoryStoreEnsureHubConcurrent(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	const workers = 64

	var (
		eg        errgroup.Group
		createdBy atomic.Int64
	)

	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			_, created, err := store.EnsureHub(ctx, NewHub(tenant, KindActor, "user-7"))
			if err != nil {
				return err
			}

			if created {
				createdBy.Add(1)
			}

			return nil
		})
	}

	require.NoError(t, eg.Wait())
	require.EqualValues(t, 1, createdBy.Load(), "exactly one caller must observe creation")
}

func TestMemoryStoreEnsureLink(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	actor, _, err := store.EnsureHub(ctx, NewHub(tenant, KindActor, "user-7"))
	require.NoError(t, err)

	domain, _, err := store.EnsureHub(ctx, NewHub(tenant, "domain", "finance"))
	require.NoError(t, err)

	link, created, err := store.EnsureLink(ctx, NewLink(tenant, "assignment", actor.Key, domain.Key))
	require.NoError(t, err)
	require.True(t, created)

	// Reversed endpoint order resolves to the same relationship.
	reversed, created, err := store.EnsureLink(ctx, NewLink(tenant, "assignment", domain.Key, actor.Key))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, link.Key, reversed.Key)

	// Endpoints must exist as hubs.
	missing := Resolve(tenant, "domain", "void")
	_, _, err = store.EnsureLink(ctx, NewLink(tenant, "assignment", actor.Key, missing))
	require.ErrorIs(t, err, ErrNotFound)

	fetched, err := store.GetLink(ctx, link.Key)
	require.NoError(t, err)
	require.Equal(t, link.Endpoints, fetched.Endpoints)
}

func TestMemoryStoreLinksByEndpoint(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	actor, _, err := store.EnsureHub(ctx, NewHub(tenant, KindActor, "user-7"))
	require.NoError(t, err)

	finance, _, err := store.EnsureHub(ctx, NewHub(tenant, "domain", "finance"))
	require.NoError(t, err)

	clinical, _, err := store.EnsureHub(ctx, NewHub(tenant, "domain", "clinical"))
	require.NoError(t, err)

	first, _, err := store.EnsureLink(ctx, NewLink(tenant, "assignment", actor.Key, finance.Key))
	require.NoError(t, err)

	second, _, err := store.EnsureLink(ctx, NewLink(tenant, "assignment", actor.Key, clinical.Key))
	require.NoError(t, err)

	_, _, err = store.EnsureLink(ctx, NewLink(tenant, "membership", actor.Key, tenant))
	require.NoError(t, err)

	assignments, err := store.LinksByEndpoint(ctx, actor.Key, "assignment")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.Equal(t, second.Key, assignments[0].Key, "newest link first")
	require.Equal(t, first.Key, assignments[1].Key)

	all, err := store.LinksByEndpoint(ctx, actor.Key, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	none, err := store.LinksByEndpoint(ctx, finance.Key, "membership")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemoryStorePutFirstVersion(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	installClock(t, base)

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	result, err := store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{Source: "api"})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.True(t, result.Version.Current())
	require.True(t, result.Version.EffectiveFrom.Equal(base))
	require.True(t, result.Version.RecordedAt.Equal(base))
	require.Equal(t, "api", result.Version.Provenance.Source)

	current, err := store.Current(ctx, hub.Key)
	require.NoError(t, err)
	require.Equal(t, result.Version.Fingerprint, current.Fingerprint)
}

func TestMemoryStorePutFingerprintNoOp(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	first, err := store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{})
	require.NoError(t, err)

	clock.Advance(time.Minute)

	// Identical payload must not grow the log or move the window.
	again, err := store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{})
	require.NoError(t, err)
	require.False(t, again.Created)
	require.True(t, again.Version.EffectiveFrom.Equal(first.Version.EffectiveFrom))

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 1)
}

func TestMemoryStorePutClosesCurrent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{})
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, err := store.Put(ctx, hub.Key, []byte(`{"rows":11}`), Provenance{})
	require.NoError(t, err)
	require.True(t, second.Created)

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)

	closed, open := history.Versions[0], history.Versions[1]

	require.NotNil(t, closed.EffectiveTo)
	require.True(t, closed.EffectiveTo.Equal(base.Add(time.Minute)), "close lands on the put instant")
	require.True(t, open.EffectiveFrom.Equal(closed.EffectiveTo.Add(Epsilon)), "successor opens one epsilon later")
	require.True(t, open.Current())
}

func TestMemoryStorePutFrozenClock(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	installClock(t, base)

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	// Three writes on a clock that never advances must still produce
	// strictly ordered, non-touching windows.
	for i := 0; i < 3; i++ {
		_, err = store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"rows":%d}`, i)), Provenance{})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 3)

	for i, v := range history.Versions {
		if i > 0 {
			prev := history.Versions[i-1]
			require.True(t, v.EffectiveFrom.After(prev.EffectiveFrom), "effective-from must strictly increase")
			require.NotNil(t, prev.EffectiveTo)
			require.True(t, prev.EffectiveTo.Before(v.EffectiveFrom), "no two versions share a boundary")
		}
	}
}

func TestMemoryStorePutClockRegress(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{})
	require.NoError(t, err)

	// The wall clock jumps backwards past the current window start.
	clock.Set(base.Add(-time.Hour))

	second, err := store.Put(ctx, hub.Key, []byte(`{"rows":11}`), Provenance{})
	require.NoError(t, err)
	require.True(t, second.Version.EffectiveFrom.After(base), "regressed clock must not reorder windows")

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)
	require.True(t, history.Versions[0].EffectiveTo.Before(history.Versions[1].EffectiveFrom))
}

func TestMemoryStorePutValidation(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	_, err = store.Put(ctx, hub.Key, nil, Provenance{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = store.Put(ctx, Resolve(tenant, "dataset", "missing"), []byte(`{}`), Provenance{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePutOnLink(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	actor, _, err := store.EnsureHub(ctx, NewHub(tenant, KindActor, "user-7"))
	require.NoError(t, err)

	domain, _, err := store.EnsureHub(ctx, NewHub(tenant, "domain", "finance"))
	require.NoError(t, err)

	link, _, err := store.EnsureLink(ctx, NewLink(tenant, "assignment", actor.Key, domain.Key))
	require.NoError(t, err)

	result, err := store.Put(ctx, link.Key, []byte(`{"status":"granted"}`), Provenance{})
	require.NoError(t, err)
	require.True(t, result.Created)

	current, err := store.Current(ctx, link.Key)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"granted"}`, string(current.Payload))
}

func TestMemoryStoreCurrentMissing(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	// Hub exists but nothing was ever put.
	_, err = store.Current(ctx, hub.Key)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Current(ctx, Resolve(tenant, "dataset", "missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAsOf(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := installClock(t, base)

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":10}`), Provenance{})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":11}`), Provenance{})
	require.NoError(t, err)

	// Before the first window.
	_, err = store.AsOf(ctx, hub.Key, base.Add(-time.Second))
	require.ErrorIs(t, err, ErrNotFound)

	// Inside the first window.
	v, err := store.AsOf(ctx, hub.Key, base.Add(time.Minute))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":10}`, string(v.Payload))

	// Window start is inclusive.
	v, err = store.AsOf(ctx, hub.Key, base)
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":10}`, string(v.Payload))

	// Inside the open window, arbitrarily far in the future.
	v, err = store.AsOf(ctx, hub.Key, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":11}`, string(v.Payload))
}

func TestMemoryStoreHistoryPagination(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err = store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"rows":%d}`, i)), Provenance{})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	var collected []*Version

	cursor := ""

	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "pagination must terminate")

		page, err := store.History(ctx, hub.Key, cursor, 3)
		require.NoError(t, err)

		collected = append(collected, page.Versions...)

		if page.NextCursor == "" {
			require.Len(t, page.Versions, 1, "last page carries the remainder")

			break
		}

		require.Len(t, page.Versions, 3)
		cursor = page.NextCursor
	}

	require.Len(t, collected, 7)

	for i := 1; i < len(collected); i++ {
		require.True(t, collected[i].EffectiveFrom.After(collected[i-1].EffectiveFrom), "history is oldest first")
	}

	// Paging must reproduce exactly what a single full fetch sees.
	full, err := store.History(ctx, hub.Key, "", MaxHistoryLimit)
	require.NoError(t, err)
	require.True(t, xtest.Equal(full.Versions, collected), xtest.Diff(full.Versions, collected))
}

func TestMemoryStoreHistoryCursorSurvivesAppends(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"rows":%d}`, i)), Provenance{})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	page, err := store.History(ctx, hub.Key, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Versions, 2)

	// A new version lands between pages.
	_, err = store.Put(ctx, hub.Key, []byte(`{"rows":99}`), Provenance{})
	require.NoError(t, err)

	rest, err := store.History(ctx, hub.Key, page.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, rest.Versions, 3, "resumed page sees the remainder plus the append")
	require.True(t, rest.Versions[0].EffectiveFrom.After(page.Versions[1].EffectiveFrom), "no version is served twice")
}

func TestMemoryStoreHistoryRejectsGarbageCursor(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	_, err := store.History(ctx, tenant, "!!!garbage!!!", 10)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMemoryStorePutConcurrent(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "payroll"))
	require.NoError(t, err)

	const writers = 32

	var eg errgroup.Group

	for i := 0; i < writers; i++ {
		eg.Go(func() error {
			_, err := store.Put(ctx, hub.Key, []byte(fmt.Sprintf(`{"writer":%d}`, i)), Provenance{})

			return err
		})
	}

	require.NoError(t, eg.Wait())

	history, err := store.History(ctx, hub.Key, "", MaxHistoryLimit)
	require.NoError(t, err)
	require.Len(t, history.Versions, writers)

	open := 0

	for i, v := range history.Versions {
		if v.Current() {
			open++
		}

		if i > 0 {
			require.True(t, v.EffectiveFrom.After(history.Versions[i-1].EffectiveFrom))
		}
	}

	require.Equal(t, 1, open, "exactly one version stays open")
	require.True(t, history.Versions[len(history.Versions)-1].Current())
}

func TestMemoryStorePutRandomizedSequence(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, "dataset", "ledger"))
	require.NoError(t, err)

	// A mixed run of fresh writes and repeats must keep exactly one open
	// version at every step, with repeats folding into no-ops.
	rng := rand.New(rand.NewPCG(3, 9))
	last := ""
	distinct := 0

	for step := 0; step < 60; step++ {
		payload := last
		if last == "" || rng.IntN(3) > 0 {
			payload = fmt.Sprintf(`{"step":%d}`, step)
		}

		result, err := store.Put(ctx, hub.Key, []byte(payload), Provenance{})
		require.NoError(t, err)

		if payload == last {
			require.False(t, result.Created, "repeated payload at step %d must fold", step)
		} else {
			require.True(t, result.Created)

			distinct++
		}

		last = payload

		current, err := store.Current(ctx, hub.Key)
		require.NoError(t, err)
		require.Equal(t, payload, string(current.Payload))

		history, err := store.History(ctx, hub.Key, "", MaxHistoryLimit)
		require.NoError(t, err)
		require.Len(t, history.Versions, distinct)

		open := 0

		for _, v := range history.Versions {
			if v.Current() {
				open++
			}
		}

		require.Equal(t, 1, open, "exactly one open version after step %d", step)
	}
}

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, _ := newTestStore(t)
	session := testSession(t)

	require.NoError(t, store.InsertSession(ctx, session))
	require.False(t, session.CreatedAt.IsZero())

	err := store.InsertSession(ctx, testSession(t))
	require.ErrorIs(t, err, ErrConflict)

	fetched, err := store.GetSession(ctx, session.TokenDigest)
	require.NoError(t, err)
	require.Equal(t, SessionIssued, fetched.State)

	_, err = store.GetSession(ctx, TokenDigest("tv-other"))
	require.ErrorIs(t, err, ErrNotFound)

	invalid := testSession(t)
	invalid.TokenDigest = ""
	require.ErrorIs(t, store.InsertSession(ctx, invalid), ErrValidation)
}

func TestMemoryStoreMutateSession(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, _ := newTestStore(t)
	session := testSession(t)

	require.NoError(t, store.InsertSession(ctx, session))

	insertedAt := session.UpdatedAt

	clock.Advance(time.Minute)

	mutated, err := store.MutateSession(ctx, session.TokenDigest, func(s *Session) error {
		s.RequestCount++

		return s.TransitionTo(SessionActive)
	})
	require.NoError(t, err)
	require.Equal(t, SessionActive, mutated.State)
	require.Equal(t, int64(1), mutated.RequestCount)
	require.True(t, mutated.UpdatedAt.After(insertedAt))

	// A failing mutation leaves the row untouched.
	boom := errors.New("boom")

	_, err = store.MutateSession(ctx, session.TokenDigest, func(s *Session) error {
		s.RequestCount = 999

		return boom
	})
	require.ErrorIs(t, err, boom)

	fetched, err := store.GetSession(ctx, session.TokenDigest)
	require.NoError(t, err)
	require.Equal(t, int64(1), fetched.RequestCount)

	_, err = store.MutateSession(ctx, "missing", func(s *Session) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListSessions(t *testing.T) {
	ctx := context.Background()
	clock := installClock(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	store, tenant := newTestStore(t)
	actor := Resolve(tenant, KindActor, "user-7")
	other := Resolve(tenant, KindActor, "user-8")

	states := []SessionState{SessionIssued, SessionActive, SessionRevoked, SessionExpired}

	for i, state := range states {
		digest := TokenDigest(fmt.Sprintf("tv-token-%d", i))

		owner := actor
		if i == 3 {
			owner = other
		}

		session := &Session{
			TokenDigest: digest,
			HubKey:      Resolve(tenant, KindSession, digest),
			TenantKey:   tenant,
			ActorKey:    owner,
			State:       state,
			IssuedAt:    clock.Now(),
			ExpiresAt:   clock.Now().Add(time.Hour),
		}

		require.NoError(t, store.InsertSession(ctx, session))
		clock.Advance(time.Minute)
	}

	all, err := store.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	mine, err := store.ListSessions(ctx, SessionFilter{ActorKey: actor})
	require.NoError(t, err)
	require.Len(t, mine, 3)

	terminal, err := store.ListSessions(ctx, SessionFilter{
		States: []SessionState{SessionRevoked, SessionExpired, SessionExhausted},
	})
	require.NoError(t, err)
	require.Len(t, terminal, 2)

	stale, err := store.ListSessions(ctx, SessionFilter{
		UpdatedBefore: clock.Now().Add(-2*time.Minute - 30*time.Second),
	})
	require.NoError(t, err)
	require.Len(t, stale, 2)
}

func TestMemoryStoreDeleteSessions(t *testing.T) {
	ctx := context.Background()
	store, tenant := newTestStore(t)

	session := testSession(t)
	require.NoError(t, store.InsertSession(ctx, session))

	// The session hub's transition log outlives the index row.
	hub, _, err := store.EnsureHub(ctx, NewHub(tenant, KindSession, session.TokenDigest))
	require.NoError(t, err)

	_, err = store.Put(ctx, hub.Key, []byte(`{"state":"issued"}`), Provenance{})
	require.NoError(t, err)

	deleted, err := store.DeleteSessions(ctx, []string{session.TokenDigest, "missing"})
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = store.GetSession(ctx, session.TokenDigest)
	require.ErrorIs(t, err, ErrNotFound)

	history, err := store.History(ctx, hub.Key, "", 0)
	require.NoError(t, err)
	require.Len(t, history.Versions, 1, "version log survives index deletion")
}
