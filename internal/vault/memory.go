package vault

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
)

// MemoryStore keeps the whole vault in process memory. Version logs are
// immutable snapshots swapped atomically, so readers never block behind
// writers; each log serializes its own writers independently.
//
// The zero value is not usable; construct with NewMemoryStore.
type MemoryStore struct {
	mu         sync.RWMutex
	hubs       map[HashKey]*Hub
	links      map[HashKey]*Link
	byEndpoint map[HashKey][]HashKey
	logs       map[HashKey]*versionLog

	sessMu   sync.RWMutex
	sessions map[string]*sessionEntry
}

type versionLog struct {
	// mu serializes appends to this log only.
	mu       sync.Mutex
	versions atomic.Pointer[[]*Version]
}

func (l *versionLog) snapshot() []*Version {
	if p := l.versions.Load(); p != nil {
		return *p
	}

	return nil
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hubs:       make(map[HashKey]*Hub),
		links:      make(map[HashKey]*Link),
		byEndpoint: make(map[HashKey][]HashKey),
		logs:       make(map[HashKey]*versionLog),
		sessions:   make(map[string]*sessionEntry),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) EnsureHub(ctx context.Context, hub Hub) (*Hub, bool, error) {
	if err := ValidateHub(hub); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.hubs[hub.Key]; ok {
		if existing.TenantKey != hub.TenantKey || existing.Kind != hub.Kind || existing.BusinessKey != hub.BusinessKey {
			return nil, false, fmt.Errorf("%w: hub %s already recorded with different identity", ErrConflict, hub.Key)
		}

		return existing.Clone(), false, nil
	}

	created := hub.Clone()
	created.CreatedAt = xtime.Now()
	s.hubs[hub.Key] = created

	return created.Clone(), true, nil
}

func (s *MemoryStore) GetHub(ctx context.Context, key HashKey) (*Hub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hub, ok := s.hubs[key]
	if !ok {
		return nil, fmt.Errorf("%w: hub %s", ErrNotFound, key)
	}

	return hub.Clone(), nil
}

func (s *MemoryStore) EnsureLink(ctx context.Context, link Link) (*Link, bool, error) {
	if err := ValidateLink(link); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.links[link.Key]; ok {
		if existing.TenantKey != link.TenantKey || existing.Kind != link.Kind ||
			!slices.Equal(existing.Endpoints, link.Endpoints) {
			return nil, false, fmt.Errorf("%w: link %s already recorded with different identity", ErrConflict, link.Key)
		}

		return existing.Clone(), false, nil
	}

	for _, endpoint := range link.Endpoints {
		if _, ok := s.hubs[endpoint]; !ok {
			return nil, false, fmt.Errorf("%w: link endpoint hub %s", ErrNotFound, endpoint)
		}
	}

	created := link.Clone()
	created.CreatedAt = xtime.Now()
	s.links[link.Key] = created

	for _, endpoint := range link.Endpoints {
		s.byEndpoint[endpoint] = append([]HashKey{link.Key}, s.byEndpoint[endpoint]...)
	}

	return created.Clone(), true, nil
}

func (s *MemoryStore) GetLink(ctx context.Context, key HashKey) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[key]
	if !ok {
		return nil, fmt.Errorf("%w: link %s", ErrNotFound, key)
	}

	return link.Clone(), nil
}

func (s *MemoryStore) LinksByEndpoint(ctx context.Context, endpoint HashKey, kind string) ([]*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byEndpoint[endpoint]
	links := make([]*Link, 0, len(keys))

	for _, key := range keys {
		link := s.links[key]
		if kind != "" && link.Kind != kind {
			continue
		}

		links = append(links, link.Clone())
	}

	return links, nil
}

// log returns the version log for the key, creating it on first write.
func (s *MemoryStore) log(key HashKey) *versionLog {
	s.mu.RLock()
	l, ok := s.logs[key]
	s.mu.RUnlock()

	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok = s.logs[key]; ok {
		return l
	}

	l = &versionLog{}
	s.logs[key] = l

	return l
}

// snapshotFor reads the version log without allocating one for keys
// never written.
func (s *MemoryStore) snapshotFor(key HashKey) []*Version {
	s.mu.RLock()
	l, ok := s.logs[key]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	return l.snapshot()
}

func (s *MemoryStore) keyRecorded(key HashKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.hubs[key]; ok {
		return true
	}

	_, ok := s.links[key]

	return ok
}

func (s *MemoryStore) Put(ctx context.Context, key HashKey, payload []byte, prov Provenance) (*PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrValidation)
	}

	if !s.keyRecorded(key) {
		return nil, fmt.Errorf("%w: no hub or link for key %s", ErrNotFound, key)
	}

	l := s.log(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := xtime.Now()
	fp := Fingerprint(payload)
	versions := l.snapshot()

	n := len(versions)
	if n == 0 {
		first := &Version{
			Key:           key,
			Payload:       slices.Clone(payload),
			Fingerprint:   fp,
			EffectiveFrom: now,
			RecordedAt:    now,
			Provenance:    prov,
		}

		next := []*Version{first}
		l.versions.Store(&next)

		return &PutResult{Version: first.Clone(), Created: true}, nil
	}

	current := versions[n-1]
	if current.Fingerprint == fp {
		return &PutResult{Version: current.Clone(), Created: false}, nil
	}

	closeAt, openAt := VersionBoundaries(current.EffectiveFrom, now)

	closed := current.Clone()
	closed.EffectiveTo = &closeAt

	opened := &Version{
		Key:           key,
		Payload:       slices.Clone(payload),
		Fingerprint:   fp,
		EffectiveFrom: openAt,
		RecordedAt:    now,
		Provenance:    prov,
	}

	updated := make([]*Version, n+1)
	copy(updated, versions[:n-1])
	updated[n-1] = closed
	updated[n] = opened

	l.versions.Store(&updated)

	return &PutResult{Version: opened.Clone(), Created: true}, nil
}

func (s *MemoryStore) Current(ctx context.Context, key HashKey) (*Version, error) {
	versions := s.snapshotFor(key)

	n := len(versions)
	if n == 0 || !versions[n-1].Current() {
		return nil, fmt.Errorf("%w: no current version for key %s", ErrNotFound, key)
	}

	return versions[n-1].Clone(), nil
}

func (s *MemoryStore) AsOf(ctx context.Context, key HashKey, at time.Time) (*Version, error) {
	versions := s.snapshotFor(key)

	// Last version whose window opened at or before the instant.
	idx := sort.Search(len(versions), func(i int) bool {
		return versions[i].EffectiveFrom.After(at)
	}) - 1

	if idx < 0 || !versions[idx].EffectiveAt(at) {
		return nil, fmt.Errorf("%w: no version for key %s at %s", ErrNotFound, key, at.Format(time.RFC3339Nano))
	}

	return versions[idx].Clone(), nil
}

func (s *MemoryStore) History(ctx context.Context, key HashKey, cursor string, limit int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	} else if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var after time.Time

	if cursor != "" {
		decoded, err := DecodeHistoryCursor(cursor)
		if err != nil {
			return nil, err
		}

		after = decoded
	}

	versions := s.snapshotFor(key)

	start := 0
	if cursor != "" {
		start = sort.Search(len(versions), func(i int) bool {
			return versions[i].EffectiveFrom.After(after)
		})
	}

	end := start + limit
	if end > len(versions) {
		end = len(versions)
	}

	page := &HistoryPage{Versions: make([]*Version, 0, end-start)}
	for _, v := range versions[start:end] {
		page.Versions = append(page.Versions, v.Clone())
	}

	if end < len(versions) && len(page.Versions) > 0 {
		page.NextCursor = EncodeHistoryCursor(page.Versions[len(page.Versions)-1].EffectiveFrom)
	}

	return page, nil
}

func (s *MemoryStore) InsertSession(ctx context.Context, session *Session) error {
	if err := ValidateSession(session); err != nil {
		return err
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	if _, ok := s.sessions[session.TokenDigest]; ok {
		return fmt.Errorf("%w: session %s already recorded", ErrConflict, session.TokenDigest)
	}

	stored := session.Clone()

	now := xtime.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now

	s.sessions[session.TokenDigest] = &sessionEntry{session: stored}
	*session = *stored.Clone()

	return nil
}

func (s *MemoryStore) sessionEntry(tokenDigest string) (*sessionEntry, error) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()

	entry, ok := s.sessions[tokenDigest]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, tokenDigest)
	}

	return entry, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, tokenDigest string) (*Session, error) {
	entry, err := s.sessionEntry(tokenDigest)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.Clone(), nil
}

func (s *MemoryStore) MutateSession(ctx context.Context, tokenDigest string, fn func(*Session) error) (*Session, error) {
	entry, err := s.sessionEntry(tokenDigest)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	mutated := entry.session.Clone()
	if err := fn(mutated); err != nil {
		return nil, err
	}

	mutated.TokenDigest = entry.session.TokenDigest
	mutated.UpdatedAt = xtime.Now()
	entry.session = mutated

	return mutated.Clone(), nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	s.sessMu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))

	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.sessMu.RUnlock()

	sessions := make([]*Session, 0, len(entries))

	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session.Clone()
		entry.mu.Unlock()

		if !filter.Matches(session) {
			continue
		}

		sessions = append(sessions, session)

		if filter.Limit > 0 && len(sessions) >= filter.Limit {
			break
		}
	}

	return sessions, nil
}

func (s *MemoryStore) DeleteSessions(ctx context.Context, tokenDigests []string) (int, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	deleted := 0

	for _, digest := range tokenDigests {
		if _, ok := s.sessions[digest]; ok {
			delete(s.sessions, digest)
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
