package sqlvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHub(row rowScanner) (*vault.Hub, error) {
	var (
		keyHex, tenantHex, kind, businessKey string
		createdAt                            int64
	)

	err := row.Scan(&keyHex, &tenantHex, &kind, &businessKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hub", vault.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("scan hub: %w", err)
	}

	key, err := vault.ParseHashKey(keyHex)
	if err != nil {
		return nil, err
	}

	tenant, err := vault.ParseHashKey(tenantHex)
	if err != nil {
		return nil, err
	}

	return &vault.Hub{
		Key:         key,
		TenantKey:   tenant,
		Kind:        kind,
		BusinessKey: businessKey,
		CreatedAt:   fromNanos(createdAt),
	}, nil
}

func (s *Store) EnsureHub(ctx context.Context, hub vault.Hub) (*vault.Hub, bool, error) {
	if err := vault.ValidateHub(hub); err != nil {
		return nil, false, err
	}

	var (
		created bool
		stored  *vault.Hub
	)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.rebind(s.insertIgnore("hubs", "hash_key, tenant_key, kind, business_key, created_at", 5)),
			hub.Key.String(), hub.TenantKey.String(), hub.Kind, hub.BusinessKey, toNanos(xtime.Now()),
		)
		if err != nil {
			return fmt.Errorf("insert hub: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert hub: %w", err)
		}

		created = affected == 1

		row := tx.QueryRowContext(ctx, s.rebind(
			`SELECT hash_key, tenant_key, kind, business_key, created_at FROM hubs WHERE hash_key = ?`,
		), hub.Key.String())

		stored, err = scanHub(row)
		if err != nil {
			return err
		}

		if stored.TenantKey != hub.TenantKey || stored.Kind != hub.Kind || stored.BusinessKey != hub.BusinessKey {
			return fmt.Errorf("%w: hub %s already recorded with different identity", vault.ErrConflict, hub.Key)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

func (s *Store) GetHub(ctx context.Context, key vault.HashKey) (*vault.Hub, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT hash_key, tenant_key, kind, business_key, created_at FROM hubs WHERE hash_key = ?`,
	), key.String())

	return scanHub(row)
}

func joinEndpoints(endpoints []vault.HashKey) string {
	hexes := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		hexes = append(hexes, endpoint.String())
	}

	return strings.Join(hexes, ",")
}

func splitEndpoints(joined string) ([]vault.HashKey, error) {
	parts := strings.Split(joined, ",")
	endpoints := make([]vault.HashKey, 0, len(parts))

	for _, part := range parts {
		key, err := vault.ParseHashKey(part)
		if err != nil {
			return nil, err
		}

		endpoints = append(endpoints, key)
	}

	return endpoints, nil
}

func scanLink(row rowScanner) (*vault.Link, error) {
	var (
		keyHex, tenantHex, kind, endpoints string
		createdAt                          int64
	)

	err := row.Scan(&keyHex, &tenantHex, &kind, &endpoints, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: link", vault.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("scan link: %w", err)
	}

	key, err := vault.ParseHashKey(keyHex)
	if err != nil {
		return nil, err
	}

	tenant, err := vault.ParseHashKey(tenantHex)
	if err != nil {
		return nil, err
	}

	parsed, err := splitEndpoints(endpoints)
	if err != nil {
		return nil, err
	}

	return &vault.Link{
		Key:       key,
		TenantKey: tenant,
		Kind:      kind,
		Endpoints: parsed,
		CreatedAt: fromNanos(createdAt),
	}, nil
}

func (s *Store) EnsureLink(ctx context.Context, link vault.Link) (*vault.Link, bool, error) {
	if err := vault.ValidateLink(link); err != nil {
		return nil, false, err
	}

	unique := make(map[vault.HashKey]bool, len(link.Endpoints))
	for _, endpoint := range link.Endpoints {
		unique[endpoint] = true
	}

	var (
		created bool
		stored  *vault.Link
	)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(unique)), ", ")
		args := make([]any, 0, len(unique))

		for endpoint := range unique {
			args = append(args, endpoint.String())
		}

		var present int

		row := tx.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*) FROM hubs WHERE hash_key IN (`+placeholders+`)`,
		), args...)
		if err := row.Scan(&present); err != nil {
			return fmt.Errorf("check link endpoints: %w", err)
		}

		if present != len(unique) {
			return fmt.Errorf("%w: link endpoint hub missing", vault.ErrNotFound)
		}

		res, err := tx.ExecContext(ctx,
			s.rebind(s.insertIgnore("links", "hash_key, tenant_key, kind, endpoints, created_at", 5)),
			link.Key.String(), link.TenantKey.String(), link.Kind, joinEndpoints(link.Endpoints), toNanos(xtime.Now()),
		)
		if err != nil {
			return fmt.Errorf("insert link: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert link: %w", err)
		}

		created = affected == 1

		if created {
			for endpoint := range unique {
				_, err = tx.ExecContext(ctx,
					s.rebind(s.insertIgnore("link_endpoints", "link_key, endpoint_key", 2)),
					link.Key.String(), endpoint.String(),
				)
				if err != nil {
					return fmt.Errorf("index link endpoint: %w", err)
				}
			}
		}

		row = tx.QueryRowContext(ctx, s.rebind(
			`SELECT hash_key, tenant_key, kind, endpoints, created_at FROM links WHERE hash_key = ?`,
		), link.Key.String())

		stored, err = scanLink(row)
		if err != nil {
			return err
		}

		if stored.TenantKey != link.TenantKey || stored.Kind != link.Kind ||
			joinEndpoints(stored.Endpoints) != joinEndpoints(link.Endpoints) {
			return fmt.Errorf("%w: link %s already recorded with different identity", vault.ErrConflict, link.Key)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

func (s *Store) GetLink(ctx context.Context, key vault.HashKey) (*vault.Link, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT hash_key, tenant_key, kind, endpoints, created_at FROM links WHERE hash_key = ?`,
	), key.String())

	return scanLink(row)
}

func (s *Store) LinksByEndpoint(ctx context.Context, endpoint vault.HashKey, kind string) ([]*vault.Link, error) {
	query := `SELECT l.hash_key, l.tenant_key, l.kind, l.endpoints, l.created_at
		FROM links l
		JOIN link_endpoints le ON le.link_key = l.hash_key
		WHERE le.endpoint_key = ?`
	args := []any{endpoint.String()}

	if kind != "" {
		query += ` AND l.kind = ?`

		args = append(args, kind)
	}

	query += ` ORDER BY l.created_at DESC, l.hash_key`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query links by endpoint: %w", err)
	}
	defer rows.Close()

	var links []*vault.Link

	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}

		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query links by endpoint: %w", err)
	}

	return links, nil
}
