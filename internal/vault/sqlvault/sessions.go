package sqlvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

const sessionColumns = `token_digest, hub_key, tenant_key, actor_key, state,
	issued_at, expires_at, last_score, request_count, bytes_moved,
	max_requests, max_bytes, created_at, updated_at`

func scanSession(row rowScanner) (*vault.Session, error) {
	var digest, hubHex, tenantHex, actorHex, state string

	var issuedAt, expiresAt, lastScore, requestCount, bytesMoved, maxRequests, maxBytes, createdAt, updatedAt int64

	err := row.Scan(&digest, &hubHex, &tenantHex, &actorHex, &state,
		&issuedAt, &expiresAt, &lastScore, &requestCount, &bytesMoved,
		&maxRequests, &maxBytes, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session", vault.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	hub, err := vault.ParseHashKey(hubHex)
	if err != nil {
		return nil, err
	}

	tenant, err := vault.ParseHashKey(tenantHex)
	if err != nil {
		return nil, err
	}

	actor, err := vault.ParseHashKey(actorHex)
	if err != nil {
		return nil, err
	}

	return &vault.Session{
		TokenDigest:  digest,
		HubKey:       hub,
		TenantKey:    tenant,
		ActorKey:     actor,
		State:        vault.SessionState(state),
		IssuedAt:     fromNanos(issuedAt),
		ExpiresAt:    fromNanos(expiresAt),
		LastScore:    int(lastScore),
		RequestCount: requestCount,
		BytesMoved:   bytesMoved,
		MaxRequests:  maxRequests,
		MaxBytes:     maxBytes,
		CreatedAt:    fromNanos(createdAt),
		UpdatedAt:    fromNanos(updatedAt),
	}, nil
}

func (s *Store) InsertSession(ctx context.Context, session *vault.Session) error {
	if err := vault.ValidateSession(session); err != nil {
		return err
	}

	now := xtime.Now()

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(s.insertIgnore("sessions", sessionColumns, 14)),
		session.TokenDigest, session.HubKey.String(), session.TenantKey.String(),
		session.ActorKey.String(), string(session.State),
		toNanos(session.IssuedAt), toNanos(session.ExpiresAt),
		session.LastScore, session.RequestCount, session.BytesMoved,
		session.MaxRequests, session.MaxBytes,
		toNanos(createdAt), toNanos(now),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: session %s already recorded", vault.ErrConflict, session.TokenDigest)
	}

	session.CreatedAt = createdAt
	session.UpdatedAt = now

	return nil
}

func (s *Store) GetSession(ctx context.Context, tokenDigest string) (*vault.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sessionColumns+` FROM sessions WHERE token_digest = ?`,
	), tokenDigest))
}

func (s *Store) MutateSession(ctx context.Context, tokenDigest string, fn func(*vault.Session) error) (*vault.Session, error) {
	var mutated *vault.Session

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		session, err := scanSession(tx.QueryRowContext(ctx, s.rebind(
			`SELECT `+sessionColumns+` FROM sessions WHERE token_digest = ?`+s.forUpdate(),
		), tokenDigest))
		if err != nil {
			return err
		}

		mutated = session.Clone()
		if err := fn(mutated); err != nil {
			return err
		}

		mutated.TokenDigest = session.TokenDigest
		mutated.UpdatedAt = xtime.Now()

		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE sessions SET state = ?, issued_at = ?, expires_at = ?, last_score = ?,
				request_count = ?, bytes_moved = ?, max_requests = ?, max_bytes = ?, updated_at = ?
			WHERE token_digest = ?`,
		), string(mutated.State), toNanos(mutated.IssuedAt), toNanos(mutated.ExpiresAt),
			mutated.LastScore, mutated.RequestCount, mutated.BytesMoved,
			mutated.MaxRequests, mutated.MaxBytes, toNanos(mutated.UpdatedAt),
			mutated.TokenDigest)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return mutated, nil
}

func (s *Store) ListSessions(ctx context.Context, filter vault.SessionFilter) ([]*vault.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`

	var (
		conds []string
		args  []any
	)

	if !filter.TenantKey.IsZero() {
		conds = append(conds, `tenant_key = ?`)
		args = append(args, filter.TenantKey.String())
	}

	if !filter.ActorKey.IsZero() {
		conds = append(conds, `actor_key = ?`)
		args = append(args, filter.ActorKey.String())
	}

	if len(filter.States) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.States)), ", ")
		conds = append(conds, `state IN (`+placeholders+`)`)

		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}

	if !filter.UpdatedBefore.IsZero() {
		conds = append(conds, `updated_at < ?`)
		args = append(args, toNanos(filter.UpdatedBefore))
	}

	if !filter.UpdatedSince.IsZero() {
		conds = append(conds, `updated_at > ?`)
		args = append(args, toNanos(filter.UpdatedSince))
	}

	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	query += ` ORDER BY updated_at ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*vault.Session

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	return sessions, nil
}

func (s *Store) DeleteSessions(ctx context.Context, tokenDigests []string) (int, error) {
	if len(tokenDigests) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tokenDigests)), ", ")
	args := make([]any, 0, len(tokenDigests))

	for _, digest := range tokenDigests {
		args = append(args, digest)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM sessions WHERE token_digest IN (`+placeholders+`)`,
	), args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	return int(affected), nil
}
