package sqlvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

const versionColumns = `hash_key, effective_from, effective_to, payload, fingerprint,
	recorded_at, actor_key, session_digest, source, request_id`

func scanVersion(row rowScanner) (*vault.Version, error) {
	var (
		keyHex        string
		effectiveFrom int64
		effectiveTo   sql.NullInt64
		payload       []byte
		fingerprint   int64
		recordedAt    int64
		actorHex      string
		sessionDigest string
		source        string
		requestID     string
	)

	err := row.Scan(&keyHex, &effectiveFrom, &effectiveTo, &payload, &fingerprint,
		&recordedAt, &actorHex, &sessionDigest, &source, &requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version", vault.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}

	key, err := vault.ParseHashKey(keyHex)
	if err != nil {
		return nil, err
	}

	version := &vault.Version{
		Key:           key,
		Payload:       payload,
		Fingerprint:   uint64(fingerprint),
		EffectiveFrom: fromNanos(effectiveFrom),
		RecordedAt:    fromNanos(recordedAt),
		Provenance: vault.Provenance{
			SessionDigest: sessionDigest,
			Source:        source,
			RequestID:     requestID,
		},
	}

	if actorHex != "" {
		actor, err := vault.ParseHashKey(actorHex)
		if err != nil {
			return nil, err
		}

		version.Provenance.ActorKey = actor
	}

	if effectiveTo.Valid {
		to := fromNanos(effectiveTo.Int64)
		version.EffectiveTo = &to
	}

	return version, nil
}

func provenanceColumns(prov vault.Provenance) (actor, session, source, requestID string) {
	if !prov.ActorKey.IsZero() {
		actor = prov.ActorKey.String()
	}

	return actor, prov.SessionDigest, prov.Source, prov.RequestID
}

// lockRecord locks the hub or link row for the key, serializing version
// appends across connections. Reports not-found when neither exists.
func (s *Store) lockRecord(ctx context.Context, tx *sql.Tx, key vault.HashKey) error {
	var locked string

	row := tx.QueryRowContext(ctx, s.rebind(
		`SELECT hash_key FROM hubs WHERE hash_key = ?`+s.forUpdate(),
	), key.String())

	err := row.Scan(&locked)
	if err == nil {
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock hub: %w", err)
	}

	row = tx.QueryRowContext(ctx, s.rebind(
		`SELECT hash_key FROM links WHERE hash_key = ?`+s.forUpdate(),
	), key.String())

	err = row.Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no hub or link for key %s", vault.ErrNotFound, key)
	} else if err != nil {
		return fmt.Errorf("lock link: %w", err)
	}

	return nil
}

func (s *Store) Put(ctx context.Context, key vault.HashKey, payload []byte, prov vault.Provenance) (*vault.PutResult, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", vault.ErrValidation)
	}

	var result *vault.PutResult

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockRecord(ctx, tx, key); err != nil {
			return err
		}

		now := xtime.Now()
		fp := vault.Fingerprint(payload)
		keyHex := key.String()

		var (
			prevFrom int64
			prevTo   sql.NullInt64
			prevFp   int64
		)

		row := tx.QueryRowContext(ctx, s.rebind(
			`SELECT effective_from, effective_to, fingerprint FROM versions
			WHERE hash_key = ? ORDER BY effective_from DESC LIMIT 1`+s.forUpdate(),
		), keyHex)

		err := row.Scan(&prevFrom, &prevTo, &prevFp)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			version, err := s.insertVersion(ctx, tx, key, payload, fp, now, now, prov)
			if err != nil {
				return err
			}

			result = &vault.PutResult{Version: version, Created: true}

			return nil
		case err != nil:
			return fmt.Errorf("read current version: %w", err)
		}

		if uint64(prevFp) == fp && !prevTo.Valid {
			current, err := scanVersion(tx.QueryRowContext(ctx, s.rebind(
				`SELECT `+versionColumns+` FROM versions WHERE hash_key = ? AND effective_from = ?`,
			), keyHex, prevFrom))
			if err != nil {
				return err
			}

			result = &vault.PutResult{Version: current, Created: false}

			return nil
		}

		closeAt, openAt := vault.VersionBoundaries(fromNanos(prevFrom), now)

		if !prevTo.Valid {
			res, err := tx.ExecContext(ctx, s.rebind(
				`UPDATE versions SET effective_to = ? WHERE hash_key = ? AND effective_from = ? AND effective_to IS NULL`,
			), toNanos(closeAt), keyHex, prevFrom)
			if err != nil {
				return fmt.Errorf("close current version: %w", err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("close current version: %w", err)
			}

			if affected != 1 {
				return fmt.Errorf("%w: version log moved under the append", vault.ErrUnavailable)
			}
		}

		version, err := s.insertVersion(ctx, tx, key, payload, fp, openAt, now, prov)
		if err != nil {
			return err
		}

		result = &vault.PutResult{Version: version, Created: true}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) insertVersion(
	ctx context.Context,
	tx *sql.Tx,
	key vault.HashKey,
	payload []byte,
	fp uint64,
	effectiveFrom time.Time,
	recordedAt time.Time,
	prov vault.Provenance,
) (*vault.Version, error) {
	actor, session, source, requestID := provenanceColumns(prov)

	_, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO versions (hash_key, effective_from, effective_to, payload, fingerprint,
			recorded_at, actor_key, session_digest, source, request_id)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?)`,
	), key.String(), toNanos(effectiveFrom), payload, int64(fp), toNanos(recordedAt),
		actor, session, source, requestID)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	return &vault.Version{
		Key:           key,
		Payload:       payload,
		Fingerprint:   fp,
		EffectiveFrom: effectiveFrom,
		RecordedAt:    recordedAt,
		Provenance:    prov,
	}, nil
}

func (s *Store) Current(ctx context.Context, key vault.HashKey) (*vault.Version, error) {
	version, err := scanVersion(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+versionColumns+` FROM versions WHERE hash_key = ? AND effective_to IS NULL`,
	), key.String()))
	if vault.IsNotFound(err) {
		return nil, fmt.Errorf("%w: no current version for key %s", vault.ErrNotFound, key)
	}

	return version, err
}

func (s *Store) AsOf(ctx context.Context, key vault.HashKey, at time.Time) (*vault.Version, error) {
	version, err := scanVersion(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+versionColumns+` FROM versions
		WHERE hash_key = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY effective_from DESC LIMIT 1`,
	), key.String(), toNanos(at), toNanos(at)))
	if vault.IsNotFound(err) {
		return nil, fmt.Errorf("%w: no version for key %s at %s", vault.ErrNotFound, key, at.Format(time.RFC3339Nano))
	}

	return version, err
}

func (s *Store) History(ctx context.Context, key vault.HashKey, cursor string, limit int) (*vault.HistoryPage, error) {
	if limit <= 0 {
		limit = vault.DefaultHistoryLimit
	} else if limit > vault.MaxHistoryLimit {
		limit = vault.MaxHistoryLimit
	}

	query := `SELECT ` + versionColumns + ` FROM versions WHERE hash_key = ?`
	args := []any{key.String()}

	if cursor != "" {
		after, err := vault.DecodeHistoryCursor(cursor)
		if err != nil {
			return nil, err
		}

		query += ` AND effective_from > ?`

		args = append(args, toNanos(after))
	}

	// One extra row tells us whether another page exists.
	query += ` ORDER BY effective_from ASC LIMIT ?`

	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var versions []*vault.Version

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}

		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	page := &vault.HistoryPage{Versions: versions}

	if len(versions) > limit {
		page.Versions = versions[:limit]
		page.NextCursor = vault.EncodeHistoryCursor(page.Versions[limit-1].EffectiveFrom)
	}

	return page, nil
}
