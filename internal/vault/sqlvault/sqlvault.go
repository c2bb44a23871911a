// Package sqlvault persists the vault on a relational database. It
// speaks sqlite, postgres and mysql through database/sql, keeping every
// temporal column as integer epoch nanoseconds so version boundaries
// survive dialects whose native timestamp types round below nanosecond
// precision.
package sqlvault

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	_ "github.com/keeldata/trustvault/internal/pkg/sqlite"
	"github.com/keeldata/trustvault/internal/vault"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
)

// Store implements vault.Store on a SQL database.
type Store struct {
	db      *sql.DB
	dialect string
	// dollar switches placeholder style to $1..$n for postgres.
	dollar bool
}

var _ vault.Store = (*Store)(nil)

// Open connects to the database, runs migrations and returns the store.
// Accepted dialects follow common aliases: sqlite/sqlite3, postgres and
// friends, mysql/tidb.
func Open(dialect, dsn string) (*Store, error) {
	var (
		driver     string
		normalized string
	)

	switch dialect {
	case "postgres", "pgx", "postgresdb", "pg", "postgresql":
		driver, normalized = "pgx", dialectPostgres
	case "sqlite3", "sqlite":
		driver, normalized = "sqlite3", dialectSQLite
	case "mysql", "tidb":
		driver, normalized = "mysql", dialectMySQL
	default:
		return nil, fmt.Errorf("%w: unknown sql dialect %q", vault.ErrValidation, dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", normalized, err)
	}

	if normalized == dialectSQLite && strings.Contains(dsn, ":memory:") {
		// A shared in-memory database evaporates when its last
		// connection closes; a single connection keeps it alive.
		db.SetMaxOpenConns(1)
	}

	store := &Store{
		db:      db,
		dialect: normalized,
		dollar:  normalized == dialectPostgres,
	}

	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

// rebind rewrites ? placeholders into the dialect's native style.
func (s *Store) rebind(query string) string {
	if !s.dollar {
		return query
	}

	var sb strings.Builder

	n := 0

	for _, r := range query {
		if r == '?' {
			n++

			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))

			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

// insertIgnore renders an idempotent insert for the dialect.
func (s *Store) insertIgnore(table, columns string, values int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", values), ", ")

	if s.dialect == dialectMySQL {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", table, columns, placeholders)
}

// forUpdate renders a locking-read suffix where the dialect has one.
// sqlite serializes writers on its own.
func (s *Store) forUpdate() string {
	if s.dialect == dialectSQLite {
		return ""
	}

	return " FOR UPDATE"
}

func (s *Store) blobType() string {
	if s.dialect == dialectPostgres {
		return "BYTEA"
	}

	return "BLOB"
}

func (s *Store) migrate(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS hubs (
			hash_key VARCHAR(64) PRIMARY KEY,
			tenant_key VARCHAR(64) NOT NULL,
			kind VARCHAR(128) NOT NULL,
			business_key TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			hash_key VARCHAR(64) PRIMARY KEY,
			tenant_key VARCHAR(64) NOT NULL,
			kind VARCHAR(128) NOT NULL,
			endpoints TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS link_endpoints (
			link_key VARCHAR(64) NOT NULL,
			endpoint_key VARCHAR(64) NOT NULL,
			PRIMARY KEY (link_key, endpoint_key)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS versions (
			hash_key VARCHAR(64) NOT NULL,
			effective_from BIGINT NOT NULL,
			effective_to BIGINT,
			payload %s NOT NULL,
			fingerprint BIGINT NOT NULL,
			recorded_at BIGINT NOT NULL,
			actor_key VARCHAR(64) NOT NULL DEFAULT '',
			session_digest VARCHAR(64) NOT NULL DEFAULT '',
			source VARCHAR(32) NOT NULL DEFAULT '',
			request_id VARCHAR(128) NOT NULL DEFAULT '',
			PRIMARY KEY (hash_key, effective_from)
		)`, s.blobType()),
		`CREATE TABLE IF NOT EXISTS sessions (
			token_digest VARCHAR(64) PRIMARY KEY,
			hub_key VARCHAR(64) NOT NULL,
			tenant_key VARCHAR(64) NOT NULL,
			actor_key VARCHAR(64) NOT NULL,
			state VARCHAR(16) NOT NULL,
			issued_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			last_score INTEGER NOT NULL DEFAULT 0,
			request_count BIGINT NOT NULL DEFAULT 0,
			bytes_moved BIGINT NOT NULL DEFAULT 0,
			max_requests BIGINT NOT NULL DEFAULT 0,
			max_bytes BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate vault schema: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_hubs_tenant_kind ON hubs (tenant_key, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_link_endpoints_endpoint ON link_endpoints (endpoint_key)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_open ON versions (hash_key, effective_to)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state_updated ON sessions (state, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_tenant_actor ON sessions (tenant_key, actor_key)`,
	}

	for _, ddl := range indexes {
		if s.dialect == dialectMySQL {
			// mysql has no IF NOT EXISTS for indexes; tolerate reruns.
			ddl = strings.Replace(ddl, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)

			if _, err := s.db.ExecContext(ctx, ddl); err != nil && !strings.Contains(err.Error(), "Duplicate key name") {
				return fmt.Errorf("migrate vault indexes: %w", err)
			}

			continue
		}

		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate vault indexes: %w", err)
		}
	}

	return nil
}

// inTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()

			panic(r)
		}

		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	committed = true

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", vault.ErrUnavailable, err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
