package db

import (
	"context"

	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/vault"
	"github.com/keeldata/trustvault/internal/vault/sqlvault"
)

// Supported vault backends.
const (
	DialectMemory   = "memory"
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

type Config struct {
	// Dialect selects the backend: memory (default), sqlite, postgres, mysql.
	Dialect string `conf:"dialect" yaml:"dialect" json:"dialect"`
	DSN     string `conf:"dsn" yaml:"dsn" json:"dsn"`
	Debug   bool   `conf:"debug" yaml:"debug" json:"debug"`
}

// NewStore opens the configured vault backend. Wiring failures are fatal;
// there is nothing to serve without a store.
func NewStore(cfg Config) vault.Store {
	if cfg.Dialect == "" || cfg.Dialect == DialectMemory {
		if cfg.Debug {
			log.Debug(context.Background(), "vault store opened", log.String("dialect", "memory"))
		}

		return vault.NewMemoryStore()
	}

	store, err := sqlvault.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		panic(err)
	}

	if cfg.Debug {
		log.Debug(context.Background(), "vault store opened", log.String("dialect", cfg.Dialect))
	}

	return store
}
