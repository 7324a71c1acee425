package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"docqa/internal/store/migrations"
)

// DefaultDSN is used when no database path is configured.
const DefaultDSN = "store/docqa.db"

// Store holds the sqlite handle shared by the ingest ledger and the embedding cache.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the sqlite database at dsn and applies migrations.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	dir := filepath.Dir(dsn)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under concurrent ingest.
	db.SetMaxOpenConns(1)
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	entries, err := migrations.SQLite.ReadDir("sqlite")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, e := range entries {
		data, err := migrations.SQLite.ReadFile("sqlite/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if _, err := db.Exec(string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ledger returns the ingest ledger backed by this store.
func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{db: s.db}
}

// EmbeddingCache returns the embedding cache repository backed by this store.
func (s *Store) EmbeddingCache() *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: s.db}
}
