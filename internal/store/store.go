package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// Store holds the database connection pool the executor opens transactions
// against. It carries no domain-specific methods of its own: every CRUD
// operation the DSL core needs is generic, driven by the Verb Registry's
// behavior parameters and dispatched through Tx (see tx.go and
// internal/dslcore/executor). Wrapping *sqlx.DB rather than *sql.DB follows
// this codebase's own connection-handling convention (internal/vocabulary's
// PostgresRepository); Tx uses sqlx's MapScan to turn a result row
// straight into a Row without a hand-rolled column-reflection loop.
type Store struct {
	db *sqlx.DB
}

// NewStore opens a connection pool against connString and verifies it with
// a ping.
func NewStore(connString string) (*Store, error) {
	db, err := sqlx.Connect("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromDB constructs a Store from an existing *sql.DB, used by tests
// to wrap a go-sqlmock connection.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
