package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tx is the store contract the DSL core depends on: transactional
// begin/commit/rollback plus parameterized execute/fetch operations and
// stored-function invocation. The core treats the store as a black box
// satisfying ACID semantics and unique-constraint enforcement. The generic
// behaviors take table and column names from the Verb Registry's behavior
// parameters; the schema qualifier is a constant in the executor, and the
// Custom handlers in customops name their own tables directly.
type Tx interface {
	Execute(ctx context.Context, query string, args ...any) (rowsAffected int64, err error)
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)
	FetchOptional(ctx context.Context, query string, args ...any) (Row, bool, error)
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)
	FetchScalar(ctx context.Context, query string, args ...any) (any, error)
	CallFunction(ctx context.Context, name string, args ...any) ([]Row, error)
	Commit() error
	Rollback() error
}

// Row is a single returned record, keyed by column name.
type Row map[string]any

// TxStore wraps a single *sqlx.Tx and implements Tx over it. It is opened by
// Store.Begin at the start of an executor run and committed or rolled back
// exactly once, mirroring the transaction lifecycle this codebase already
// uses in Store.SeedCatalog.
type TxStore struct {
	tx *sqlx.Tx
}

// Begin opens a new transaction against the store's connection pool. The
// executor opens exactly one of these per program run; no nested
// transactions are ever created.
func (s *Store) Begin(ctx context.Context) (*TxStore, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	return &TxStore{tx: tx}, nil
}

func (t *TxStore) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *TxStore) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	row, ok, err := t.FetchOptional(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return row, nil
}

func (t *TxStore) FetchOptional(ctx context.Context, query string, args ...any) (Row, bool, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	row := make(Row)
	if err := rows.MapScan(row); err != nil {
		return nil, false, err
	}
	return row, true, rows.Err()
}

func (t *TxStore) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		row := make(Row)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *TxStore) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	var v any
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CallFunction invokes a stored SQL function of the form
// "SELECT * FROM name(args...)" and returns its result rows. Used by the
// SQL-function-backed alternative implementations of recursive store-side
// computations (e.g. ownership-chain traversal) that this repository's
// in-application traversal takes as an alternative path; kept as part of
// the contract so a future store-side implementation can be swapped in
// without changing the executor or custom handlers.
func (t *TxStore) CallFunction(ctx context.Context, name string, args ...any) ([]Row, error) {
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("SELECT * FROM %s(%s)", name, joinPlaceholders(placeholders))
	return t.FetchAll(ctx, query, args...)
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (t *TxStore) Commit() error   { return t.tx.Commit() }
func (t *TxStore) Rollback() error { return t.tx.Rollback() }
