package pipeline

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"kyc-dsl-core/internal/dslcore/customops"
	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// buildEngine loads the real verb registry and handler table against a
// sqlmock-backed store, mirroring how cmd/harness and cmd/dslcore wire an
// Engine at startup.
func buildEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	handlers, err := customops.NewHandlerTable()
	require.NoError(t, err)
	reg, err := registry.LoadFile("../../../configs/verbs.yaml", customops.Names())
	require.NoError(t, err)

	s := store.NewStoreFromDB(db)
	engine := &Engine{Registry: reg, Handlers: handlers, Store: s}
	return engine, mock, func() { db.Close() }
}

const (
	cbuID  = "11111111-1111-1111-1111-111111111111"
	uboID  = "22222222-2222-2222-2222-222222222222"
	holdID = "44444444-4444-4444-4444-444444444444"
	docID  = "55555555-5555-5555-5555-555555555555"
	edgeID = "33333333-3333-3333-3333-333333333333"
)

// TestEngine_Run_FullAllegationChain exercises cbu.ensure, two entity
// creations, document.catalog, and the ubo.allege/link-proof/verify
// convergence chain in one transaction: the same verbs cmd/harness's
// "Allege and verify ownership edge" case drives, with document.catalog
// placed ahead of ubo.allege.
func TestEngine_Run_FullAllegationChain(t *testing.T) {
	engine, mock, closeDB := buildEngine(t)
	defer closeDB()

	src := `
(cbu.ensure :name "Acme Fund" :jurisdiction "LU" :as @cbu)
(entity.create-proper-person :first-name "Jane" :last-name "Doe" :as @ubo)
(entity.create-limited-company :name "HoldCo" :as @hold)
(document.catalog :cbu-id @cbu :doc-type "passport" :as @doc)
(ubo.allege :cbu-id @cbu :from-entity-id @ubo :to-entity-id @hold :edge-type "direct" :percentage 100 :as @edge)
(ubo.link-proof :edge-id @edge :document-id @doc)
(ubo.verify :edge-id @edge)
`

	mock.ExpectBegin()

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".cbus (jurisdiction, name) VALUES ($1, $2) ON CONFLICT (name, jurisdiction) DO NOTHING RETURNING cbu_id`,
	)).WithArgs("LU", "Acme Fund").
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id"}).AddRow(cbuID))

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".proper_persons (first_name, last_name) VALUES ($1, $2) RETURNING entity_id`,
	)).WithArgs("Jane", "Doe").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(uboID))

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".limited_companies (name) VALUES ($1) RETURNING entity_id`,
	)).WithArgs("HoldCo").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(holdID))

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".document_catalog (cbu_id, doc_type) VALUES ($1, $2) RETURNING document_id`,
	)).WithArgs(cbuID, "passport").
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow(docID))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cbu_id FROM "dsl-ob-poc".cbus WHERE cbu_id = $1`)).
		WithArgs(cbuID).
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id"}).AddRow(cbuID))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entity_id FROM "dsl-ob-poc".entities WHERE entity_id = $1`)).
		WithArgs(uboID).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(uboID))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entity_id FROM "dsl-ob-poc".entities WHERE entity_id = $1`)).
		WithArgs(holdID).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(holdID))
	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".ubo_ownership_edges (cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING edge_id`,
	)).WithArgs(cbuID, uboID, holdID, "direct", "100", "alleged").
		WillReturnRows(sqlmock.NewRows([]string{"edge_id"}).AddRow(edgeID))

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state
		 FROM "dsl-ob-poc".ubo_ownership_edges WHERE edge_id = $1`,
	)).WithArgs(edgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(edgeID, "alleged"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document_id FROM "dsl-ob-poc".document_catalog WHERE document_id = $1`)).
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow(docID))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".proofs (edge_id, document_id) VALUES ($1, $2) ON CONFLICT (edge_id, document_id) DO NOTHING`,
	)).WithArgs(edgeID, docID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE "dsl-ob-poc".ubo_ownership_edges SET state = $1 WHERE edge_id = $2`,
	)).WithArgs("pending", edgeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".ubo_observations (edge_id, state) VALUES ($1, $2)`,
	)).WithArgs(edgeID, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state
		 FROM "dsl-ob-poc".ubo_ownership_edges WHERE edge_id = $1`,
	)).WithArgs(edgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(edgeID, "pending"))
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE "dsl-ob-poc".ubo_ownership_edges SET state = $1 WHERE edge_id = $2`,
	)).WithArgs("proven", edgeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".ubo_observations (edge_id, state) VALUES ($1, $2)`,
	)).WithArgs(edgeID, "proven").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	outcome, diags, err := engine.Run(context.Background(), src)
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.Equal(t, cbuID, outcome.Symbols["cbu"])
	require.Equal(t, edgeID, outcome.Symbols["edge"])
	require.Len(t, outcome.Results, 7)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestEngine_Run_RollsBackOnDispatchError exercises the
// unresolved-reference failure path: ubo.allege given a cbu-id that does
// not exist must abort the whole transaction with a rollback, not commit
// a partial result.
func TestEngine_Run_RollsBackOnDispatchError(t *testing.T) {
	engine, mock, closeDB := buildEngine(t)
	defer closeDB()

	src := `
(entity.create-proper-person :first-name "Jane" :last-name "Doe" :as @ubo)
(ubo.allege :cbu-id "00000000-0000-0000-0000-000000000000" :from-entity-id @ubo :to-entity-id @ubo :edge-type "direct")
`

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".proper_persons (first_name, last_name) VALUES ($1, $2) RETURNING entity_id`,
	)).WithArgs("Jane", "Doe").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(uboID))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cbu_id FROM "dsl-ob-poc".cbus WHERE cbu_id = $1`)).
		WithArgs("00000000-0000-0000-0000-000000000000").
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id"}))
	mock.ExpectRollback()

	outcome, _, err := engine.Run(context.Background(), src)
	require.Error(t, err)
	require.Nil(t, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestEngine_Compile_ReportsInvalidVerbWithoutTouchingStore confirms plan
// failures never reach the store: the registry rejects an undefined verb
// before any SQL is issued.
func TestEngine_Compile_ReportsInvalidVerbWithoutTouchingStore(t *testing.T) {
	engine, mock, closeDB := buildEngine(t)
	defer closeDB()

	result, err := engine.Compile(`(nosuch.verb :x 1)`)
	require.Error(t, err)
	require.True(t, result.Diagnostics.HasErrors())
	require.NoError(t, mock.ExpectationsWereMet())
}
