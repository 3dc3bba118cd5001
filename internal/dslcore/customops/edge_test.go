package customops

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/diag"
	"kyc-dsl-core/internal/dslcore/executor"
	"kyc-dsl-core/internal/store"
)

func beginMockTx(t *testing.T) (*sqlmock.Sqlmock, *store.TxStore, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectBegin()
	s := store.NewStoreFromDB(db)
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return &mock, tx, func() { db.Close() }
}

const testEdgeID = "33333333-3333-3333-3333-333333333333"

func TestVerifyOp_RejectsUnproofedEdge(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(testEdgeID, "alleged"))

	args := executor.ResolvedArgs{"edge-id": testEdgeID}
	_, err := VerifyOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.Error(t, err)
	d, ok := err.(*diag.Diagnostic)
	require.True(t, ok)
	require.Equal(t, diag.CodePreconditionFailed, d.Code)
}

func TestVerifyOp_TransitionsPendingToProven(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(testEdgeID, "pending"))
	(*mock).ExpectExec(regexp.QuoteMeta(`UPDATE "dsl-ob-poc".ubo_ownership_edges SET state = $1 WHERE edge_id = $2`)).
		WithArgs("proven", testEdgeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	(*mock).ExpectExec(regexp.QuoteMeta(`INSERT INTO "dsl-ob-poc".ubo_observations (edge_id, state) VALUES ($1, $2)`)).
		WithArgs(testEdgeID, "proven").
		WillReturnResult(sqlmock.NewResult(0, 1))

	args := executor.ResolvedArgs{"edge-id": testEdgeID}
	res, err := VerifyOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.NoError(t, err)
	require.Equal(t, executor.ResultVoid, res.Kind)
	require.NoError(t, (*mock).ExpectationsWereMet())
}

func TestVerifyOp_RejectsAlreadyProvenEdge(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(testEdgeID, "proven"))

	args := executor.ResolvedArgs{"edge-id": testEdgeID}
	_, err := VerifyOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.Error(t, err)
	d, ok := err.(*diag.Diagnostic)
	require.True(t, ok)
	require.Equal(t, diag.CodePreconditionFailed, d.Code)
}

func TestAllegeOp_AcceptsIntegerPercentage(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	const (
		testCbuID  = "11111111-1111-1111-1111-111111111111"
		testFromID = "22222222-2222-2222-2222-222222222222"
		testToID   = "44444444-4444-4444-4444-444444444444"
	)

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT cbu_id FROM "dsl-ob-poc".cbus WHERE cbu_id = $1`)).
		WithArgs(testCbuID).
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id"}).AddRow(testCbuID))
	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT entity_id FROM "dsl-ob-poc".entities WHERE entity_id = $1`)).
		WithArgs(testFromID).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(testFromID))
	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT entity_id FROM "dsl-ob-poc".entities WHERE entity_id = $1`)).
		WithArgs(testToID).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow(testToID))
	(*mock).ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".ubo_ownership_edges (cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING edge_id`,
	)).WithArgs(testCbuID, testFromID, testToID, "direct", "100", "alleged").
		WillReturnRows(sqlmock.NewRows([]string{"edge_id"}).AddRow(testEdgeID))

	args := executor.ResolvedArgs{
		"cbu-id": testCbuID, "from-entity-id": testFromID, "to-entity-id": testToID,
		"edge-type": "direct", "percentage": int64(100),
	}
	res, err := AllegeOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.NoError(t, err)
	require.Equal(t, executor.ResultUUID, res.Kind)
	require.Equal(t, testEdgeID, res.UUID)
	require.NoError(t, (*mock).ExpectationsWereMet())
}

func TestLinkProofOp_InsertsProofAndTransitionsAllegedToPending(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	const testDocID = "55555555-5555-5555-5555-555555555555"

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(testEdgeID, "alleged"))
	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT document_id FROM "dsl-ob-poc".document_catalog WHERE document_id = $1`)).
		WithArgs(testDocID).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow(testDocID))
	(*mock).ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "dsl-ob-poc".proofs (edge_id, document_id) VALUES ($1, $2) ON CONFLICT (edge_id, document_id) DO NOTHING`,
	)).WithArgs(testEdgeID, testDocID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	(*mock).ExpectExec(regexp.QuoteMeta(`UPDATE "dsl-ob-poc".ubo_ownership_edges SET state = $1 WHERE edge_id = $2`)).
		WithArgs("pending", testEdgeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	(*mock).ExpectExec(regexp.QuoteMeta(`INSERT INTO "dsl-ob-poc".ubo_observations (edge_id, state) VALUES ($1, $2)`)).
		WithArgs(testEdgeID, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	args := executor.ResolvedArgs{"edge-id": testEdgeID, "document-id": testDocID}
	res, err := LinkProofOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.NoError(t, err)
	require.Equal(t, executor.ResultVoid, res.Kind)
	require.NoError(t, (*mock).ExpectationsWereMet())
}

func TestMarkDirtyOp_TransitionsProvenToPendingWithReason(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}).AddRow(testEdgeID, "proven"))
	(*mock).ExpectExec(regexp.QuoteMeta(
		`UPDATE "dsl-ob-poc".ubo_ownership_edges SET state = $1, dirty_reason = $2 WHERE edge_id = $3`,
	)).WithArgs("pending", "proof expired", testEdgeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	(*mock).ExpectExec(regexp.QuoteMeta(`INSERT INTO "dsl-ob-poc".ubo_observations (edge_id, state) VALUES ($1, $2)`)).
		WithArgs(testEdgeID, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	args := executor.ResolvedArgs{"edge-id": testEdgeID, "reason": "proof expired"}
	res, err := MarkDirtyOp{}.Execute(context.Background(), &ast.VerbCall{}, args, executor.NewContext(), tx)

	require.NoError(t, err)
	require.Equal(t, executor.ResultVoid, res.Kind)
	require.NoError(t, (*mock).ExpectationsWereMet())
}

func TestFetchEdge_UnknownIDIsUnresolvedReference(t *testing.T) {
	mock, tx, closeDB := beginMockTx(t)
	defer closeDB()

	(*mock).ExpectQuery(regexp.QuoteMeta(`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state`)).
		WithArgs(testEdgeID).
		WillReturnRows(sqlmock.NewRows([]string{"edge_id", "state"}))

	_, err := fetchEdge(context.Background(), tx, testEdgeID)
	require.Error(t, err)
	d, ok := err.(*diag.Diagnostic)
	require.True(t, ok)
	require.Equal(t, diag.CodeUnresolvedReference, d.Code)
}
