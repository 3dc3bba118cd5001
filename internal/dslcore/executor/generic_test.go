package executor

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// beginSQLTx opens a store.TxStore against db, consuming the caller's
// mock.ExpectBegin() expectation.
func beginSQLTx(t *testing.T, db *sql.DB) (*store.TxStore, error) {
	t.Helper()
	s := store.NewStoreFromDB(db)
	return s.Begin(context.Background())
}

func TestGenericInsert_BuildsParameterizedInsertWithReturning(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "dsl-ob-poc".cbus (client_type, jurisdiction, name) VALUES ($1, $2, $3) RETURNING cbu_id`)).
		WithArgs("fund", "LU", "Test Fund").
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id"}).AddRow("11111111-1111-1111-1111-111111111111"))

	tx, err := beginSQLTx(t, db)
	require.NoError(t, err)

	def := &registry.VerbDef{
		Domain:  "cbu",
		Verb:    "create",
		Behavior: registry.Behavior{Kind: registry.Insert, Table: "cbus"},
		Returns: registry.ReturnsUUID,
	}
	args := ResolvedArgs{"name": "Test Fund", "jurisdiction": "LU", "client-type": "fund"}

	res, err := dispatchGeneric(context.Background(), def, args, tx)
	require.NoError(t, err)
	require.Equal(t, ResultUUID, res.Kind)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", res.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenericSelect_FetchesByFirstRequiredArg(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "dsl-ob-poc".cbus WHERE cbu_id = $1`)).
		WithArgs("11111111-1111-1111-1111-111111111111").
		WillReturnRows(sqlmock.NewRows([]string{"cbu_id", "name"}).AddRow("11111111-1111-1111-1111-111111111111", "Test Fund"))

	tx, err := beginSQLTx(t, db)
	require.NoError(t, err)

	def := &registry.VerbDef{
		Domain:       "cbu",
		Verb:         "read",
		Behavior:     registry.Behavior{Kind: registry.Select, Table: "cbus"},
		RequiredArgs: []string{"cbu-id"},
		Returns:      registry.ReturnsRecord,
	}
	args := ResolvedArgs{"cbu-id": "11111111-1111-1111-1111-111111111111"}

	res, err := dispatchGeneric(context.Background(), def, args, tx)
	require.NoError(t, err)
	require.Equal(t, ResultRecord, res.Kind)
	require.Equal(t, "Test Fund", res.Record["name"])
}

func TestGenericSelectWithJoin_FiltersOnDistinctColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT p.* FROM "dsl-ob-poc".document_catalog p JOIN "dsl-ob-poc".document_entity_links j ON p.document_id = j.document_id WHERE j.entity_id = $1`,
	)).WithArgs("22222222-2222-2222-2222-222222222222").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "doc_type"}).AddRow("d1", "passport"))

	tx, err := beginSQLTx(t, db)
	require.NoError(t, err)

	def := &registry.VerbDef{
		Domain: "document",
		Verb:   "for-entity",
		Behavior: registry.Behavior{
			Kind: registry.SelectWithJoin, PrimaryTable: "document_catalog",
			JoinTable: "document_entity_links", JoinCol: "document_id", FilterCol: "entity_id",
		},
		RequiredArgs: []string{"entity-id"},
		Returns:      registry.ReturnsRecordSet,
	}
	args := ResolvedArgs{"entity-id": "22222222-2222-2222-2222-222222222222"}

	res, err := dispatchGeneric(context.Background(), def, args, tx)
	require.NoError(t, err)
	require.Equal(t, ResultRecordSet, res.Kind)
	require.Len(t, res.Records, 1)
}
