package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// schema is the database schema every generic query is qualified against,
// matching the schema qualifier this codebase's existing queries already
// use.
const schema = `"dsl-ob-poc"`

// dispatchGeneric executes one of the nine generic CRUD behaviors against
// tx. Each case builds a single parameterized statement; none of them
// issue more than one round trip, preserving the single-transaction,
// single-statement-per-op discipline the executor's rollback contract
// depends on.
func dispatchGeneric(ctx context.Context, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	b := def.Behavior
	switch b.Kind {
	case registry.Insert:
		return genericInsert(ctx, b.Table, args, def, tx)
	case registry.Upsert:
		return genericUpsert(ctx, b.Table, b.ConflictKeys, args, def, tx)
	case registry.Select:
		return genericSelect(ctx, b.Table, def, args, tx)
	case registry.Update:
		return genericUpdate(ctx, b.Table, def, args, tx)
	case registry.Delete:
		return genericDelete(ctx, b.Table, def, args, tx)
	case registry.Link:
		return genericLink(ctx, b, def, args, tx)
	case registry.Unlink:
		return genericUnlink(ctx, b, args, tx)
	case registry.ListByFk:
		return genericListByFk(ctx, b.Table, b.FkCol, def, args, tx)
	case registry.SelectWithJoin:
		return genericSelectWithJoin(ctx, b, def, args, tx)
	default:
		return Result{}, fmt.Errorf("executor: behavior %q has no generic dispatch", b.Kind)
	}
}

// sortedKeys returns every argument key present in args, excluding skip,
// in a deterministic sorted order.
func sortedKeys(args ResolvedArgs, skip map[string]bool) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if skip[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func genericInsert(ctx context.Context, table string, args ResolvedArgs, def *registry.VerbDef, tx store.Tx) (Result, error) {
	keys := sortedKeys(args, nil)
	cols, placeholders, vals := columnTriples(keys, args, 0)

	returning := returningClause(def, table)
	query := fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES (%s)%s`,
		schema, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), returning)

	return runWriteQuery(ctx, query, vals, def, table, tx)
}

func genericUpsert(ctx context.Context, table string, conflictKeys []string, args ResolvedArgs, def *registry.VerbDef, tx store.Tx) (Result, error) {
	keys := sortedKeys(args, nil)
	cols, placeholders, vals := columnTriples(keys, args, 0)

	conflictCols := make([]string, len(conflictKeys))
	conflictSet := make(map[string]bool, len(conflictKeys))
	for i, k := range conflictKeys {
		conflictCols[i] = ColumnName(k)
		conflictSet[k] = true
	}

	var updates []string
	for _, k := range keys {
		if conflictSet[k] {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ColumnName(k), ColumnName(k)))
	}

	var onConflict string
	if len(updates) == 0 {
		onConflict = fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(conflictCols, ", "))
	} else {
		onConflict = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), strings.Join(updates, ", "))
	}

	returning := returningClause(def, table)
	query := fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES (%s) %s%s`,
		schema, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), onConflict, returning)

	return runWriteQuery(ctx, query, vals, def, table, tx)
}

// genericSelect fetches a single record by the verb's first required
// argument, which by convention is its identifying key (entity-id,
// cbu-id, document-id, ...).
func genericSelect(ctx context.Context, table string, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	idKey := requiredIDKey(def)
	idCol := ColumnName(idKey)
	query := fmt.Sprintf(`SELECT * FROM %s.%s WHERE %s = $1`, schema, table, idCol)
	row, err := tx.FetchOne(ctx, query, args[idKey])
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultRecord, Record: row}, nil
}

func genericUpdate(ctx context.Context, table string, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	idKey := requiredIDKey(def)
	idCol := ColumnName(idKey)

	keys := sortedKeys(args, map[string]bool{idKey: true})
	if len(keys) == 0 {
		return Result{Kind: ResultAffected, Affected: 0}, nil
	}
	sets := make([]string, len(keys))
	vals := make([]any, len(keys)+1)
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", ColumnName(k), i+1)
		vals[i] = args[k]
	}
	vals[len(keys)] = args[idKey]

	query := fmt.Sprintf(`UPDATE %s.%s SET %s WHERE %s = $%d`, schema, table, strings.Join(sets, ", "), idCol, len(keys)+1)
	n, err := tx.Execute(ctx, query, vals...)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultAffected, Affected: n}, nil
}

func genericDelete(ctx context.Context, table string, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	idKey := requiredIDKey(def)
	idCol := ColumnName(idKey)
	query := fmt.Sprintf(`DELETE FROM %s.%s WHERE %s = $1`, schema, table, idCol)
	n, err := tx.Execute(ctx, query, args[idKey])
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultAffected, Affected: n}, nil
}

// genericLink inserts a junction row. from-col/to-col map to the verb's
// required argument keys, and role-col to a required or optional key, by
// matching each key's column name (see linkArgKeys); the order of
// RequiredArgs does not matter.
func genericLink(ctx context.Context, b registry.Behavior, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	fromKey, toKey, roleKey := linkArgKeys(def, b)

	skip := map[string]bool{fromKey: true, toKey: true}
	cols := []string{b.FromCol, b.ToCol}
	vals := []any{args[fromKey], args[toKey]}

	if b.RoleCol != "" && roleKey != "" {
		if v, ok := args[roleKey]; ok {
			cols = append(cols, b.RoleCol)
			vals = append(vals, v)
			skip[roleKey] = true
		}
	}

	extra := sortedKeys(args, skip)
	for _, k := range extra {
		cols = append(cols, ColumnName(k))
		vals = append(vals, args[k])
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	idCol := junctionIDColumn(b.Junction)
	query := fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES (%s) RETURNING %s`,
		schema, b.Junction, strings.Join(cols, ", "), strings.Join(placeholders, ", "), idCol)

	row, err := tx.FetchOne(ctx, query, vals...)
	if err != nil {
		return Result{}, err
	}
	id, _ := rowUUID(row, idCol)
	return Result{Kind: ResultUUID, UUID: id}, nil
}

func genericUnlink(ctx context.Context, b registry.Behavior, args ResolvedArgs, tx store.Tx) (Result, error) {
	fromKey, toKey, roleKey := linkArgKeysFromArgs(args, b)

	where := []string{fmt.Sprintf("%s = $1", b.FromCol), fmt.Sprintf("%s = $2", b.ToCol)}
	vals := []any{args[fromKey], args[toKey]}

	if b.RoleCol != "" && roleKey != "" {
		if v, ok := args[roleKey]; ok {
			where = append(where, fmt.Sprintf("%s = $%d", b.RoleCol, len(vals)+1))
			vals = append(vals, v)
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s.%s WHERE %s`, schema, b.Junction, strings.Join(where, " AND "))
	n, err := tx.Execute(ctx, query, vals...)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultAffected, Affected: n}, nil
}

func genericListByFk(ctx context.Context, table, fkCol string, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	idKey := requiredIDKey(def)
	query := fmt.Sprintf(`SELECT * FROM %s.%s WHERE %s = $1`, schema, table, fkCol)
	rows, err := tx.FetchAll(ctx, query, args[idKey])
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultRecordSet, Records: rows}, nil
}

// genericSelectWithJoin reads primary rows reachable through join on
// join_col, filtered by the verb's single required argument against
// join's filter_col, e.g. "documents linked to entity X": primary =
// document_catalog, join = document_entity_links, join_col = document_id
// (the join predicate), filter_col = entity_id (the WHERE predicate).
func genericSelectWithJoin(ctx context.Context, b registry.Behavior, def *registry.VerbDef, args ResolvedArgs, tx store.Tx) (Result, error) {
	idKey := requiredIDKey(def)
	query := fmt.Sprintf(`SELECT p.* FROM %s.%s p JOIN %s.%s j ON p.%s = j.%s WHERE j.%s = $1`,
		schema, b.PrimaryTable, schema, b.JoinTable, b.JoinCol, b.JoinCol, b.FilterCol)
	rows, err := tx.FetchAll(ctx, query, args[idKey])
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultRecordSet, Records: rows}, nil
}

// runWriteQuery executes an Insert/Upsert statement, choosing FetchOne vs.
// Execute based on the verb's declared return shape.
func runWriteQuery(ctx context.Context, query string, vals []any, def *registry.VerbDef, table string, tx store.Tx) (Result, error) {
	if def.Returns == registry.ReturnsUUID {
		row, err := tx.FetchOne(ctx, query, vals...)
		if err != nil {
			return Result{}, err
		}
		id, _ := rowUUID(row, primaryKeyColumnOf(table))
		return Result{Kind: ResultUUID, UUID: id}, nil
	}
	n, err := tx.Execute(ctx, query, vals...)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultAffected, Affected: n}, nil
}

// returningClause appends a RETURNING clause naming the table's primary
// key column, when the verb captures a Uuid result.
func returningClause(def *registry.VerbDef, table string) string {
	if def.Returns != registry.ReturnsUUID {
		return ""
	}
	return fmt.Sprintf(" RETURNING %s", primaryKeyColumnOf(table))
}

// primaryKeyColumnOf derives the primary key column for a table. The
// entity-subtype tables all share entities' surrogate key; everything
// else follows the <singular>_id convention.
func primaryKeyColumnOf(table string) string {
	switch table {
	case "limited_companies", "proper_persons", "partnerships", "trusts", "entities":
		return "entity_id"
	case "cbus":
		return "cbu_id"
	case "document_catalog":
		return "document_id"
	}
	if strings.HasSuffix(table, "ies") {
		return strings.TrimSuffix(table, "ies") + "y_id"
	}
	return strings.TrimSuffix(table, "s") + "_id"
}

func junctionIDColumn(junction string) string {
	return strings.TrimSuffix(junction, "s") + "_id"
}

func rowUUID(row store.Row, col string) (string, bool) {
	v, ok := row[col]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// requiredIDKey returns the verb's first required argument, the
// identifying key by registry convention (entity-id, cbu-id, ...).
func requiredIDKey(def *registry.VerbDef) string {
	if len(def.RequiredArgs) == 0 {
		return ""
	}
	return def.RequiredArgs[0]
}

// linkArgKeys maps a Link verb's from-col/to-col/role-col to argument
// keys by matching each required argument's column name.
func linkArgKeys(def *registry.VerbDef, b registry.Behavior) (from, to, role string) {
	for _, k := range def.RequiredArgs {
		switch ColumnName(k) {
		case b.FromCol:
			from = k
		case b.ToCol:
			to = k
		}
	}
	if b.RoleCol != "" {
		for _, k := range append(append([]string{}, def.RequiredArgs...), def.OptionalArgs...) {
			if ColumnName(k) == b.RoleCol {
				role = k
			}
		}
	}
	return from, to, role
}

// linkArgKeysFromArgs does the same lookup for Unlink, where arguments
// have already been resolved rather than read from the registry.
func linkArgKeysFromArgs(args ResolvedArgs, b registry.Behavior) (from, to, role string) {
	for k := range args {
		switch ColumnName(k) {
		case b.FromCol:
			from = k
		case b.ToCol:
			to = k
		case b.RoleCol:
			role = k
		}
	}
	return from, to, role
}

func columnTriples(keys []string, args ResolvedArgs, offset int) (cols, placeholders []string, vals []any) {
	cols = make([]string, len(keys))
	placeholders = make([]string, len(keys))
	vals = make([]any, len(keys))
	for i, k := range keys {
		cols[i] = ColumnName(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1+offset)
		vals[i] = args[k]
	}
	return cols, placeholders, vals
}
