package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/expr"
	"github.com/inclue/pulse/internal/validation"
)

// Compile-time check to verify that TableAccessor implements entity.Accessor.
var _ entity.Accessor = (*TableAccessor)(nil)

// identifierPattern guards table and column names interpolated into SQL text.
// Values never go through this path; they are always bound parameters.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// opSQL maps the restricted filter operators to their SQL form. Membership
// operators are handled separately because they bind array parameters.
var opSQL = map[string]string{
	"=":  "=",
	"!=": "<>",
	">":  ">",
	">=": ">=",
	"<":  "<",
	"<=": "<=",
}

// TableAccessor exposes one database table as a queryable entity type.
// The column list is a hard allow-list: predicates referencing any other
// field are rejected before a query is built.
type TableAccessor struct {
	db      *pgxpool.Pool
	table   string
	columns []string
	fields  map[string]struct{}
}

// NewTableAccessor creates an accessor for the given table. It panics on an
// invalid table name or column list since accessors are registered once at
// startup and a bad identifier is a programming error.
func NewTableAccessor(db *pgxpool.Pool, table string, columns []string) *TableAccessor {
	validation.AssertNotNil(db, "database pool")
	if !identifierPattern.MatchString(table) {
		panic(fmt.Sprintf("store: invalid table name %q", table))
	}
	if len(columns) == 0 {
		panic(fmt.Sprintf("store: table %q needs at least one column", table))
	}

	fields := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if !identifierPattern.MatchString(col) {
			panic(fmt.Sprintf("store: invalid column name %q on table %q", col, table))
		}
		fields[col] = struct{}{}
	}

	return &TableAccessor{
		db:      db,
		table:   table,
		columns: columns,
		fields:  fields,
	}
}

// FieldNames returns the set of queryable columns.
func (a *TableAccessor) FieldNames() map[string]struct{} {
	return a.fields
}

// Count returns the number of rows matching the predicate.
func (a *TableAccessor) Count(ctx context.Context, p expr.Predicate) (int, error) {
	where, args, err := a.buildWhere(p)
	if err != nil {
		return 0, err
	}

	var n int
	query := `SELECT count(*) FROM ` + a.table + where
	if err := a.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", a.table, err)
	}

	return n, nil
}

// Fetch returns the rows matching the predicate as generic records. Every
// allow-listed column is selected so formulas can reference any of them.
func (a *TableAccessor) Fetch(ctx context.Context, p expr.Predicate) (entity.RecordSet, error) {
	where, args, err := a.buildWhere(p)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + strings.Join(a.columns, ", ") + ` FROM ` + a.table + where

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s rows: %w", a.table, err)
	}
	defer rows.Close()

	records := make(entity.RecordSet, 0, 64)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", a.table, err)
		}

		rec := make(entity.Record, len(a.columns))
		for i, col := range a.columns {
			rec[col] = values[i]
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// buildWhere translates the predicate into a parameterized WHERE clause.
// Returns an empty string for an empty predicate.
func (a *TableAccessor) buildWhere(p expr.Predicate) (string, []any, error) {
	if len(p) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(p))
	args := make([]any, 0, len(p))

	for _, cond := range p {
		if _, ok := a.fields[cond.Field]; !ok {
			return "", nil, fmt.Errorf("unknown field %q on %s", cond.Field, a.table)
		}

		args = append(args, bindValue(cond))
		n := len(args)

		switch cond.Op {
		case "in":
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", cond.Field, n))
		case "not in":
			clauses = append(clauses, fmt.Sprintf("%s <> ALL($%d)", cond.Field, n))
		default:
			sqlOp, ok := opSQL[cond.Op]
			if !ok {
				return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
			}
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", cond.Field, sqlOp, n))
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// bindValue normalizes membership values to a slice so pgx binds them as an array.
func bindValue(cond expr.Condition) any {
	if cond.Op != "in" && cond.Op != "not in" {
		return cond.Value
	}
	if list, ok := cond.Value.([]any); ok {
		return list
	}
	return []any{cond.Value}
}
