package db

import (
	"fmt"

	"github.com/cmlburnett/sqlitehelper/core/errors"
	"github.com/cmlburnett/sqlitehelper/core/query"
	"github.com/cmlburnett/sqlitehelper/core/schema"
)

// lookupKind classifies the derived lookup a column gets at accessor
// construction time.
type lookupKind int

const (
	// lookupRows: plain column, value may repeat, lookup yields id lists.
	lookupRows lookupKind = iota
	// lookupRowID: unique column, lookup yields at most one id.
	lookupRowID
	// lookupRow: primary key column, lookup yields the full row.
	lookupRow
)

// lookup is one derived per-column lookup descriptor.
type lookup struct {
	col  schema.Column
	kind lookupKind
}

func classify(col schema.Column) lookup {
	switch {
	case col.PrimaryKey:
		return lookup{col: col, kind: lookupRow}
	case col.Unique:
		return lookup{col: col, kind: lookupRowID}
	default:
		return lookup{col: col, kind: lookupRows}
	}
}

// Table is the accessor bound to one table declaration. All statements
// it issues go through the owning DB's retry and transaction machinery.
type Table struct {
	db      *DB
	decl    schema.Table
	lookups map[string]lookup

	// idCol names the row identifier column: the declared primary key,
	// or the engine's implicit rowid when none is declared.
	idCol string
}

func newTable(d *DB, decl schema.Table) *Table {
	t := &Table{
		db:      d,
		decl:    decl,
		lookups: make(map[string]lookup, len(decl.Columns)),
		idCol:   "rowid",
	}
	if pk, ok := decl.PrimaryKey(); ok {
		t.idCol = pk.Name
	}
	for _, col := range decl.Columns {
		t.lookups[col.Name] = classify(col)
	}
	return t
}

// Name returns the declared table name.
func (t *Table) Name() string {
	return t.decl.Name
}

// ColumnNames returns the declared column names in declaration order.
func (t *Table) ColumnNames() []string {
	return t.decl.ColumnNames()
}

// HasColumn reports whether the declaration includes the named column.
func (t *Table) HasColumn(name string) bool {
	return t.decl.HasColumn(name)
}

// Declaration returns the schema declaration the accessor was built from.
func (t *Table) Declaration() schema.Table {
	return t.decl
}

// Select fetches rows. cols nil selects all columns; an explicit empty
// list is an error. where is a raw predicate with ? placeholders bound
// to vals; empty means no WHERE clause. order is a raw ORDER BY body;
// empty means engine order.
func (t *Table) Select(cols []string, where string, vals []any, order string) ([]Row, error) {
	sqlText, err := query.Select(t.decl.Name, cols, where, order)
	if err != nil {
		return nil, err
	}
	return t.db.queryRows(&t.decl, sqlText, vals)
}

// SelectOne fetches the first matching row, or nil when nothing matches.
func (t *Table) SelectOne(cols []string, where string, vals ...any) (Row, error) {
	rows, err := t.Select(cols, where, vals, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Insert adds one row from a column-to-value map and returns the newly
// assigned row identifier.
func (t *Table) Insert(row map[string]any) (int64, error) {
	sqlText, vals, err := query.Insert(t.decl.Name, row)
	if err != nil {
		return 0, err
	}
	res, err := t.db.exec(sqlText, vals)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update applies set to every row matched by the where equality map,
// with fragments joined by AND or OR. It returns the affected row count.
// An empty where map updates nothing: the statement it produces is
// rejected by the engine rather than silently touching every row.
func (t *Table) Update(set, where map[string]any, join string) (int64, error) {
	sqlText, vals, err := query.Update(t.decl.Name, set, where, join)
	if err != nil {
		return 0, err
	}
	res, err := t.db.exec(sqlText, vals)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes every row matched by the where equality map, with
// fragments joined by AND or OR. It returns the affected row count. An
// empty where map deletes nothing, same as Update.
func (t *Table) Delete(where map[string]any, join string) (int64, error) {
	sqlText, vals, err := query.Delete(t.decl.Name, where, join)
	if err != nil {
		return 0, err
	}
	res, err := t.db.exec(sqlText, vals)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountRows counts rows, optionally restricted by a raw predicate.
func (t *Table) CountRows(where string, vals ...any) (int64, error) {
	sqlText := query.Count(t.decl.Name, where)
	rows, err := t.db.queryRows(nil, sqlText, vals)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch n := rows[0]["count"].(type) {
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("count on %s: unexpected result %T", t.decl.Name, n)
	}
}

// Get fetches the full row whose primary key equals pk, or nil when no
// such row exists. Tables without a declared primary key do not have
// this lookup.
func (t *Table) Get(pk any) (Row, error) {
	lk, ok := t.lookups[t.idCol]
	if !ok || lk.kind != lookupRow {
		return nil, errors.Wrapf(errors.ErrNoPrimaryKey, "table %s", t.decl.Name)
	}
	return t.SelectOne(nil, equalPredicate(lk.col.Name), pk)
}

// RowID finds the row identifier where col equals v. The boolean reports
// whether a row matched. The lookup exists only for unique or primary
// key columns; plain columns may match many rows and are refused.
func (t *Table) RowID(col string, v any) (int64, bool, error) {
	lk, ok := t.lookups[col]
	if !ok {
		return 0, false, errors.Wrapf(errors.ErrUnknownColumn, "%s.%s", t.decl.Name, col)
	}
	if lk.kind == lookupRows {
		return 0, false, errors.Wrapf(errors.ErrNotUnique, "%s.%s", t.decl.Name, col)
	}

	row, err := t.SelectOne([]string{t.idCol}, equalPredicate(col), v)
	if err != nil {
		return 0, false, err
	}
	if row == nil {
		return 0, false, nil
	}
	id, err := rowIDValue(t.decl.Name, row[t.idCol])
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// RowIDs lists the identifiers of every row where col equals v, ordered
// by identifier. No match yields an empty list.
func (t *Table) RowIDs(col string, v any) ([]int64, error) {
	if _, ok := t.lookups[col]; !ok {
		return nil, errors.Wrapf(errors.ErrUnknownColumn, "%s.%s", t.decl.Name, col)
	}

	rows, err := t.Select(
		[]string{t.idCol},
		equalPredicate(col),
		[]any{v},
		fmt.Sprintf("`%s` ASC", t.idCol),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		id, err := rowIDValue(t.decl.Name, r[t.idCol])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func equalPredicate(col string) string {
	return fmt.Sprintf("`%s`=?", col)
}

// rowIDValue narrows a selected identifier to int64. Identifier columns
// are integers in this model; anything else is a declaration the lookups
// cannot serve.
func rowIDValue(table string, v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	default:
		return 0, fmt.Errorf("row identifier on %s is %T, not an integer", table, v)
	}
}
