// Package query renders parametrized SQL text for the accessor layer.
//
// Every builder is a pure function returning SQL plus the ordered
// parameter vector for its ? placeholders. Caller values never appear in
// the SQL text itself; they always travel as bound parameters. That is
// the layer's injection-safety guarantee and the one rule every builder
// here must keep.
//
// Identifiers are backtick-quoted but not validated; predicate and
// ordering fragments for SELECT and COUNT are raw caller-supplied SQL.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cmlburnett/sqlitehelper/core/errors"
)

// Select renders `SELECT <cols> FROM <table>` with optional WHERE and
// ORDER BY clauses. A nil cols slice selects all columns; an explicit
// list must be non-empty with no blank names. The where fragment carries
// its own ? placeholders and is appended verbatim, as is order.
func Select(table string, cols []string, where, order string) (string, error) {
	colList, err := columnList(cols)
	if err != nil {
		return "", errors.Wrapf(err, "select from %s", table)
	}

	sql := fmt.Sprintf("SELECT %s FROM `%s`", colList, table)
	if where != "" {
		sql += " WHERE " + where
	}
	if order != "" {
		sql += " ORDER BY " + order
	}
	return sql, nil
}

// Insert renders `INSERT INTO <table> (<cols>) VALUES (<placeholders>)`
// with one placeholder per column. Columns are ordered by sorted name so
// the same row map always renders the same statement.
func Insert(table string, row map[string]any) (string, []any, error) {
	if len(row) == 0 {
		return "", nil, errors.Wrapf(errors.ErrNoValues, "insert into %s", table)
	}

	names := sortedKeys(row)
	quoted := make([]string, len(names))
	vals := make([]any, len(names))
	for i, name := range names {
		quoted[i] = "`" + name + "`"
		vals[i] = row[name]
	}
	placeholders := "?" + strings.Repeat(",?", len(names)-1)

	sql := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		table, strings.Join(quoted, ","), placeholders)
	return sql, vals, nil
}

// Update renders `UPDATE <table> SET <col>=?,... WHERE <predicate>`. The
// set map must be non-empty. The predicate map renders to `col`=?
// fragments joined by the validated operator; an empty predicate map
// renders a bare trailing WHERE, which the engine rejects as malformed.
// That is deliberate: an accidental empty predicate must not silently
// update every row. The parameter vector is the set values followed by
// the predicate values, each group in sorted-key order.
func Update(table string, set, where map[string]any, join string) (string, []any, error) {
	op, err := NormalizeJoin(join)
	if err != nil {
		return "", nil, errors.Wrapf(err, "update %s", table)
	}
	if len(set) == 0 {
		return "", nil, errors.Wrapf(errors.ErrNoValues, "update %s", table)
	}

	setCols, setVals := equalityFragments(set)
	whereCols, whereVals := equalityFragments(where)

	sql := fmt.Sprintf("UPDATE `%s` SET %s WHERE %s",
		table, strings.Join(setCols, ","), strings.Join(whereCols, " "+op+" "))
	return sql, append(setVals, whereVals...), nil
}

// Delete renders `DELETE FROM <table> WHERE <predicate>` with the same
// predicate-map treatment as Update, the empty-map malformed-SQL
// behavior included.
func Delete(table string, where map[string]any, join string) (string, []any, error) {
	op, err := NormalizeJoin(join)
	if err != nil {
		return "", nil, errors.Wrapf(err, "delete from %s", table)
	}

	whereCols, whereVals := equalityFragments(where)

	sql := fmt.Sprintf("DELETE FROM `%s` WHERE %s",
		table, strings.Join(whereCols, " "+op+" "))
	return sql, whereVals, nil
}

// Count renders `SELECT count(*) AS count FROM <table>` with an optional
// raw WHERE fragment.
func Count(table string, where string) string {
	sql := fmt.Sprintf("SELECT count(*) AS count FROM `%s`", table)
	if where != "" {
		sql += " WHERE " + where
	}
	return sql
}

// NormalizeJoin validates a predicate join operator, returning its
// canonical upper-case form. Only AND and OR are accepted.
func NormalizeJoin(join string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(join)) {
	case "AND":
		return "AND", nil
	case "OR":
		return "OR", nil
	}
	return "", errors.Wrapf(errors.ErrInvalidJoin, "%q", join)
}

// columnList renders the column selector: * for nil, a quoted
// comma-joined list otherwise.
func columnList(cols []string) (string, error) {
	if cols == nil {
		return "*", nil
	}
	if len(cols) == 0 {
		return "", errors.ErrNoColumns
	}
	quoted := make([]string, len(cols))
	for i, name := range cols {
		if name == "" {
			return "", errors.ErrNoColumns
		}
		quoted[i] = "`" + name + "`"
	}
	return strings.Join(quoted, ","), nil
}

// equalityFragments renders a column→value map as `col`=? fragments with
// the matching value vector, keys sorted for deterministic output.
func equalityFragments(m map[string]any) ([]string, []any) {
	names := sortedKeys(m)
	frags := make([]string, len(names))
	vals := make([]any, len(names))
	for i, name := range names {
		frags[i] = "`" + name + "`=?"
		vals[i] = m[name]
	}
	return frags, vals
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
