// Package schema models table and column declarations and renders their DDL.
//
// A schema is an ordered list of Table values, each an ordered list of
// Column values. Declarations are value types: construct them once, hand
// them to the accessor root, and treat them as immutable from then on.
//
// Identifier handling is deliberately thin. Table and column names are
// backtick-quoted when rendered but never validated or escaped beyond
// that; callers must supply names that are already valid identifiers.
package schema

import (
	"fmt"
	"strings"

	"github.com/cmlburnett/sqlitehelper/core/errors"
)

// Column is a single column declaration. The Unique and PrimaryKey flags
// select the derived lookup the accessor root generates for the column:
// plain columns get a multi-row lookup, unique columns a single-row
// lookup, and the primary-key column a full-row fetch.
type Column struct {
	// Name is the column identifier, unique within its table.
	Name string

	// Type is the declared type string, understood by both the engine
	// and the codec registry (e.g. "text", "integer", "datetime").
	Type string

	// Unique marks the column as holding at most one row per value.
	Unique bool

	// PrimaryKey marks the column as the table's row identifier.
	// At most one column per table may set it.
	PrimaryKey bool
}

// NewColumn returns a plain column declaration.
func NewColumn(name, typ string) Column {
	return Column{Name: name, Type: typ}
}

// UniqueColumn returns a column declaration carrying the unique flag.
func UniqueColumn(name, typ string) Column {
	return Column{Name: name, Type: typ, Unique: true}
}

// RowIDColumn returns an integer primary-key column. With no argument the
// column is named "rowid", aliasing the engine's implicit row identifier.
func RowIDColumn(name ...string) Column {
	n := "rowid"
	if len(name) > 0 {
		n = name[0]
	}
	return Column{Name: n, Type: "integer", Unique: true, PrimaryKey: true}
}

// DDL renders the column's clause within a CREATE TABLE statement.
func (c Column) DDL() string {
	s := fmt.Sprintf("`%s` %s", c.Name, c.Type)
	if c.PrimaryKey {
		s += " primary key"
	}
	return s
}

// Table is a table declaration: a name plus its columns in declaration
// order.
type Table struct {
	// Name is the table identifier, unique within a schema.
	Name string

	// Columns holds the column declarations in declaration order.
	Columns []Column
}

// NewTable returns a table declaration over the given columns.
func NewTable(name string, cols ...Column) Table {
	return Table{Name: name, Columns: cols}
}

// DDL renders the table's CREATE TABLE statement. Column clauses appear
// in declaration order, joined by commas.
func (t Table) DDL() string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.DDL()
	}
	return fmt.Sprintf("CREATE TABLE `%s` (%s)", t.Name, strings.Join(cols, ","))
}

// Column returns the declaration for the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table declares the named column.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the declared column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary-key column, if one is declared.
func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks the declaration's structural invariants: a non-empty
// table name, at least one column, no duplicate column names, and at
// most one primary-key column.
func (t Table) Validate() error {
	if t.Name == "" {
		return errors.NewSchema("", "empty table name")
	}
	if len(t.Columns) == 0 {
		return errors.NewSchema(t.Name, "no columns declared")
	}

	seen := make(map[string]bool, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if c.Name == "" {
			return errors.NewSchema(t.Name, "empty column name")
		}
		if c.Type == "" {
			return errors.NewSchema(t.Name, fmt.Sprintf("column %s has no type", c.Name))
		}
		if seen[c.Name] {
			return errors.NewSchema(t.Name, fmt.Sprintf("duplicate column name %s", c.Name))
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pks++
		}
	}
	if pks > 1 {
		return errors.NewSchema(t.Name, fmt.Sprintf("%d primary-key columns declared, at most 1 allowed", pks))
	}
	return nil
}
