// Package schemafile parses plain-text schema declaration files into
// table declarations.
//
// The format is one "table" block per table, with one column per entry:
//
//	# staff database
//	table employee {
//		rowid   rowid
//		name    text
//		badge   integer unique
//		DOB     datetime
//		awesome bool
//	}
//
// Each column is a name followed by its declared type and an optional
// "unique" modifier. The type "rowid" declares the canonical integer
// primary key column, and a type may carry a size as in "varchar(20)".
// Entries may optionally end with a semicolon, and "#" starts a comment
// that runs to the end of the line. The words "table" and "unique" are
// reserved and cannot name a column.
package schemafile

import (
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/cmlburnett/sqlitehelper/core/errors"
	"github.com/cmlburnett/sqlitehelper/core/schema"
)

type fileGrammar struct {
	Tables []*tableGrammar `parser:"@@*"`
}

type tableGrammar struct {
	Name    string           `parser:"\"table\" @Ident \"{\""`
	Columns []*columnGrammar `parser:"@@* \"}\""`
}

type columnGrammar struct {
	Name   string `parser:"@Ident"`
	Type   string `parser:"@Ident"`
	Size   string `parser:"(\"(\" @Number \")\")?"`
	Unique bool   `parser:"@\"unique\"? \";\"?"`
}

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[{}();]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var schemaParser = participle.MustBuild[fileGrammar](
	participle.Lexer(schemaLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse parses schema declaration source into validated table
// declarations, in declaration order.
func Parse(src string) ([]schema.Table, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NewSchema("", "empty schema declaration")
	}

	parsed, err := schemaParser.ParseString("", src)
	if err != nil {
		return nil, errors.NewSchema("", "invalid declaration syntax: "+err.Error())
	}
	if len(parsed.Tables) == 0 {
		return nil, errors.NewSchema("", "no table declarations found")
	}

	seen := make(map[string]bool, len(parsed.Tables))
	tables := make([]schema.Table, 0, len(parsed.Tables))
	for _, td := range parsed.Tables {
		if seen[td.Name] {
			return nil, errors.Wrapf(errors.ErrDuplicateTable, "%s", td.Name)
		}
		seen[td.Name] = true

		cols := make([]schema.Column, 0, len(td.Columns))
		for _, cd := range td.Columns {
			cols = append(cols, buildColumn(cd))
		}
		tbl := schema.NewTable(td.Name, cols...)
		if err := tbl.Validate(); err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}

// ParseFile reads and parses one schema declaration file.
func ParseFile(path string) ([]schema.Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema %s", path)
	}
	return Parse(string(src))
}

func buildColumn(cd *columnGrammar) schema.Column {
	if cd.Type == "rowid" {
		return schema.RowIDColumn(cd.Name)
	}
	typ := cd.Type
	if cd.Size != "" {
		typ += "(" + cd.Size + ")"
	}
	if cd.Unique {
		return schema.UniqueColumn(cd.Name, typ)
	}
	return schema.NewColumn(cd.Name, typ)
}
