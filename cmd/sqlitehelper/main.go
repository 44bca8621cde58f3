// Command sqlitehelper is the CLI for schema-declared SQLite databases.
// It materializes declared schemas, reads and mutates rows through the
// generated accessors, and manages backup archives.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/cmlburnett/sqlitehelper/core/backup"
	"github.com/cmlburnett/sqlitehelper/core/check"
	"github.com/cmlburnett/sqlitehelper/core/codec"
	"github.com/cmlburnett/sqlitehelper/core/db"
	"github.com/cmlburnett/sqlitehelper/core/schema"
	"github.com/cmlburnett/sqlitehelper/core/schemafile"
	"github.com/cmlburnett/sqlitehelper/core/sqlite"
	"github.com/cmlburnett/sqlitehelper/internal/logging"
	"github.com/cmlburnett/sqlitehelper/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface for sqlitehelper.
var CLI struct {
	// Global flags
	Schema    string `name:"schema" short:"s" help:"Schema declaration file" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `name:"log-format" help:"Log format (text, json)" default:"text"`

	Init    InitCmd     `cmd:"" help:"Create the database and materialize missing tables"`
	Tables  TablesCmd   `cmd:"" help:"List declared tables and their DDL"`
	Columns ColumnsCmd  `cmd:"" help:"Show the declared columns of a table"`
	Insert  InsertCmd   `cmd:"" help:"Insert a row from column=value pairs"`
	Select  SelectCmd   `cmd:"" help:"Select rows and print them as JSON"`
	Get     GetCmd      `cmd:"" help:"Fetch one row by primary key"`
	Count   CountCmd    `cmd:"" help:"Count rows"`
	Update  UpdateCmd   `cmd:"" help:"Update rows matched by column=value pairs"`
	Delete  DeleteCmd   `cmd:"" help:"Delete rows matched by column=value pairs"`
	Backup  BackupGroup `cmd:"" help:"Archive operations (create, restore, verify)"`
	Check   CheckCmd    `cmd:"" help:"Run database integrity checks"`
	Info    InfoCmd     `cmd:"" help:"Show driver and database information"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// BackupGroup contains archive lifecycle operations.
type BackupGroup struct {
	Create  BackupCreateCmd  `cmd:"" help:"Snapshot the database into a tar archive"`
	Restore BackupRestoreCmd `cmd:"" help:"Restore a database file from an archive"`
	Verify  BackupVerifyCmd  `cmd:"" help:"Verify archive integrity"`
}

// openRoot parses the declared schema and opens the accessor root.
func openRoot(dbPath string) (*db.DB, error) {
	if err := validation.ValidatePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	tables, err := loadSchema()
	if err != nil {
		return nil, err
	}

	root, err := db.New(dbPath, tables)
	if err != nil {
		return nil, err
	}
	if err := root.Open(); err != nil {
		return nil, err
	}
	return root, nil
}

func loadSchema() ([]schema.Table, error) {
	if CLI.Schema == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	return schemafile.ParseFile(CLI.Schema)
}

// InitCmd creates the database file and materializes missing tables.
type InitCmd struct {
	Path string `arg:"" help:"Database path" type:"path"`
}

func (c *InitCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	if err := root.CreateSchema(); err != nil {
		return fmt.Errorf("failed to materialize schema: %w", err)
	}

	fmt.Printf("Initialized: %s\n", c.Path)
	for _, name := range root.Tables() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

// TablesCmd lists declared tables with their DDL.
type TablesCmd struct{}

func (c *TablesCmd) Run() error {
	tables, err := loadSchema()
	if err != nil {
		return err
	}

	for _, tbl := range tables {
		fmt.Println(tbl.DDL())
	}
	return nil
}

// ColumnsCmd shows the declared columns of one table.
type ColumnsCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *ColumnsCmd) Run() error {
	tables, err := loadSchema()
	if err != nil {
		return err
	}

	for _, tbl := range tables {
		if tbl.Name != c.Table {
			continue
		}
		for _, col := range tbl.Columns {
			fmt.Println(col.DDL())
		}
		return nil
	}
	return fmt.Errorf("unknown table %s", c.Table)
}

// InsertCmd inserts one row built from column=value pairs.
type InsertCmd struct {
	Path  string   `arg:"" help:"Database path" type:"path"`
	Table string   `arg:"" help:"Table name"`
	Pairs []string `arg:"" help:"column=value pairs"`
}

func (c *InsertCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}
	row, err := typedPairs(tbl.Declaration(), c.Pairs)
	if err != nil {
		return err
	}

	id, err := tbl.Insert(row)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	fmt.Printf("Inserted row %d into %s\n", id, c.Table)
	return nil
}

// SelectCmd selects rows and prints each as one JSON object.
type SelectCmd struct {
	Path    string   `arg:"" help:"Database path" type:"existingfile"`
	Table   string   `arg:"" help:"Table name"`
	Columns []string `short:"c" help:"Columns to select (default: all)"`
	Where   string   `help:"Raw predicate with ? placeholders"`
	Val     []string `help:"Values bound to predicate placeholders"`
	Order   string   `help:"ORDER BY body"`
}

func (c *SelectCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}

	var cols []string
	if len(c.Columns) > 0 {
		cols = c.Columns
	}
	rows, err := tbl.Select(cols, c.Where, stringVals(c.Val), c.Order)
	if err != nil {
		return fmt.Errorf("failed to select: %w", err)
	}

	return printRows(rows)
}

// GetCmd fetches a single row by primary key.
type GetCmd struct {
	Path  string `arg:"" help:"Database path" type:"existingfile"`
	Table string `arg:"" help:"Table name"`
	Key   string `arg:"" help:"Primary key value"`
}

func (c *GetCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}

	pk, ok := tbl.Declaration().PrimaryKey()
	if !ok {
		return fmt.Errorf("table %s has no primary key", c.Table)
	}
	key, err := parseValue(pk.Type, c.Key)
	if err != nil {
		return fmt.Errorf("key value: %w", err)
	}

	row, err := tbl.Get(key)
	if err != nil {
		return fmt.Errorf("failed to get: %w", err)
	}
	if row == nil {
		return fmt.Errorf("no row in %s with %s = %s", c.Table, pk.Name, c.Key)
	}
	return printRows([]db.Row{row})
}

// CountCmd counts rows, optionally restricted by a predicate.
type CountCmd struct {
	Path  string   `arg:"" help:"Database path" type:"existingfile"`
	Table string   `arg:"" help:"Table name"`
	Where string   `help:"Raw predicate with ? placeholders"`
	Val   []string `help:"Values bound to predicate placeholders"`
}

func (c *CountCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}

	n, err := tbl.CountRows(c.Where, stringVals(c.Val)...)
	if err != nil {
		return fmt.Errorf("failed to count: %w", err)
	}
	fmt.Println(n)
	return nil
}

// UpdateCmd updates rows matched by column=value equality pairs.
type UpdateCmd struct {
	Path  string   `arg:"" help:"Database path" type:"existingfile"`
	Table string   `arg:"" help:"Table name"`
	Set   []string `required:"" help:"column=value pairs to assign"`
	Where []string `required:"" help:"column=value pairs to match"`
	Join  string   `help:"Predicate join operator (AND, OR)" default:"AND"`
}

func (c *UpdateCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}
	set, err := typedPairs(tbl.Declaration(), c.Set)
	if err != nil {
		return err
	}
	where, err := typedPairs(tbl.Declaration(), c.Where)
	if err != nil {
		return err
	}

	n, err := tbl.Update(set, where, c.Join)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	fmt.Printf("Updated %d rows in %s\n", n, c.Table)
	return nil
}

// DeleteCmd deletes rows matched by column=value equality pairs.
type DeleteCmd struct {
	Path  string   `arg:"" help:"Database path" type:"existingfile"`
	Table string   `arg:"" help:"Table name"`
	Where []string `required:"" help:"column=value pairs to match"`
	Join  string   `help:"Predicate join operator (AND, OR)" default:"AND"`
}

func (c *DeleteCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	tbl, err := root.Table(c.Table)
	if err != nil {
		return err
	}
	where, err := typedPairs(tbl.Declaration(), c.Where)
	if err != nil {
		return err
	}

	n, err := tbl.Delete(where, c.Join)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	fmt.Printf("Deleted %d rows from %s\n", n, c.Table)
	return nil
}

// BackupCreateCmd snapshots the database into a tar archive.
type BackupCreateCmd struct {
	Path        string `arg:"" help:"Database path" type:"existingfile"`
	Out         string `required:"" help:"Output archive path" type:"path"`
	Compression string `help:"Compression algorithm" default:"xz" enum:"xz,gzip"`
}

func (c *BackupCreateCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	manifest, err := backup.Create(root, c.Out, &backup.Options{
		Compression: backup.CompressionType(c.Compression),
	})
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	fmt.Printf("Created: %s\n", c.Out)
	fmt.Printf("  Database: %s\n", manifest.Database.Name)
	fmt.Printf("  Size: %d bytes\n", manifest.Database.SizeBytes)
	fmt.Printf("  BLAKE3: %s\n", manifest.Database.BLAKE3)
	fmt.Printf("  Tables: %d\n", len(manifest.Database.Tables))
	return nil
}

// BackupRestoreCmd restores a database file from an archive.
type BackupRestoreCmd struct {
	Archive string `arg:"" help:"Archive path" type:"existingfile"`
	Out     string `required:"" help:"Destination database path" type:"path"`
}

func (c *BackupRestoreCmd) Run() error {
	manifest, err := backup.Restore(c.Archive, c.Out)
	if err != nil {
		return fmt.Errorf("failed to restore: %w", err)
	}

	fmt.Printf("Restored: %s\n", c.Out)
	fmt.Printf("  Database: %s\n", manifest.Database.Name)
	fmt.Printf("  BLAKE3: %s (verified)\n", manifest.Database.BLAKE3)
	return nil
}

// BackupVerifyCmd verifies archive integrity without extracting.
type BackupVerifyCmd struct {
	Archive string `arg:"" help:"Archive path" type:"existingfile"`
}

func (c *BackupVerifyCmd) Run() error {
	manifest, err := backup.Verify(c.Archive)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Printf("Archive: %s\n", c.Archive)
	fmt.Printf("  Version: %s\n", manifest.FormatVersion)
	fmt.Printf("  Created: %s\n", manifest.CreatedAt)
	fmt.Printf("  Database: %s (%d bytes)\n", manifest.Database.Name, manifest.Database.SizeBytes)
	fmt.Printf("  BLAKE3: %s (verified)\n", manifest.Database.BLAKE3)
	fmt.Println("OK")
	return nil
}

// CheckCmd runs the health checks and prints the report.
type CheckCmd struct {
	Path string `arg:"" help:"Database path" type:"existingfile"`
	JSON bool   `help:"Print the full report as JSON"`
}

func (c *CheckCmd) Run() error {
	root, err := openRoot(c.Path)
	if err != nil {
		return err
	}
	defer root.Close()

	report, err := check.Run(root)
	if err != nil {
		return fmt.Errorf("check did not complete: %w", err)
	}

	if c.JSON {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Database: %s\n", report.Database)
		for _, res := range report.Checks {
			line := fmt.Sprintf("  %s: %s", res.Name, res.Status)
			if res.Detail != "" {
				line += " (" + res.Detail + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("Status: %s\n", report.Status)
	}

	if !report.Passed() {
		return fmt.Errorf("integrity check failed")
	}
	return nil
}

// InfoCmd shows driver information and, with a path, file details.
type InfoCmd struct {
	Path string `arg:"" optional:"" help:"Database path" type:"path"`
}

func (c *InfoCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Printf("Driver: %s\n", info.DriverName)
	fmt.Printf("  Type: %s\n", info.DriverType)
	fmt.Printf("  Package: %s\n", info.Package)
	fmt.Printf("  CGO: %v\n", info.IsCGO)

	if c.Path == "" {
		return nil
	}

	st, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("failed to stat database: %w", err)
	}
	fmt.Printf("Database: %s\n", c.Path)
	fmt.Printf("  Size: %d bytes\n", st.Size())

	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer f.Close()
	fileType, err := validation.ValidateFileType(f, c.Path)
	if err != nil {
		return fmt.Errorf("file check failed: %w", err)
	}
	fmt.Printf("  Format: %s\n", fileType)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sqlitehelper version %s\n", version)
	return nil
}

// Helper functions

// typedPairs parses column=value strings into a row map, converting each
// value per its declared column type.
func typedPairs(decl schema.Table, pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("malformed pair %q, want column=value", p)
		}
		col, ok := decl.Column(k)
		if !ok {
			return nil, fmt.Errorf("unknown column %s.%s", decl.Name, k)
		}
		v, err := parseValue(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("value for %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// parseValue converts a command-line string into the Go value for a
// declared column type. The literal "null" maps to NULL for any type.
func parseValue(colType, raw string) (any, error) {
	if raw == "null" {
		return nil, nil
	}

	switch codec.Normalize(colType) {
	case "integer", "int", "bigint", "smallint", "tinyint", "rowid":
		return strconv.ParseInt(raw, 10, 64)
	case "real", "float", "double":
		return strconv.ParseFloat(raw, 64)
	case "bool", "boolean":
		return strconv.ParseBool(raw)
	case "datetime", "timestamp":
		return parseTime(raw)
	case "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	case "uuid":
		return uuid.Parse(raw)
	default:
		return raw, nil
	}
}

func parseTime(raw string) (time.Time, error) {
	layouts := []string{
		codec.TimeFormat,
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", raw)
}

func stringVals(vals []string) []any {
	if len(vals) == 0 {
		return nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func printRows(rows []db.Row) error {
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
		fmt.Println(string(data))
	}
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlitehelper"),
		kong.Description("Schema-declared SQLite accessor and backup tool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level, err := logging.ParseLevel(CLI.LogLevel)
	ctx.FatalIfErrorf(err)
	format, err := logging.ParseFormat(CLI.LogFormat)
	ctx.FatalIfErrorf(err)
	logging.InitLogger(level, format)

	err = ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
