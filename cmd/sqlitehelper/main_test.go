package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cmlburnett/sqlitehelper/core/db"
	"github.com/cmlburnett/sqlitehelper/core/schemafile"
)

const testSchema = `# test roster
table employee {
	rowid rowid
	name text
	badge integer unique
	DOB datetime
	awesome bool
}

table log {
	line text
}
`

// Test helper functions

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "roster.schema")
	if err := os.WriteFile(path, []byte(testSchema), 0644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
	orig := CLI.Schema
	CLI.Schema = path
	t.Cleanup(func() { CLI.Schema = orig })
	return path
}

func initDatabase(t *testing.T, dir string) string {
	t.Helper()
	dbPath := filepath.Join(dir, "test.db")
	cmd := &InitCmd{Path: dbPath}
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init database: %v", err)
	}
	return dbPath
}

func insertRow(t *testing.T, dbPath string, pairs ...string) {
	t.Helper()
	cmd := &InsertCmd{Path: dbPath, Table: "employee", Pairs: pairs}
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}
}

func seedEmployees(t *testing.T, dbPath string) {
	t.Helper()
	insertRow(t, dbPath, "name=Ada", "badge=100", "DOB=2014-03-07 21:42:13.087034", "awesome=true")
	insertRow(t, dbPath, "name=Grace", "badge=101", "DOB=null", "awesome=true")
	insertRow(t, dbPath, "name=Linus", "badge=102", "DOB=null", "awesome=false")
}

// openVerify opens an independent accessor root for checking command effects.
func openVerify(t *testing.T, dbPath string) *db.DB {
	t.Helper()
	tables, err := schemafile.ParseFile(CLI.Schema)
	if err != nil {
		t.Fatalf("failed to parse schema: %v", err)
	}
	root, err := db.New(dbPath, tables)
	if err != nil {
		t.Fatalf("failed to construct accessor root: %v", err)
	}
	if err := root.Open(); err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if root.IsOpen() {
			root.Close()
		}
	})
	return root
}

func countEmployees(t *testing.T, dbPath, where string, vals ...any) int64 {
	t.Helper()
	root := openVerify(t, dbPath)
	tbl, err := root.Table("employee")
	if err != nil {
		t.Fatalf("failed to resolve table: %v", err)
	}
	n, err := tbl.CountRows(where, vals...)
	if err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if err := root.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}
	return n
}

// Tests for InitCmd

func TestInitCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)

	dbPath := filepath.Join(tempDir, "test.db")
	cmd := &InitCmd{Path: dbPath}
	if err := cmd.Run(); err != nil {
		t.Fatalf("InitCmd.Run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// A second run finds every table in place and changes nothing.
	if err := cmd.Run(); err != nil {
		t.Errorf("InitCmd.Run() second run error = %v", err)
	}
}

func TestInitCmdRequiresSchema(t *testing.T) {
	orig := CLI.Schema
	CLI.Schema = ""
	defer func() { CLI.Schema = orig }()

	cmd := &InitCmd{Path: filepath.Join(t.TempDir(), "test.db")}
	if err := cmd.Run(); err == nil {
		t.Error("InitCmd.Run() without schema succeeded, want error")
	}
}

// Tests for schema inspection commands

func TestTablesCmd_Run(t *testing.T) {
	writeSchema(t, t.TempDir())

	cmd := &TablesCmd{}
	if err := cmd.Run(); err != nil {
		t.Errorf("TablesCmd.Run() error = %v", err)
	}
}

func TestColumnsCmd_Run(t *testing.T) {
	writeSchema(t, t.TempDir())

	cmd := &ColumnsCmd{Table: "employee"}
	if err := cmd.Run(); err != nil {
		t.Errorf("ColumnsCmd.Run() error = %v", err)
	}

	cmd = &ColumnsCmd{Table: "phantom"}
	if err := cmd.Run(); err == nil {
		t.Error("ColumnsCmd.Run() on unknown table succeeded, want error")
	}
}

// Tests for InsertCmd

func TestInsertCmd_Run(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		wantErr bool
	}{
		{
			name:    "typed row",
			pairs:   []string{"name=Ada", "badge=100", "DOB=2014-03-07 21:42:13.087034", "awesome=true"},
			wantErr: false,
		},
		{
			name:    "null value",
			pairs:   []string{"name=Grace", "badge=101", "DOB=null"},
			wantErr: false,
		},
		{
			name:    "malformed pair",
			pairs:   []string{"name"},
			wantErr: true,
		},
		{
			name:    "unknown column",
			pairs:   []string{"shoe_size=11"},
			wantErr: true,
		},
		{
			name:    "bad integer",
			pairs:   []string{"badge=ten"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeSchema(t, tempDir)
			dbPath := initDatabase(t, tempDir)

			cmd := &InsertCmd{Path: dbPath, Table: "employee", Pairs: tt.pairs}
			err := cmd.Run()
			if (err != nil) != tt.wantErr {
				t.Errorf("InsertCmd.Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if got := countEmployees(t, dbPath, ""); got != 1 {
					t.Errorf("row count = %d, want 1", got)
				}
			}
		})
	}
}

func TestInsertCmdStoresTypedValues(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	insertRow(t, dbPath, "name=Ada", "badge=100", "DOB=2014-03-07 21:42:13.087034", "awesome=true")

	root := openVerify(t, dbPath)
	tbl, err := root.Table("employee")
	if err != nil {
		t.Fatalf("failed to resolve table: %v", err)
	}
	row, err := tbl.Get(int64(1))
	if err != nil {
		t.Fatalf("failed to get row: %v", err)
	}
	if row == nil {
		t.Fatal("inserted row not found")
	}

	if row["badge"] != int64(100) {
		t.Errorf("badge = %v (%T), want int64 100", row["badge"], row["badge"])
	}
	if row["awesome"] != true {
		t.Errorf("awesome = %v, want true", row["awesome"])
	}
	want := time.Date(2014, 3, 7, 21, 42, 13, 87034000, time.UTC)
	got, ok := row["DOB"].(time.Time)
	if !ok || !got.Equal(want) {
		t.Errorf("DOB = %v, want %v", row["DOB"], want)
	}
}

// Tests for read commands

func TestSelectCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &SelectCmd{
		Path:    dbPath,
		Table:   "employee",
		Columns: []string{"name", "badge"},
		Where:   "`badge`>?",
		Val:     []string{"100"},
		Order:   "`badge` DESC",
	}
	if err := cmd.Run(); err != nil {
		t.Errorf("SelectCmd.Run() error = %v", err)
	}

	bad := &SelectCmd{Path: dbPath, Table: "phantom"}
	if err := bad.Run(); err == nil {
		t.Error("SelectCmd.Run() on unknown table succeeded, want error")
	}
}

func TestGetCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &GetCmd{Path: dbPath, Table: "employee", Key: "2"}
	if err := cmd.Run(); err != nil {
		t.Errorf("GetCmd.Run() error = %v", err)
	}

	missing := &GetCmd{Path: dbPath, Table: "employee", Key: "999"}
	if err := missing.Run(); err == nil {
		t.Error("GetCmd.Run() on absent key succeeded, want error")
	}

	nopk := &GetCmd{Path: dbPath, Table: "log", Key: "1"}
	if err := nopk.Run(); err == nil {
		t.Error("GetCmd.Run() on table without primary key succeeded, want error")
	}
}

func TestCountCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &CountCmd{Path: dbPath, Table: "employee"}
	if err := cmd.Run(); err != nil {
		t.Errorf("CountCmd.Run() error = %v", err)
	}

	scoped := &CountCmd{Path: dbPath, Table: "employee", Where: "`awesome`=?", Val: []string{"1"}}
	if err := scoped.Run(); err != nil {
		t.Errorf("CountCmd.Run() with predicate error = %v", err)
	}
}

// Tests for mutation commands

func TestUpdateCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &UpdateCmd{
		Path:  dbPath,
		Table: "employee",
		Set:   []string{"awesome=false"},
		Where: []string{"badge=100"},
		Join:  "AND",
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("UpdateCmd.Run() error = %v", err)
	}
	if got := countEmployees(t, dbPath, "`awesome`=?", true); got != 1 {
		t.Errorf("awesome count after update = %d, want 1", got)
	}

	bad := &UpdateCmd{
		Path:  dbPath,
		Table: "employee",
		Set:   []string{"awesome=true"},
		Where: []string{"badge=100"},
		Join:  "XOR",
	}
	if err := bad.Run(); err == nil {
		t.Error("UpdateCmd.Run() with bad join succeeded, want error")
	}
}

func TestDeleteCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &DeleteCmd{
		Path:  dbPath,
		Table: "employee",
		Where: []string{"name=Ada", "badge=101"},
		Join:  "OR",
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("DeleteCmd.Run() error = %v", err)
	}
	if got := countEmployees(t, dbPath, ""); got != 1 {
		t.Errorf("row count after delete = %d, want 1", got)
	}
}

// Tests for backup commands

func TestBackupCommands(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	archivePath := filepath.Join(tempDir, "test.backup.tar.xz")
	create := &BackupCreateCmd{Path: dbPath, Out: archivePath, Compression: "xz"}
	if err := create.Run(); err != nil {
		t.Fatalf("BackupCreateCmd.Run() error = %v", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive not created: %v", err)
	}

	verify := &BackupVerifyCmd{Archive: archivePath}
	if err := verify.Run(); err != nil {
		t.Errorf("BackupVerifyCmd.Run() error = %v", err)
	}

	restoredPath := filepath.Join(tempDir, "restored.db")
	restore := &BackupRestoreCmd{Archive: archivePath, Out: restoredPath}
	if err := restore.Run(); err != nil {
		t.Fatalf("BackupRestoreCmd.Run() error = %v", err)
	}
	if got := countEmployees(t, restoredPath, ""); got != 3 {
		t.Errorf("restored row count = %d, want 3", got)
	}

	// Restoring onto an existing file must refuse.
	if err := restore.Run(); err == nil {
		t.Error("BackupRestoreCmd.Run() onto existing file succeeded, want error")
	}
}

func TestBackupGzip(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	archivePath := filepath.Join(tempDir, "test.backup.tar.gz")
	create := &BackupCreateCmd{Path: dbPath, Out: archivePath, Compression: "gzip"}
	if err := create.Run(); err != nil {
		t.Fatalf("BackupCreateCmd.Run() error = %v", err)
	}

	verify := &BackupVerifyCmd{Archive: archivePath}
	if err := verify.Run(); err != nil {
		t.Errorf("BackupVerifyCmd.Run() error = %v", err)
	}
}

// Tests for CheckCmd

func TestCheckCmd_Run(t *testing.T) {
	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	seedEmployees(t, dbPath)

	cmd := &CheckCmd{Path: dbPath}
	if err := cmd.Run(); err != nil {
		t.Errorf("CheckCmd.Run() error = %v", err)
	}

	asJSON := &CheckCmd{Path: dbPath, JSON: true}
	if err := asJSON.Run(); err != nil {
		t.Errorf("CheckCmd.Run() with JSON error = %v", err)
	}

	// A database whose declared tables were never materialized fails.
	emptyPath := filepath.Join(tempDir, "empty.db")
	bad := &CheckCmd{Path: emptyPath}
	if err := bad.Run(); err == nil {
		t.Error("CheckCmd.Run() on unmaterialized database succeeded, want error")
	}
}

// Tests for InfoCmd

func TestInfoCmd_Run(t *testing.T) {
	cmd := &InfoCmd{}
	if err := cmd.Run(); err != nil {
		t.Errorf("InfoCmd.Run() error = %v", err)
	}

	tempDir := t.TempDir()
	writeSchema(t, tempDir)
	dbPath := initDatabase(t, tempDir)
	withPath := &InfoCmd{Path: dbPath}
	if err := withPath.Run(); err != nil {
		t.Errorf("InfoCmd.Run() with path error = %v", err)
	}

	missing := &InfoCmd{Path: filepath.Join(tempDir, "absent.db")}
	if err := missing.Run(); err == nil {
		t.Error("InfoCmd.Run() on missing file succeeded, want error")
	}
}

// Tests for VersionCmd

func TestVersionCmd_Run(t *testing.T) {
	cmd := &VersionCmd{}
	if err := cmd.Run(); err != nil {
		t.Errorf("VersionCmd.Run() error = %v, want nil", err)
	}
}

// Tests for helper functions

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		colType string
		raw     string
		want    any
		wantErr bool
	}{
		{"integer", "integer", "42", int64(42), false},
		{"negative integer", "int", "-7", int64(-7), false},
		{"rowid", "rowid", "3", int64(3), false},
		{"real", "real", "2.5", 2.5, false},
		{"bool true", "bool", "true", true, false},
		{"bool numeric", "boolean", "1", true, false},
		{"text", "text", "hello", "hello", false},
		{"sized text", "varchar(32)", "abc", "abc", false},
		{"null", "integer", "null", nil, false},
		{"bad integer", "integer", "ten", nil, true},
		{"bad real", "real", "x", nil, true},
		{"bad bool", "bool", "maybe", nil, true},
		{"bad json", "json", "{", nil, true},
		{"bad uuid", "uuid", "not-a-uuid", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValue(tt.colType, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestParseValueDatetime(t *testing.T) {
	want := time.Date(2014, 3, 7, 21, 42, 13, 87034000, time.UTC)
	got, err := parseValue("datetime", "2014-03-07 21:42:13.087034")
	if err != nil {
		t.Fatalf("parseValue() error = %v", err)
	}
	if !got.(time.Time).Equal(want) {
		t.Errorf("parseValue() = %v, want %v", got, want)
	}

	layouts := []string{
		"2014-03-07 21:42:13",
		"2014-03-07T21:42:13Z",
		"2014-03-07",
	}
	for _, raw := range layouts {
		if _, err := parseValue("datetime", raw); err != nil {
			t.Errorf("parseValue(%q) error = %v", raw, err)
		}
	}

	if _, err := parseValue("datetime", "last tuesday"); err == nil {
		t.Error("parseValue() on garbage datetime succeeded, want error")
	}
}

func TestParseValueJSON(t *testing.T) {
	got, err := parseValue("json", `{"a":1}`)
	if err != nil {
		t.Fatalf("parseValue() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Errorf("parseValue() = %v (%T), want map with a=1", got, got)
	}
}

func TestParseValueUUID(t *testing.T) {
	id := uuid.New()
	got, err := parseValue("uuid", id.String())
	if err != nil {
		t.Fatalf("parseValue() error = %v", err)
	}
	if got != id {
		t.Errorf("parseValue() = %v, want %v", got, id)
	}
}

func TestStringVals(t *testing.T) {
	if got := stringVals(nil); got != nil {
		t.Errorf("stringVals(nil) = %v, want nil", got)
	}
	got := stringVals([]string{"a", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("stringVals() = %v, want [a b]", got)
	}
}
