package backup

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/cmlburnett/sqlitehelper/core/db"
	"github.com/cmlburnett/sqlitehelper/core/errors"
	"github.com/cmlburnett/sqlitehelper/core/schema"
	"github.com/cmlburnett/sqlitehelper/internal/validation"
)

func sourceSchema() []schema.Table {
	return []schema.Table{
		schema.NewTable("employee",
			schema.RowIDColumn(),
			schema.NewColumn("name", "text"),
		),
	}
}

// newSourceDB builds an open database with two rows to back up.
func newSourceDB(t *testing.T) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.db")
	d, err := db.New(path, sourceSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if d.IsOpen() {
			d.Close()
		}
	})
	if err := d.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}

	emp := d.MustTable("employee")
	for _, name := range []string{"Ada", "Grace"} {
		if _, err := emp.Insert(map[string]any{"name": name}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	return d
}

func TestCreateAndVerify(t *testing.T) {
	d := newSourceDB(t)
	archive := filepath.Join(t.TempDir(), "backup.tar.xz")

	created, err := Create(d, archive, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.FormatVersion != Version {
		t.Errorf("FormatVersion = %q, want %q", created.FormatVersion, Version)
	}
	if created.Database.Name != "source.db" {
		t.Errorf("Database.Name = %q, want source.db", created.Database.Name)
	}
	if created.Database.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want positive", created.Database.SizeBytes)
	}
	if len(created.Database.BLAKE3) != 64 {
		t.Errorf("BLAKE3 digest length = %d, want 64", len(created.Database.BLAKE3))
	}
	if len(created.Database.Tables) != 1 || created.Database.Tables[0].Name != "employee" {
		t.Errorf("Tables = %+v, want employee declaration", created.Database.Tables)
	}
	if !strings.HasPrefix(created.Database.Tables[0].DDL, "CREATE TABLE `employee`") {
		t.Errorf("DDL = %q, want CREATE TABLE statement", created.Database.Tables[0].DDL)
	}

	compression, err := DetectCompression(archive)
	if err != nil {
		t.Fatalf("DetectCompression failed: %v", err)
	}
	if compression != CompressionXZ {
		t.Errorf("compression = %v, want xz by default", compression)
	}

	verified, err := Verify(archive)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.Database.BLAKE3 != created.Database.BLAKE3 {
		t.Errorf("verified digest %q differs from created %q", verified.Database.BLAKE3, created.Database.BLAKE3)
	}
}

func TestCreateGzip(t *testing.T) {
	d := newSourceDB(t)
	archive := filepath.Join(t.TempDir(), "backup.tar.gz")

	if _, err := Create(d, archive, &Options{Compression: CompressionGzip}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	compression, err := DetectCompression(archive)
	if err != nil {
		t.Fatalf("DetectCompression failed: %v", err)
	}
	if compression != CompressionGzip {
		t.Errorf("compression = %v, want gzip", compression)
	}

	if _, err := Verify(archive); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	d := newSourceDB(t)
	archive := filepath.Join(t.TempDir(), "backup.tar.xz")
	if _, err := Create(d, archive, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	manifest, err := Restore(archive, dest)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if manifest.Database.Name != "source.db" {
		t.Errorf("manifest name = %q, want source.db", manifest.Database.Name)
	}

	restored, err := db.New(dest, sourceSchema())
	if err != nil {
		t.Fatalf("New on restored database failed: %v", err)
	}
	if err := restored.Open(); err != nil {
		t.Fatalf("Open restored failed: %v", err)
	}
	defer restored.Close()

	emp := restored.MustTable("employee")
	n, err := emp.CountRows("")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if n != 2 {
		t.Errorf("restored rows = %d, want 2", n)
	}
	ids, err := emp.RowIDs("name", "Ada")
	if err != nil || len(ids) != 1 {
		t.Errorf("RowIDs(Ada) = %v, %v, want one id", ids, err)
	}
}

func TestRestoreRefusesOverwrite(t *testing.T) {
	d := newSourceDB(t)
	archive := filepath.Join(t.TempDir(), "backup.tar.xz")
	if _, err := Create(d, archive, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "existing.db")
	if err := os.WriteFile(dest, []byte("precious"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}

	if _, err := Restore(archive, dest); err == nil {
		t.Fatal("Restore over existing file succeeded")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "precious" {
		t.Errorf("existing file was disturbed: %q, %v", data, err)
	}
}

func TestCreateRefusedInTransaction(t *testing.T) {
	d := newSourceDB(t)
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer d.Rollback()

	_, err := Create(d, filepath.Join(t.TempDir(), "backup.tar.xz"), nil)
	if !errors.Is(err, errors.ErrTransactionActive) {
		t.Errorf("Create in transaction = %v, want ErrTransactionActive", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	data := append([]byte("SQLite format 3\x00"), make([]byte, 512)...)
	m := NewManifest("x.db", "db/x.db", data, nil)
	m.Database.BLAKE3 = strings.Repeat("0", 64)

	archive := filepath.Join(t.TempDir(), "tampered.tar.xz")
	if err := writeArchive(archive, m, data, DefaultOptions()); err != nil {
		t.Fatalf("writeArchive failed: %v", err)
	}

	if _, err := Verify(archive); err != ErrIntegrity {
		t.Errorf("Verify = %v, want ErrIntegrity", err)
	}
	if _, err := Restore(archive, filepath.Join(t.TempDir(), "out.db")); err != ErrIntegrity {
		t.Errorf("Restore = %v, want ErrIntegrity", err)
	}
}

func TestVerifyRejectsNonSQLite(t *testing.T) {
	data := []byte("this is a text file pretending to be a database, with a valid digest")
	m := NewManifest("x.db", "db/x.db", data, nil)

	archive := filepath.Join(t.TempDir(), "notdb.tar.xz")
	if err := writeArchive(archive, m, data, DefaultOptions()); err != nil {
		t.Fatalf("writeArchive failed: %v", err)
	}

	if _, err := Verify(archive); !errors.Is(err, validation.ErrNotSQLite) {
		t.Errorf("Verify = %v, want ErrNotSQLite", err)
	}
}

func TestReadArchiveMissingPieces(t *testing.T) {
	t.Run("no manifest", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "nomanifest.tar.xz")
		writeBareArchive(t, archive, "db/x.db", []byte("blob"))

		if _, err := Verify(archive); err != ErrNoManifest {
			t.Errorf("Verify = %v, want ErrNoManifest", err)
		}
	})

	t.Run("no database blob", func(t *testing.T) {
		m := NewManifest("x.db", "db/x.db", []byte("data"), nil)
		manifestData, err := m.ToJSON()
		if err != nil {
			t.Fatalf("ToJSON failed: %v", err)
		}

		archive := filepath.Join(t.TempDir(), "noblob.tar.xz")
		writeBareArchive(t, archive, "manifest.json", manifestData)

		if _, err := Verify(archive); err != ErrNoDatabase {
			t.Errorf("Verify = %v, want ErrNoDatabase", err)
		}
	})
}

func TestDetectCompressionErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.tar.xz")
	if err := os.WriteFile(garbage, []byte("not an archive"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, err := DetectCompression(garbage); err == nil {
		t.Error("DetectCompression on garbage succeeded")
	}

	if _, err := DetectCompression(filepath.Join(t.TempDir(), "missing.tar.xz")); err == nil {
		t.Error("DetectCompression on missing file succeeded")
	}
}

// writeBareArchive writes a single-entry tar.xz for malformed-archive cases.
func writeBareArchive(t *testing.T, path, name string, data []byte) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	xzw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xzw)
	if err := writeToTar(tw, name, data); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatalf("close xz: %v", err)
	}
}
