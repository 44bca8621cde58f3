package backup

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/cmlburnett/sqlitehelper/core/db"
	"github.com/cmlburnett/sqlitehelper/internal/logging"
	"github.com/cmlburnett/sqlitehelper/internal/validation"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// Archive errors.
var (
	ErrNoManifest = errors.New("archive has no manifest.json")
	ErrNoDatabase = errors.New("archive has no database blob")
	ErrIntegrity  = errors.New("database digest does not match manifest")
)

// CompressionType specifies the compression algorithm for archives.
type CompressionType string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ CompressionType = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip CompressionType = "gzip"
)

// Options configures archive creation.
type Options struct {
	// Compression specifies the compression algorithm. Defaults to XZ.
	Compression CompressionType
}

// DefaultOptions returns the default archive options (XZ compression).
func DefaultOptions() *Options {
	return &Options{
		Compression: CompressionXZ,
	}
}

// Create snapshots the open database and packs it into an archive at
// archivePath. The snapshot is taken with VACUUM INTO, so it is a
// consistent copy even while other connections write. The archive is
// finalized atomically: a temp file in the destination directory is
// renamed into place only after a complete write.
func Create(d *db.DB, archivePath string, opts *Options) (*Manifest, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	staging, err := os.MkdirTemp("", "sqlitehelper-backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	snapPath := filepath.Join(staging, "snapshot.db")
	if err := d.SnapshotTo(snapPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(snapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) > validation.MaxFileSize {
		return nil, fmt.Errorf("%w: snapshot is %d bytes", validation.ErrFileTooLarge, len(data))
	}

	name := filepath.Base(d.Path())
	if validation.ValidateFilename(name) != nil {
		name = "database.db"
	}

	var tables []TableInfo
	for _, tn := range d.Tables() {
		decl := d.MustTable(tn).Declaration()
		tables = append(tables, TableInfo{Name: decl.Name, DDL: decl.DDL()})
	}

	manifest := NewManifest(name, "db/"+name, data, tables)
	if err := writeArchive(archivePath, manifest, data, opts); err != nil {
		return nil, err
	}

	logging.BackupEvent("created", archivePath)
	return manifest, nil
}

// Verify reads an archive and checks the database blob against the
// manifest digest and the SQLite header. It returns the manifest.
func Verify(archivePath string) (*Manifest, error) {
	manifest, data, err := readArchive(archivePath)
	if err != nil {
		return nil, err
	}
	if Blake3Hash(data) != manifest.Database.BLAKE3 {
		return nil, ErrIntegrity
	}
	if err := validation.ValidateSQLiteHeader(data); err != nil {
		return nil, err
	}

	logging.BackupEvent("verified", archivePath)
	return manifest, nil
}

// Restore extracts the database from an archive to destPath after
// verifying its digest. It refuses to overwrite an existing file, and
// the write is atomic: a temp file is renamed into place.
func Restore(archivePath, destPath string) (*Manifest, error) {
	manifest, data, err := readArchive(archivePath)
	if err != nil {
		return nil, err
	}
	if Blake3Hash(data) != manifest.Database.BLAKE3 {
		return nil, ErrIntegrity
	}
	if err := validation.ValidateSQLiteHeader(data); err != nil {
		return nil, err
	}

	if _, err := os.Stat(destPath); err == nil {
		return nil, fmt.Errorf("destination %s already exists", destPath)
	}

	if err := atomicWrite(destPath, data); err != nil {
		return nil, err
	}

	logging.BackupEvent("restored", destPath)
	return manifest, nil
}

// DetectCompression detects the compression type of an archive.
func DetectCompression(archivePath string) (CompressionType, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	magic := make([]byte, 6)
	n, _ := io.ReadFull(file, magic)

	switch validation.DetectFileType(magic[:n]) {
	case validation.FileTypeXZ:
		return CompressionXZ, nil
	case validation.FileTypeGzip:
		return CompressionGzip, nil
	}
	return "", fmt.Errorf("unknown archive compression in %s", archivePath)
}

// writeArchive serializes the manifest and packs the archive, then
// renames it into place.
func writeArchive(path string, m *Manifest, data []byte, opts *Options) error {
	manifestData, err := m.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := packTo(tmp, manifestData, m.Database.Path, data, opts.Compression); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename to final path (atomic on POSIX)
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// packTo writes the compressed tar stream: manifest.json first, then the
// database blob.
func packTo(w io.Writer, manifestData []byte, blobPath string, blobData []byte, compression CompressionType) error {
	var compressWriter io.WriteCloser
	var err error
	switch compression {
	case CompressionGzip:
		compressWriter, err = gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
	case CompressionXZ:
		fallthrough
	default:
		compressWriter, err = xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
	}

	tarWriter := tar.NewWriter(compressWriter)
	if err := writeToTar(tarWriter, "manifest.json", manifestData); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := writeToTar(tarWriter, blobPath, blobData); err != nil {
		return fmt.Errorf("failed to write database blob: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar stream: %w", err)
	}
	if err := compressWriter.Close(); err != nil {
		return fmt.Errorf("failed to close compressor: %w", err)
	}
	return nil
}

// readArchive extracts the manifest and the database blob it names.
func readArchive(archivePath string) (*Manifest, []byte, error) {
	compression, err := DetectCompression(archivePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	var decompressReader io.Reader
	switch compression {
	case CompressionGzip:
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		decompressReader = gzReader
	case CompressionXZ:
		xzReader, err := xz.NewReader(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		decompressReader = xzReader
	}

	tarReader := tar.NewReader(decompressReader)

	var manifest *Manifest
	blobs := make(map[string][]byte)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		// Skip entries that point outside the archive root
		if _, err := validation.SanitizePath(".", header.Name); err != nil {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tarReader, validation.MaxFileSize+1))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read archive entry: %w", err)
		}
		if int64(len(data)) > validation.MaxFileSize {
			return nil, nil, fmt.Errorf("%w: entry %s", validation.ErrFileTooLarge, header.Name)
		}

		if header.Name == "manifest.json" {
			manifest, err = ParseManifest(data)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}
		blobs[filepath.Clean(header.Name)] = data
	}

	if manifest == nil {
		return nil, nil, ErrNoManifest
	}
	data, ok := blobs[filepath.Clean(manifest.Database.Path)]
	if !ok {
		return nil, nil, ErrNoDatabase
	}
	return manifest, data, nil
}

// atomicWrite writes data to path through a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".restore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize restore: %w", err)
	}
	return nil
}

func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
