// Package backup packs database snapshots into portable tar archives and
// restores them. Each archive carries a manifest.json describing the
// database it holds, with a BLAKE3 digest for integrity verification.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"
)

// Version is the current archive format version.
const Version = "1.0.0"

// Manifest represents the archive manifest (manifest.json).
type Manifest struct {
	FormatVersion string       `json:"format_version"`
	CreatedAt     string       `json:"created_at"`
	Tool          ToolInfo     `json:"tool"`
	Database      DatabaseInfo `json:"database"`
}

// ToolInfo describes the tool that created this archive.
type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DatabaseInfo describes the database blob inside the archive.
type DatabaseInfo struct {
	// Name is the base name of the database file at backup time.
	Name string `json:"name"`

	// Path is the archive-relative path of the database blob.
	Path string `json:"path"`

	// SizeBytes is the snapshot size in bytes.
	SizeBytes int64 `json:"size_bytes"`

	// BLAKE3 is the hex digest of the snapshot contents.
	BLAKE3 string `json:"blake3"`

	// Tables records the declared schema at backup time, one DDL
	// statement per table.
	Tables []TableInfo `json:"tables,omitempty"`
}

// TableInfo records one table declaration.
type TableInfo struct {
	Name string `json:"name"`
	DDL  string `json:"ddl"`
}

// NewManifest creates a manifest for a database snapshot.
func NewManifest(name, path string, data []byte, tables []TableInfo) *Manifest {
	return &Manifest{
		FormatVersion: Version,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Tool: ToolInfo{
			Name:    "sqlitehelper",
			Version: Version,
		},
		Database: DatabaseInfo{
			Name:      name,
			Path:      path,
			SizeBytes: int64(len(data)),
			BLAKE3:    Blake3Hash(data),
			Tables:    tables,
		},
	}
}

// ToJSON serializes the manifest to JSON.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest parses a manifest from JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Blake3Hash computes the BLAKE3 hex digest of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
