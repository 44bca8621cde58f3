//go:build cgo_sqlite

// CGO-based SQLite driver using mattn/go-sqlite3.
// This is an optional external dependency for performance-critical applications.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqliteexternal

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQL driver name to use with database/sql.
	DriverName = "sqlite3"

	// DriverType identifies this as the CGO implementation.
	DriverType = "cgo"

	// DriverPackage is the import path of the underlying driver.
	DriverPackage = "github.com/mattn/go-sqlite3"
)

// IsLocked reports whether err carries the driver's SQLITE_BUSY or
// SQLITE_LOCKED result code.
func IsLocked(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
