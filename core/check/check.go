// Package check builds database health reports: a versioned pass/fail
// report covering the file header, size bound, the engine's integrity
// pragmas, and declared-table presence.
package check

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cmlburnett/sqlitehelper/core/db"
	"github.com/cmlburnett/sqlitehelper/internal/validation"
)

// Version is the report format version.
const Version = "1.0.0"

// Status values for reports and individual checks.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Check names.
const (
	CheckHeader    = "header"
	CheckFileSize  = "file_size"
	CheckIntegrity = "integrity_check"
	CheckQuick     = "quick_check"
	CheckTables    = "tables"
)

// Result records the outcome of a single check.
type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is a versioned database health report.
type Report struct {
	Version   string   `json:"version"`
	Database  string   `json:"database"`
	CheckedAt string   `json:"checked_at"`
	Status    string   `json:"status"`
	Checks    []Result `json:"checks"`
}

// Run executes every health check against the open database. File-level
// findings land in the report as failed checks; errors reaching the
// engine itself (not open, retries exhausted) abort the run.
func Run(d *db.DB) (*Report, error) {
	report := &Report{
		Version:   Version,
		Database:  d.Path(),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    StatusPass,
	}

	report.add(checkHeader(d.Path()))
	report.add(checkFileSize(d.Path()))

	res, err := pragmaResult(CheckIntegrity, d.CheckIntegrity)
	if err != nil {
		return nil, err
	}
	report.add(res)

	res, err = pragmaResult(CheckQuick, d.QuickCheck)
	if err != nil {
		return nil, err
	}
	report.add(res)

	res, err = checkTables(d)
	if err != nil {
		return nil, err
	}
	report.add(res)

	return report, nil
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	return r.Status == StatusPass
}

// ToJSON renders the report as indented JSON.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func (r *Report) add(res Result) {
	if res.Status != StatusPass {
		r.Status = StatusFail
	}
	r.Checks = append(r.Checks, res)
}

func checkHeader(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Name: CheckHeader, Status: StatusFail, Detail: err.Error()}
	}
	defer f.Close()

	buf := make([]byte, 16)
	n, _ := io.ReadFull(f, buf)
	if err := validation.ValidateSQLiteHeader(buf[:n]); err != nil {
		return Result{Name: CheckHeader, Status: StatusFail, Detail: err.Error()}
	}
	return Result{Name: CheckHeader, Status: StatusPass}
}

func checkFileSize(path string) Result {
	st, err := os.Stat(path)
	if err != nil {
		return Result{Name: CheckFileSize, Status: StatusFail, Detail: err.Error()}
	}
	if st.Size() > validation.MaxFileSize {
		return Result{
			Name:   CheckFileSize,
			Status: StatusFail,
			Detail: fmt.Sprintf("%d bytes exceeds limit %d", st.Size(), validation.MaxFileSize),
		}
	}
	return Result{
		Name:   CheckFileSize,
		Status: StatusPass,
		Detail: fmt.Sprintf("%d bytes", st.Size()),
	}
}

func pragmaResult(name string, run func() ([]string, error)) (Result, error) {
	lines, err := run()
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 1 && lines[0] == "ok" {
		return Result{Name: name, Status: StatusPass}, nil
	}
	return Result{Name: name, Status: StatusFail, Detail: strings.Join(lines, "; ")}, nil
}

func checkTables(d *db.DB) (Result, error) {
	present, err := d.ExistingTables()
	if err != nil {
		return Result{}, err
	}
	set := make(map[string]bool, len(present))
	for _, name := range present {
		set[name] = true
	}

	declared := d.Tables()
	var missing []string
	for _, name := range declared {
		if !set[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Result{
			Name:   CheckTables,
			Status: StatusFail,
			Detail: "missing: " + strings.Join(missing, ", "),
		}, nil
	}
	return Result{
		Name:   CheckTables,
		Status: StatusPass,
		Detail: fmt.Sprintf("%d declared, all present", len(declared)),
	}, nil
}
