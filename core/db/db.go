// Package db is the accessor root over a single SQLite database.
//
// A DB is constructed from an explicit schema, opened against one file,
// and consulted through per-table accessors generated at construction
// time. It owns the one connection, the explicit transaction state, and
// the bounded retry loop that absorbs short-lived "database is locked"
// contention from external writers.
//
// Calls are safe for concurrent use; the underlying engine serializes
// writers. Transactions are the exception: at most one may be active per
// DB, and a second Begin fails immediately rather than queueing.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cmlburnett/sqlitehelper/core/codec"
	"github.com/cmlburnett/sqlitehelper/core/errors"
	"github.com/cmlburnett/sqlitehelper/core/schema"
	"github.com/cmlburnett/sqlitehelper/core/sqlite"
	"github.com/cmlburnett/sqlitehelper/internal/logging"
)

const (
	// DefaultRetries is the attempt cap for locked-database retries.
	DefaultRetries = 10

	// DefaultBackoffUnit scales the linear backoff between attempts:
	// attempt n waits n units before the next try.
	DefaultBackoffUnit = time.Second
)

// sleep is indirected so tests can drive the retry loop without waiting.
var sleep = time.Sleep

// Row is one selected row: column name to decoded value. Columns outside
// the table's declaration (rowid, count aggregates) carry the driver's
// raw representation.
type Row map[string]any

// DB is the accessor root. Construct with New, then Open before use.
type DB struct {
	path   string
	tables []schema.Table
	byName map[string]*Table

	mu   sync.Mutex
	conn *sql.DB
	tx   *sql.Tx

	retries int
	backoff time.Duration
}

// Option adjusts construction-time settings.
type Option func(*DB)

// WithRetries overrides the locked-database attempt cap.
func WithRetries(n int) Option {
	return func(d *DB) {
		if n > 0 {
			d.retries = n
		}
	}
}

// WithBackoffUnit overrides the backoff time unit.
func WithBackoffUnit(unit time.Duration) Option {
	return func(d *DB) {
		if unit >= 0 {
			d.backoff = unit
		}
	}
}

// New builds the accessor root for the given schema. Every table is
// validated and bound to an accessor; duplicate table names are a
// construction error. The default codecs are registered as a side
// effect. The database file is not touched until Open.
func New(path string, tables []schema.Table, opts ...Option) (*DB, error) {
	codec.RegisterDefaults()

	d := &DB{
		path:    path,
		byName:  make(map[string]*Table, len(tables)),
		retries: DefaultRetries,
		backoff: DefaultBackoffUnit,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, decl := range tables {
		if err := decl.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.byName[decl.Name]; dup {
			return nil, errors.Wrapf(errors.ErrDuplicateTable, "%s", decl.Name)
		}
		d.byName[decl.Name] = newTable(d, decl)
		d.tables = append(d.tables, decl)
	}
	return d, nil
}

// Path returns the database path the root was constructed with.
func (d *DB) Path() string {
	return d.path
}

// Open opens the database connection. Opening an already-open root is an
// error.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return errors.NewState("open", d.path, errors.ErrAlreadyOpen)
	}

	conn, err := sqlite.Open(d.path)
	if err != nil {
		return errors.NewState("open", d.path, err)
	}
	// One connection per accessor root
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return errors.NewState("open", d.path, err)
	}

	d.conn = conn
	return nil
}

// Close closes the connection. Closing a root that is not open is an
// error. An active transaction is rolled back first.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return errors.NewState("close", d.path, errors.ErrNotOpen)
	}

	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
		logging.Transaction("rollback", "reason", "close")
	}

	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return errors.NewState("close", d.path, err)
	}
	return nil
}

// IsOpen reports whether the connection is open.
func (d *DB) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Begin starts a transaction. Beginning while one is active is an error;
// the second caller is refused immediately rather than queued.
func (d *DB) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return errors.NewState("begin", d.path, errors.ErrNotOpen)
	}
	if d.tx != nil {
		return errors.NewState("begin", d.path, errors.ErrTransactionActive)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return errors.NewState("begin", d.path, err)
	}
	d.tx = tx
	logging.Transaction("begin")
	return nil
}

// Commit commits the active transaction. A commit with no transaction
// active is a no-op, not an error.
func (d *DB) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tx == nil {
		return nil
	}

	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return errors.NewState("commit", d.path, err)
	}
	logging.Transaction("commit")
	return nil
}

// Rollback rolls back the active transaction. A rollback with no
// transaction active is a no-op, not an error.
func (d *DB) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tx == nil {
		return nil
	}

	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		return errors.NewState("rollback", d.path, err)
	}
	logging.Transaction("rollback")
	return nil
}

// InTransaction reports whether a transaction is active.
func (d *DB) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// Table returns the accessor bound to the named table declaration.
func (d *DB) Table(name string) (*Table, error) {
	t, ok := d.byName[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTable, "%s", name)
	}
	return t, nil
}

// MustTable returns the accessor for name and panics if the schema does
// not declare it. Intended for callers whose schema is statically known.
func (d *DB) MustTable(name string) *Table {
	t, err := d.Table(name)
	if err != nil {
		panic(fmt.Sprintf("db: no accessor for table %s", name))
	}
	return t
}

// Tables returns the declared table names in declaration order.
func (d *DB) Tables() []string {
	names := make([]string, len(d.tables))
	for i, decl := range d.tables {
		names[i] = decl.Name
	}
	return names
}

// CreateSchema materializes every declared table that does not already
// exist, each inside its own begin/commit pair. Tables already present
// are skipped, so repeated calls are idempotent.
func (d *DB) CreateSchema() error {
	existing, err := d.existingTables()
	if err != nil {
		return err
	}

	for _, decl := range d.tables {
		if existing[decl.Name] {
			logging.SchemaTable(decl.Name, false)
			continue
		}

		if err := d.Begin(); err != nil {
			return err
		}
		if _, err := d.exec(decl.DDL(), nil); err != nil {
			_ = d.Rollback()
			return err
		}
		if err := d.Commit(); err != nil {
			return err
		}
		logging.SchemaTable(decl.Name, true)
	}
	return nil
}

// existingTables is ExistingTables as a membership set.
func (d *DB) existingTables() (map[string]bool, error) {
	names, err := d.ExistingTables()
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// SnapshotTo writes a consistent copy of the open database to path using
// VACUUM INTO. It cannot run inside a transaction.
func (d *DB) SnapshotTo(path string) error {
	if d.InTransaction() {
		return errors.NewState("snapshot", d.path, errors.ErrTransactionActive)
	}
	_, err := d.exec("VACUUM INTO ?", []any{path})
	return err
}

// executor picks the statement target: the active transaction when one
// is open, the bare connection otherwise.
type executor interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

func (d *DB) executor() (executor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, errors.NewState("execute", d.path, errors.ErrNotOpen)
	}
	if d.tx != nil {
		return d.tx, nil
	}
	return d.conn, nil
}

// withRetry dispatches fn through the bounded retry loop. Locked-database
// failures are retried with a linearly growing backoff (attempt n sleeps
// n backoff units); any other failure propagates immediately. When the
// cap is exhausted the last driver error is surfaced inside a RetryError.
func (d *DB) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < d.retries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !sqlite.IsLocked(err) {
			return err
		}
		delay := time.Duration(attempt) * d.backoff
		logging.Retry(attempt, delay, err)
		sleep(delay)
	}
	return errors.NewRetry(d.retries, err)
}

// exec runs a mutating statement and returns the driver result.
func (d *DB) exec(sqlText string, vals []any) (sql.Result, error) {
	encoded, err := codec.EncodeAll(vals)
	if err != nil {
		return nil, errors.NewQuery(sqlText, err)
	}
	logging.Query(sqlText, encoded)

	var res sql.Result
	runErr := d.withRetry(func() error {
		ex, err := d.executor()
		if err != nil {
			return err
		}
		r, err := ex.Exec(sqlText, encoded...)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if runErr != nil {
		return nil, d.dispatchError(sqlText, runErr)
	}
	return res, nil
}

// queryRows runs a row-returning statement. When decl is non-nil,
// declared columns are decoded through the codec registry; other columns
// pass through raw.
func (d *DB) queryRows(decl *schema.Table, sqlText string, vals []any) ([]Row, error) {
	encoded, err := codec.EncodeAll(vals)
	if err != nil {
		return nil, errors.NewQuery(sqlText, err)
	}
	logging.Query(sqlText, encoded)

	var out []Row
	runErr := d.withRetry(func() error {
		ex, err := d.executor()
		if err != nil {
			return err
		}
		rows, err := ex.Query(sqlText, encoded...)
		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := scanRows(decl, rows)
		if err != nil {
			return err
		}
		out = collected
		return nil
	})
	if runErr != nil {
		return nil, d.dispatchError(sqlText, runErr)
	}
	return out, nil
}

// dispatchError wraps engine failures with the statement text. State and
// retry-exhaustion errors already carry their context and pass through.
func (d *DB) dispatchError(sqlText string, err error) error {
	var stateErr *errors.StateError
	if errors.As(err, &stateErr) || errors.Is(err, errors.ErrRetriesExhausted) {
		return err
	}
	return errors.NewQuery(sqlText, err)
}

// scanRows drains a result set into decoded Row maps.
func scanRows(decl *schema.Table, rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		r := make(Row, len(cols))
		for i, name := range cols {
			v := raw[i]
			if decl != nil {
				if col, ok := decl.Column(name); ok {
					decoded, err := codec.Decode(col.Type, v)
					if err != nil {
						return nil, fmt.Errorf("decode column %s: %w", name, err)
					}
					v = decoded
				}
			}
			r[name] = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
