// Package errors provides standardized error types and helpers for the sqlitehelper codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrAlreadyOpen indicates Open was called on an open database
	ErrAlreadyOpen = errors.New("database already open")
	// ErrNotOpen indicates an operation that requires an open database
	ErrNotOpen = errors.New("database not open")
	// ErrTransactionActive indicates Begin was called inside a transaction
	ErrTransactionActive = errors.New("transaction already active")
	// ErrRetriesExhausted indicates the locked-database retry cap was reached
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrInvalidJoin indicates a predicate join operator other than AND or OR
	ErrInvalidJoin = errors.New("invalid join operator")
	// ErrNoColumns indicates an explicit column list that is empty
	ErrNoColumns = errors.New("no columns specified")
	// ErrNoValues indicates an insert or update with an empty value map
	ErrNoValues = errors.New("no values specified")
	// ErrInvalidSchema indicates a table declaration that fails validation
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrDuplicateTable indicates two table declarations sharing one name
	ErrDuplicateTable = errors.New("duplicate table name")
	// ErrUnknownTable indicates a lookup for an undeclared table
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn indicates a lookup for an undeclared column
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNotUnique indicates a single-row lookup on a column not marked unique
	ErrNotUnique = errors.New("column not unique")
	// ErrNoPrimaryKey indicates a primary-key lookup on a table without one
	ErrNoPrimaryKey = errors.New("table has no primary key")
)

// StateError represents a connection or transaction lifecycle violation
type StateError struct {
	Op   string // Operation that was attempted (e.g., "open", "close", "begin")
	Path string // Database path involved
	Err  error  // Underlying sentinel or driver error
}

func (e *StateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// SchemaError represents an invalid table or column declaration
type SchemaError struct {
	Table   string // Table name, if known
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("schema table %s: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("schema: %s", e.Message)
}

func (e *SchemaError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidSchema
}

// QueryError represents a statement that the engine rejected
type QueryError struct {
	Query string // SQL text that failed
	Err   error  // Underlying driver error
}

func (e *QueryError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("query %q: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("query: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// RetryError represents a locked database that stayed locked past the retry cap
type RetryError struct {
	Attempts int   // Number of attempts made
	Err      error // Final driver error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("database locked after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Is reports ErrRetriesExhausted so callers can match the class without
// losing the wrapped driver error.
func (e *RetryError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Helper functions for creating common errors

// NewState creates a StateError
func NewState(op, path string, err error) *StateError {
	return &StateError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// NewSchema creates a SchemaError
func NewSchema(table, message string) *SchemaError {
	return &SchemaError{
		Table:   table,
		Message: message,
	}
}

// NewQuery creates a QueryError
func NewQuery(query string, err error) *QueryError {
	return &QueryError{
		Query: query,
		Err:   err,
	}
}

// NewRetry creates a RetryError
func NewRetry(attempts int, err error) *RetryError {
	return &RetryError{
		Attempts: attempts,
		Err:      err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
