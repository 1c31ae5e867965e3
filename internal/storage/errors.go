package storage

import (
	"errors"
	"fmt"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// ConnectionError reports a failure to establish or reach the database.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("database %s: %v", e.Op, e.Err) }

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a failed create or migration statement.
type SchemaError struct {
	Version int
	Stmt    string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ensure schema (version %d): %v", e.Version, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// PersistenceError reports a failed insert.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("insert observation: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
