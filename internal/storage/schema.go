package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultTable is the table the collector writes to unless configured otherwise.
const DefaultTable = "bitcoin_details"

// Column is one column of the current table definition.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Default string
}

// Migration adds a single column introduced after the first table definition.
// Migrated columns are always nullable so they can be added to tables that already hold rows.
type Migration struct {
	Version int
	Column  string
	Type    string
}

// Schema is the versioned definition of the observation table.
type Schema struct {
	Table      string
	Columns    []Column
	Migrations []Migration
}

// DefaultSchema returns the observation table definition for the given table name.
func DefaultSchema(table string) Schema {
	if table == "" {
		table = DefaultTable
	}
	return Schema{
		Table: table,
		Columns: []Column{
			{Name: "id", Type: "SERIAL PRIMARY KEY"},
			{Name: "name", Type: "TEXT", NotNull: true},
			{Name: "height", Type: "BIGINT", NotNull: true},
			{Name: "hash", Type: "TEXT", NotNull: true},
			{Name: "time", Type: "TIMESTAMPTZ", NotNull: true},
			{Name: "latest_url", Type: "TEXT", NotNull: true},
			{Name: "previous_hash", Type: "TEXT", NotNull: true},
			{Name: "previous_url", Type: "TEXT", NotNull: true},
			{Name: "peer_count", Type: "BIGINT", NotNull: true},
			{Name: "unconfirmed_count", Type: "BIGINT", NotNull: true},
			{Name: "high_fee_per_kb", Type: "BIGINT", NotNull: true},
			{Name: "medium_fee_per_kb", Type: "BIGINT", NotNull: true},
			{Name: "low_fee_per_kb", Type: "BIGINT", NotNull: true},
			{Name: "last_fork_height", Type: "BIGINT", NotNull: true},
			{Name: "last_fork_hash", Type: "TEXT", NotNull: true},
			{Name: "price", Type: "DOUBLE PRECISION"},
			{Name: "volume_24h", Type: "DOUBLE PRECISION"},
			{Name: "timestamp", Type: "TIMESTAMPTZ", Default: "CURRENT_TIMESTAMP"},
		},
		// Version 1 tables only had id, height and hash.
		Migrations: []Migration{
			{Version: 2, Column: "latest_url", Type: "TEXT"},
			{Version: 2, Column: "previous_url", Type: "TEXT"},
			{Version: 3, Column: "time", Type: "TIMESTAMPTZ"},
			{Version: 3, Column: "previous_hash", Type: "TEXT"},
			{Version: 3, Column: "peer_count", Type: "BIGINT"},
			{Version: 3, Column: "unconfirmed_count", Type: "BIGINT"},
			{Version: 3, Column: "high_fee_per_kb", Type: "BIGINT"},
			{Version: 3, Column: "medium_fee_per_kb", Type: "BIGINT"},
			{Version: 3, Column: "low_fee_per_kb", Type: "BIGINT"},
			{Version: 3, Column: "last_fork_height", Type: "BIGINT"},
			{Version: 3, Column: "last_fork_hash", Type: "TEXT"},
			{Version: 3, Column: "price", Type: "DOUBLE PRECISION"},
			{Version: 3, Column: "volume_24h", Type: "DOUBLE PRECISION"},
			{Version: 3, Column: "timestamp", Type: "TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP"},
			{Version: 4, Column: "name", Type: "TEXT"},
		},
	}
}

// Version is the highest migration version the schema describes.
func (s Schema) Version() int {
	version := 1
	for _, m := range s.Migrations {
		if m.Version > version {
			version = m.Version
		}
	}
	return version
}

func (s Schema) quotedTable() string {
	return pgx.Identifier{s.Table}.Sanitize()
}

// CreateStatement renders the create-if-absent statement for the full definition.
func (s Schema) CreateStatement() string {
	defs := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", s.quotedTable(), strings.Join(defs, ",\n    "))
}

// MigrationStatement renders the add-if-absent statement for one step.
func (s Schema) MigrationStatement(m Migration) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		s.quotedTable(), pgx.Identifier{m.Column}.Sanitize(), m.Type)
}

// EnsureSchema creates the table if absent and applies every additive migration in order.
// Safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	create := s.schema.CreateStatement()
	if _, err := db.Exec(ctx, create); err != nil {
		return &SchemaError{Version: 1, Stmt: create, Err: err}
	}

	for _, m := range s.schema.Migrations {
		stmt := s.schema.MigrationStatement(m)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return &SchemaError{Version: m.Version, Stmt: stmt, Err: err}
		}
	}
	return nil
}
