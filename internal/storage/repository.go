package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var insertColumns = []string{
	"name",
	"height",
	"hash",
	"time",
	"latest_url",
	"previous_hash",
	"previous_url",
	"peer_count",
	"unconfirmed_count",
	"high_fee_per_kb",
	"medium_fee_per_kb",
	"low_fee_per_kb",
	"last_fork_height",
	"last_fork_hash",
	"price",
	"volume_24h",
}

// Rows written by a version 1 or 2 collector may have NULLs in later columns.
const selectColumns = `"id",
        COALESCE("name", ''),
        "height",
        "hash",
        COALESCE("time", 'epoch'::timestamptz),
        COALESCE("latest_url", ''),
        COALESCE("previous_hash", ''),
        COALESCE("previous_url", ''),
        COALESCE("peer_count", 0),
        COALESCE("unconfirmed_count", 0),
        COALESCE("high_fee_per_kb", 0),
        COALESCE("medium_fee_per_kb", 0),
        COALESCE("low_fee_per_kb", 0),
        COALESCE("last_fork_height", 0),
        COALESCE("last_fork_hash", ''),
        "price",
        "volume_24h",
        COALESCE("timestamp", 'epoch'::timestamptz)`

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DB is the subset of *pgxpool.Pool the store issues statements through.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ObservationWriter appends observations.
type ObservationWriter interface {
	InsertObservation(ctx context.Context, obs Observation) error
}

// ObservationReader reads stored observations back.
type ObservationReader interface {
	ListRecentObservations(ctx context.Context, limit int) ([]Observation, error)
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]Observation, error)
	CountObservations(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists observations in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	db     DB
	schema Schema

	insertSQL      string
	listRecentSQL  string
	listBetweenSQL string
	countSQL       string
}

// NewStore wires a pgx pool into a Store writing to the given schema.
func NewStore(pool *pgxpool.Pool, schema Schema) *Store {
	if pool == nil {
		return newStore(nil, schema)
	}
	s := newStore(pool, schema)
	s.pool = pool
	return s
}

func newStore(db DB, schema Schema) *Store {
	if schema.Table == "" {
		schema = DefaultSchema("")
	}
	table := schema.quotedTable()

	placeholders := make([]string, len(insertColumns))
	quoted := make([]string, len(insertColumns))
	for i, col := range insertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}

	s := &Store{
		schema: schema,
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(quoted, ", "), strings.Join(placeholders, ", ")),
		listRecentSQL: fmt.Sprintf("SELECT %s\n    FROM %s\n    ORDER BY \"id\" DESC\n    LIMIT $1", selectColumns, table),
		listBetweenSQL: fmt.Sprintf("SELECT %s\n    FROM %s\n    WHERE \"timestamp\" >= $1\n      AND \"timestamp\" < $2\n    ORDER BY \"timestamp\", \"id\"",
			selectColumns, table),
		countSQL: fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
	}
	s.db = db
	return s
}

// Schema returns the definition the store was built with.
func (s *Store) Schema() Schema {
	return s.schema
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// InsertObservation appends one row. The id and timestamp columns are assigned by the server.
func (s *Store) InsertObservation(ctx context.Context, obs Observation) error {
	db, err := s.getDB()
	if err != nil {
		return &PersistenceError{Err: err}
	}

	var price, volume any
	if obs.Price != nil {
		price = *obs.Price
	}
	if obs.Volume24h != nil {
		volume = *obs.Volume24h
	}

	tag, err := db.Exec(ctx, s.insertSQL,
		obs.Name,
		obs.Height,
		obs.Hash,
		obs.Time,
		obs.LatestURL,
		obs.PreviousHash,
		obs.PreviousURL,
		obs.PeerCount,
		obs.UnconfirmedCount,
		obs.HighFeePerKB,
		obs.MediumFeePerKB,
		obs.LowFeePerKB,
		obs.LastForkHeight,
		obs.LastForkHash,
		price,
		volume,
	)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	if tag.RowsAffected() != 1 {
		return &PersistenceError{Err: fmt.Errorf("expected 1 row affected, got %d", tag.RowsAffected())}
	}
	return nil
}

// ListRecentObservations lists the most recent observations, newest first.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, s.listRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent observations: %w", err)
	}
	return collectObservations(rows)
}

// ListObservationsBetween lists observations captured in [from, to), oldest first.
func (s *Store) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, s.listBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list observations between: %w", err)
	}
	return collectObservations(rows)
}

// CountObservations counts stored rows.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRow(ctx, s.countSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, &ConnectionError{Op: "acquire connection", Err: err}
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// the session lock dies with the connection anyway
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func collectObservations(rows pgx.Rows) ([]Observation, error) {
	observations, err := pgx.CollectRows(rows, scanObservation)
	if err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}
	if observations == nil {
		observations = []Observation{}
	}
	return observations, nil
}

func scanObservation(row pgx.CollectableRow) (Observation, error) {
	var obs Observation
	err := row.Scan(
		&obs.ID,
		&obs.Name,
		&obs.Height,
		&obs.Hash,
		&obs.Time,
		&obs.LatestURL,
		&obs.PreviousHash,
		&obs.PreviousURL,
		&obs.PeerCount,
		&obs.UnconfirmedCount,
		&obs.HighFeePerKB,
		&obs.MediumFeePerKB,
		&obs.LowFeePerKB,
		&obs.LastForkHeight,
		&obs.LastForkHash,
		&obs.Price,
		&obs.Volume24h,
		&obs.CapturedAt,
	)
	if err != nil {
		return Observation{}, err
	}
	obs.Time = obs.Time.UTC()
	obs.CapturedAt = obs.CapturedAt.UTC()
	return obs, nil
}

var (
	_ ObservationWriter = (*Store)(nil)
	_ ObservationReader = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
