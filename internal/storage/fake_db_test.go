package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	createRe = regexp.MustCompile(`(?s)^CREATE TABLE (IF NOT EXISTS )?"([^"]+)" \((.*)\)$`)
	alterRe  = regexp.MustCompile(`^ALTER TABLE "([^"]+)" ADD COLUMN (IF NOT EXISTS )?"([^"]+)" `)
	insertRe = regexp.MustCompile(`^INSERT INTO "([^"]+)" \(`)
)

// fakeDB models just enough DDL to check that schema statements are safe to repeat.
// Without IF NOT EXISTS it fails on duplicates the way PostgreSQL does.
type fakeDB struct {
	mu        sync.Mutex
	tables    map[string][]string
	rows      map[string][][]any
	stmts     []string
	failOn    string
	failErr   error
	affectNil bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{tables: map[string][]string{}, rows: map[string][][]any{}}
}

func (f *fakeDB) hasColumn(table, column string) bool {
	for _, c := range f.tables[table] {
		if c == column {
			return true
		}
	}
	return false
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stmts = append(f.stmts, sql)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, f.failErr
	}

	if m := createRe.FindStringSubmatch(sql); m != nil {
		table := m[2]
		if _, ok := f.tables[table]; ok {
			if m[1] == "" {
				return pgconn.CommandTag{}, fmt.Errorf("relation %q already exists", table)
			}
			return pgconn.NewCommandTag("CREATE TABLE"), nil
		}
		var cols []string
		for _, def := range strings.Split(m[3], ",\n") {
			def = strings.TrimSpace(def)
			cols = append(cols, strings.Trim(strings.Fields(def)[0], `"`))
		}
		f.tables[table] = cols
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}

	if m := alterRe.FindStringSubmatch(sql); m != nil {
		table, column := m[1], m[3]
		if _, ok := f.tables[table]; !ok {
			return pgconn.CommandTag{}, fmt.Errorf("relation %q does not exist", table)
		}
		if f.hasColumn(table, column) {
			if m[2] == "" {
				return pgconn.CommandTag{}, fmt.Errorf("column %q of relation %q already exists", column, table)
			}
			return pgconn.NewCommandTag("ALTER TABLE"), nil
		}
		f.tables[table] = append(f.tables[table], column)
		return pgconn.NewCommandTag("ALTER TABLE"), nil
	}

	if m := insertRe.FindStringSubmatch(sql); m != nil {
		if f.affectNil {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		f.rows[m[1]] = append(f.rows[m[1]], args)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}

	return pgconn.CommandTag{}, fmt.Errorf("fakeDB: unsupported statement %q", sql)
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: query not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: errors.New("fakeDB: query not supported")}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
