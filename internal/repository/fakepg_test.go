package repository

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"daycard/pkg/util"
)

// fakePG serves the repository's queries from an in-memory column set and
// canned rows. driftPulls and driftPushes inject undefined-column errors.
type fakePG struct {
	mu sync.Mutex

	columns map[string][]string
	rows    map[string][][]any

	driftPulls  int
	driftPushes int

	execs   []string
	queries []string
	probes  int
	commits int
}

func newFakePG(columns map[string][]string) *fakePG {
	return &fakePG{columns: columns, rows: map[string][][]any{}}
}

var errUndefinedColumn = &pgconn.PgError{Code: util.PgUndefinedColumn, Message: `column "icon" does not exist`}

func (f *fakePG) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if strings.HasPrefix(sql, "ALTER TABLE") {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: util.PgDuplicateColumn}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakePG) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.Contains(sql, "information_schema.columns") {
		f.probes++
		var out [][]any
		for table, cols := range f.columns {
			for _, col := range cols {
				out = append(out, []any{table, col})
			}
		}
		return &fakeRows{rows: out}, nil
	}

	f.queries = append(f.queries, sql)
	if f.driftPulls > 0 {
		f.driftPulls--
		return nil, errUndefinedColumn
	}
	for _, table := range snapshotTables {
		if strings.Contains(sql, "FROM "+table+" ") {
			return &fakeRows{rows: f.rows[table]}, nil
		}
	}
	return nil, fmt.Errorf("unexpected query %q", sql)
}

func (f *fakePG) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	if rows := f.rows["settings"]; len(rows) > 0 {
		return &fakeRow{values: rows[0]}
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakePG) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakePG) Ping(context.Context) error { return nil }

func (f *fakePG) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sql := range f.execs {
		if strings.HasPrefix(strings.TrimSpace(sql), prefix) {
			n++
		}
	}
	return n
}

// fakeTx implements only what pushOnce calls; the embedded nil Tx panics on
// anything else.
type fakeTx struct {
	pgx.Tx
	db *fakePG
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.execs = append(t.db.execs, sql)
	if t.db.driftPushes > 0 && strings.Contains(sql, "INSERT INTO") {
		t.db.driftPushes--
		return pgconn.CommandTag{}, errUndefinedColumn
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeRows struct {
	pgx.Rows
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return scanInto(r.rows[r.pos-1], dest) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

// scanInto copies values into dest. A nil value zeroes the destination and a
// plain value is boxed when the destination is a pointer field.
func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		dv := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		vv := reflect.ValueOf(v)
		if dv.Kind() == reflect.Pointer && vv.Type() != dv.Type() {
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(vv.Convert(dv.Type().Elem()))
			dv.Set(p)
			continue
		}
		dv.Set(vv.Convert(dv.Type()))
	}
	return nil
}
