// Package pgtest provides a recording postgres.Executor for store tests that
// assert on the statements a store issues without a running server.
package pgtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoResponse is returned for a statement with no scripted response.
var ErrNoResponse = errors.New("pgtest: no scripted response")

// Call is one statement seen by the executor.
type Call struct {
	SQL  string
	Args []any
}

// Has reports whether the statement contains every fragment, ignoring
// whitespace differences.
func (c Call) Has(fragments ...string) bool {
	sql := squash(c.SQL)
	for _, f := range fragments {
		if !strings.Contains(sql, squash(f)) {
			return false
		}
	}
	return true
}

// Response scripts the outcome of statements matching Match.
type Response struct {
	Match string
	Tag   string
	Row   []any
	Err   error
}

// Executor records every statement and answers from the scripted responses.
// The first response whose Match appears in the statement wins.
type Executor struct {
	mu        sync.Mutex
	Calls     []Call
	Batches   [][]Call
	Responses []Response
}

// On appends a scripted response and returns the executor.
func (e *Executor) On(r Response) *Executor {
	e.Responses = append(e.Responses, r)
	return e
}

func (e *Executor) record(sql string, args []any) Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{SQL: sql, Args: args})
	return e.lookup(sql)
}

func (e *Executor) lookup(sql string) Response {
	for _, r := range e.Responses {
		if strings.Contains(squash(sql), squash(r.Match)) {
			return r
		}
	}
	return Response{Err: fmt.Errorf("%w: %s", ErrNoResponse, squash(sql))}
}

// Exec implements postgres.Executor.
func (e *Executor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := e.record(sql, args)
	if r.Err != nil {
		return pgconn.CommandTag{}, r.Err
	}
	return pgconn.NewCommandTag(r.Tag), nil
}

// Query implements postgres.Executor. Multi-row results are not scripted.
func (e *Executor) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := e.record(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return nil, fmt.Errorf("pgtest: Query results are not supported")
}

// QueryRow implements postgres.Executor.
func (e *Executor) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r := e.record(sql, args)
	return Row{Values: r.Row, Err: r.Err}
}

// SendBatch implements postgres.Executor. Each queued statement is answered
// from the scripted responses.
func (e *Executor) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]Call, 0, b.Len())
	results := make([]Response, 0, b.Len())
	for _, q := range b.QueuedQueries {
		calls = append(calls, Call{SQL: q.SQL, Args: q.Arguments})
		results = append(results, e.lookup(q.SQL))
	}
	e.Batches = append(e.Batches, calls)
	return &batchResults{results: results}
}

// Find returns the recorded statements containing every fragment.
func (e *Executor) Find(fragments ...string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.Calls {
		if c.Has(fragments...) {
			out = append(out, c)
		}
	}
	for _, batch := range e.Batches {
		for _, c := range batch {
			if c.Has(fragments...) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Row is a scripted pgx.Row. Values are assigned to the scan destinations by
// reflection; a nil value sets the destination to its zero value.
type Row struct {
	Values []any
	Err    error
}

// Scan implements pgx.Row.
func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(dest) != len(r.Values) {
		return fmt.Errorf("pgtest: scan %d destinations from %d values", len(dest), len(r.Values))
	}
	for i, d := range dest {
		if s, ok := d.(interface{ Scan(any) error }); ok {
			if err := s.Scan(r.Values[i]); err != nil {
				return err
			}
			continue
		}
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("pgtest: destination %d is not a pointer", i)
		}
		if r.Values[i] == nil {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}
		v := reflect.ValueOf(r.Values[i])
		if !v.Type().ConvertibleTo(dv.Elem().Type()) {
			return fmt.Errorf("pgtest: cannot scan %T into %s", r.Values[i], dv.Elem().Type())
		}
		dv.Elem().Set(v.Convert(dv.Elem().Type()))
	}
	return nil
}

type batchResults struct {
	results []Response
	next    int
}

func (b *batchResults) pop() Response {
	if b.next >= len(b.results) {
		return Response{Err: errors.New("pgtest: batch exhausted")}
	}
	r := b.results[b.next]
	b.next++
	return r
}

func (b *batchResults) Exec() (pgconn.CommandTag, error) {
	r := b.pop()
	if r.Err != nil {
		return pgconn.CommandTag{}, r.Err
	}
	return pgconn.NewCommandTag(r.Tag), nil
}

func (b *batchResults) Query() (pgx.Rows, error) {
	r := b.pop()
	if r.Err != nil {
		return nil, r.Err
	}
	return nil, fmt.Errorf("pgtest: Query results are not supported")
}

func (b *batchResults) QueryRow() pgx.Row {
	r := b.pop()
	return Row{Values: r.Row, Err: r.Err}
}

func (b *batchResults) Close() error { return nil }

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
