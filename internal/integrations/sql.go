package integrations

import (
	"context"
	"database/sql"

	"github.com/GriffinCanCode/tracekit/internal/trace"
)

// DB wraps a *sql.DB so queries and statements become spans tagged with
// their SQL text
type DB struct {
	*sql.DB
	t Instrumenter
}

// WrapDB instruments db
func WrapDB(t Instrumenter, db *sql.DB) *DB {
	return &DB{DB: db, t: t}
}

// QueryContext runs a query inside an "SQL/Query" span
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := instrument(ctx, d.t, "SQL/Query", func(ctx context.Context, span *trace.Span) error {
		addTag(span, trace.TagDBStatement, query)
		var err error
		rows, err = d.DB.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// QueryRowContext runs a single-row query inside an "SQL/Query" span. Its
// errors surface from Scan, after the span has ended.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	var row *sql.Row
	_ = instrument(ctx, d.t, "SQL/Query", func(ctx context.Context, span *trace.Span) error {
		addTag(span, trace.TagDBStatement, query)
		row = d.DB.QueryRowContext(ctx, query, args...)
		return nil
	})
	return row
}

// ExecContext runs a statement inside an "SQL/Exec" span
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := instrument(ctx, d.t, "SQL/Exec", func(ctx context.Context, span *trace.Span) error {
		addTag(span, trace.TagDBStatement, query)
		var err error
		res, err = d.DB.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}
