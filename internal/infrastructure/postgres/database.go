package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ofsync/internal/shared/metrics"
)

var dbTracer = otel.Tracer("ofsync.db")

// maxStatementLen bounds the db.statement attribute.
const maxStatementLen = 256

// DB wraps *sql.DB so every query carries a span and feeds the query histogram.
type DB struct {
	*sql.DB
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute}
}

// New opens a pool with DefaultPoolConfig.
func New(connStr string) (*DB, error) {
	return NewWithPool(connStr, DefaultPoolConfig())
}

func NewWithPool(connStr string, pool PoolConfig) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	defaults := DefaultPoolConfig()
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = defaults.MaxOpenConns
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = defaults.MaxIdleConns
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// queryObservation is one traced statement; done must be called exactly once.
type queryObservation struct {
	span      trace.Span
	operation string
	started   time.Time
}

func observe(ctx context.Context, name, query string) (context.Context, *queryObservation) {
	op := sqlVerb(query)
	ctx, span := dbTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", redactStatement(query)),
	))
	return ctx, &queryObservation{span: span, operation: op, started: time.Now()}
}

func (o *queryObservation) done(err error) {
	status := "ok"
	// no rows is an answer, not a failure
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	metrics.DBQueryDuration.WithLabelValues(o.operation, status).Observe(time.Since(o.started).Seconds())
	o.span.End()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, obs := observe(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	obs.done(err)
	return rows, err
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, obs := observe(ctx, "db.Exec", query)
	result, err := db.DB.ExecContext(ctx, query, args...)
	obs.done(err)
	return result, err
}

// tracedRow holds the observation open until Scan, since sql.Row reports
// every error (sql.ErrNoRows included) there.
type tracedRow struct {
	row *sql.Row
	obs *queryObservation
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.obs != nil {
		r.obs.done(err)
		r.obs = nil
	}
	return err
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, obs := observe(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(ctx, query, args...), obs: obs}
}

// redactStatement masks quoted and numeric literals so statements can be
// exported in traces. $N placeholders are kept.
func redactStatement(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	inQuote := false
	inNumber := false
	var prev byte
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case inQuote:
			if c != '\'' {
				continue
			}
			if i+1 < len(q) && q[i+1] == '\'' {
				i++
				continue
			}
			inQuote = false
		case c == '\'':
			inQuote = true
			b.WriteString("'?'")
		case isDigit(c) && (inNumber || !isIdentChar(prev)):
			if !inNumber {
				b.WriteByte('?')
				inNumber = true
			}
		case c == '.' && inNumber:
		default:
			inNumber = false
			b.WriteByte(c)
		}
		prev = c
	}

	out := b.String()
	if len(out) > maxStatementLen {
		return out[:maxStatementLen] + "..."
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c == '_' || c == '$'
}

func sqlVerb(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
