package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tailored-agentic-units/tabula/transform"
)

// Querier opens transactions. Both *pgxpool.Pool and *pgx.Conn satisfy it.
type Querier interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresOption configures a PostgresSource.
type PostgresOption func(*PostgresSource)

// WithRawSQL lets keys be complete SELECT or WITH statements. Without it
// only table names are accepted.
func WithRawSQL() PostgresOption {
	return func(s *PostgresSource) { s.allowSQL = true }
}

// PostgresSource reads datasets from PostgreSQL. A key is a table name,
// optionally schema-qualified, or a statement when WithRawSQL is set. Every
// fetch runs in a read-only transaction.
type PostgresSource struct {
	db       Querier
	pool     *pgxpool.Pool
	allowSQL bool
}

// NewPostgresSource creates a PostgresSource over an existing connection.
func NewPostgresSource(db Querier, opts ...PostgresOption) *PostgresSource {
	s := &PostgresSource{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectPostgres opens a connection pool for dsn.
func ConnectPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresSource(pool, opts...)
	s.pool = pool
	return s, nil
}

// Close releases the pool opened by ConnectPostgres.
func (s *PostgresSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSource) Fetch(ctx context.Context, key string) ([]transform.Row, error) {
	sql, err := QueryFor(key, s.allowSQL)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: begin: %v", ErrFetchFailed, key, err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, key, err)
	}

	out := make([]transform.Row, len(records))
	for i, record := range records {
		out[i] = transform.Row(record)
	}
	return out, nil
}

// QueryFor returns the statement used to fetch key. Table names are quoted
// as identifiers. A key that is already a SELECT or WITH statement passes
// through only when allowSQL is set.
func QueryFor(key string, allowSQL bool) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty key", ErrKeyNotFound)
	}

	if fields := strings.Fields(trimmed); strings.EqualFold(fields[0], "select") || strings.EqualFold(fields[0], "with") {
		if !allowSQL {
			return "", fmt.Errorf("%w: SQL statements are not enabled for this source", ErrInvalidKey)
		}
		return trimmed, nil
	}

	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: invalid table name %q", ErrKeyNotFound, key)
		}
	}
	return "SELECT * FROM " + pgx.Identifier(parts).Sanitize(), nil
}
