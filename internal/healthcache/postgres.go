package healthcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/sphinxql/internal/errs"
)

// pgQuerier is the subset of *pgxpool.Pool the store needs.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// farFuture stands in for "no expiry" so every row has a comparable
// expires_at.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// PostgresStore shares live sets between processes through an UNLOGGED
// table. Expired rows are ignored on read and overwritten on the next Set.
type PostgresStore struct {
	db    pgQuerier
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

// NewPostgresStore opens a pool on dsn and creates table if needed.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid postgres DSN", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindCache, "failed to create postgres pool", err)
	}

	s := newPostgresStore(pool, table)
	s.pool = pool
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db pgQuerier, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		now:   time.Now,
	}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`, s.table)

	if _, err := s.db.Exec(ctx, q); err != nil {
		return mapPgError(err, "failed to create health cache table")
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND expires_at > $2`, s.table)

	var value []byte
	err := s.db.QueryRow(ctx, q, key, s.now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapPgError(err, "postgres get failed")
	}
	return value, true, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, s.table)

	expiresAt := farFuture
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	if _, err := s.db.Exec(ctx, q, key, value, expiresAt); err != nil {
		return mapPgError(err, "postgres set failed")
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	if _, err := s.db.Exec(ctx, q, key); err != nil {
		return mapPgError(err, "postgres delete failed")
	}
	return nil
}

// Close releases the pool opened by NewPostgresStore.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// PostgreSQL SQLSTATE codes that point at setup rather than the service.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrInvalidPassword       = "28P01"
	pgErrInvalidAuthorization  = "28000"
)

func mapPgError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrInsufficientPrivilege, pgErrInvalidPassword, pgErrInvalidAuthorization:
			return errs.Wrap(errs.ErrKindConfig, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
		}
	}
	return errs.Wrap(errs.ErrKindCache, msg, err)
}
