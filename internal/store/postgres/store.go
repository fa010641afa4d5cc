// Package postgres is the PostgreSQL Store backed by a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/shellmarket/internal/store"
)

//go:embed schema.sql
var schema string

// writeLockKey is the advisory lock every write transaction takes. Balances, the
// platform ledger and the activity-mining counter are all touched by one completion,
// so writes are serialized globally.
const writeLockKey int64 = 0x5e11_1ed6e7

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the pool for components sharing the database, such as the job queue.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies the ledger schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(ptx pgx.Tx) error {
		if _, err := ptx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLockKey); err != nil {
			return fmt.Errorf("acquire write lock: %w", err)
		}
		return fn(&tx{tx: ptx})
	})
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ptx pgx.Tx) error {
		return fn(&tx{tx: ptx})
	})
}

func (s *Store) Close() {
	s.pool.Close()
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrDuplicate
		case "23503":
			return store.ErrNotFound
		case "23514":
			if pgErr.ConstraintName == "agents_balance_check" {
				return store.ErrInsufficientBalance
			}
		case "25006":
			return store.ErrReadOnly
		}
	}
	return err
}

var _ store.Store = (*Store)(nil)
