package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repositories struct {
	queues  QueueRepository
	tickets TicketRepository
	events  EventRepository
}

func newRepositories(db DBTX) *repositories {
	return &repositories{
		queues:  NewQueueRepository(db),
		tickets: NewTicketRepository(db),
		events:  NewEventRepository(db),
	}
}

func (r *repositories) Queues() QueueRepository   { return r.queues }
func (r *repositories) Tickets() TicketRepository { return r.tickets }
func (r *repositories) Events() EventRepository   { return r.events }

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	*repositories
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	stmtTimeout time.Duration
}

// PostgresStoreOptions bounds how long a transaction may wait.
type PostgresStoreOptions struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(pool *pgxpool.Pool, opts PostgresStoreOptions) *PostgresStore {
	return &PostgresStore{
		repositories: newRepositories(pool),
		pool:         pool,
		lockTimeout:  opts.LockTimeout,
		stmtTimeout:  opts.StatementTimeout,
	}
}

// WithTx runs fn inside a read-committed transaction. Lock waits and slow
// statements fail with a lock_not_available or query_canceled error instead
// of hanging.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		if s.stmtTimeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.stmtTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		return fn(newRepositories(tx))
	})
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Postgres error codes the service reacts to.
const (
	pgUniqueViolation  = "23505"
	pgInvalidText      = "22P02"
	pgLockNotAvailable = "55P03"
	pgQueryCanceled    = "57014"
)

// IsUnavailable reports whether err is a lock or statement timeout.
func IsUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgQueryCanceled
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgInvalidText:
			// malformed uuid in a lookup
			return ErrNotFound
		}
	}
	return err
}
