package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stwalsh4118/roadwarden/internal/database"
)

// Store groups the entity repositories and runs units of work atomically.
// Repositories obtained from the Store passed to a WithTx callback share
// that transaction.
type Store interface {
	Vehicles() VehicleRepository
	ViolationTypes() ViolationTypeRepository
	Violations() ViolationRepository
	Payments() PaymentRepository

	// WithTx runs fn inside a transaction. If fn returns an error every write
	// made through tx is rolled back. Calling WithTx on a transactional Store
	// reuses the enclosing transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type pgStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewStore creates a PostgreSQL-backed Store.
func NewStore(db *database.Database) Store {
	return &pgStore{pool: db.Pool, q: db.Pool}
}

func (s *pgStore) Vehicles() VehicleRepository {
	return &vehicleRepository{q: s.q}
}

func (s *pgStore) ViolationTypes() ViolationTypeRepository {
	return &violationTypeRepository{q: s.q}
}

func (s *pgStore) Violations() ViolationRepository {
	return &violationRepository{q: s.q}
}

func (s *pgStore) Payments() PaymentRepository {
	return &paymentRepository{q: s.q}
}

func (s *pgStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr("failed to begin transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgStore{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("failed to commit transaction", err)
	}
	return nil
}

// forUpdate appends a row lock clause when lock is set.
func forUpdate(query string, lock bool) string {
	if lock {
		return query + " FOR UPDATE"
	}
	return query
}
