package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Catalog() *CatalogRepo          { return &CatalogRepo{pool: s.pool} }
func (s *Store) Enrollments() *EnrollmentRepo   { return &EnrollmentRepo{pool: s.pool} }
func (s *Store) Staff() *StaffRepo              { return &StaffRepo{pool: s.pool} }
func (s *Store) Discounts() *DiscountRepo       { return &DiscountRepo{pool: s.pool} }
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{pool: s.pool} }
func (s *Store) Admin() *AdminRepo               { return &AdminRepo{pool: s.pool} }

// Scheduling joins the catalog and staff repositories behind one handle, as
// the staffing service reads overrides and writes assignments together.
type Scheduling struct {
	*CatalogRepo
	*StaffRepo
}

func (s *Store) Scheduling() Scheduling {
	return Scheduling{CatalogRepo: s.Catalog(), StaffRepo: s.Staff()}
}

// BindScheduling returns a Scheduling whose statements run on tx.
func (s *Store) BindScheduling(tx DB) Scheduling {
	return Scheduling{CatalogRepo: s.Catalog().With(tx), StaffRepo: s.Staff().With(tx)}
}

// BindReservations returns a ReservationRepo whose statements run on tx.
func (s *Store) BindReservations(tx DB) *ReservationRepo {
	return s.Reservations().With(tx)
}

// Authoring joins the catalog and admin repositories for override writes.
type Authoring struct {
	*CatalogRepo
	*AdminRepo
}

// BindAuthoring returns an Authoring whose statements run on tx.
func (s *Store) BindAuthoring(tx DB) Authoring {
	return Authoring{CatalogRepo: s.Catalog().With(tx), AdminRepo: s.Admin().With(tx)}
}
