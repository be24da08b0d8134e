package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EnrollmentRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EnrollmentRepo) With(db DB) *EnrollmentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EnrollmentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CountActiveEnrollments counts the enrollments currently holding a place on
// a slot for the session on date. It always reads live data.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - slotID: the slot being counted.
//   - date: the session day.
//
// Returns:
//   - int64: active, non-deleted enrollments whose reservation is not cancelled.
//   - error: any database error.
func (r *EnrollmentRepo) CountActiveEnrollments(ctx context.Context, slotID int64, date time.Time) (int64, error) {
	const op = "postgres.EnrollmentRepo.CountActiveEnrollments"

	db := r.handle()

	var n int64
	err := db.QueryRow(ctx,
		`SELECT count(*)
		 FROM enrollments e
		 JOIN reservations r ON r.id = e.reservation_id
		 JOIN sessions s     ON s.id = e.session_id
		 WHERE e.slot_id = $1
		   AND s.date = $2::date
		   AND e.status = 'active'
		   AND e.deleted_at IS NULL
		   AND r.status <> 'cancelled'`,
		slotID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return n, nil
}

// LockSlot takes a row lock on the slot until the surrounding transaction
// ends. Enrollment writers lock before their final availability check so two
// bookings of the last place serialize.
func (r *EnrollmentRepo) LockSlot(ctx context.Context, slotID int64) error {
	const op = "postgres.EnrollmentRepo.LockSlot"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`SELECT id FROM slots WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		slotID,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}
