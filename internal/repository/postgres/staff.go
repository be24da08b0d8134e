package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/classbook/internal/domain"
)

type StaffRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *StaffRepo) With(db DB) *StaffRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *StaffRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// StaffCandidates lists the slots on date where staffID is either the base
// staff or named by an active override of a period covering date. The caller
// decides which of them the staff member effectively teaches.
func (r *StaffRepo) StaffCandidates(
	ctx context.Context,
	staffID int64,
	date time.Time,
) ([]domain.StaffCommitment, error) {
	const op = "postgres.StaffRepo.StaffCandidates"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT sl.id, s.starts_at, s.ends_at
		 FROM slots sl
		 JOIN cohorts c  ON c.id = sl.cohort_id AND c.deleted_at IS NULL
		 JOIN sessions s ON s.id = c.session_id
		 WHERE s.date = $2::date
		   AND sl.deleted_at IS NULL
		   AND (
		     sl.base_staff_id = $1
		     OR EXISTS (
		       SELECT 1
		       FROM staff_overrides so
		       JOIN override_periods p ON p.id = so.period_id
		       WHERE so.slot_id = sl.id
		         AND so.active
		         AND so.staff_id = $1
		         AND $2::date BETWEEN p.start_date AND p.end_date
		     )
		   )
		 ORDER BY s.starts_at, sl.id`,
		staffID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.StaffCommitment
	for rows.Next() {
		var c domain.StaffCommitment
		if err := rows.Scan(&c.SlotID, &c.StartsAt, &c.EndsAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// LockStaff takes a transaction-scoped advisory lock keyed by staff member.
func (r *StaffRepo) LockStaff(ctx context.Context, staffID int64) error {
	const op = "postgres.StaffRepo.LockStaff"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('staff:' || $1::text, 0))`,
		staffID,
	); err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

// UpsertStaffOverride writes the single active staff override of
// (period, slot), replacing the previous one in place.
func (r *StaffRepo) UpsertStaffOverride(ctx context.Context, o domain.StaffOverride) (domain.StaffOverride, error) {
	const op = "postgres.StaffRepo.UpsertStaffOverride"

	db := r.handle()

	var out domain.StaffOverride
	err := db.QueryRow(ctx,
		`INSERT INTO staff_overrides (period_id, slot_id, staff_id, active, notes, updated_at)
		 VALUES ($1, $2, $3, TRUE, $4, now())
		 ON CONFLICT (period_id, slot_id) WHERE active
		 DO UPDATE SET staff_id = EXCLUDED.staff_id,
		               notes = EXCLUDED.notes,
		               updated_at = now()
		 RETURNING id, period_id, slot_id, staff_id, active, notes, updated_at`,
		o.PeriodID, o.SlotID, o.StaffID, o.Notes,
	).Scan(&out.ID, &out.PeriodID, &out.SlotID, &out.StaffID, &out.Active, &out.Notes, &out.UpdatedAt)
	if err != nil {
		return domain.StaffOverride{}, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// DeactivateStaffOverride turns off the active staff override of
// (period, slot). It reports false when there was none.
func (r *StaffRepo) DeactivateStaffOverride(ctx context.Context, periodID, slotID int64) (bool, error) {
	const op = "postgres.StaffRepo.DeactivateStaffOverride"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE staff_overrides
		 SET active = FALSE, updated_at = now()
		 WHERE period_id = $1 AND slot_id = $2 AND active`,
		periodID, slotID,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return tag.RowsAffected() > 0, nil
}
