package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/classbook/internal/domain"
)

// AdminRepo writes capacity overrides authored by school staff.
type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// UpsertSlotCapacities sets the capacity override of several slots for one
// period in a single round trip. A nil Capacity stores an override that
// leaves capacity unset, so resolution falls through to the cohort tier.
func (r *AdminRepo) UpsertSlotCapacities(
	ctx context.Context,
	periodID int64,
	items []domain.SlotOverride,
) error {
	const op = "postgres.AdminRepo.UpsertSlotCapacities"

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO slot_overrides (period_id, slot_id, capacity, active)
			 VALUES ($1, $2, $3, TRUE)
			 ON CONFLICT (period_id, slot_id) WHERE active
			 DO UPDATE SET capacity = EXCLUDED.capacity`,
			periodID, it.SlotID, it.Capacity,
		)
	}

	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

func (r *AdminRepo) UpsertCohortCapacity(ctx context.Context, o domain.CohortOverride) error {
	const op = "postgres.AdminRepo.UpsertCohortCapacity"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO cohort_overrides (period_id, cohort_id, capacity, active)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (period_id, cohort_id) WHERE active
		 DO UPDATE SET capacity = EXCLUDED.capacity`,
		o.PeriodID, o.CohortID, o.Capacity,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

// DeactivateSlotCapacity retires the active slot override, if any, and
// reports whether one existed.
func (r *AdminRepo) DeactivateSlotCapacity(ctx context.Context, periodID, slotID int64) (bool, error) {
	const op = "postgres.AdminRepo.DeactivateSlotCapacity"

	tag, err := r.handle().Exec(ctx,
		`UPDATE slot_overrides
		 SET active = FALSE
		 WHERE period_id = $1 AND slot_id = $2 AND active`,
		periodID, slotID,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return tag.RowsAffected() > 0, nil
}
