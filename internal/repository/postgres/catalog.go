package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/classbook/internal/domain"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetSlotContext retrieves a slot joined with its cohort, session and offering.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - slotID: unique identifier of the slot.
//
// Returns:
//   - *domain.SlotContext: the slot with its parents.
//   - error: repository.ErrNotFound if the slot or any parent is missing or deleted.
func (r *CatalogRepo) GetSlotContext(ctx context.Context, slotID int64) (*domain.SlotContext, error) {
	const op = "postgres.CatalogRepo.GetSlotContext"

	db := r.handle()

	var sc domain.SlotContext
	err := db.QueryRow(ctx,
		`SELECT sl.id, sl.cohort_id, sl.base_capacity, sl.base_staff_id,
		        c.id, c.offering_id, c.session_id, c.skill_level,
		        s.id, s.offering_id, s.date, s.starts_at, s.ends_at,
		        o.id, o.school_id, o.name, o.type, o.config_mode, o.currency
		 FROM slots sl
		 JOIN cohorts c   ON c.id = sl.cohort_id AND c.deleted_at IS NULL
		 JOIN sessions s  ON s.id = c.session_id
		 JOIN offerings o ON o.id = c.offering_id AND o.deleted_at IS NULL
		 WHERE sl.id = $1 AND sl.deleted_at IS NULL`,
		slotID,
	).Scan(
		&sc.Slot.ID, &sc.Slot.CohortID, &sc.Slot.BaseCapacity, &sc.Slot.BaseStaffID,
		&sc.Cohort.ID, &sc.Cohort.OfferingID, &sc.Cohort.SessionID, &sc.Cohort.SkillLevel,
		&sc.Session.ID, &sc.Session.OfferingID, &sc.Session.Date, &sc.Session.StartsAt, &sc.Session.EndsAt,
		&sc.Offering.ID, &sc.Offering.SchoolID, &sc.Offering.Name, &sc.Offering.Type, &sc.Offering.ConfigMode, &sc.Offering.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return &sc, nil
}

// GetOffering retrieves a live offering by its ID.
func (r *CatalogRepo) GetOffering(ctx context.Context, id int64) (*domain.Offering, error) {
	const op = "postgres.CatalogRepo.GetOffering"

	db := r.handle()

	var o domain.Offering
	err := db.QueryRow(ctx,
		`SELECT id, school_id, name, type, config_mode, currency
		 FROM offerings
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&o.ID, &o.SchoolID, &o.Name, &o.Type, &o.ConfigMode, &o.Currency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return &o, nil
}

// GetPeriod retrieves an override period by its ID.
func (r *CatalogRepo) GetPeriod(ctx context.Context, periodID int64) (*domain.OverridePeriod, error) {
	const op = "postgres.CatalogRepo.GetPeriod"

	db := r.handle()

	var p domain.OverridePeriod
	err := db.QueryRow(ctx,
		`SELECT id, offering_id, start_date, end_date, display_order, created_at
		 FROM override_periods
		 WHERE id = $1`,
		periodID,
	).Scan(&p.ID, &p.OfferingID, &p.StartDate, &p.EndDate, &p.DisplayOrder, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return &p, nil
}

// ListPeriodsCovering lists the periods of an offering whose date range contains date,
// most specific first.
func (r *CatalogRepo) ListPeriodsCovering(
	ctx context.Context,
	offeringID int64,
	date time.Time,
) ([]domain.OverridePeriod, error) {
	const op = "postgres.CatalogRepo.ListPeriodsCovering"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, offering_id, start_date, end_date, display_order, created_at
		 FROM override_periods
		 WHERE offering_id = $1 AND $2::date BETWEEN start_date AND end_date
		 ORDER BY display_order DESC, created_at DESC, id DESC`,
		offeringID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.OverridePeriod
	for rows.Next() {
		var p domain.OverridePeriod
		if err := rows.Scan(&p.ID, &p.OfferingID, &p.StartDate, &p.EndDate, &p.DisplayOrder, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// SlotOverride returns the active slot-level override of attr in the period,
// or nil when there is none.
func (r *CatalogRepo) SlotOverride(
	ctx context.Context,
	attr domain.Attribute,
	periodID, slotID int64,
) (*domain.OverrideValue, error) {
	const op = "postgres.CatalogRepo.SlotOverride"

	var q string
	switch attr {
	case domain.AttrCapacity:
		q = `SELECT period_id, capacity, '' FROM slot_overrides
		     WHERE period_id = $1 AND slot_id = $2 AND active
		     ORDER BY id DESC LIMIT 1`
	case domain.AttrStaff:
		q = `SELECT period_id, staff_id, notes FROM staff_overrides
		     WHERE period_id = $1 AND slot_id = $2 AND active
		     ORDER BY updated_at DESC, id DESC LIMIT 1`
	default:
		return nil, fmt.Errorf("%s: unknown attribute %q", op, attr)
	}

	return r.overrideValue(ctx, op, q, periodID, slotID)
}

// CohortOverride returns the active cohort-level override of attr in the
// period. Staff has no cohort tier, so it always yields nil.
func (r *CatalogRepo) CohortOverride(
	ctx context.Context,
	attr domain.Attribute,
	periodID, cohortID int64,
) (*domain.OverrideValue, error) {
	const op = "postgres.CatalogRepo.CohortOverride"

	switch attr {
	case domain.AttrCapacity:
		return r.overrideValue(ctx, op,
			`SELECT period_id, capacity, '' FROM cohort_overrides
			 WHERE period_id = $1 AND cohort_id = $2 AND active
			 ORDER BY id DESC LIMIT 1`,
			periodID, cohortID,
		)
	case domain.AttrStaff:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: unknown attribute %q", op, attr)
	}
}

// GetCohort retrieves a live cohort by its ID.
func (r *CatalogRepo) GetCohort(ctx context.Context, cohortID int64) (*domain.Cohort, error) {
	const op = "postgres.CatalogRepo.GetCohort"

	var c domain.Cohort
	err := r.handle().QueryRow(ctx,
		`SELECT id, offering_id, session_id, skill_level
		 FROM cohorts
		 WHERE id = $1 AND deleted_at IS NULL`,
		cohortID,
	).Scan(&c.ID, &c.OfferingID, &c.SessionID, &c.SkillLevel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return &c, nil
}

// ListCohortSlotIDs lists the live slots of a cohort, used to fan out cache
// invalidation when a cohort-level override changes.
func (r *CatalogRepo) ListCohortSlotIDs(ctx context.Context, cohortID int64) ([]int64, error) {
	const op = "postgres.CatalogRepo.ListCohortSlotIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT id
		 FROM slots
		 WHERE cohort_id = $1 AND deleted_at IS NULL
		 ORDER BY id`,
		cohortID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return ids, nil
}

func (r *CatalogRepo) overrideValue(
	ctx context.Context,
	op, q string,
	args ...any,
) (*domain.OverrideValue, error) {
	db := r.handle()

	var v domain.OverrideValue
	err := db.QueryRow(ctx, q, args...).Scan(&v.PeriodID, &v.Value, &v.Notes)
	if err != nil {
		err = translateDBErr(err)
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &v, nil
}
