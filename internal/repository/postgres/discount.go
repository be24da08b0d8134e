package postgresrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
)

const dialectPostgres = "postgres"

var pg = goqu.Dialect(dialectPostgres)

type DiscountRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *DiscountRepo) With(db DB) *DiscountRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *DiscountRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetOffering retrieves a live offering; discount lookups validate the
// offering through the same repository they read rules from.
func (r *DiscountRepo) GetOffering(ctx context.Context, id int64) (*domain.Offering, error) {
	return (&CatalogRepo{pool: r.pool, db: r.db}).GetOffering(ctx, id)
}

// OfferingDiscounts lists the active discount rules of an offering. Validity
// windows are evaluated by the caller against the purchase date.
func (r *DiscountRepo) OfferingDiscounts(ctx context.Context, offeringID int64) ([]domain.OfferingDiscount, error) {
	const op = "postgres.DiscountRepo.OfferingDiscounts"

	query, args, err := pg.From("offering_discounts").
		Prepared(true).
		Select("id", "offering_id", "min_days", "kind", "value", "max_amount", "priority", "valid_from", "valid_to", "active").
		Where(goqu.Ex{"offering_id": offeringID, "active": true}).
		Order(goqu.I("priority").Desc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := r.handle().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.OfferingDiscount
	for rows.Next() {
		var (
			d      domain.OfferingDiscount
			maxAmt decimal.NullDecimal
		)
		if err := rows.Scan(&d.ID, &d.OfferingID, &d.MinDays, &d.Kind, &d.Value, &maxAmt, &d.Priority, &d.ValidFrom, &d.ValidTo, &d.Active); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		d.MaxAmount = nullDecimal(maxAmt)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// PeriodDiscounts lists the active discount rules scoped to one override
// period of an offering.
func (r *DiscountRepo) PeriodDiscounts(ctx context.Context, offeringID, periodID int64) ([]domain.PeriodDiscount, error) {
	const op = "postgres.DiscountRepo.PeriodDiscounts"

	query, args, err := pg.From("period_discounts").
		Prepared(true).
		Select("id", "offering_id", "period_id", "min_days", "min_participants", "kind", "value", "max_amount",
			"priority", "valid_from", "valid_to", "active").
		Where(goqu.Ex{"offering_id": offeringID, "period_id": periodID, "active": true}).
		Order(goqu.I("priority").Desc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := r.handle().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.PeriodDiscount
	for rows.Next() {
		var (
			d      domain.PeriodDiscount
			maxAmt decimal.NullDecimal
		)
		if err := rows.Scan(&d.ID, &d.OfferingID, &d.PeriodID, &d.MinDays, &d.MinParticipants, &d.Kind, &d.Value, &maxAmt,
			&d.Priority, &d.ValidFrom, &d.ValidTo, &d.Active); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		d.MaxAmount = nullDecimal(maxAmt)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// PromoByCode looks a promotional code up case-insensitively.
//
// Returns:
//   - *domain.PromoCode: the code whether or not it is currently usable.
//   - error: repository.ErrNotFound if no such code exists.
func (r *DiscountRepo) PromoByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	const op = "postgres.DiscountRepo.PromoByCode"

	query, args, err := pg.From("promo_codes").
		Prepared(true).
		Select("id", "code", "kind", "value", "max_amount", "max_uses", "max_uses_per_client",
			"valid_from", "valid_to", "active", "offering_ids", "client_ids").
		Where(goqu.L("lower(code)").Eq(strings.ToLower(code))).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	var (
		p      domain.PromoCode
		maxAmt decimal.NullDecimal
	)
	err = r.handle().QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.Code, &p.Kind, &p.Value, &maxAmt, &p.MaxUses, &p.MaxUsesPerClient,
		&p.ValidFrom, &p.ValidTo, &p.Active, &p.OfferingIDs, &p.ClientIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	p.MaxAmount = nullDecimal(maxAmt)

	return &p, nil
}

// PromoUsage counts recorded usages of a code overall and by one client,
// leaving out usages recorded against excludeReservationID.
func (r *DiscountRepo) PromoUsage(
	ctx context.Context,
	promoID, clientID, excludeReservationID int64,
) (domain.PromoUsage, error) {
	const op = "postgres.DiscountRepo.PromoUsage"

	ds := pg.From("promo_usages").
		Prepared(true).
		Select(
			goqu.COUNT(goqu.Star()).As("total"),
			goqu.L("count(*) FILTER (WHERE client_id = ?)", clientID).As("for_client"),
		).
		Where(goqu.Ex{"promo_id": promoID})

	if excludeReservationID > 0 {
		ds = ds.Where(goqu.Or(
			goqu.C("reservation_id").IsNull(),
			goqu.C("reservation_id").Neq(excludeReservationID),
		))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return domain.PromoUsage{}, fmt.Errorf("%s: build query: %w", op, err)
	}

	var u domain.PromoUsage
	if err := r.handle().QueryRow(ctx, query, args...).Scan(&u.Total, &u.ForClient); err != nil {
		return domain.PromoUsage{}, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return u, nil
}

func nullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := n.Decimal
	return &v
}
