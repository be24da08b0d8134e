package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const reservationColumns = `id, client_id, currency, status, total, pending, paid, basket,
	manual_discount_kind, manual_discount_value, insurance_fee, tax, care_fee, created_at`

// GetReservation retrieves a reservation by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the reservation.
//
// Returns:
//   - *domain.Reservation: the reservation when found.
//   - error: repository.ErrNotFound if the reservation is not found.
func (r *ReservationRepo) GetReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.GetReservation"

	res, err := scanReservation(r.handle().QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return res, nil
}

// LockReservation is GetReservation with a row lock held until the
// surrounding transaction ends. It must run inside a transaction.
func (r *ReservationRepo) LockReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.LockReservation"

	res, err := scanReservation(r.handle().QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return res, nil
}

// ListLineItems lists the active enrollments of a reservation with the
// inputs needed to price them. Enrollments whose offering or cohort was
// deleted are still returned, flagged as missing.
func (r *ReservationRepo) ListLineItems(ctx context.Context, reservationID int64) ([]domain.LineItem, error) {
	const op = "postgres.ReservationRepo.ListLineItems"

	rows, err := r.handle().Query(ctx,
		`SELECT e.id, e.slot_id, e.offering_id, e.cohort_id, e.period_id,
		        e.base_price, e.purchase_days, e.participant_count,
		        COALESCE(e.promo_code, ''), e.purchased_at,
		        o.id IS NULL, c.id IS NULL
		 FROM enrollments e
		 LEFT JOIN offerings o ON o.id = e.offering_id AND o.deleted_at IS NULL
		 LEFT JOIN cohorts c   ON c.id = e.cohort_id AND c.deleted_at IS NULL
		 WHERE e.reservation_id = $1
		   AND e.status = 'active'
		   AND e.deleted_at IS NULL
		 ORDER BY e.id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.LineItem
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(
			&it.EnrollmentID, &it.SlotID, &it.OfferingID, &it.CohortID, &it.PeriodID,
			&it.BasePrice, &it.PurchaseDays, &it.ParticipantCount,
			&it.PromoCode, &it.PurchaseDate,
			&it.OfferingMissing, &it.CohortMissing,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// ListPayments lists every payment recorded against a reservation, whatever its status.
func (r *ReservationRepo) ListPayments(ctx context.Context, reservationID int64) ([]domain.Payment, error) {
	const op = "postgres.ReservationRepo.ListPayments"

	rows, err := r.handle().Query(ctx,
		`SELECT id, reservation_id, amount, status
		 FROM payments
		 WHERE reservation_id = $1
		 ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) {
		var p domain.Payment
		err := row.Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Status)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// ListStoreCredit lists the vouchers applied to a reservation.
func (r *ReservationRepo) ListStoreCredit(ctx context.Context, reservationID int64) ([]domain.StoreCreditUsage, error) {
	const op = "postgres.ReservationRepo.ListStoreCredit"

	rows, err := r.handle().Query(ctx,
		`SELECT id, reservation_id, voucher_id, amount
		 FROM store_credit_usages
		 WHERE reservation_id = $1
		 ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StoreCreditUsage, error) {
		var u domain.StoreCreditUsage
		err := row.Scan(&u.ID, &u.ReservationID, &u.VoucherID, &u.Amount)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// UpdateDerived writes back the fields reconciliation owns. Nothing else on
// the reservation is touched.
func (r *ReservationRepo) UpdateDerived(ctx context.Context, id int64, d domain.DerivedTotals) error {
	const op = "postgres.ReservationRepo.UpdateDerived"

	tag, err := r.handle().Exec(ctx,
		`UPDATE reservations
		 SET total = $2, pending = $3, paid = $4, basket = $5, updated_at = now()
		 WHERE id = $1`,
		id, d.Total, d.Pending, d.Paid, d.Basket,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res         domain.Reservation
		manualKind  *string
		manualValue decimal.NullDecimal
	)

	err := row.Scan(
		&res.ID, &res.ClientID, &res.Currency, &res.Status,
		&res.StoredTotal, &res.StoredPending, &res.StoredPaid, &res.Basket,
		&manualKind, &manualValue,
		&res.InsuranceFee, &res.Tax, &res.CareFee, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if manualKind != nil && manualValue.Valid {
		res.ManualDiscount = &domain.ManualDiscount{
			Kind:  domain.DiscountKind(*manualKind),
			Value: manualValue.Decimal,
		}
	}

	return &res, nil
}
