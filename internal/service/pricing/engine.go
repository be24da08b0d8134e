package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/discount"
	"github.com/kirinyoku/classbook/internal/uow"
)

type Discounter interface {
	BestDiscount(ctx context.Context, q discount.Query) (discount.Result, error)
}

// Repository never creates or deletes payments or store credit; the only
// write is UpdateDerived.
type Repository interface {
	GetReservation(ctx context.Context, id int64) (*domain.Reservation, error)
	// LockReservation is GetReservation holding a row lock until the transaction ends.
	LockReservation(ctx context.Context, id int64) (*domain.Reservation, error)
	ListLineItems(ctx context.Context, reservationID int64) ([]domain.LineItem, error)
	ListPayments(ctx context.Context, reservationID int64) ([]domain.Payment, error)
	ListStoreCredit(ctx context.Context, reservationID int64) ([]domain.StoreCreditUsage, error)
	UpdateDerived(ctx context.Context, id int64, d domain.DerivedTotals) error
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error) error
}

type Config struct {
	Tolerance decimal.Decimal
}

type Engine struct {
	repo       Repository
	uow        UnitOfWork
	discounter Discounter
	logger     *slog.Logger
	cfg        Config
}

func New(
	repo Repository,
	unit UnitOfWork,
	discounter Discounter,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if !cfg.Tolerance.IsPositive() {
		cfg.Tolerance = decimal.New(1, -2)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		repo:       repo,
		uow:        unit,
		discounter: discounter,
		logger:     logger,
		cfg:        cfg,
	}
}

// CanonicalTotal recomputes the authoritative breakdown of a reservation
// without writing anything.
//
// Parameters:
//   - ctx: request-scoped context.
//   - reservationID: the reservation to price.
//
// Returns:
//   - domain.PriceBreakdown: the canonical breakdown. Line items whose
//     configuration is gone are listed in Excluded instead of failing.
//   - error: domain.NotFoundError if the reservation does not exist.
func (e *Engine) CanonicalTotal(ctx context.Context, reservationID int64) (domain.PriceBreakdown, error) {
	const op = "service.pricing.CanonicalTotal"

	res, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("%s: %w", op, notFound(err, reservationID))
	}

	b, _, err := e.compute(ctx, e.repo, *res)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

type Reconciliation struct {
	ReservationID int64                 `json:"reservation_id"`
	Total         decimal.Decimal       `json:"total"`
	Received      decimal.Decimal       `json:"received"`
	Pending       decimal.Decimal       `json:"pending"`
	Paid          bool                  `json:"paid"`
	Changed       bool                  `json:"changed"`
	Breakdown     domain.PriceBreakdown `json:"breakdown"`
}

// Reconcile recomputes the canonical total, balances it against paid
// payments and store credit, and writes total, pending, paid and the fresh
// snapshot back onto the reservation. The reservation row stays locked for
// the duration so concurrent reconciliations serialize. Running it twice on
// unchanged data writes identical values.
//
// Parameters:
//   - ctx: request-scoped context.
//   - reservationID: the reservation to reconcile.
//
// Returns:
//   - Reconciliation: the derived state that was persisted.
//   - error: domain.NotFoundError if the reservation does not exist.
func (e *Engine) Reconcile(ctx context.Context, reservationID int64) (Reconciliation, error) {
	const op = "service.pricing.Reconcile"

	var out Reconciliation

	err := e.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		res, err := repo.LockReservation(ctx, reservationID)
		if err != nil {
			return notFound(err, reservationID)
		}

		b, received, err := e.compute(ctx, repo, *res)
		if err != nil {
			return err
		}

		pending, paid := Settle(b.Total, received, e.cfg.Tolerance)

		// The snapshot being written is fresh by definition.
		snapshot := b
		snapshot.SnapshotStale = false

		basket, err := domain.EncodeBreakdown(snapshot)
		if err != nil {
			return err
		}

		derived := domain.DerivedTotals{
			Total:   b.Total,
			Pending: pending,
			Paid:    paid,
			Basket:  basket,
		}

		if err := repo.UpdateDerived(ctx, reservationID, derived); err != nil {
			return err
		}

		out = Reconciliation{
			ReservationID: reservationID,
			Total:         b.Total,
			Received:      received,
			Pending:       pending,
			Paid:          paid,
			Changed:       !res.StoredTotal.Equal(b.Total) || !res.StoredPending.Equal(pending) || res.StoredPaid != paid,
			Breakdown:     snapshot,
		}

		if out.Changed {
			after(func(context.Context) {
				e.logger.Info("reservation reconciled",
					"reservation_id", reservationID,
					"stored_total", res.StoredTotal.String(),
					"total", b.Total.String(),
					"pending", pending.String(),
					"paid", paid,
				)
			})
		}

		return nil
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

type AuditReport struct {
	ReservationID    int64           `json:"reservation_id"`
	StoredTotal      decimal.Decimal `json:"stored_total"`
	CanonicalTotal   decimal.Decimal `json:"canonical_total"`
	TotalDrift       decimal.Decimal `json:"total_drift"`
	StoredPending    decimal.Decimal `json:"stored_pending"`
	CanonicalPending decimal.Decimal `json:"canonical_pending"`
	StoredPaid       bool            `json:"stored_paid"`
	CanonicalPaid    bool            `json:"canonical_paid"`
	SnapshotStale    bool            `json:"snapshot_stale"`
	SnapshotMissing  bool            `json:"snapshot_missing"`
	Excluded         int             `json:"excluded"`
	Consistent       bool            `json:"consistent"`
}

// Audit compares the stored derived fields of a reservation with a fresh
// computation. It never writes.
func (e *Engine) Audit(ctx context.Context, reservationID int64) (AuditReport, error) {
	const op = "service.pricing.Audit"

	res, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("%s: %w", op, notFound(err, reservationID))
	}

	b, received, err := e.compute(ctx, e.repo, *res)
	if err != nil {
		return AuditReport{}, fmt.Errorf("%s: %w", op, err)
	}

	pending, paid := Settle(b.Total, received, e.cfg.Tolerance)
	_, hasSnapshot := domain.DecodeBreakdown(res.Basket)

	r := AuditReport{
		ReservationID:    reservationID,
		StoredTotal:      res.StoredTotal,
		CanonicalTotal:   b.Total,
		TotalDrift:       b.Total.Sub(res.StoredTotal),
		StoredPending:    res.StoredPending,
		CanonicalPending: pending,
		StoredPaid:       res.StoredPaid,
		CanonicalPaid:    paid,
		SnapshotStale:    b.SnapshotStale,
		SnapshotMissing:  !hasSnapshot,
		Excluded:         len(b.Excluded),
	}
	r.Consistent = r.TotalDrift.Abs().LessThanOrEqual(e.cfg.Tolerance) &&
		pending.Sub(res.StoredPending).Abs().LessThanOrEqual(e.cfg.Tolerance) &&
		paid == res.StoredPaid

	return r, nil
}

type ledgerReader interface {
	ListLineItems(ctx context.Context, reservationID int64) ([]domain.LineItem, error)
	ListPayments(ctx context.Context, reservationID int64) ([]domain.Payment, error)
	ListStoreCredit(ctx context.Context, reservationID int64) ([]domain.StoreCreditUsage, error)
}

// compute prices res and returns the breakdown with the amount already received.
func (e *Engine) compute(
	ctx context.Context,
	repo ledgerReader,
	res domain.Reservation,
) (domain.PriceBreakdown, decimal.Decimal, error) {
	items, err := repo.ListLineItems(ctx, res.ID)
	if err != nil {
		return domain.PriceBreakdown{}, decimal.Zero, err
	}

	payments, err := repo.ListPayments(ctx, res.ID)
	if err != nil {
		return domain.PriceBreakdown{}, decimal.Zero, err
	}

	credits, err := repo.ListStoreCredit(ctx, res.ID)
	if err != nil {
		return domain.PriceBreakdown{}, decimal.Zero, err
	}

	in := Input{Reservation: res, Received: Received(payments, credits)}

	for _, it := range items {
		if reason := missingReason(it); reason != "" {
			in.Excluded = append(in.Excluded, e.exclude(res.ID, it, reason))
			continue
		}

		d, err := e.discounter.BestDiscount(ctx, queryFor(res, it))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				in.Excluded = append(in.Excluded, e.exclude(res.ID, it, ReasonOfferingMissing))
				continue
			case errors.Is(err, domain.ErrInvalidInput):
				in.Excluded = append(in.Excluded, e.exclude(res.ID, it, ReasonInvalidItem))
				continue
			}
			return domain.PriceBreakdown{}, decimal.Zero, err
		}

		in.Items = append(in.Items, PricedItem{Item: it, Discount: d})
	}

	b := Compute(in, e.cfg.Tolerance)

	if b.SnapshotStale {
		e.logger.Warn("stale price snapshot",
			"reservation_id", res.ID,
			"canonical_total", b.Total.String(),
		)
	}

	if b.FreeBooking {
		e.logger.Info("free booking written off",
			"reservation_id", res.ID,
			"stored_total", res.StoredTotal.String(),
		)
	}

	return b, in.Received, nil
}

func (e *Engine) exclude(reservationID int64, it domain.LineItem, reason string) domain.ExcludedItem {
	e.logger.Warn("inconsistent line item excluded from total",
		"reservation_id", reservationID,
		"enrollment_id", it.EnrollmentID,
		"reason", reason,
	)

	return domain.ExcludedItem{EnrollmentID: it.EnrollmentID, Reason: reason}
}

func missingReason(it domain.LineItem) string {
	switch {
	case it.OfferingMissing:
		return ReasonOfferingMissing
	case it.CohortMissing:
		return ReasonCohortMissing
	default:
		return ""
	}
}

func queryFor(res domain.Reservation, it domain.LineItem) discount.Query {
	q := discount.Query{
		OfferingID:           it.OfferingID,
		PeriodID:             it.PeriodID,
		ClientID:             res.ClientID,
		PurchaseDays:         it.PurchaseDays,
		BasePrice:            it.BasePrice,
		PromoCode:            it.PromoCode,
		ParticipantCount:     it.ParticipantCount,
		ExcludeReservationID: res.ID,
	}

	// Rules are judged as of the purchase, not as of the recomputation.
	purchased := it.PurchaseDate
	if purchased.IsZero() {
		purchased = res.CreatedAt
	}
	if !purchased.IsZero() {
		q.PurchaseDate = &purchased
	}

	return q
}

func notFound(err error, reservationID int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFoundError{Entity: "reservation", ID: reservationID}
	}
	return err
}
