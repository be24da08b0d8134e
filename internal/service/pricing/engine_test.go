package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/discount"
	"github.com/kirinyoku/classbook/internal/service/pricing"
	"github.com/kirinyoku/classbook/internal/uow"
)

type fakeRepo struct {
	reservations map[int64]domain.Reservation
	items        map[int64][]domain.LineItem
	payments     map[int64][]domain.Payment
	credits      map[int64][]domain.StoreCreditUsage
	locks        int
	updates      int
	listErr      error
}

func (f *fakeRepo) GetReservation(_ context.Context, id int64) (*domain.Reservation, error) {
	r, ok := f.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRepo) LockReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	f.locks++
	return f.GetReservation(ctx, id)
}

func (f *fakeRepo) ListLineItems(_ context.Context, id int64) ([]domain.LineItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items[id], nil
}

func (f *fakeRepo) ListPayments(_ context.Context, id int64) ([]domain.Payment, error) {
	return f.payments[id], nil
}

func (f *fakeRepo) ListStoreCredit(_ context.Context, id int64) ([]domain.StoreCreditUsage, error) {
	return f.credits[id], nil
}

func (f *fakeRepo) UpdateDerived(_ context.Context, id int64, dt domain.DerivedTotals) error {
	f.updates++
	r := f.reservations[id]
	r.StoredTotal = dt.Total
	r.StoredPending = dt.Pending
	r.StoredPaid = dt.Paid
	r.Basket = dt.Basket
	f.reservations[id] = r
	return nil
}

type fakeUoW struct{ repo *fakeRepo }

func (u fakeUoW) Do(ctx context.Context, fn func(ctx context.Context, repo pricing.Repository, after func(uow.AfterCommit)) error) error {
	var hooks []uow.AfterCommit
	if err := fn(ctx, u.repo, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

// tenPercent discounts every known offering by 10% and knows offerings 1 and 2.
type tenPercent struct {
	queries []discount.Query
}

func (t *tenPercent) BestDiscount(_ context.Context, q discount.Query) (discount.Result, error) {
	t.queries = append(t.queries, q)
	if q.OfferingID > 2 {
		return discount.Result{}, domain.NotFoundError{Entity: "offering", ID: q.OfferingID}
	}
	amt := discount.Amount(domain.DiscountPercentage, d("10"), nil, q.BasePrice)
	return discount.Result{
		Source:     discount.SourceOffering,
		RuleID:     1,
		BasePrice:  q.BasePrice,
		Amount:     amt,
		FinalPrice: q.BasePrice.Sub(amt),
	}, nil
}

type engineFixture struct {
	repo       *fakeRepo
	discounter *tenPercent
	engine     *pricing.Engine
}

func newEngine() *engineFixture {
	repo := &fakeRepo{
		reservations: map[int64]domain.Reservation{
			1: {ID: 1, ClientID: 50, Currency: "EUR", StoredTotal: d("100"), StoredPending: d("100"), Tax: d("2")},
		},
		items: map[int64][]domain.LineItem{
			1: {
				{EnrollmentID: 11, OfferingID: 1, CohortID: 1, BasePrice: d("100"), PromoCode: "X"},
				{EnrollmentID: 12, OfferingID: 2, CohortID: 5, BasePrice: d("20")},
				{EnrollmentID: 13, OfferingID: 1, CohortID: 2, BasePrice: d("50"), CohortMissing: true},
				{EnrollmentID: 14, OfferingID: 9, CohortID: 3, BasePrice: d("70")},
			},
		},
		payments: map[int64][]domain.Payment{
			1: {{Amount: d("50"), Status: domain.PaymentPaid}, {Amount: d("500"), Status: domain.PaymentFailed}},
		},
		credits: map[int64][]domain.StoreCreditUsage{
			1: {{Amount: d("10")}},
		},
	}
	disc := &tenPercent{}

	return &engineFixture{
		repo:       repo,
		discounter: disc,
		engine:     pricing.New(repo, fakeUoW{repo: repo}, disc, nil, pricing.Config{}),
	}
}

func Test_CanonicalTotal_ExcludesInconsistentItems(t *testing.T) {
	// arrange
	f := newEngine()

	// act
	b, err := f.engine.CanonicalTotal(context.Background(), 1)

	// assert
	require.NoError(t, err)
	assert.True(t, b.Total.Equal(d("110")), "90 + 18 + 2 tax, got %s", b.Total)
	require.Len(t, b.Excluded, 2)
	assert.Equal(t, domain.ExcludedItem{EnrollmentID: 13, Reason: pricing.ReasonCohortMissing}, b.Excluded[0])
	assert.Equal(t, domain.ExcludedItem{EnrollmentID: 14, Reason: pricing.ReasonOfferingMissing}, b.Excluded[1])
	assert.Zero(t, f.repo.updates, "CanonicalTotal never writes")
}

func Test_CanonicalTotal_PassesReservationContextToDiscounts(t *testing.T) {
	f := newEngine()

	_, err := f.engine.CanonicalTotal(context.Background(), 1)
	require.NoError(t, err)

	require.NotEmpty(t, f.discounter.queries)
	q := f.discounter.queries[0]
	assert.Equal(t, int64(50), q.ClientID)
	assert.Equal(t, int64(1), q.ExcludeReservationID)
	assert.Equal(t, "X", q.PromoCode)
}

func Test_CanonicalTotal_IsIdempotent(t *testing.T) {
	f := newEngine()
	ctx := context.Background()

	first, err := f.engine.CanonicalTotal(ctx, 1)
	require.NoError(t, err)
	second, err := f.engine.CanonicalTotal(ctx, 1)
	require.NoError(t, err)

	a, err := domain.EncodeBreakdown(first)
	require.NoError(t, err)
	b, err := domain.EncodeBreakdown(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func Test_CanonicalTotal_Errors(t *testing.T) {
	f := newEngine()

	_, err := f.engine.CanonicalTotal(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	boom := errors.New("db down")
	f.repo.listErr = boom
	_, err = f.engine.CanonicalTotal(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func Test_Reconcile_WritesDerivedFieldsOnly(t *testing.T) {
	// arrange
	f := newEngine()
	paymentsBefore := len(f.repo.payments[1])
	creditsBefore := len(f.repo.credits[1])

	// act
	rec, err := f.engine.Reconcile(context.Background(), 1)

	// assert
	require.NoError(t, err)
	assert.True(t, rec.Total.Equal(d("110")))
	assert.True(t, rec.Received.Equal(d("60")))
	assert.True(t, rec.Pending.Equal(d("50")))
	assert.False(t, rec.Paid)
	assert.True(t, rec.Changed)
	assert.Equal(t, 1, f.repo.locks)

	stored := f.repo.reservations[1]
	assert.True(t, stored.StoredTotal.Equal(d("110")))
	assert.True(t, stored.StoredPending.Equal(d("50")))
	snap, ok := domain.DecodeBreakdown(stored.Basket)
	require.True(t, ok)
	assert.True(t, snap.Total.Equal(d("110")))
	assert.False(t, snap.SnapshotStale)

	assert.Len(t, f.repo.payments[1], paymentsBefore)
	assert.Len(t, f.repo.credits[1], creditsBefore)
}

func Test_Reconcile_IsIdempotent(t *testing.T) {
	f := newEngine()
	ctx := context.Background()

	_, err := f.engine.Reconcile(ctx, 1)
	require.NoError(t, err)
	basket := string(f.repo.reservations[1].Basket)

	rec, err := f.engine.Reconcile(ctx, 1)
	require.NoError(t, err)

	assert.False(t, rec.Changed)
	assert.Equal(t, basket, string(f.repo.reservations[1].Basket))
}

func Test_Reconcile_FreeBooking(t *testing.T) {
	testCases := []struct {
		name          string
		storedPending string
		payments      []domain.Payment
		wantFree      bool
		wantManual    string
	}{
		{name: "phantom balance", storedPending: "45", wantFree: true, wantManual: "45"},
		{name: "zero cached pending and nothing received", storedPending: "0", wantFree: true, wantManual: "45"},
		{
			name:          "stored total already received",
			storedPending: "0",
			payments:      []domain.Payment{{Amount: d("45"), Status: domain.PaymentPaid}},
			wantFree:      false,
			wantManual:    "0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			f := newEngine()
			f.repo.reservations[2] = domain.Reservation{ID: 2, StoredTotal: d("45"), StoredPending: d(tc.storedPending)}
			f.repo.items[2] = []domain.LineItem{{EnrollmentID: 21, OfferingID: 9, CohortID: 1, BasePrice: d("45")}}
			f.repo.payments[2] = tc.payments

			// act
			rec, err := f.engine.Reconcile(context.Background(), 2)

			// assert
			require.NoError(t, err)
			assert.True(t, rec.Total.IsZero())
			assert.True(t, rec.Pending.IsZero())
			assert.True(t, rec.Paid)
			assert.Equal(t, tc.wantFree, rec.Breakdown.FreeBooking)
			assert.True(t, rec.Breakdown.ManualDiscount.Equal(d(tc.wantManual)), "manual %s", rec.Breakdown.ManualDiscount)

			again, err := f.engine.Reconcile(context.Background(), 2)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFree, again.Breakdown.FreeBooking)
			assert.False(t, again.Changed)
		})
	}
}

func Test_Reconcile_UnknownReservation(t *testing.T) {
	f := newEngine()

	_, err := f.engine.Reconcile(context.Background(), 404)

	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.repo.updates)
}

func Test_Audit_ReportsDriftWithoutWriting(t *testing.T) {
	f := newEngine()
	ctx := context.Background()

	r, err := f.engine.Audit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, r.Consistent)
	assert.True(t, r.TotalDrift.Equal(d("10")))
	assert.True(t, r.SnapshotMissing)
	assert.Equal(t, 2, r.Excluded)
	assert.Zero(t, f.repo.updates)

	_, err = f.engine.Reconcile(ctx, 1)
	require.NoError(t, err)

	r, err = f.engine.Audit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, r.Consistent)
	assert.False(t, r.SnapshotMissing)
	assert.False(t, r.SnapshotStale)
}
