package discount_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/clock"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/discount"
)

type fakeRepo struct {
	offerings      map[int64]domain.Offering
	offeringRules  []domain.OfferingDiscount
	periodRules    []domain.PeriodDiscount
	promos         map[string]domain.PromoCode
	usage          domain.PromoUsage
	lastExcludedID int64
	periodCalls    int
}

func (f *fakeRepo) GetOffering(_ context.Context, id int64) (*domain.Offering, error) {
	o, ok := f.offerings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (f *fakeRepo) OfferingDiscounts(context.Context, int64) ([]domain.OfferingDiscount, error) {
	return f.offeringRules, nil
}

func (f *fakeRepo) PeriodDiscounts(context.Context, int64, int64) ([]domain.PeriodDiscount, error) {
	f.periodCalls++
	return f.periodRules, nil
}

func (f *fakeRepo) PromoByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	p, ok := f.promos[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeRepo) PromoUsage(_ context.Context, _, _, excludeReservationID int64) (domain.PromoUsage, error) {
	f.lastExcludedID = excludeReservationID
	return f.usage, nil
}

func newService(repo *fakeRepo, at time.Time) *discount.Service {
	return discount.New(repo, clock.NewManual(at), nil, nil)
}

func newRepo() *fakeRepo {
	return &fakeRepo{
		offerings:     map[int64]domain.Offering{1: {ID: 1}},
		offeringRules: []domain.OfferingDiscount{pct(1, "10")},
		periodRules:   []domain.PeriodDiscount{periodPct(2, "20")},
		promos: map[string]domain.PromoCode{
			"ONCE": {ID: 9, Code: "ONCE", Kind: domain.DiscountFlat, Value: d("50"), Active: true, MaxUses: ptr(1)},
		},
	}
}

func Test_BestDiscount_LoadsRulesAndPicksBest(t *testing.T) {
	// arrange
	repo := newRepo()
	svc := newService(repo, now)

	// act
	res, err := svc.BestDiscount(context.Background(), baseQuery())

	// assert
	require.NoError(t, err)
	assert.Equal(t, discount.SourcePeriod, res.Source)
	assert.True(t, res.FinalPrice.Equal(d("80")))
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, discount.SourceOffering, res.Alternatives[0].Source)
}

func Test_BestDiscount_DefaultsPurchaseDateToClock(t *testing.T) {
	repo := newRepo()
	end := now.AddDate(0, 0, -1)
	repo.offeringRules[0].ValidTo = &end
	repo.periodRules = nil

	res, err := newService(repo, now).BestDiscount(context.Background(), baseQuery())
	require.NoError(t, err)
	assert.Equal(t, discount.SourceNone, res.Source)

	res, err = newService(repo, end).BestDiscount(context.Background(), baseQuery())
	require.NoError(t, err)
	assert.Equal(t, discount.SourceOffering, res.Source)
}

func Test_BestDiscount_UnknownPromoIsNotAnError(t *testing.T) {
	q := baseQuery()
	q.PromoCode = "  NOPE "

	res, err := newService(newRepo(), now).BestDiscount(context.Background(), q)

	require.NoError(t, err)
	require.NotNil(t, res.Promo)
	assert.Equal(t, discount.ReasonUnknownCode, res.Promo.Reason)
	assert.Equal(t, "NOPE", res.Promo.Code)
}

func Test_BestDiscount_ExcludesOwnReservationUsage(t *testing.T) {
	// arrange
	repo := newRepo()
	q := baseQuery()
	q.PromoCode = "ONCE"
	q.ExcludeReservationID = 77

	// act
	res, err := newService(repo, now).BestDiscount(context.Background(), q)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(77), repo.lastExcludedID)
	assert.Equal(t, discount.SourcePromo, res.Source)

	repo.usage = domain.PromoUsage{Total: 1}
	res, err = newService(repo, now).BestDiscount(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, discount.ReasonUsageExhausted, res.Promo.Reason)
}

func Test_BestDiscount_SkipsPeriodLookupWithoutPeriod(t *testing.T) {
	repo := newRepo()
	q := baseQuery()
	q.PeriodID = nil

	_, err := newService(repo, now).BestDiscount(context.Background(), q)

	require.NoError(t, err)
	assert.Zero(t, repo.periodCalls)
}

func Test_BestDiscount_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(q *discount.Query)
		wantErr error
	}{
		{name: "unknown offering", mutate: func(q *discount.Query) { q.OfferingID = 404 }, wantErr: domain.ErrNotFound},
		{name: "missing offering", mutate: func(q *discount.Query) { q.OfferingID = 0 }, wantErr: domain.ErrInvalidInput},
		{name: "negative price", mutate: func(q *discount.Query) { q.BasePrice = d("-1") }, wantErr: domain.ErrInvalidInput},
		{name: "negative days", mutate: func(q *discount.Query) { q.PurchaseDays = -1 }, wantErr: domain.ErrInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := baseQuery()
			tc.mutate(&q)

			_, err := newService(newRepo(), now).BestDiscount(context.Background(), q)

			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_QuoteItems_PricesEachItemIndependently(t *testing.T) {
	repo := newRepo()
	first := baseQuery()
	second := baseQuery()
	second.PeriodID = nil
	second.BasePrice = d("40")

	res, err := newService(repo, now).QuoteItems(context.Background(), []discount.Query{first, second})

	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].FinalPrice.Equal(d("80")))
	assert.True(t, res[1].FinalPrice.Equal(d("36")))
}
