package override_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/override"
)

type fakeRepo struct {
	slots   map[int64]domain.SlotContext
	periods []domain.OverridePeriod
	slotOv  map[string]domain.OverrideValue
	cohort  map[string]domain.OverrideValue
	calls   int
}

func ovKey(attr domain.Attribute, periodID, id int64) string {
	return fmt.Sprintf("%s:%d:%d", attr, periodID, id)
}

func (f *fakeRepo) GetSlotContext(_ context.Context, slotID int64) (*domain.SlotContext, error) {
	sc, ok := f.slots[slotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sc, nil
}

func (f *fakeRepo) ListPeriodsCovering(_ context.Context, offeringID int64, date time.Time) ([]domain.OverridePeriod, error) {
	f.calls++
	var out []domain.OverridePeriod
	for _, p := range f.periods {
		if p.OfferingID == offeringID && p.Contains(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) SlotOverride(_ context.Context, attr domain.Attribute, periodID, slotID int64) (*domain.OverrideValue, error) {
	if v, ok := f.slotOv[ovKey(attr, periodID, slotID)]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeRepo) CohortOverride(_ context.Context, attr domain.Attribute, periodID, cohortID int64) (*domain.OverrideValue, error) {
	if v, ok := f.cohort[ovKey(attr, periodID, cohortID)]; ok {
		return &v, nil
	}
	return nil, nil
}

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture(mode domain.ConfigMode) *fakeRepo {
	return &fakeRepo{
		slots: map[int64]domain.SlotContext{
			10: {
				Slot:     domain.Slot{ID: 10, CohortID: 20, BaseCapacity: ptr[int64](5), BaseStaffID: ptr[int64](300)},
				Cohort:   domain.Cohort{ID: 20, OfferingID: 1},
				Offering: domain.Offering{ID: 1, ConfigMode: mode},
			},
		},
		periods: []domain.OverridePeriod{
			{ID: 100, OfferingID: 1, StartDate: day("2026-07-01"), EndDate: day("2026-07-31"), DisplayOrder: 1},
		},
		slotOv: map[string]domain.OverrideValue{},
		cohort: map[string]domain.OverrideValue{},
	}
}

func Test_Resolve_Precedence(t *testing.T) {
	date := day("2026-07-15")

	testCases := []struct {
		name       string
		arrange    func(f *fakeRepo)
		attr       domain.Attribute
		wantValue  *int64
		wantSource override.Source
	}{
		{
			name:       "no overrides falls back to base",
			arrange:    func(f *fakeRepo) {},
			attr:       domain.AttrCapacity,
			wantValue:  ptr[int64](5),
			wantSource: override.SourceBase,
		},
		{
			name: "slot override beats cohort override",
			arrange: func(f *fakeRepo) {
				f.slotOv[ovKey(domain.AttrCapacity, 100, 10)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](8)}
				f.cohort[ovKey(domain.AttrCapacity, 100, 20)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](12)}
			},
			attr:       domain.AttrCapacity,
			wantValue:  ptr[int64](8),
			wantSource: override.SourceSlotOverride,
		},
		{
			name: "cohort override used when slot override absent",
			arrange: func(f *fakeRepo) {
				f.cohort[ovKey(domain.AttrCapacity, 100, 20)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](12)}
			},
			attr:       domain.AttrCapacity,
			wantValue:  ptr[int64](12),
			wantSource: override.SourceCohortOverride,
		},
		{
			name: "null slot override value falls through to cohort",
			arrange: func(f *fakeRepo) {
				f.slotOv[ovKey(domain.AttrCapacity, 100, 10)] = domain.OverrideValue{PeriodID: 100}
				f.cohort[ovKey(domain.AttrCapacity, 100, 20)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](3)}
			},
			attr:       domain.AttrCapacity,
			wantValue:  ptr[int64](3),
			wantSource: override.SourceCohortOverride,
		},
		{
			name: "staff override",
			arrange: func(f *fakeRepo) {
				f.slotOv[ovKey(domain.AttrStaff, 100, 10)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](301), Notes: "cover"}
			},
			attr:       domain.AttrStaff,
			wantValue:  ptr[int64](301),
			wantSource: override.SourceSlotOverride,
		},
		{
			name: "capacity override does not leak into staff",
			arrange: func(f *fakeRepo) {
				f.slotOv[ovKey(domain.AttrCapacity, 100, 10)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](8)}
			},
			attr:       domain.AttrStaff,
			wantValue:  ptr[int64](300),
			wantSource: override.SourceBase,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			f := newFixture(domain.ConfigIndependent)
			tc.arrange(f)
			r := override.New(f, nil)

			// act
			res, err := r.Resolve(context.Background(), tc.attr, 10, date)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.wantSource, res.Source)
			assert.Equal(t, tc.wantValue, res.Value)
			if res.FromOverride() {
				require.NotNil(t, res.PeriodID)
				assert.Equal(t, int64(100), *res.PeriodID)
			} else {
				assert.Nil(t, res.PeriodID)
			}
		})
	}
}

func Test_Resolve_UnifiedModeIgnoresOverrides(t *testing.T) {
	// arrange
	f := newFixture(domain.ConfigUnified)
	f.slotOv[ovKey(domain.AttrCapacity, 100, 10)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](8)}
	r := override.New(f, nil)

	// act
	res, err := r.Resolve(context.Background(), domain.AttrCapacity, 10, day("2026-07-15"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, override.SourceBase, res.Source)
	assert.Equal(t, int64(5), *res.Value)
	assert.Zero(t, f.calls, "periods must not be consulted in unified mode")
}

func Test_Resolve_DateOutsideEveryPeriodUsesBase(t *testing.T) {
	f := newFixture(domain.ConfigIndependent)
	f.slotOv[ovKey(domain.AttrCapacity, 100, 10)] = domain.OverrideValue{PeriodID: 100, Value: ptr[int64](8)}
	r := override.New(f, nil)

	res, err := r.Resolve(context.Background(), domain.AttrCapacity, 10, day("2026-08-01"))

	require.NoError(t, err)
	assert.Equal(t, override.SourceBase, res.Source)
	assert.Equal(t, int64(5), *res.Value)
}

func Test_Resolve_UnknownSlot(t *testing.T) {
	r := override.New(newFixture(domain.ConfigIndependent), nil)

	_, err := r.Resolve(context.Background(), domain.AttrCapacity, 999, day("2026-07-15"))

	require.ErrorIs(t, err, domain.ErrNotFound)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "slot", nf.Entity)
}

func Test_Resolve_UnknownAttribute(t *testing.T) {
	r := override.New(newFixture(domain.ConfigIndependent), nil)

	_, err := r.Resolve(context.Background(), domain.Attribute("color"), 10, day("2026-07-15"))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func Test_PickPeriod(t *testing.T) {
	date := day("2026-07-15")
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	testCases := []struct {
		name    string
		periods []domain.OverridePeriod
		wantID  int64
		wantOK  bool
	}{
		{
			name:   "none",
			wantOK: false,
		},
		{
			name: "period not containing the date is ignored",
			periods: []domain.OverridePeriod{
				{ID: 1, StartDate: day("2026-08-01"), EndDate: day("2026-08-31"), DisplayOrder: 9},
				{ID: 2, StartDate: day("2026-07-01"), EndDate: day("2026-07-31")},
			},
			wantID: 2,
			wantOK: true,
		},
		{
			name: "highest display order wins",
			periods: []domain.OverridePeriod{
				{ID: 1, StartDate: day("2026-07-01"), EndDate: day("2026-07-31"), DisplayOrder: 1, CreatedAt: newer},
				{ID: 2, StartDate: day("2026-07-10"), EndDate: day("2026-07-20"), DisplayOrder: 3, CreatedAt: older},
			},
			wantID: 2,
			wantOK: true,
		},
		{
			name: "tie broken by most recently created",
			periods: []domain.OverridePeriod{
				{ID: 1, StartDate: day("2026-07-01"), EndDate: day("2026-07-31"), DisplayOrder: 2, CreatedAt: newer},
				{ID: 2, StartDate: day("2026-07-10"), EndDate: day("2026-07-20"), DisplayOrder: 2, CreatedAt: older},
			},
			wantID: 1,
			wantOK: true,
		},
		{
			name: "boundary days are inclusive",
			periods: []domain.OverridePeriod{
				{ID: 4, StartDate: day("2026-07-15"), EndDate: day("2026-07-15")},
			},
			wantID: 4,
			wantOK: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := override.PickPeriod(tc.periods, date)

			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, p.ID)
			}
		})
	}
}
