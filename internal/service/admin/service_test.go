package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/admin"
	"github.com/kirinyoku/classbook/internal/uow"
)

type ovKey struct{ period, id int64 }

type fakeRepo struct {
	periods   map[int64]domain.OverridePeriod
	offerings map[int64]domain.Offering
	slots     map[int64]domain.SlotContext
	slotOv    map[ovKey]domain.SlotOverride
	cohortOv  map[ovKey]domain.CohortOverride
	batches   int
}

func (f *fakeRepo) GetPeriod(_ context.Context, periodID int64) (*domain.OverridePeriod, error) {
	p, ok := f.periods[periodID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetOffering(_ context.Context, id int64) (*domain.Offering, error) {
	o, ok := f.offerings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (f *fakeRepo) GetSlotContext(_ context.Context, slotID int64) (*domain.SlotContext, error) {
	sc, ok := f.slots[slotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sc, nil
}

func (f *fakeRepo) GetCohort(_ context.Context, cohortID int64) (*domain.Cohort, error) {
	for _, sc := range f.slots {
		if sc.Cohort.ID == cohortID {
			c := sc.Cohort
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) ListCohortSlotIDs(_ context.Context, cohortID int64) ([]int64, error) {
	var ids []int64
	for id, sc := range f.slots {
		if sc.Cohort.ID == cohortID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) UpsertSlotCapacities(_ context.Context, periodID int64, items []domain.SlotOverride) error {
	f.batches++
	for _, it := range items {
		f.slotOv[ovKey{periodID, it.SlotID}] = it
	}
	return nil
}

func (f *fakeRepo) UpsertCohortCapacity(_ context.Context, o domain.CohortOverride) error {
	f.cohortOv[ovKey{o.PeriodID, o.CohortID}] = o
	return nil
}

func (f *fakeRepo) DeactivateSlotCapacity(_ context.Context, periodID, slotID int64) (bool, error) {
	k := ovKey{periodID, slotID}
	o, ok := f.slotOv[k]
	if !ok || !o.Active {
		return false, nil
	}
	o.Active = false
	f.slotOv[k] = o
	return true, nil
}

type fakeUoW struct {
	repo    *fakeRepo
	commits int
}

func (u *fakeUoW) Do(ctx context.Context, fn func(ctx context.Context, repo admin.Repository, after func(uow.AfterCommit)) error) error {
	var hooks []uow.AfterCommit
	if err := fn(ctx, u.repo, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}
	u.commits++
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

type invalidation struct {
	slotID   int64
	from, to time.Time
	reason   string
}

type recordingInvalidator struct {
	calls []invalidation
	err   error
}

func (r *recordingInvalidator) InvalidateSlot(_ context.Context, slotID int64, from, to time.Time, reason string) error {
	r.calls = append(r.calls, invalidation{slotID: slotID, from: from, to: to, reason: reason})
	return r.err
}

func ptr[T any](v T) *T { return &v }

var day = time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

func slotCtx(slotID, cohortID, offeringID int64, mode domain.ConfigMode) domain.SlotContext {
	return domain.SlotContext{
		Slot:     domain.Slot{ID: slotID, CohortID: cohortID, BaseCapacity: ptr[int64](10)},
		Cohort:   domain.Cohort{ID: cohortID, OfferingID: offeringID},
		Session:  domain.Session{OfferingID: offeringID, Date: day},
		Offering: domain.Offering{ID: offeringID, ConfigMode: mode},
	}
}

type fixture struct {
	repo *fakeRepo
	uow  *fakeUoW
	inv  *recordingInvalidator
	svc  *admin.Service
}

func newFixture() *fixture {
	repo := &fakeRepo{
		periods: map[int64]domain.OverridePeriod{
			100: {ID: 100, OfferingID: 1, StartDate: day.AddDate(0, 0, -7), EndDate: day.AddDate(0, 0, 7)},
			101: {ID: 101, OfferingID: 1, StartDate: day.AddDate(0, 1, 0), EndDate: day.AddDate(0, 2, 0)},
			300: {ID: 300, OfferingID: 3, StartDate: day, EndDate: day},
		},
		offerings: map[int64]domain.Offering{
			1: {ID: 1, ConfigMode: domain.ConfigIndependent},
			2: {ID: 2, ConfigMode: domain.ConfigIndependent},
			3: {ID: 3, ConfigMode: domain.ConfigUnified},
		},
		slots: map[int64]domain.SlotContext{
			10: slotCtx(10, 50, 1, domain.ConfigIndependent),
			11: slotCtx(11, 50, 1, domain.ConfigIndependent),
			20: slotCtx(20, 60, 2, domain.ConfigIndependent),
			30: slotCtx(30, 70, 3, domain.ConfigUnified),
		},
		slotOv:   map[ovKey]domain.SlotOverride{},
		cohortOv: map[ovKey]domain.CohortOverride{},
	}
	unit := &fakeUoW{repo: repo}
	inv := &recordingInvalidator{}

	return &fixture{repo: repo, uow: unit, inv: inv, svc: admin.New(unit, inv, nil, nil)}
}

func Test_SetSlotCapacities_WritesBatchAndInvalidates(t *testing.T) {
	// arrange
	f := newFixture()

	// act
	err := f.svc.SetSlotCapacities(context.Background(), admin.SlotCapacityRequest{
		PeriodID: 100,
		Items: []admin.SlotCapacity{
			{SlotID: 10, Capacity: ptr[int64](4)},
			{SlotID: 11},
		},
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.batches)
	assert.Equal(t, int64(4), *f.repo.slotOv[ovKey{100, 10}].Capacity)
	assert.Nil(t, f.repo.slotOv[ovKey{100, 11}].Capacity)

	require.Len(t, f.inv.calls, 2)
	for _, c := range f.inv.calls {
		assert.Equal(t, "capacity_override", c.reason)
		assert.True(t, c.from.Equal(day.AddDate(0, 0, -7)))
		assert.True(t, c.to.Equal(day.AddDate(0, 0, 7)))
	}
}

func Test_SetSlotCapacities_Rejections(t *testing.T) {
	testCases := []struct {
		name    string
		req     admin.SlotCapacityRequest
		wantErr error
	}{
		{
			name:    "empty items",
			req:     admin.SlotCapacityRequest{PeriodID: 100},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "negative capacity",
			req:     admin.SlotCapacityRequest{PeriodID: 100, Items: []admin.SlotCapacity{{SlotID: 10, Capacity: ptr[int64](-1)}}},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "repeated slot",
			req:     admin.SlotCapacityRequest{PeriodID: 100, Items: []admin.SlotCapacity{{SlotID: 10}, {SlotID: 10}}},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "unknown period",
			req:     admin.SlotCapacityRequest{PeriodID: 999, Items: []admin.SlotCapacity{{SlotID: 10}}},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "unknown slot",
			req:     admin.SlotCapacityRequest{PeriodID: 100, Items: []admin.SlotCapacity{{SlotID: 10}, {SlotID: 99}}},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "slot of another offering",
			req:     admin.SlotCapacityRequest{PeriodID: 100, Items: []admin.SlotCapacity{{SlotID: 20}}},
			wantErr: domain.ErrConfigurationConflict,
		},
		{
			name:    "unified offering",
			req:     admin.SlotCapacityRequest{PeriodID: 300, Items: []admin.SlotCapacity{{SlotID: 30}}},
			wantErr: domain.ErrConfigurationConflict,
		},
		{
			name:    "session outside the period",
			req:     admin.SlotCapacityRequest{PeriodID: 101, Items: []admin.SlotCapacity{{SlotID: 10}}},
			wantErr: domain.ErrConfigurationConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()

			err := f.svc.SetSlotCapacities(context.Background(), tc.req)

			require.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, f.repo.batches, "nothing may be written")
			assert.Empty(t, f.inv.calls)
		})
	}
}

func Test_SetCohortCapacity(t *testing.T) {
	t.Run("stores override and invalidates every slot of the cohort", func(t *testing.T) {
		f := newFixture()

		err := f.svc.SetCohortCapacity(context.Background(), admin.CohortCapacityRequest{
			PeriodID: 100,
			CohortID: 50,
			Capacity: ptr[int64](6),
		})

		require.NoError(t, err)
		assert.Equal(t, int64(6), *f.repo.cohortOv[ovKey{100, 50}].Capacity)

		var slots []int64
		for _, c := range f.inv.calls {
			slots = append(slots, c.slotID)
		}
		assert.ElementsMatch(t, []int64{10, 11}, slots)
	})

	t.Run("cohort of another offering", func(t *testing.T) {
		f := newFixture()

		err := f.svc.SetCohortCapacity(context.Background(), admin.CohortCapacityRequest{PeriodID: 100, CohortID: 60})

		require.ErrorIs(t, err, domain.ErrConfigurationConflict)
		var mm admin.CohortMismatchError
		require.ErrorAs(t, err, &mm)
		assert.Equal(t, int64(60), mm.CohortID)
		assert.Empty(t, f.repo.cohortOv)
	})

	t.Run("unified offering", func(t *testing.T) {
		f := newFixture()

		err := f.svc.SetCohortCapacity(context.Background(), admin.CohortCapacityRequest{PeriodID: 300, CohortID: 70})

		assert.ErrorIs(t, err, domain.ErrConfigurationConflict)
	})

	t.Run("unknown cohort", func(t *testing.T) {
		f := newFixture()

		err := f.svc.SetCohortCapacity(context.Background(), admin.CohortCapacityRequest{PeriodID: 100, CohortID: 404})

		var nf domain.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "cohort", nf.Entity)
	})
}

func Test_ClearSlotCapacity(t *testing.T) {
	f := newFixture()
	f.repo.slotOv[ovKey{100, 10}] = domain.SlotOverride{PeriodID: 100, SlotID: 10, Capacity: ptr[int64](2), Active: true}

	require.NoError(t, f.svc.ClearSlotCapacity(context.Background(), 100, 10))
	assert.False(t, f.repo.slotOv[ovKey{100, 10}].Active)
	require.Len(t, f.inv.calls, 1)

	err := f.svc.ClearSlotCapacity(context.Background(), 100, 10)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "slot capacity override", nf.Entity)
	assert.Len(t, f.inv.calls, 1)
}

func Test_InvalidationFailureDoesNotFailTheWrite(t *testing.T) {
	f := newFixture()
	f.inv.err = errors.New("redis down")

	err := f.svc.SetSlotCapacities(context.Background(), admin.SlotCapacityRequest{
		PeriodID: 100,
		Items:    []admin.SlotCapacity{{SlotID: 10, Capacity: ptr[int64](1)}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.uow.commits)
	assert.Len(t, f.inv.calls, 1)
}
