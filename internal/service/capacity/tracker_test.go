package capacity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/cache"
	"github.com/kirinyoku/classbook/internal/clock"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/capacity"
	"github.com/kirinyoku/classbook/internal/service/override"
)

type fakeResolver struct {
	capacity map[int64]*int64
	calls    int
}

func (f *fakeResolver) Resolve(_ context.Context, attr domain.Attribute, slotID int64, _ time.Time) (override.Resolution, error) {
	f.calls++
	v, ok := f.capacity[slotID]
	if !ok {
		return override.Resolution{}, domain.NotFoundError{Entity: "slot", ID: slotID}
	}
	return override.Resolution{Attribute: attr, Value: v, Source: override.SourceBase}, nil
}

type fakeCounter struct {
	counts map[int64]int64
	calls  int
}

func (f *fakeCounter) CountActiveEnrollments(_ context.Context, slotID int64, _ time.Time) (int64, error) {
	f.calls++
	return f.counts[slotID], nil
}

func ptr[T any](v T) *T { return &v }

var testDate = time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	resolver *fakeResolver
	counter  *fakeCounter
	clock    *clock.Manual
	tracker  *capacity.Tracker
}

func newFixture() *fixture {
	f := &fixture{
		resolver: &fakeResolver{capacity: map[int64]*int64{
			1: ptr[int64](5),
			2: nil,
			3: ptr[int64](2),
		}},
		counter: &fakeCounter{counts: map[int64]int64{}},
		clock:   clock.NewManual(testDate),
	}

	c := cache.New(cache.NewMemory(f.clock))
	f.tracker = capacity.New(f.resolver, f.counter, c, nil, nil, capacity.Config{})

	return f
}

func Test_AvailableSlots(t *testing.T) {
	testCases := []struct {
		name   string
		slotID int64
		active int64
		want   int64
	}{
		{name: "no enrollments", slotID: 1, active: 0, want: 5},
		{name: "partially booked", slotID: 1, active: 3, want: 2},
		{name: "full", slotID: 1, active: 5, want: 0},
		{name: "over capacity clamps to zero", slotID: 1, active: 7, want: 0},
		{name: "unlimited reports sentinel", slotID: 2, active: 40, want: 999},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			f := newFixture()
			f.counter.counts[tc.slotID] = tc.active

			// act
			got, err := f.tracker.AvailableSlots(context.Background(), tc.slotID, testDate)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_HasAvailability(t *testing.T) {
	f := newFixture()
	f.counter.counts[1] = 5
	f.counter.counts[3] = 1
	ctx := context.Background()

	ok, err := f.tracker.HasAvailability(ctx, 1, testDate, 1)
	require.NoError(t, err)
	assert.False(t, ok, "full slot")

	ok, err = f.tracker.HasAvailability(ctx, 3, testDate, 0)
	require.NoError(t, err)
	assert.True(t, ok, "needed below one counts as one")

	ok, err = f.tracker.HasAvailability(ctx, 3, testDate, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.tracker.HasAvailability(ctx, 2, testDate, 5000)
	require.NoError(t, err)
	assert.True(t, ok, "unlimited is never exhausted even above the sentinel")
}

func Test_Availability_ReadsCountOnce(t *testing.T) {
	testCases := []struct {
		name          string
		slotID        int64
		active        int64
		needed        int
		wantAvailable int64
		wantUnlimited bool
		wantHas       bool
		wantCounts    int
	}{
		{name: "fits", slotID: 1, active: 3, needed: 2, wantAvailable: 2, wantHas: true, wantCounts: 1},
		{name: "does not fit", slotID: 1, active: 3, needed: 3, wantAvailable: 2, wantHas: false, wantCounts: 1},
		{name: "needed below one", slotID: 3, active: 1, needed: 0, wantAvailable: 1, wantHas: true, wantCounts: 1},
		{name: "unlimited skips the count", slotID: 2, needed: 5000, wantAvailable: 999, wantUnlimited: true, wantHas: true, wantCounts: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			f := newFixture()
			f.counter.counts[tc.slotID] = tc.active

			// act
			a, err := f.tracker.Availability(context.Background(), tc.slotID, testDate)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.wantAvailable, a.Available)
			assert.Equal(t, tc.wantUnlimited, a.Unlimited)
			assert.Equal(t, tc.wantHas, a.Has(tc.needed))
			assert.Equal(t, tc.wantCounts, f.counter.calls)
		})
	}
}

func Test_CapacityIsCachedButCountIsNot(t *testing.T) {
	// arrange
	f := newFixture()
	ctx := context.Background()

	// act
	_, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	f.counter.counts[1] = 4
	got, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)

	// assert
	assert.Equal(t, int64(1), got, "live count must be observed immediately")
	assert.Equal(t, 1, f.resolver.calls)
	assert.Equal(t, 2, f.counter.calls)
}

func Test_CapacityCacheExpiresAndInvalidates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)

	f.resolver.capacity[1] = ptr[int64](9)
	got, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got, "stale within ttl")

	require.NoError(t, f.tracker.Invalidate(ctx, 1, testDate))
	got, err = f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)

	f.resolver.capacity[1] = ptr[int64](4)
	f.clock.Advance(31 * time.Second)
	got, err = f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got, "ttl is a safety net for missed invalidations")
}

func Test_InvalidateRange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	next := testDate.AddDate(0, 0, 1)

	_, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	_, err = f.tracker.AvailableSlots(ctx, 1, next)
	require.NoError(t, err)
	require.Equal(t, 2, f.resolver.calls)

	require.NoError(t, f.tracker.InvalidateRange(ctx, []int64{1, 3}, testDate, next))

	_, err = f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)
	_, err = f.tracker.AvailableSlots(ctx, 1, next)
	require.NoError(t, err)
	assert.Equal(t, 4, f.resolver.calls)
}

func Test_UnknownSlotIsNotFoundAndNotCached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.tracker.AvailableSlots(ctx, 42, testDate)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.tracker.AvailableSlots(ctx, 42, testDate)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, f.resolver.calls)
}

func Test_ValidateCart(t *testing.T) {
	// arrange
	f := newFixture()
	f.counter.counts[1] = 3
	f.counter.counts[3] = 1

	items := []capacity.CartItem{
		{SlotID: 1, Date: testDate},
		{SlotID: 3, Date: testDate},
		{SlotID: 3, Date: testDate.Add(10 * time.Hour)},
		{SlotID: 42, Date: testDate},
		{SlotID: 2, Date: testDate, Quantity: 50},
	}

	// act
	res, err := f.tracker.ValidateCart(context.Background(), items)

	// assert
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Items, 5)

	assert.True(t, res.Items[0].OK)
	assert.Equal(t, int64(2), res.Items[0].Available)

	// slot 3 has one place left but the cart asks for two on the same day
	assert.False(t, res.Items[1].OK)
	assert.Equal(t, int64(2), res.Items[1].Requested)
	assert.Equal(t, capacity.ReasonNoSlots, res.Items[1].Reason)
	assert.False(t, res.Items[2].OK)

	assert.False(t, res.Items[3].OK)
	assert.Equal(t, capacity.ReasonSlotNotFound, res.Items[3].Reason)

	assert.True(t, res.Items[4].OK)
	assert.True(t, res.Items[4].Unlimited)
}

func Test_ValidateCart_AllAvailable(t *testing.T) {
	f := newFixture()

	res, err := f.tracker.ValidateCart(context.Background(), []capacity.CartItem{
		{SlotID: 1, Date: testDate, Quantity: 5},
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Items[0].Reason)
}

func Test_ValidateCart_RejectsMalformedInput(t *testing.T) {
	f := newFixture()

	testCases := []struct {
		name  string
		items []capacity.CartItem
	}{
		{name: "empty cart", items: nil},
		{name: "missing slot", items: []capacity.CartItem{{Date: testDate}}},
		{name: "missing date", items: []capacity.CartItem{{SlotID: 1}}},
		{name: "negative quantity", items: []capacity.CartItem{{SlotID: 1, Date: testDate, Quantity: -1}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tracker.ValidateCart(context.Background(), tc.items)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func Test_WithCounterSharesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.tracker.AvailableSlots(ctx, 1, testDate)
	require.NoError(t, err)

	txCounter := &fakeCounter{counts: map[int64]int64{1: 5}}
	ok, err := f.tracker.WithCounter(txCounter).HasAvailability(ctx, 1, testDate, 1)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, txCounter.calls)
	assert.Equal(t, 1, f.resolver.calls, "capacity comes from the shared cache")
}

type fakeLocker struct {
	fakeCounter
	locked  []int64
	lockErr error
}

func (f *fakeLocker) LockSlot(_ context.Context, slotID int64) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = append(f.locked, slotID)
	return nil
}

func Test_CheckAndLock(t *testing.T) {
	testCases := []struct {
		name      string
		counts    map[int64]int64
		slotID    int64
		needed    int
		lockErr   error
		wantOK    bool
		wantErr   bool
		wantCount int
	}{
		{name: "room left", counts: map[int64]int64{1: 3}, slotID: 1, needed: 2, wantOK: true, wantCount: 1},
		{name: "full under lock", counts: map[int64]int64{1: 4}, slotID: 1, needed: 2, wantOK: false, wantCount: 1},
		{name: "unlimited", counts: map[int64]int64{2: 10000}, slotID: 2, needed: 50, wantOK: true, wantCount: 0},
		{name: "lock failure skips the count", slotID: 1, needed: 1, lockErr: errors.New("deadlock"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tx := &fakeLocker{fakeCounter: fakeCounter{counts: tc.counts}, lockErr: tc.lockErr}

			ok, err := f.tracker.CheckAndLock(context.Background(), tx, tc.slotID, testDate, tc.needed)

			if tc.wantErr {
				require.Error(t, err)
				assert.Zero(t, tx.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, []int64{tc.slotID}, tx.locked)
			assert.Equal(t, tc.wantCount, tx.calls)
			assert.Zero(t, f.counter.calls, "the non-transactional counter is never used")
		})
	}
}
