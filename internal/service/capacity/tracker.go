package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirinyoku/classbook/internal/cache"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/override"
	"github.com/kirinyoku/classbook/internal/validation"
)

type Resolver interface {
	Resolve(ctx context.Context, attr domain.Attribute, slotID int64, date time.Time) (override.Resolution, error)
}

// Counter returns the live number of active enrollments holding slotID on
// date. Implementations must not cache.
type Counter interface {
	CountActiveEnrollments(ctx context.Context, slotID int64, date time.Time) (int64, error)
}

type Config struct {
	CapacityTTL time.Duration
	// Unlimited is reported as the available count of slots with no capacity.
	Unlimited int64
}

type Tracker struct {
	resolver Resolver
	counter  Counter
	cache    *cache.Cache
	validate *validation.Validator
	logger   *slog.Logger
	cfg      Config
}

func New(
	resolver Resolver,
	counter Counter,
	c *cache.Cache,
	v *validation.Validator,
	logger *slog.Logger,
	cfg Config,
) *Tracker {
	if cfg.CapacityTTL <= 0 {
		cfg.CapacityTTL = 30 * time.Second
	}

	if cfg.Unlimited <= 0 {
		cfg.Unlimited = 999
	}

	if v == nil {
		v = validation.New()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		resolver: resolver,
		counter:  counter,
		cache:    c,
		validate: v,
		logger:   logger,
		cfg:      cfg,
	}
}

// WithCounter returns a Tracker sharing this one's cache and resolver but
// counting through counter, typically a transaction-bound repository.
func (t *Tracker) WithCounter(counter Counter) *Tracker {
	cp := *t
	cp.counter = counter
	return &cp
}

// Capacity is the resolved capacity of a slot for one day.
type Capacity struct {
	Value     *int64          `json:"value"`
	Unlimited bool            `json:"unlimited"`
	Source    override.Source `json:"source"`
	PeriodID  *int64          `json:"period_id,omitempty"`
}

// EffectiveCapacity resolves the capacity of slotID on date through the
// override chain. Only this value is cached; enrollment counts never are.
//
// Parameters:
//   - ctx: request-scoped context.
//   - slotID: the slot to resolve.
//   - date: the calendar day.
//
// Returns:
//   - Capacity: resolved capacity; Unlimited when the chain yields no value.
//   - error: domain.NotFoundError if the slot does not exist.
func (t *Tracker) EffectiveCapacity(ctx context.Context, slotID int64, date time.Time) (Capacity, error) {
	const op = "service.capacity.EffectiveCapacity"

	c, err := cache.GetOrSetJSON(
		ctx,
		t.cache,
		cache.KeyCapacity(slotID, date),
		t.cfg.CapacityTTL,
		func(ctx context.Context) (Capacity, error) {
			res, err := t.resolver.Resolve(ctx, domain.AttrCapacity, slotID, date)
			if err != nil {
				return Capacity{}, err
			}

			return Capacity{
				Value:     res.Value,
				Unlimited: res.Value == nil,
				Source:    res.Source,
				PeriodID:  res.PeriodID,
			}, nil
		},
	)
	if err != nil {
		return Capacity{}, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

// Availability is a single consistent read of a slot's capacity and the
// places left on it.
type Availability struct {
	Capacity  Capacity `json:"capacity"`
	Available int64    `json:"available"`
	Unlimited bool     `json:"unlimited"`
}

// Has reports whether needed places fit. A needed value below one is treated as one.
func (a Availability) Has(needed int) bool {
	if needed < 1 {
		needed = 1
	}
	return a.Unlimited || a.Available >= int64(needed)
}

// Availability resolves the capacity of slotID and counts its active
// enrollments exactly once.
func (t *Tracker) Availability(ctx context.Context, slotID int64, date time.Time) (Availability, error) {
	const op = "service.capacity.Availability"

	a, err := t.available(ctx, slotID, date)
	if err != nil {
		return Availability{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// AvailableSlots returns max(0, capacity - active enrollments), or the
// configured unlimited sentinel when the slot has no capacity limit.
func (t *Tracker) AvailableSlots(ctx context.Context, slotID int64, date time.Time) (int64, error) {
	const op = "service.capacity.AvailableSlots"

	a, err := t.available(ctx, slotID, date)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return a.Available, nil
}

// HasAvailability reports whether needed places can still be taken on slotID.
// A needed value below one is treated as one.
//
// The answer is only as fresh as the read; callers that enroll on the strength
// of it must repeat the check inside the same transaction that inserts the
// enrollment, after locking the slot.
func (t *Tracker) HasAvailability(ctx context.Context, slotID int64, date time.Time, needed int) (bool, error) {
	const op = "service.capacity.HasAvailability"

	a, err := t.available(ctx, slotID, date)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return a.Has(needed), nil
}

// SlotLocker is a transaction-bound Counter that can also lock a slot row.
type SlotLocker interface {
	Counter
	LockSlot(ctx context.Context, slotID int64) error
}

// CheckAndLock locks slotID inside tx and repeats the availability check with
// counts read through tx. Enrollments inserted before tx commits cannot
// oversubscribe the slot.
func (t *Tracker) CheckAndLock(
	ctx context.Context,
	tx SlotLocker,
	slotID int64,
	date time.Time,
	needed int,
) (bool, error) {
	const op = "service.capacity.CheckAndLock"

	if err := tx.LockSlot(ctx, slotID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := t.WithCounter(tx).HasAvailability(ctx, slotID, date, needed)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

func (t *Tracker) available(ctx context.Context, slotID int64, date time.Time) (Availability, error) {
	c, err := t.EffectiveCapacity(ctx, slotID, date)
	if err != nil {
		return Availability{}, err
	}

	if c.Unlimited || c.Value == nil {
		return Availability{Capacity: c, Available: t.cfg.Unlimited, Unlimited: true}, nil
	}

	count, err := t.counter.CountActiveEnrollments(ctx, slotID, domain.DateOnly(date))
	if err != nil {
		return Availability{}, err
	}

	avail := *c.Value - count
	if avail < 0 {
		t.logger.Warn("slot over capacity",
			"slot_id", slotID,
			"date", date.Format(time.DateOnly),
			"capacity", *c.Value,
			"active", count,
		)
		avail = 0
	}

	return Availability{Capacity: c, Available: avail}, nil
}

type CartItem struct {
	SlotID   int64     `json:"slot_id" validate:"required,gt=0"`
	Date     time.Time `json:"date" validate:"required"`
	Quantity int       `json:"quantity" validate:"gte=0,lte=1000"`
}

type CartItemResult struct {
	SlotID    int64  `json:"slot_id"`
	Date      string `json:"date"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Unlimited bool   `json:"unlimited,omitempty"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

type CartResult struct {
	OK    bool             `json:"ok"`
	Items []CartItemResult `json:"items"`
}

type cartRequest struct {
	Items []CartItem `validate:"min=1,dive"`
}

type demandKey struct {
	slotID int64
	day    string
}

// ValidateCart checks every (slot, date) of a multi-item purchase. Repeated
// pairs are checked against their combined demand. Unknown slots fail their
// item with a reason rather than the whole call.
//
// Parameters:
//   - ctx: request-scoped context.
//   - items: cart lines; a zero Quantity counts as one place.
//
// Returns:
//   - CartResult: overall AND of the item results plus the per-item detail,
//     in the order the items were given.
//   - error: domain.ErrInvalidInput for a malformed cart, or a storage failure.
func (t *Tracker) ValidateCart(ctx context.Context, items []CartItem) (CartResult, error) {
	const op = "service.capacity.ValidateCart"

	if err := t.validate.Struct(cartRequest{Items: items}); err != nil {
		return CartResult{}, fmt.Errorf("%s: %w", op, err)
	}

	demand := make(map[demandKey]int64, len(items))
	for _, it := range items {
		demand[keyOf(it)] += quantity(it)
	}

	type verdict struct {
		avail     int64
		unlimited bool
		missing   bool
	}

	// Evaluate each distinct pair once, in a stable order.
	keys := make([]demandKey, 0, len(demand))
	for k := range demand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].slotID != keys[j].slotID {
			return keys[i].slotID < keys[j].slotID
		}
		return keys[i].day < keys[j].day
	})

	verdicts := make(map[demandKey]verdict, len(keys))
	for _, k := range keys {
		date, _ := time.Parse(time.DateOnly, k.day)

		a, err := t.available(ctx, k.slotID, date)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				verdicts[k] = verdict{missing: true}
				continue
			}
			return CartResult{}, fmt.Errorf("%s: %w", op, err)
		}

		verdicts[k] = verdict{avail: a.Available, unlimited: a.Unlimited}
	}

	out := CartResult{OK: true, Items: make([]CartItemResult, 0, len(items))}
	for _, it := range items {
		k := keyOf(it)
		v := verdicts[k]

		r := CartItemResult{
			SlotID:    it.SlotID,
			Date:      k.day,
			Requested: demand[k],
			Available: v.avail,
			Unlimited: v.unlimited,
		}

		switch {
		case v.missing:
			r.Reason = ReasonSlotNotFound
		case v.unlimited || v.avail >= demand[k]:
			r.OK = true
		default:
			r.Reason = ReasonNoSlots
		}

		if !r.OK {
			out.OK = false
		}
		out.Items = append(out.Items, r)
	}

	return out, nil
}

// Invalidate drops the cached capacity of slotID on date.
func (t *Tracker) Invalidate(ctx context.Context, slotID int64, date time.Time) error {
	const op = "service.capacity.Invalidate"

	if err := t.cache.Del(ctx, cache.KeyCapacity(slotID, date)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InvalidateRange drops the cached capacity of every slot for each day in
// [from, to], as needed after an override period is edited.
func (t *Tracker) InvalidateRange(ctx context.Context, slotIDs []int64, from, to time.Time) error {
	const op = "service.capacity.InvalidateRange"

	var keys []string
	for _, id := range slotIDs {
		keys = append(keys, cache.DateKeys(id, from, to, cache.KeyCapacity)...)
	}

	if err := t.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func keyOf(it CartItem) demandKey {
	return demandKey{slotID: it.SlotID, day: domain.DateOnly(it.Date).Format(time.DateOnly)}
}

func quantity(it CartItem) int64 {
	if it.Quantity < 1 {
		return 1
	}
	return int64(it.Quantity)
}
