package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

type Source string

const (
	SourceSlotOverride   Source = "slot_override"
	SourceCohortOverride Source = "cohort_override"
	SourceBase           Source = "base"
)

// Resolution is the effective value of one attribute for a (slot, date) pair
// and where it came from. A nil Value means the attribute is unset.
type Resolution struct {
	Attribute domain.Attribute `json:"attribute"`
	Value     *int64           `json:"value"`
	Source    Source           `json:"source"`
	PeriodID  *int64           `json:"period_id,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// FromOverride reports whether the value came from either override tier.
func (r Resolution) FromOverride() bool {
	return r.Source == SourceSlotOverride || r.Source == SourceCohortOverride
}

// Repository returns only active override rows; a nil row with a nil error means none exists.
type Repository interface {
	GetSlotContext(ctx context.Context, slotID int64) (*domain.SlotContext, error)
	ListPeriodsCovering(ctx context.Context, offeringID int64, date time.Time) ([]domain.OverridePeriod, error)
	SlotOverride(ctx context.Context, attr domain.Attribute, periodID, slotID int64) (*domain.OverrideValue, error)
	CohortOverride(ctx context.Context, attr domain.Attribute, periodID, cohortID int64) (*domain.OverrideValue, error)
}

type Resolver struct {
	repo   Repository
	logger *slog.Logger
}

func New(repo Repository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		repo:   repo,
		logger: logger,
	}
}

// Resolve walks slot override > cohort override > base for attr on date.
//
// Parameters:
//   - ctx: request-scoped context.
//   - attr: the attribute to resolve (capacity or staff).
//   - slotID: the slot being resolved.
//   - date: the calendar day the value is needed for.
//
// Returns:
//   - Resolution: the effective value with its provenance.
//   - error: domain.NotFoundError if the slot does not exist.
func (r *Resolver) Resolve(
	ctx context.Context,
	attr domain.Attribute,
	slotID int64,
	date time.Time,
) (Resolution, error) {
	const op = "service.override.Resolve"

	sc, err := r.repo.GetSlotContext(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Resolution{}, fmt.Errorf("%s: %w", op, domain.NotFoundError{Entity: "slot", ID: slotID})
		}
		return Resolution{}, fmt.Errorf("%s: %w", op, err)
	}

	res, err := r.ResolveFor(ctx, attr, *sc, date)
	if err != nil {
		return Resolution{}, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

// ResolveFor is Resolve for a slot context the caller already loaded.
func (r *Resolver) ResolveFor(
	ctx context.Context,
	attr domain.Attribute,
	sc domain.SlotContext,
	date time.Time,
) (Resolution, error) {
	baseValue, ok := attr.Base(sc.Slot)
	if !ok {
		return Resolution{}, fmt.Errorf("unknown attribute %q: %w", attr, domain.ErrInvalidInput)
	}

	base := Resolution{Attribute: attr, Value: baseValue, Source: SourceBase}

	// Unified offerings predate override periods and never consult them.
	if sc.Offering.ConfigMode != domain.ConfigIndependent {
		return base, nil
	}

	periods, err := r.repo.ListPeriodsCovering(ctx, sc.Offering.ID, domain.DateOnly(date))
	if err != nil {
		return Resolution{}, err
	}

	period, ok := PickPeriod(periods, date)
	if !ok {
		return base, nil
	}

	so, err := r.repo.SlotOverride(ctx, attr, period.ID, sc.Slot.ID)
	if err != nil {
		return Resolution{}, err
	}
	if so != nil && so.Value != nil {
		return r.fromOverride(attr, SourceSlotOverride, period.ID, so), nil
	}

	co, err := r.repo.CohortOverride(ctx, attr, period.ID, sc.Cohort.ID)
	if err != nil {
		return Resolution{}, err
	}
	if co != nil && co.Value != nil {
		return r.fromOverride(attr, SourceCohortOverride, period.ID, co), nil
	}

	return base, nil
}

func (r *Resolver) fromOverride(
	attr domain.Attribute,
	src Source,
	periodID int64,
	v *domain.OverrideValue,
) Resolution {
	value := *v.Value
	pid := periodID

	r.logger.Debug("override applied",
		"attribute", string(attr),
		"source", string(src),
		"period_id", periodID,
		"value", value,
	)

	return Resolution{
		Attribute: attr,
		Value:     &value,
		Source:    src,
		PeriodID:  &pid,
		Notes:     v.Notes,
	}
}

// PickPeriod selects the period governing date: among periods containing it,
// the highest DisplayOrder wins, then the most recently created, then the
// highest ID so the choice is total.
func PickPeriod(periods []domain.OverridePeriod, date time.Time) (domain.OverridePeriod, bool) {
	var (
		best  domain.OverridePeriod
		found bool
	)

	for _, p := range periods {
		if !p.Contains(date) {
			continue
		}
		if !found || outranks(p, best) {
			best = p
			found = true
		}
	}

	return best, found
}

func outranks(a, b domain.OverridePeriod) bool {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder > b.DisplayOrder
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
