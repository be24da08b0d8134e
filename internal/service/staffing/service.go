package staffing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classbook/internal/cache"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/override"
	"github.com/kirinyoku/classbook/internal/uow"
	"github.com/kirinyoku/classbook/internal/validation"
)

type Source string

const (
	SourceOverride Source = "override"
	SourceBase     Source = "base"
	SourceNone     Source = "none"
)

// Repository is everything staffing reads and writes. Inside a unit of work
// the same methods run on the transaction.
type Repository interface {
	override.Repository
	GetPeriod(ctx context.Context, periodID int64) (*domain.OverridePeriod, error)
	// StaffCandidates lists the slots staffID might teach on date: those where
	// the staff member is the base staff or named by an active override.
	StaffCandidates(ctx context.Context, staffID int64, date time.Time) ([]domain.StaffCommitment, error)
	// LockStaff serializes concurrent assignments of one staff member.
	LockStaff(ctx context.Context, staffID int64) error
	UpsertStaffOverride(ctx context.Context, o domain.StaffOverride) (domain.StaffOverride, error)
	DeactivateStaffOverride(ctx context.Context, periodID, slotID int64) (bool, error)
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error) error
}

type Config struct {
	StaffTTL time.Duration
}

type Service struct {
	repo     Repository
	uow      UnitOfWork
	resolver *override.Resolver
	cache    *cache.Cache
	validate *validation.Validator
	logger   *slog.Logger
	cfg      Config
}

func New(
	repo Repository,
	unit UnitOfWork,
	c *cache.Cache,
	v *validation.Validator,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.StaffTTL <= 0 {
		cfg.StaffTTL = time.Hour
	}

	if v == nil {
		v = validation.New()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     repo,
		uow:      unit,
		resolver: override.New(repo, logger),
		cache:    c,
		validate: v,
		logger:   logger,
		cfg:      cfg,
	}
}

// Assignment is the effective staff of a slot on a day with its provenance.
type Assignment struct {
	SlotID   int64  `json:"slot_id"`
	Date     string `json:"date"`
	StaffID  *int64 `json:"staff_id"`
	Source   Source `json:"source"`
	PeriodID *int64 `json:"period_id,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// DetailedAssignment resolves who teaches slotID on date.
//
// Parameters:
//   - ctx: request-scoped context.
//   - slotID: the slot to resolve.
//   - date: the calendar day.
//
// Returns:
//   - Assignment: source is "override" when a staff override applies,
//     "base" for the slot's own staff, "none" when neither is set.
//   - error: domain.NotFoundError if the slot does not exist.
func (s *Service) DetailedAssignment(ctx context.Context, slotID int64, date time.Time) (Assignment, error) {
	const op = "service.staffing.DetailedAssignment"

	a, err := cache.GetOrSetJSON(
		ctx,
		s.cache,
		cache.KeyStaff(slotID, date),
		s.cfg.StaffTTL,
		func(ctx context.Context) (Assignment, error) {
			res, err := s.resolver.Resolve(ctx, domain.AttrStaff, slotID, date)
			if err != nil {
				return Assignment{}, err
			}

			return toAssignment(slotID, date, res), nil
		},
	)
	if err != nil {
		return Assignment{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// AssignedStaff returns the effective staff ID, or nil when nobody is assigned.
func (s *Service) AssignedStaff(ctx context.Context, slotID int64, date time.Time) (*int64, error) {
	const op = "service.staffing.AssignedStaff"

	a, err := s.DetailedAssignment(ctx, slotID, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a.StaffID, nil
}

type AssignRequest struct {
	PeriodID int64  `json:"period_id" validate:"required,gt=0"`
	SlotID   int64  `json:"slot_id" validate:"required,gt=0"`
	StaffID  int64  `json:"staff_id" validate:"required,gt=0"`
	Notes    string `json:"notes" validate:"max=500"`
}

// AssignStaff writes the active staff override of (period, slot) after
// checking that the staff member is not already teaching an overlapping
// slot on the session's day.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: the period, slot and staff to bind.
//
// Returns:
//   - domain.StaffOverride: the stored override.
//   - error: domain.ErrInvalidInput for a malformed request.
//   - error: domain.NotFoundError if the period or slot does not exist.
//   - error: domain.PeriodMismatchError if the period cannot apply to the slot.
//   - error: domain.ScheduleConflictError on a double booking; nothing is written.
func (s *Service) AssignStaff(ctx context.Context, req AssignRequest) (domain.StaffOverride, error) {
	const op = "service.staffing.AssignStaff"

	if err := s.validate.Struct(req); err != nil {
		return domain.StaffOverride{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.StaffOverride

	err := s.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		period, sc, err := loadTarget(ctx, repo, req.PeriodID, req.SlotID)
		if err != nil {
			return err
		}

		if err := repo.LockStaff(ctx, req.StaffID); err != nil {
			return err
		}

		if err := s.checkSchedule(ctx, repo, req.StaffID, *sc); err != nil {
			return err
		}

		staffID := req.StaffID
		out, err = repo.UpsertStaffOverride(ctx, domain.StaffOverride{
			PeriodID: req.PeriodID,
			SlotID:   req.SlotID,
			StaffID:  &staffID,
			Active:   true,
			Notes:    req.Notes,
		})
		if err != nil {
			return err
		}

		after(s.invalidateAfter(req.SlotID, *period))

		return nil
	})
	if err != nil {
		return domain.StaffOverride{}, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("staff assigned",
		"period_id", req.PeriodID,
		"slot_id", req.SlotID,
		"staff_id", req.StaffID,
	)

	return out, nil
}

// RemoveAssignment deactivates the staff override of (period, slot). The slot
// falls back to its base staff on the next resolution.
func (s *Service) RemoveAssignment(ctx context.Context, periodID, slotID int64) error {
	const op = "service.staffing.RemoveAssignment"

	err := s.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		period, err := repo.GetPeriod(ctx, periodID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NotFoundError{Entity: "period", ID: periodID}
			}
			return err
		}

		removed, err := repo.DeactivateStaffOverride(ctx, periodID, slotID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.NotFoundError{Entity: "staff assignment", ID: slotID}
		}

		after(s.invalidateAfter(slotID, *period))

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Invalidate drops the cached assignment of slotID on date.
func (s *Service) Invalidate(ctx context.Context, slotID int64, date time.Time) error {
	const op = "service.staffing.Invalidate"

	if err := s.cache.Del(ctx, cache.KeyStaff(slotID, date)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InvalidateRange drops cached assignments of every slot for each day in [from, to].
func (s *Service) InvalidateRange(ctx context.Context, slotIDs []int64, from, to time.Time) error {
	const op = "service.staffing.InvalidateRange"

	var keys []string
	for _, id := range slotIDs {
		keys = append(keys, cache.DateKeys(id, from, to, cache.KeyStaff)...)
	}

	if err := s.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) invalidateAfter(slotID int64, period domain.OverridePeriod) uow.AfterCommit {
	return func(ctx context.Context) {
		if err := s.InvalidateRange(ctx, []int64{slotID}, period.StartDate, period.EndDate); err != nil {
			s.logger.Warn("staff cache invalidation failed",
				"slot_id", slotID,
				"period_id", period.ID,
				"error", err,
			)
		}
	}
}

func loadTarget(
	ctx context.Context,
	repo Repository,
	periodID, slotID int64,
) (*domain.OverridePeriod, *domain.SlotContext, error) {
	period, err := repo.GetPeriod(ctx, periodID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.NotFoundError{Entity: "period", ID: periodID}
		}
		return nil, nil, err
	}

	sc, err := repo.GetSlotContext(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.NotFoundError{Entity: "slot", ID: slotID}
		}
		return nil, nil, err
	}

	mismatch := func(reason string) error {
		return domain.PeriodMismatchError{PeriodID: periodID, SlotID: slotID, Reason: reason}
	}

	switch {
	case period.OfferingID != sc.Offering.ID:
		return nil, nil, mismatch(mismatchOffering)
	case sc.Offering.ConfigMode != domain.ConfigIndependent:
		return nil, nil, mismatch(mismatchUnifiedMode)
	case !period.Contains(sc.Session.Date):
		return nil, nil, mismatch(mismatchDate)
	}

	return period, sc, nil
}

// checkSchedule rejects the assignment when staffID effectively teaches
// another slot whose time window overlaps the target session.
func (s *Service) checkSchedule(
	ctx context.Context,
	repo Repository,
	staffID int64,
	target domain.SlotContext,
) error {
	date := domain.DateOnly(target.Session.Date)

	candidates, err := repo.StaffCandidates(ctx, staffID, date)
	if err != nil {
		return err
	}

	want := domain.StaffCommitment{
		SlotID:   target.Slot.ID,
		StartsAt: target.Session.StartsAt,
		EndsAt:   target.Session.EndsAt,
	}

	// Resolve through the transaction so overrides written concurrently are seen.
	txResolver := override.New(repo, s.logger)

	for _, c := range candidates {
		if c.SlotID == target.Slot.ID || !c.Overlaps(want) {
			continue
		}

		res, err := txResolver.Resolve(ctx, domain.AttrStaff, c.SlotID, date)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return err
		}

		if res.Value != nil && *res.Value == staffID {
			return domain.ScheduleConflictError{
				StaffID:           staffID,
				SlotID:            target.Slot.ID,
				ConflictingSlotID: c.SlotID,
				Date:              date,
			}
		}
	}

	return nil
}

func toAssignment(slotID int64, date time.Time, res override.Resolution) Assignment {
	a := Assignment{
		SlotID:   slotID,
		Date:     domain.DateOnly(date).Format(time.DateOnly),
		StaffID:  res.Value,
		PeriodID: res.PeriodID,
		Notes:    res.Notes,
	}

	switch {
	case res.Value == nil:
		a.Source = SourceNone
		a.PeriodID = nil
	case res.FromOverride():
		a.Source = SourceOverride
	default:
		a.Source = SourceBase
	}

	return a
}
