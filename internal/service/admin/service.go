package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/uow"
	"github.com/kirinyoku/classbook/internal/validation"
)

const invalidationReason = "capacity_override"

// Repository is what capacity authoring reads and writes inside one transaction.
type Repository interface {
	GetPeriod(ctx context.Context, periodID int64) (*domain.OverridePeriod, error)
	GetOffering(ctx context.Context, id int64) (*domain.Offering, error)
	GetSlotContext(ctx context.Context, slotID int64) (*domain.SlotContext, error)
	GetCohort(ctx context.Context, cohortID int64) (*domain.Cohort, error)
	ListCohortSlotIDs(ctx context.Context, cohortID int64) ([]int64, error)
	UpsertSlotCapacities(ctx context.Context, periodID int64, items []domain.SlotOverride) error
	UpsertCohortCapacity(ctx context.Context, o domain.CohortOverride) error
	DeactivateSlotCapacity(ctx context.Context, periodID, slotID int64) (bool, error)
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error) error
}

// Invalidator drops cached values of a slot over a date range on every instance.
type Invalidator interface {
	InvalidateSlot(ctx context.Context, slotID int64, from, to time.Time, reason string) error
}

type Service struct {
	uow         UnitOfWork
	invalidator Invalidator
	validate    *validation.Validator
	logger      *slog.Logger
}

func New(unit UnitOfWork, inv Invalidator, v *validation.Validator, logger *slog.Logger) *Service {
	if v == nil {
		v = validation.New()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		uow:         unit,
		invalidator: inv,
		validate:    v,
		logger:      logger,
	}
}

// SlotCapacity is one slot's capacity for a period. A nil Capacity clears the
// slot tier so the cohort override or base capacity applies.
type SlotCapacity struct {
	SlotID   int64  `json:"slot_id" validate:"required,gt=0"`
	Capacity *int64 `json:"capacity" validate:"omitempty,gte=0"`
}

type SlotCapacityRequest struct {
	PeriodID int64          `json:"-" validate:"required,gt=0"`
	Items    []SlotCapacity `json:"items" validate:"min=1,max=500,dive"`
}

type CohortCapacityRequest struct {
	PeriodID int64  `json:"-" validate:"required,gt=0"`
	CohortID int64  `json:"-" validate:"required,gt=0"`
	Capacity *int64 `json:"capacity" validate:"omitempty,gte=0"`
}

// SetSlotCapacities writes the slot capacity overrides of one period in a
// single transaction. Either every item is stored or none is.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: the period and the per-slot capacities.
//
// Returns:
//   - error: domain.ErrInvalidInput for a malformed request or a repeated slot.
//   - error: domain.NotFoundError if the period or a slot does not exist.
//   - error: domain.PeriodMismatchError if the period cannot apply to a slot.
func (s *Service) SetSlotCapacities(ctx context.Context, req SlotCapacityRequest) error {
	const op = "service.admin.SetSlotCapacities"

	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[int64]struct{}, len(req.Items))
	for _, it := range req.Items {
		if _, dup := seen[it.SlotID]; dup {
			return fmt.Errorf("%s: slot %d listed twice: %w", op, it.SlotID, domain.ErrInvalidInput)
		}
		seen[it.SlotID] = struct{}{}
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		period, err := getPeriod(ctx, repo, req.PeriodID)
		if err != nil {
			return err
		}

		rows := make([]domain.SlotOverride, 0, len(req.Items))
		slotIDs := make([]int64, 0, len(req.Items))

		for _, it := range req.Items {
			if err := checkSlot(ctx, repo, *period, it.SlotID); err != nil {
				return err
			}
			rows = append(rows, domain.SlotOverride{
				PeriodID: req.PeriodID,
				SlotID:   it.SlotID,
				Capacity: it.Capacity,
				Active:   true,
			})
			slotIDs = append(slotIDs, it.SlotID)
		}

		if err := repo.UpsertSlotCapacities(ctx, req.PeriodID, rows); err != nil {
			return err
		}

		after(s.invalidateAfter(slotIDs, *period))

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("slot capacities set",
		"period_id", req.PeriodID,
		"slots", len(req.Items),
	)

	return nil
}

// SetCohortCapacity writes the cohort capacity override of one period. Every
// slot of the cohort without its own override picks it up.
func (s *Service) SetCohortCapacity(ctx context.Context, req CohortCapacityRequest) error {
	const op = "service.admin.SetCohortCapacity"

	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		period, err := getPeriod(ctx, repo, req.PeriodID)
		if err != nil {
			return err
		}

		cohort, err := repo.GetCohort(ctx, req.CohortID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NotFoundError{Entity: "cohort", ID: req.CohortID}
			}
			return err
		}

		if err := checkCohort(ctx, repo, *period, *cohort); err != nil {
			return err
		}

		err = repo.UpsertCohortCapacity(ctx, domain.CohortOverride{
			PeriodID: req.PeriodID,
			CohortID: req.CohortID,
			Capacity: req.Capacity,
			Active:   true,
		})
		if err != nil {
			return err
		}

		slotIDs, err := repo.ListCohortSlotIDs(ctx, req.CohortID)
		if err != nil {
			return err
		}

		after(s.invalidateAfter(slotIDs, *period))

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("cohort capacity set",
		"period_id", req.PeriodID,
		"cohort_id", req.CohortID,
	)

	return nil
}

// ClearSlotCapacity deactivates the slot capacity override of (period, slot).
func (s *Service) ClearSlotCapacity(ctx context.Context, periodID, slotID int64) error {
	const op = "service.admin.ClearSlotCapacity"

	err := s.uow.Do(ctx, func(ctx context.Context, repo Repository, after func(uow.AfterCommit)) error {
		period, err := getPeriod(ctx, repo, periodID)
		if err != nil {
			return err
		}

		removed, err := repo.DeactivateSlotCapacity(ctx, periodID, slotID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.NotFoundError{Entity: "slot capacity override", ID: slotID}
		}

		after(s.invalidateAfter([]int64{slotID}, *period))

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) invalidateAfter(slotIDs []int64, period domain.OverridePeriod) uow.AfterCommit {
	return func(ctx context.Context) {
		if s.invalidator == nil {
			return
		}
		for _, id := range slotIDs {
			err := s.invalidator.InvalidateSlot(ctx, id, period.StartDate, period.EndDate, invalidationReason)
			if err != nil {
				s.logger.Warn("capacity invalidation failed",
					"slot_id", id,
					"period_id", period.ID,
					"error", err,
				)
			}
		}
	}
}

func getPeriod(ctx context.Context, repo Repository, periodID int64) (*domain.OverridePeriod, error) {
	period, err := repo.GetPeriod(ctx, periodID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundError{Entity: "period", ID: periodID}
		}
		return nil, err
	}

	return period, nil
}

func checkSlot(ctx context.Context, repo Repository, period domain.OverridePeriod, slotID int64) error {
	sc, err := repo.GetSlotContext(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundError{Entity: "slot", ID: slotID}
		}
		return err
	}

	mismatch := func(reason string) error {
		return domain.PeriodMismatchError{PeriodID: period.ID, SlotID: slotID, Reason: reason}
	}

	switch {
	case period.OfferingID != sc.Offering.ID:
		return mismatch(mismatchOffering)
	case sc.Offering.ConfigMode != domain.ConfigIndependent:
		return mismatch(mismatchUnifiedMode)
	case !period.Contains(sc.Session.Date):
		return mismatch(mismatchDate)
	}

	return nil
}

func checkCohort(ctx context.Context, repo Repository, period domain.OverridePeriod, cohort domain.Cohort) error {
	mismatch := func(reason string) error {
		return CohortMismatchError{PeriodID: period.ID, CohortID: cohort.ID, Reason: reason}
	}

	if period.OfferingID != cohort.OfferingID {
		return mismatch(mismatchOffering)
	}

	offering, err := repo.GetOffering(ctx, cohort.OfferingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundError{Entity: "offering", ID: cohort.OfferingID}
		}
		return err
	}

	if offering.ConfigMode != domain.ConfigIndependent {
		return mismatch(mismatchUnifiedMode)
	}

	return nil
}
