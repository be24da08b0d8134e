package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConfigurationConflict = errors.New("configuration conflict")
	ErrInvalidInput          = errors.New("invalid input")
)

// NotFoundError names the missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ScheduleConflictError is returned when a staff member would be double-booked.
// It matches ErrConfigurationConflict.
type ScheduleConflictError struct {
	StaffID           int64
	SlotID            int64
	ConflictingSlotID int64
	Date              time.Time
}

func (e ScheduleConflictError) Error() string {
	return fmt.Sprintf(
		"staff %d already teaches slot %d on %s, overlapping slot %d",
		e.StaffID, e.ConflictingSlotID, e.Date.Format(time.DateOnly), e.SlotID,
	)
}

func (e ScheduleConflictError) Is(target error) bool {
	return target == ErrConfigurationConflict
}

// PeriodMismatchError is returned when an override would target a slot the
// period can never apply to.
type PeriodMismatchError struct {
	PeriodID int64
	SlotID   int64
	Reason   string
}

func (e PeriodMismatchError) Error() string {
	return fmt.Sprintf("period %d cannot override slot %d: %s", e.PeriodID, e.SlotID, e.Reason)
}

func (e PeriodMismatchError) Is(target error) bool {
	return target == ErrConfigurationConflict
}
