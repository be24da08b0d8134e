package admin

import (
	"fmt"

	"github.com/kirinyoku/classbook/internal/domain"
)

const (
	mismatchOffering    = "period belongs to another offering"
	mismatchDate        = "session date is outside the period"
	mismatchUnifiedMode = "offering does not use override periods"
)

// CohortMismatchError is returned when a cohort override targets a cohort
// the period can never apply to. It matches domain.ErrConfigurationConflict.
type CohortMismatchError struct {
	PeriodID int64
	CohortID int64
	Reason   string
}

func (e CohortMismatchError) Error() string {
	return fmt.Sprintf("period %d cannot override cohort %d: %s", e.PeriodID, e.CohortID, e.Reason)
}

func (e CohortMismatchError) Is(target error) bool {
	return target == domain.ErrConfigurationConflict
}
