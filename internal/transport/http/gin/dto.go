package httpgin

import (
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/admin"
	"github.com/kirinyoku/classbook/internal/service/capacity"
	"github.com/kirinyoku/classbook/internal/service/discount"
	"github.com/kirinyoku/classbook/internal/validation"
)

type ErrorResponse struct {
	Error   string                  `json:"error"`
	Details []validation.FieldError `json:"details,omitempty"`
}

type AvailabilityResponse struct {
	SlotID          int64  `json:"slot_id"`
	Date            string `json:"date"`
	Available       int64  `json:"available"`
	Unlimited       bool   `json:"unlimited"`
	Needed          int    `json:"needed"`
	HasAvailability bool   `json:"has_availability"`
	Capacity        *int64 `json:"capacity"`
	Source          string `json:"source"`
	PeriodID        *int64 `json:"period_id,omitempty"`
}

type CartItemInput struct {
	SlotID   int64  `json:"slot_id" binding:"required,gt=0"`
	Date     string `json:"date" binding:"required"`
	Quantity int    `json:"quantity" binding:"gte=0"`
}

type ValidateCartRequest struct {
	Items []CartItemInput `json:"items" binding:"required,min=1,dive"`
}

func (r ValidateCartRequest) toItems() ([]capacity.CartItem, error) {
	out := make([]capacity.CartItem, 0, len(r.Items))
	for _, it := range r.Items {
		d, err := time.Parse(time.DateOnly, it.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, capacity.CartItem{SlotID: it.SlotID, Date: d, Quantity: it.Quantity})
	}
	return out, nil
}

type AssignStaffRequest struct {
	StaffID int64  `json:"staff_id" binding:"required,gt=0"`
	Notes   string `json:"notes"`
}

type StaffAssignmentResponse struct {
	ID        int64     `json:"id"`
	PeriodID  int64     `json:"period_id"`
	SlotID    int64     `json:"slot_id"`
	StaffID   *int64    `json:"staff_id"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toStaffAssignment(o domain.StaffOverride) StaffAssignmentResponse {
	return StaffAssignmentResponse{
		ID:        o.ID,
		PeriodID:  o.PeriodID,
		SlotID:    o.SlotID,
		StaffID:   o.StaffID,
		Notes:     o.Notes,
		UpdatedAt: o.UpdatedAt,
	}
}

type QuoteRequest struct {
	Items []discount.Query `json:"items" binding:"required,min=1"`
}

type QuoteResponse struct {
	Items []discount.Result `json:"items"`
}

func (r QuoteRequest) hasPromo() bool {
	for _, it := range r.Items {
		if it.PromoCode != "" {
			return true
		}
	}
	return false
}

type SlotCapacitiesRequest struct {
	Items []admin.SlotCapacity `json:"items" binding:"required"`
}

// CohortCapacityRequest carries a nullable capacity; null clears the cohort tier.
type CohortCapacityRequest struct {
	Capacity *int64 `json:"capacity"`
}

type InvalidateRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Reason string `json:"reason"`
}
