package domain

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// BreakdownVersion is the only snapshot layout DecodeBreakdown accepts.
const BreakdownVersion = 1

var breakdownJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// PriceBreakdown is the canonical price computation of a Reservation. It is
// also the persisted "basket" snapshot, so its encoding must stay stable.
type PriceBreakdown struct {
	Version        int              `json:"version"`
	ReservationID  int64            `json:"reservation_id"`
	Currency       string           `json:"currency"`
	Groups         []GroupBreakdown `json:"groups"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	ManualDiscount decimal.Decimal  `json:"manual_discount"`
	InsuranceFee   decimal.Decimal  `json:"insurance_fee"`
	Tax            decimal.Decimal  `json:"tax"`
	CareFee        decimal.Decimal  `json:"care_fee"`
	Total          decimal.Decimal  `json:"total"`
	FreeBooking    bool             `json:"free_booking,omitempty"`
	SnapshotStale  bool             `json:"snapshot_stale,omitempty"`
	Excluded       []ExcludedItem   `json:"excluded,omitempty"`
}

// GroupBreakdown aggregates the line items of one activity group (offering + cohort).
type GroupBreakdown struct {
	OfferingID     int64           `json:"offering_id"`
	CohortID       int64           `json:"cohort_id"`
	Items          []ItemBreakdown `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ManualDiscount decimal.Decimal `json:"manual_discount"`
	Total          decimal.Decimal `json:"total"`
}

type ItemBreakdown struct {
	EnrollmentID   int64           `json:"enrollment_id"`
	BasePrice      decimal.Decimal `json:"base_price"`
	Discount       decimal.Decimal `json:"discount"`
	DiscountSource string          `json:"discount_source"`
	DiscountRuleID int64           `json:"discount_rule_id,omitempty"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

// ExcludedItem records a line item left out of the total because its
// configuration no longer exists.
type ExcludedItem struct {
	EnrollmentID int64  `json:"enrollment_id"`
	Reason       string `json:"reason"`
}

// EncodeBreakdown serializes b for persistence.
func EncodeBreakdown(b PriceBreakdown) ([]byte, error) {
	return breakdownJSON.Marshal(b)
}

// DecodeBreakdown parses a stored snapshot. Anything that is not a well-formed
// version-1 snapshot with a total is reported as absent rather than as an error.
func DecodeBreakdown(raw []byte) (PriceBreakdown, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return PriceBreakdown{}, false
	}

	var probe struct {
		Version *int             `json:"version"`
		Total   *decimal.Decimal `json:"total"`
	}
	if err := breakdownJSON.Unmarshal(raw, &probe); err != nil {
		return PriceBreakdown{}, false
	}
	if probe.Version == nil || *probe.Version != BreakdownVersion || probe.Total == nil {
		return PriceBreakdown{}, false
	}

	var b PriceBreakdown
	if err := breakdownJSON.Unmarshal(raw, &b); err != nil {
		return PriceBreakdown{}, false
	}

	return b, true
}
