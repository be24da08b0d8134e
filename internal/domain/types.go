package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferingType string

const (
	OfferingCollective OfferingType = "collective"
	OfferingPrivate    OfferingType = "private"
)

// ConfigMode gates whether Override Periods are consulted at all.
type ConfigMode string

const (
	ConfigUnified     ConfigMode = "unified"
	ConfigIndependent ConfigMode = "independent"
)

type Offering struct {
	ID         int64
	SchoolID   int64
	Name       string
	Type       OfferingType
	ConfigMode ConfigMode
	Currency   string
}

type Session struct {
	ID         int64
	OfferingID int64
	Date       time.Time
	StartsAt   time.Time
	EndsAt     time.Time
}

type Cohort struct {
	ID         int64
	OfferingID int64
	SessionID  int64
	SkillLevel string
}

// Slot is the bookable unit inside a Cohort. A nil BaseCapacity means unlimited.
type Slot struct {
	ID           int64
	CohortID     int64
	BaseCapacity *int64
	BaseStaffID  *int64
}

// SlotContext is a Slot joined with everything the resolvers need to walk
// the override chain without further lookups.
type SlotContext struct {
	Slot     Slot
	Cohort   Cohort
	Session  Session
	Offering Offering
}

type OverridePeriod struct {
	ID           int64
	OfferingID   int64
	StartDate    time.Time
	EndDate      time.Time
	DisplayOrder int
	CreatedAt    time.Time
}

// Contains reports whether date falls on or between the period's start and end days.
func (p OverridePeriod) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// OverrideValue is an active, period-scoped override row reduced to the
// attribute being resolved. Value is nil when the row leaves the attribute unset.
type OverrideValue struct {
	PeriodID int64
	Value    *int64
	Notes    string
}

type CohortOverride struct {
	PeriodID int64
	CohortID int64
	Capacity *int64
	Active   bool
}

type SlotOverride struct {
	PeriodID int64
	SlotID   int64
	Capacity *int64
	Active   bool
}

type StaffOverride struct {
	ID        int64
	PeriodID  int64
	SlotID    int64
	StaffID   *int64
	Active    bool
	Notes     string
	UpdatedAt time.Time
}

// StaffCommitment is one slot a staff member teaches on a given day.
type StaffCommitment struct {
	SlotID   int64
	StartsAt time.Time
	EndsAt   time.Time
}

// Overlaps reports whether the two commitments share any instant.
func (c StaffCommitment) Overlaps(o StaffCommitment) bool {
	return c.StartsAt.Before(o.EndsAt) && o.StartsAt.Before(c.EndsAt)
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCancelled ReservationStatus = "cancelled"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFlat       DiscountKind = "flat"
)

// ManualDiscount is a reservation-level discount set directly by staff.
type ManualDiscount struct {
	Kind  DiscountKind
	Value decimal.Decimal
}

type Reservation struct {
	ID             int64
	ClientID       int64
	Currency       string
	Status         ReservationStatus
	StoredTotal    decimal.Decimal
	StoredPending  decimal.Decimal
	StoredPaid     bool
	Basket         []byte
	ManualDiscount *ManualDiscount
	InsuranceFee   decimal.Decimal
	Tax            decimal.Decimal
	CareFee        decimal.Decimal
	CreatedAt      time.Time
}

// LineItem is one active Enrollment of a Reservation together with the
// inputs needed to price it. OfferingMissing/CohortMissing flag rows whose
// configuration was deleted after the purchase.
type LineItem struct {
	EnrollmentID     int64
	SlotID           int64
	OfferingID       int64
	CohortID         int64
	PeriodID         *int64
	BasePrice        decimal.Decimal
	PurchaseDays     int
	ParticipantCount int
	PromoCode        string
	PurchaseDate     time.Time
	OfferingMissing  bool
	CohortMissing    bool
}

type OfferingDiscount struct {
	ID         int64
	OfferingID int64
	MinDays    int
	Kind       DiscountKind
	Value      decimal.Decimal
	MaxAmount  *decimal.Decimal
	Priority   int
	ValidFrom  *time.Time
	ValidTo    *time.Time
	Active     bool
}

type PeriodDiscount struct {
	ID              int64
	OfferingID      int64
	PeriodID        int64
	MinDays         int
	MinParticipants *int
	Kind            DiscountKind
	Value           decimal.Decimal
	MaxAmount       *decimal.Decimal
	Priority        int
	ValidFrom       *time.Time
	ValidTo         *time.Time
	Active          bool
}

type PromoCode struct {
	ID               int64
	Code             string
	Kind             DiscountKind
	Value            decimal.Decimal
	MaxAmount        *decimal.Decimal
	MaxUses          *int
	MaxUsesPerClient *int
	ValidFrom        *time.Time
	ValidTo          *time.Time
	Active           bool
	OfferingIDs      []int64
	ClientIDs        []int64
}

// PromoUsage is the count of recorded usages of a code, overall and for one client.
type PromoUsage struct {
	Total     int
	ForClient int
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

type Payment struct {
	ID            int64
	ReservationID int64
	Amount        decimal.Decimal
	Status        PaymentStatus
}

type StoreCreditUsage struct {
	ID            int64
	ReservationID int64
	VoucherID     int64
	Amount        decimal.Decimal
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Attribute selects which slot setting the override chain resolves.
type Attribute string

const (
	AttrCapacity Attribute = "capacity"
	AttrStaff    Attribute = "staff"
)

// Base returns the slot's own value for a.
func (a Attribute) Base(s Slot) (*int64, bool) {
	switch a {
	case AttrCapacity:
		return s.BaseCapacity, true
	case AttrStaff:
		return s.BaseStaffID, true
	default:
		return nil, false
	}
}

// DerivedTotals are the reservation fields owned by reconciliation.
type DerivedTotals struct {
	Total   decimal.Decimal
	Pending decimal.Decimal
	Paid    bool
	Basket  []byte
}
