package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/service/discount"
)

const (
	ReasonOfferingMissing = "offering missing"
	ReasonCohortMissing   = "cohort missing"
	ReasonInvalidItem     = "invalid line item"
)

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

// PricedItem is a line item with its per-item discount already resolved.
type PricedItem struct {
	Item     domain.LineItem
	Discount discount.Result
}

type Input struct {
	Reservation domain.Reservation
	Items       []PricedItem
	Excluded    []domain.ExcludedItem
	// Received is what paid payments and store credit already cover.
	Received decimal.Decimal
}

type groupKey struct {
	offeringID int64
	cohortID   int64
}

// Compute derives the canonical breakdown of a reservation. It is a pure
// function of its input: repeated calls encode to identical bytes.
func Compute(in Input, tolerance decimal.Decimal) domain.PriceBreakdown {
	res := in.Reservation

	out := domain.PriceBreakdown{
		Version:       domain.BreakdownVersion,
		ReservationID: res.ID,
		Currency:      res.Currency,
		Groups:        buildGroups(in.Items),
		InsuranceFee:  res.InsuranceFee,
		Tax:           res.Tax,
		CareFee:       res.CareFee,
		Excluded:      sortedExcluded(in.Excluded),
	}

	subtotal := decimal.Zero
	for _, g := range out.Groups {
		subtotal = subtotal.Add(g.Subtotal)
	}
	out.Subtotal = subtotal

	out.ManualDiscount = manualAmount(res.ManualDiscount, subtotal)
	allocate(out.Groups, out.ManualDiscount)

	total := subtotal.
		Sub(out.ManualDiscount).
		Add(res.InsuranceFee).
		Add(res.Tax).
		Add(res.CareFee)
	out.Total = decimal.Max(decimal.Zero, total).Round(2)

	snap, hasSnap := domain.DecodeBreakdown(res.Basket)
	if hasSnap {
		out.SnapshotStale = snap.Total.Sub(out.Total).Abs().GreaterThan(tolerance)
	}

	// A reservation that prices to nothing while its stored total is not
	// covered by what was received is a free booking: the stored amount is
	// written off as manual discount. The cached pending column is not
	// consulted. The write-off is carried forward from the snapshot once recorded.
	if out.Total.LessThanOrEqual(tolerance) {
		switch {
		case res.StoredTotal.GreaterThan(tolerance) && res.StoredTotal.Sub(in.Received).GreaterThan(tolerance):
			out.FreeBooking = true
			out.ManualDiscount = res.StoredTotal
			out.Total = decimal.Zero
		case hasSnap && snap.FreeBooking:
			out.FreeBooking = true
			out.ManualDiscount = snap.ManualDiscount
			out.Total = decimal.Zero
		}
	}

	return out
}

// Balance sums paid payments and store credit and derives the outstanding
// amount. Reconciliation is paid when what is left is within tolerance.
func Balance(
	total decimal.Decimal,
	payments []domain.Payment,
	credits []domain.StoreCreditUsage,
	tolerance decimal.Decimal,
) (received, pending decimal.Decimal, paid bool) {
	received = Received(payments, credits)
	pending, paid = Settle(total, received, tolerance)

	return received, pending, paid
}

// Received sums payments with status paid and every store-credit usage.
func Received(payments []domain.Payment, credits []domain.StoreCreditUsage) decimal.Decimal {
	received := decimal.Zero

	for _, p := range payments {
		if p.Status == domain.PaymentPaid {
			received = received.Add(p.Amount)
		}
	}

	for _, c := range credits {
		received = received.Add(c.Amount)
	}

	return received
}

// Settle returns max(0, total - received) and whether that is within tolerance.
func Settle(total, received, tolerance decimal.Decimal) (pending decimal.Decimal, paid bool) {
	pending = decimal.Max(decimal.Zero, total.Sub(received))
	return pending, pending.LessThanOrEqual(tolerance)
}

func buildGroups(items []PricedItem) []domain.GroupBreakdown {
	byKey := make(map[groupKey][]PricedItem)
	for _, it := range items {
		k := groupKey{offeringID: it.Item.OfferingID, cohortID: it.Item.CohortID}
		byKey[k] = append(byKey[k], it)
	}

	keys := make([]groupKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].offeringID != keys[j].offeringID {
			return keys[i].offeringID < keys[j].offeringID
		}
		return keys[i].cohortID < keys[j].cohortID
	})

	groups := make([]domain.GroupBreakdown, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		sort.Slice(members, func(i, j int) bool {
			return members[i].Item.EnrollmentID < members[j].Item.EnrollmentID
		})

		g := domain.GroupBreakdown{
			OfferingID: k.offeringID,
			CohortID:   k.cohortID,
			Items:      make([]domain.ItemBreakdown, 0, len(members)),
			Subtotal:   decimal.Zero,
		}

		for _, m := range members {
			ib := domain.ItemBreakdown{
				EnrollmentID:   m.Item.EnrollmentID,
				BasePrice:      m.Discount.BasePrice,
				Discount:       m.Discount.Amount,
				DiscountSource: string(m.Discount.Source),
				DiscountRuleID: m.Discount.RuleID,
				FinalPrice:     m.Discount.FinalPrice,
			}
			g.Items = append(g.Items, ib)
			g.Subtotal = g.Subtotal.Add(ib.FinalPrice)
		}

		g.Total = g.Subtotal
		groups = append(groups, g)
	}

	return groups
}

// manualAmount turns a reservation-level discount into money, never more
// than the subtotal it applies to.
func manualAmount(md *domain.ManualDiscount, subtotal decimal.Decimal) decimal.Decimal {
	if md == nil || !md.Value.IsPositive() || !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amt decimal.Decimal
	switch md.Kind {
	case domain.DiscountPercentage:
		amt = subtotal.Mul(md.Value).Div(hundred)
	case domain.DiscountFlat:
		amt = md.Value
	default:
		return decimal.Zero
	}

	return decimal.Min(amt, subtotal).Round(2)
}

// allocate splits manual across groups weighted by subtotal using the
// largest-remainder method in cents. Every share lies between zero and its
// group's subtotal and the shares sum to manual exactly. Ties go to the
// later group.
func allocate(groups []domain.GroupBreakdown, manual decimal.Decimal) {
	for i := range groups {
		groups[i].ManualDiscount = decimal.Zero
	}

	if !manual.IsPositive() {
		return
	}

	subtotal := decimal.Zero
	var idx []int
	for i, g := range groups {
		if g.Subtotal.IsPositive() {
			subtotal = subtotal.Add(g.Subtotal)
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}

	manual = decimal.Min(manual, subtotal)
	remainders := make(map[int]decimal.Decimal, len(idx))
	leftover := manual

	for _, i := range idx {
		raw := manual.Mul(groups[i].Subtotal).Div(subtotal)
		share := raw.RoundFloor(2)
		groups[i].ManualDiscount = share
		remainders[i] = raw.Sub(share)
		leftover = leftover.Sub(share)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := remainders[idx[a]], remainders[idx[b]]
		if !ra.Equal(rb) {
			return ra.GreaterThan(rb)
		}
		return idx[a] > idx[b]
	})

	for leftover.GreaterThanOrEqual(cent) {
		gave := false
		for _, i := range idx {
			if leftover.LessThan(cent) {
				break
			}
			g := &groups[i]
			if g.ManualDiscount.Add(cent).GreaterThan(g.Subtotal) {
				continue
			}
			g.ManualDiscount = g.ManualDiscount.Add(cent)
			leftover = leftover.Sub(cent)
			gave = true
		}
		if !gave {
			break
		}
	}

	for _, i := range idx {
		groups[i].Total = groups[i].Subtotal.Sub(groups[i].ManualDiscount)
	}
}

func sortedExcluded(ex []domain.ExcludedItem) []domain.ExcludedItem {
	if len(ex) == 0 {
		return nil
	}

	out := make([]domain.ExcludedItem, len(ex))
	copy(out, ex)
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentID < out[j].EnrollmentID })

	return out
}
