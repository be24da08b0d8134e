package discount

import (
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
)

type SourceType string

const (
	SourcePeriod   SourceType = "period"
	SourceOffering SourceType = "offering"
	SourcePromo    SourceType = "promo"
	SourceNone     SourceType = "none"
)

// rank orders sources on equal amounts: the more specific source wins.
func (s SourceType) rank() int {
	switch s {
	case SourcePeriod:
		return 0
	case SourceOffering:
		return 1
	case SourcePromo:
		return 2
	default:
		return 3
	}
}

var hundred = decimal.NewFromInt(100)

// RuleSet is every rule that may apply to one line item.
type RuleSet struct {
	Offering []domain.OfferingDiscount
	Period   []domain.PeriodDiscount
	// Promo is nil when no code was supplied or the code does not exist.
	Promo      *domain.PromoCode
	PromoUsage domain.PromoUsage
}

type Candidate struct {
	Source SourceType      `json:"source"`
	RuleID int64           `json:"rule_id"`
	Amount decimal.Decimal `json:"amount"`
}

// PromoCheck reports how a supplied promotional code fared.
type PromoCheck struct {
	Code   string          `json:"code"`
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

type Result struct {
	Source       SourceType      `json:"source"`
	RuleID       int64           `json:"rule_id,omitempty"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Amount       decimal.Decimal `json:"amount"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	Alternatives []Candidate     `json:"alternatives"`
	Promo        *PromoCheck     `json:"promo,omitempty"`
}

// Evaluate picks the single best discount for q among rules. It is pure:
// identical inputs always produce identical results.
func Evaluate(rules RuleSet, q Query, now time.Time) Result {
	base := q.BasePrice
	if base.IsNegative() {
		base = decimal.Zero
	}

	date := now
	if q.PurchaseDate != nil {
		date = *q.PurchaseDate
	}

	candidates := []Candidate{
		bestOffering(rules.Offering, q, base, date),
		bestPeriod(rules.Period, q, base, date),
	}

	var promo *PromoCheck
	if q.PromoCode != "" {
		pc := checkPromo(rules.Promo, rules.PromoUsage, q, base, date)
		promo = &pc

		c := Candidate{Source: SourcePromo, Amount: pc.Amount}
		if rules.Promo != nil {
			c.RuleID = rules.Promo.ID
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].Amount.Cmp(candidates[j].Amount); c != 0 {
			return c > 0
		}
		return candidates[i].Source.rank() < candidates[j].Source.rank()
	})

	res := Result{
		Source:       SourceNone,
		BasePrice:    base,
		Amount:       decimal.Zero,
		FinalPrice:   base,
		Alternatives: []Candidate{},
		Promo:        promo,
	}

	winner := candidates[0]
	if !winner.Amount.IsPositive() {
		return res
	}

	res.Source = winner.Source
	res.RuleID = winner.RuleID
	res.Amount = winner.Amount
	res.FinalPrice = decimal.Max(decimal.Zero, base.Sub(winner.Amount))

	for _, c := range candidates[1:] {
		if c.Amount.IsPositive() {
			res.Alternatives = append(res.Alternatives, c)
		}
	}

	return res
}

// Amount is what a discount of kind/value takes off base: percentage of base
// capped by maxAmount when set, or a flat value capped by base. Results are
// rounded to cents and never exceed base, even when base is below a cent.
func Amount(kind domain.DiscountKind, value decimal.Decimal, maxAmount *decimal.Decimal, base decimal.Decimal) decimal.Decimal {
	if !value.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}

	var amt decimal.Decimal
	switch kind {
	case domain.DiscountPercentage:
		amt = base.Mul(value).Div(hundred)
		if maxAmount != nil && !maxAmount.IsNegative() {
			amt = decimal.Min(amt, *maxAmount)
		}
	case domain.DiscountFlat:
		amt = value
	default:
		return decimal.Zero
	}

	return decimal.Min(decimal.Min(amt, base).Round(2), base)
}

type scored struct {
	id       int64
	priority int
	amount   decimal.Decimal
}

// better breaks ties on amount by priority, then by the older rule.
func (s scored) better(o scored) bool {
	if c := s.amount.Cmp(o.amount); c != 0 {
		return c > 0
	}
	if s.priority != o.priority {
		return s.priority > o.priority
	}
	return s.id < o.id
}

func pickBest(source SourceType, all []scored) Candidate {
	var (
		best  scored
		found bool
	)

	for _, s := range all {
		if !found || s.better(best) {
			best = s
			found = true
		}
	}

	if !found {
		return Candidate{Source: source, Amount: decimal.Zero}
	}

	return Candidate{Source: source, RuleID: best.id, Amount: best.amount}
}

func bestOffering(rules []domain.OfferingDiscount, q Query, base decimal.Decimal, date time.Time) Candidate {
	all := make([]scored, 0, len(rules))

	for _, r := range rules {
		// Offering rules deliberately ignore participant count.
		if !r.Active || r.OfferingID != q.OfferingID {
			continue
		}
		if q.PurchaseDays < r.MinDays || !withinWindow(r.ValidFrom, r.ValidTo, date) {
			continue
		}
		all = append(all, scored{
			id:       r.ID,
			priority: r.Priority,
			amount:   Amount(r.Kind, r.Value, r.MaxAmount, base),
		})
	}

	return pickBest(SourceOffering, all)
}

func bestPeriod(rules []domain.PeriodDiscount, q Query, base decimal.Decimal, date time.Time) Candidate {
	if q.PeriodID == nil {
		return Candidate{Source: SourcePeriod, Amount: decimal.Zero}
	}

	participants := q.ParticipantCount
	if participants < 1 {
		participants = 1
	}

	all := make([]scored, 0, len(rules))

	for _, r := range rules {
		if !r.Active || r.OfferingID != q.OfferingID || r.PeriodID != *q.PeriodID {
			continue
		}
		if q.PurchaseDays < r.MinDays || !withinWindow(r.ValidFrom, r.ValidTo, date) {
			continue
		}
		if r.MinParticipants != nil && participants < *r.MinParticipants {
			continue
		}
		all = append(all, scored{
			id:       r.ID,
			priority: r.Priority,
			amount:   Amount(r.Kind, r.Value, r.MaxAmount, base),
		})
	}

	return pickBest(SourcePeriod, all)
}

func checkPromo(
	p *domain.PromoCode,
	usage domain.PromoUsage,
	q Query,
	base decimal.Decimal,
	date time.Time,
) PromoCheck {
	out := PromoCheck{Code: q.PromoCode, Amount: decimal.Zero}

	reject := func(reason string) PromoCheck {
		out.Reason = reason
		return out
	}

	switch {
	case p == nil:
		return reject(ReasonUnknownCode)
	case !p.Active:
		return reject(ReasonInactive)
	case p.ValidFrom != nil && domain.DateOnly(date).Before(domain.DateOnly(*p.ValidFrom)):
		return reject(ReasonNotStarted)
	case p.ValidTo != nil && domain.DateOnly(date).After(domain.DateOnly(*p.ValidTo)):
		return reject(ReasonExpired)
	case p.MaxUses != nil && usage.Total >= *p.MaxUses:
		return reject(ReasonUsageExhausted)
	case p.MaxUsesPerClient != nil && usage.ForClient >= *p.MaxUsesPerClient:
		return reject(ReasonClientUsageExhausted)
	case len(p.OfferingIDs) > 0 && !slices.Contains(p.OfferingIDs, q.OfferingID):
		return reject(ReasonOfferingNotEligible)
	case len(p.ClientIDs) > 0 && !slices.Contains(p.ClientIDs, q.ClientID):
		return reject(ReasonClientNotEligible)
	}

	out.Code = p.Code
	out.Valid = true
	out.Amount = Amount(p.Kind, p.Value, p.MaxAmount, base)

	return out
}

func withinWindow(from, to *time.Time, date time.Time) bool {
	d := domain.DateOnly(date)
	if from != nil && d.Before(domain.DateOnly(*from)) {
		return false
	}
	if to != nil && d.After(domain.DateOnly(*to)) {
		return false
	}
	return true
}
