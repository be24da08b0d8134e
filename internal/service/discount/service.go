package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/clock"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/validation"
)

// Query describes one line item to discount.
type Query struct {
	OfferingID       int64           `json:"offering_id" validate:"required,gt=0"`
	PeriodID         *int64          `json:"period_id,omitempty" validate:"omitempty,gt=0"`
	ClientID         int64           `json:"client_id" validate:"gte=0"`
	PurchaseDays     int             `json:"purchase_days" validate:"gte=0,lte=366"`
	BasePrice        decimal.Decimal `json:"base_price" validate:"gte=0"`
	PromoCode        string          `json:"promo_code,omitempty" validate:"max=64"`
	ParticipantCount int             `json:"participant_count" validate:"gte=0,lte=1000"`
	// PurchaseDate defaults to now.
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	// ExcludeReservationID keeps a reservation's own promo usage out of the
	// cap check when its price is recomputed.
	ExcludeReservationID int64 `json:"-"`
}

type Repository interface {
	GetOffering(ctx context.Context, offeringID int64) (*domain.Offering, error)
	OfferingDiscounts(ctx context.Context, offeringID int64) ([]domain.OfferingDiscount, error)
	PeriodDiscounts(ctx context.Context, offeringID, periodID int64) ([]domain.PeriodDiscount, error)
	PromoByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	PromoUsage(ctx context.Context, promoID, clientID, excludeReservationID int64) (domain.PromoUsage, error)
}

type Service struct {
	repo     Repository
	clock    clock.Clock
	validate *validation.Validator
	logger   *slog.Logger
}

func New(repo Repository, clk clock.Clock, v *validation.Validator, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}

	if v == nil {
		v = validation.New()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     repo,
		clock:    clk,
		validate: v,
		logger:   logger,
	}
}

// BestDiscount selects the largest of the offering, period and promotional
// discounts applicable to q. Sources never stack.
//
// Parameters:
//   - ctx: request-scoped context.
//   - q: the line item to price.
//
// Returns:
//   - Result: winner, final price and the losing candidates with a positive amount.
//     An unusable promotional code is reported in Result.Promo, not as an error.
//   - error: domain.ErrInvalidInput for a malformed query.
//   - error: domain.NotFoundError if the offering does not exist.
func (s *Service) BestDiscount(ctx context.Context, q Query) (Result, error) {
	const op = "service.discount.BestDiscount"

	q.PromoCode = strings.TrimSpace(q.PromoCode)

	if err := s.validate.Struct(q); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if q.PurchaseDate == nil {
		now := s.clock.Now()
		q.PurchaseDate = &now
	}

	rules, err := s.loadRules(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	res := Evaluate(rules, q, *q.PurchaseDate)

	if res.Promo != nil && !res.Promo.Valid {
		s.logger.Debug("promo code rejected",
			"code", q.PromoCode,
			"reason", res.Promo.Reason,
			"offering_id", q.OfferingID,
		)
	}

	return res, nil
}

// QuoteItems prices every item independently; there is no sharing of
// discounts across items.
func (s *Service) QuoteItems(ctx context.Context, qs []Query) ([]Result, error) {
	const op = "service.discount.QuoteItems"

	out := make([]Result, 0, len(qs))

	for i, q := range qs {
		r, err := s.BestDiscount(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%s: item %d: %w", op, i, err)
		}
		out = append(out, r)
	}

	return out, nil
}

func (s *Service) loadRules(ctx context.Context, q Query) (RuleSet, error) {
	if _, err := s.repo.GetOffering(ctx, q.OfferingID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RuleSet{}, domain.NotFoundError{Entity: "offering", ID: q.OfferingID}
		}
		return RuleSet{}, err
	}

	var (
		rules RuleSet
		err   error
	)

	rules.Offering, err = s.repo.OfferingDiscounts(ctx, q.OfferingID)
	if err != nil {
		return RuleSet{}, err
	}

	if q.PeriodID != nil {
		rules.Period, err = s.repo.PeriodDiscounts(ctx, q.OfferingID, *q.PeriodID)
		if err != nil {
			return RuleSet{}, err
		}
	}

	if q.PromoCode == "" {
		return rules, nil
	}

	promo, err := s.repo.PromoByCode(ctx, q.PromoCode)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return rules, nil
	case err != nil:
		return RuleSet{}, err
	}

	rules.Promo = promo

	rules.PromoUsage, err = s.repo.PromoUsage(ctx, promo.ID, q.ClientID, q.ExcludeReservationID)
	if err != nil {
		return RuleSet{}, err
	}

	return rules, nil
}
