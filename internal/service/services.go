package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/classbook/internal/cache"
	"github.com/kirinyoku/classbook/internal/clock"
	redisx "github.com/kirinyoku/classbook/internal/redis"
	postgres "github.com/kirinyoku/classbook/internal/repository/postgres"
	"github.com/kirinyoku/classbook/internal/service/admin"
	"github.com/kirinyoku/classbook/internal/service/capacity"
	"github.com/kirinyoku/classbook/internal/service/discount"
	"github.com/kirinyoku/classbook/internal/service/override"
	"github.com/kirinyoku/classbook/internal/service/pricing"
	"github.com/kirinyoku/classbook/internal/service/staffing"
	"github.com/kirinyoku/classbook/internal/uow"
	"github.com/kirinyoku/classbook/internal/validation"
)

// Publisher broadcasts slot changes to other instances. It may be nil when
// the process runs alone.
type Publisher interface {
	Publish(ctx context.Context, ev redisx.SlotChanged) error
}

type Services struct {
	Capacity *capacity.Tracker
	Staffing *staffing.Service
	Discount *discount.Service
	Pricing  *pricing.Engine
	Admin    *admin.Service
	Bus      Publisher
	Logger   *slog.Logger
}

type Config struct {
	Capacity capacity.Config
	Staffing staffing.Config
	Pricing  pricing.Config
}

func NewServices(
	store *postgres.Store,
	c *cache.Cache,
	bus Publisher,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Services {
	if logger == nil {
		logger = slog.Default()
	}

	v := validation.New()

	resolver := override.New(store.Catalog(), logger.With("component", "override"))

	discounts := discount.New(store.Discounts(), clk, v, logger.With("component", "discount"))

	staffUoW := uow.New(store, nil, func(tx postgres.DB) staffing.Repository {
		return store.BindScheduling(tx)
	})

	pricingUoW := uow.New(store, &pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx postgres.DB) pricing.Repository {
		return store.BindReservations(tx)
	})

	adminUoW := uow.New(store, nil, func(tx postgres.DB) admin.Repository {
		return store.BindAuthoring(tx)
	})

	s := &Services{
		Capacity: capacity.New(resolver, store.Enrollments(), c, v, logger.With("component", "capacity"), cfg.Capacity),
		Staffing: staffing.New(store.Scheduling(), staffUoW, c, v, logger.With("component", "staffing"), cfg.Staffing),
		Discount: discounts,
		Pricing:  pricing.New(store.Reservations(), pricingUoW, discounts, logger.With("component", "pricing"), cfg.Pricing),
		Bus:      bus,
		Logger:   logger,
	}

	s.Admin = admin.New(adminUoW, s, v, logger.With("component", "admin"))

	return s
}

// InvalidateSlot drops cached capacity and staff of slotID for every day in
// [from, to] and tells the other instances to do the same.
func (s *Services) InvalidateSlot(ctx context.Context, slotID int64, from, to time.Time, reason string) error {
	const op = "service.Services.InvalidateSlot"

	if err := s.dropLocal(ctx, slotID, from, to); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.Bus == nil {
		return nil
	}

	err := s.Bus.Publish(ctx, redisx.SlotChanged{SlotID: slotID, From: from, To: to, Reason: reason})
	if err != nil {
		return fmt.Errorf("%s: publish: %w", op, err)
	}

	return nil
}

// HandleSlotChanged applies a change notice received from another instance.
func (s *Services) HandleSlotChanged(ctx context.Context, ev redisx.SlotChanged) {
	if err := s.dropLocal(ctx, ev.SlotID, ev.From, ev.To); err != nil {
		s.Logger.Warn("invalidation failed",
			"slot_id", ev.SlotID,
			"reason", ev.Reason,
			"error", err,
		)
		return
	}

	s.Logger.Debug("slot invalidated", "slot_id", ev.SlotID, "reason", ev.Reason)
}

func (s *Services) dropLocal(ctx context.Context, slotID int64, from, to time.Time) error {
	slots := []int64{slotID}

	if err := s.Capacity.InvalidateRange(ctx, slots, from, to); err != nil {
		return err
	}

	return s.Staffing.InvalidateRange(ctx, slots, from, to)
}
