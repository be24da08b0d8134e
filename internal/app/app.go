package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/classbook/internal/cache"
	"github.com/kirinyoku/classbook/internal/clock"
	"github.com/kirinyoku/classbook/internal/config"
	"github.com/kirinyoku/classbook/internal/postgres"
	redisx "github.com/kirinyoku/classbook/internal/redis"
	postgresrepo "github.com/kirinyoku/classbook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/classbook/internal/repository/redis"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/kirinyoku/classbook/internal/service/capacity"
	"github.com/kirinyoku/classbook/internal/service/pricing"
	"github.com/kirinyoku/classbook/internal/service/staffing"
	httpgin "github.com/kirinyoku/classbook/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	bus        *redisx.InvalidationBus
	services   *service.Services
	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := postgres.New(ctx, postgres.Config{
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Name:     cfg.Postgres.Name,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if cfg.Engine.MigrateOnStart {
		if err := migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	clk := clock.System{}

	var (
		rdb    *goredis.Client
		bus    *redisx.InvalidationBus
		store  cache.Store
		guards httpgin.Guards
	)

	if cfg.Redis.Enabled {
		rdb, err = redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		bus = redisx.NewInvalidationBus(rdb, clk, logger.With("component", "invalidation"))
		store = redisrepo.NewStore(rdb)
		guards = httpgin.Guards{
			QuoteLimiter: redisrepo.NewSlidingWindowLimiter(rdb, "quotes", cfg.RateLimit.QuoteLimit, cfg.RateLimit.QuoteWindow, clk),
			Idempotency:  redisrepo.NewIdempotencyStore(rdb, cfg.Idempotency.TTL),
		}
	} else {
		logger.Warn("redis disabled, using in-process cache without cross-instance invalidation")
		store = cache.NewMemory(clk)
	}

	// A nil *InvalidationBus must not reach the Publisher interface.
	var publisher service.Publisher
	if bus != nil {
		publisher = bus
	}

	services := service.NewServices(
		postgresrepo.NewStore(pool),
		cache.New(store),
		publisher,
		clk,
		logger,
		service.Config{
			Capacity: capacity.Config{CapacityTTL: cfg.Engine.CapacityTTL, Unlimited: cfg.Engine.UnlimitedCapacity},
			Staffing: staffing.Config{StaffTTL: cfg.Engine.StaffTTL},
			Pricing:  pricing.Config{Tolerance: cfg.Engine.Tolerance},
		},
	)

	router := httpgin.NewRouter(services, guards, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		rdb:      rdb,
		bus:      bus,
		services: services,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	m, err := postgres.NewMigrator(pool, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.bus != nil {
		g.Go(func() error {
			a.logger.Info("listening for slot invalidations", "channel", redisx.ChannelSlotsChanged())
			err := a.bus.Subscribe(gCtx, a.services.HandleSlotChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("invalidation subscriber stopped: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	a.pool.Close()
}
