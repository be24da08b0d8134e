package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/kirinyoku/classbook/internal/service/admin"
	"github.com/kirinyoku/classbook/internal/validation"
)

type RateLimiter interface {
	Allow(ctx context.Context, id string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, payload []byte) error
	GetResult(ctx context.Context, key string) ([]byte, bool, error)
	Release(ctx context.Context, key string) error
}

// Guards are optional request guards backed by Redis. Nil members disable
// the corresponding behavior.
type Guards struct {
	QuoteLimiter RateLimiter
	Idempotency  IdempotencyStore
}

func NewRouter(
	svcs *service.Services,
	guards Guards,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{svcs: svcs, guards: guards}

	slots := r.Group("/slots/:id")
	{
		slots.GET("/availability", h.getAvailability)
		slots.GET("/staff", h.getStaff)
		slots.POST("/invalidate", h.invalidateSlot)
	}

	r.POST("/cart/validate", h.validateCart)

	staff := r.Group("/periods/:pid/slots/:sid/staff")
	{
		staff.PUT("", h.assignStaff)
		staff.DELETE("", h.removeAssignment)
	}

	capacity := r.Group("/periods/:pid")
	{
		capacity.PUT("/capacity/slots", h.setSlotCapacities)
		capacity.PUT("/cohorts/:cid/capacity", h.setCohortCapacity)
		capacity.DELETE("/slots/:sid/capacity", h.clearSlotCapacity)
	}

	r.POST("/quotes", h.quote)

	reservations := r.Group("/reservations/:id")
	{
		reservations.GET("/breakdown", h.getBreakdown)
		reservations.POST("/reconcile", h.reconcile)
		reservations.GET("/audit", h.audit)
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseDateQuery(c *gin.Context, name string) (time.Time, bool) {
	s := c.Query(name)
	if s == "" {
		badRequest(c, "missing "+name)
		return time.Time{}, false
	}

	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		badRequest(c, "invalid "+name+" (YYYY-MM-DD)")
		return time.Time{}, false
	}

	return d, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Details: verrs})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: notFoundMessage(err)})
	case errors.Is(err, domain.ErrConfigurationConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: conflictMessage(err)})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func notFoundMessage(err error) string {
	var nf domain.NotFoundError
	if errors.As(err, &nf) {
		return nf.Entity + " not found"
	}
	return "not found"
}

func conflictMessage(err error) string {
	var sc domain.ScheduleConflictError
	if errors.As(err, &sc) {
		return sc.Error()
	}

	var pm domain.PeriodMismatchError
	if errors.As(err, &pm) {
		return pm.Error()
	}

	var cm admin.CohortMismatchError
	if errors.As(err, &cm) {
		return cm.Error()
	}

	return "configuration conflict"
}
