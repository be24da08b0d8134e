package httpgin

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	redisx "github.com/kirinyoku/classbook/internal/redis"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/kirinyoku/classbook/internal/service/admin"
	"github.com/kirinyoku/classbook/internal/service/staffing"
)

const idemLockTTL = 60 * time.Second

type handlers struct {
	svcs   *service.Services
	guards Guards
}

// @Summary  Slot availability for a day
// @Param    id      path   int     true   "Slot ID"
// @Param    date    query  string  true   "Day (YYYY-MM-DD)"
// @Param    needed  query  int     false  "Places needed (default 1)"
// @Success  200  {object}  AvailabilityResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /slots/{id}/availability [get]
func (h *handlers) getAvailability(c *gin.Context) {
	slotID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	date, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}
	needed := parseIntDefault(c.Query("needed"), 1)
	if needed < 1 {
		needed = 1
	}

	ctx := c.Request.Context()

	a, err := h.svcs.Capacity.Availability(ctx, slotID, date)
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, AvailabilityResponse{
		SlotID:          slotID,
		Date:            date.Format(time.DateOnly),
		Available:       a.Available,
		Unlimited:       a.Unlimited,
		Needed:          needed,
		HasAvailability: a.Has(needed),
		Capacity:        a.Capacity.Value,
		Source:          string(a.Capacity.Source),
		PeriodID:        a.Capacity.PeriodID,
	}, "no-cache", true)
}

// @Summary  Validate a multi-item cart against capacity
// @Param    req  body  ValidateCartRequest  true  "cart"
// @Success  200  {object}  capacity.CartResult
// @Failure  400  {object}  ErrorResponse
// @Router   /cart/validate [post]
func (h *handlers) validateCart(c *gin.Context) {
	var req ValidateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	items, err := req.toItems()
	if err != nil {
		badRequest(c, "invalid date (YYYY-MM-DD)")
		return
	}

	res, err := h.svcs.Capacity.ValidateCart(c.Request.Context(), items)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// @Summary  Effective staff of a slot for a day
// @Param    id    path   int     true  "Slot ID"
// @Param    date  query  string  true  "Day (YYYY-MM-DD)"
// @Success  200  {object}  staffing.Assignment
// @Failure  404  {object}  ErrorResponse
// @Router   /slots/{id}/staff [get]
func (h *handlers) getStaff(c *gin.Context) {
	slotID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	date, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}

	a, err := h.svcs.Staffing.DetailedAssignment(c.Request.Context(), slotID, date)
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, a, "public, max-age=60", true)
}

// @Summary  Assign staff to a slot for an override period (idempotent)
// @Param    pid  path  int                 true  "Period ID"
// @Param    sid  path  int                 true  "Slot ID"
// @Param    req  body  AssignStaffRequest  true  "payload"
// @Header   200 {string} Idempotency-Key "echo"
// @Success  200  {object}  StaffAssignmentResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "schedule conflict / period mismatch / idem in progress"
// @Router   /periods/{pid}/slots/{sid}/staff [put]
func (h *handlers) assignStaff(c *gin.Context) {
	periodID, ok := parseInt64Param(c, "pid")
	if !ok {
		return
	}
	slotID, ok := parseInt64Param(c, "sid")
	if !ok {
		return
	}

	var req AssignStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	idem := h.guards.Idempotency

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var storageKey string
	if idem != nil && idemKey != "" {
		storageKey = redisx.KeyIdempotency("staff", fmt.Sprintf("%d:%d:%s", periodID, slotID, idemKey))

		if payload, found, _ := idem.GetResult(ctx, storageKey); found {
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
			return
		}

		locked, err := idem.AcquireLock(ctx, storageKey, idemLockTTL)
		if err != nil {
			respondErr(c, err)
			return
		}
		if !locked {
			if payload, found, _ := idem.GetResult(ctx, storageKey); found {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
				return
			}
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
			return
		}
	}

	o, err := h.svcs.Staffing.AssignStaff(ctx, staffing.AssignRequest{
		PeriodID: periodID,
		SlotID:   slotID,
		StaffID:  req.StaffID,
		Notes:    req.Notes,
	})
	if err != nil {
		if storageKey != "" {
			_ = idem.Release(ctx, storageKey)
		}
		respondErr(c, err)
		return
	}

	resp := toStaffAssignment(o)

	if storageKey != "" {
		if b, err := json.Marshal(resp); err == nil {
			_ = idem.SaveResult(ctx, storageKey, b)
		}
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary  Remove a staff assignment; the slot falls back to its base staff
// @Param    pid  path  int  true  "Period ID"
// @Param    sid  path  int  true  "Slot ID"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Router   /periods/{pid}/slots/{sid}/staff [delete]
func (h *handlers) removeAssignment(c *gin.Context) {
	periodID, ok := parseInt64Param(c, "pid")
	if !ok {
		return
	}
	slotID, ok := parseInt64Param(c, "sid")
	if !ok {
		return
	}

	if err := h.svcs.Staffing.RemoveAssignment(c.Request.Context(), periodID, slotID); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Set slot capacity overrides of a period in one batch
// @Param    pid  path  int                    true  "Period ID"
// @Param    req  body  SlotCapacitiesRequest  true  "per-slot capacities"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /periods/{pid}/capacity/slots [put]
func (h *handlers) setSlotCapacities(c *gin.Context) {
	periodID, ok := parseInt64Param(c, "pid")
	if !ok {
		return
	}

	var req SlotCapacitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := h.svcs.Admin.SetSlotCapacities(c.Request.Context(), admin.SlotCapacityRequest{
		PeriodID: periodID,
		Items:    req.Items,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Set the cohort capacity override of a period
// @Param    pid  path  int                    true  "Period ID"
// @Param    cid  path  int                    true  "Cohort ID"
// @Param    req  body  CohortCapacityRequest  true  "capacity, null to clear"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /periods/{pid}/cohorts/{cid}/capacity [put]
func (h *handlers) setCohortCapacity(c *gin.Context) {
	periodID, ok := parseInt64Param(c, "pid")
	if !ok {
		return
	}
	cohortID, ok := parseInt64Param(c, "cid")
	if !ok {
		return
	}

	var req CohortCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := h.svcs.Admin.SetCohortCapacity(c.Request.Context(), admin.CohortCapacityRequest{
		PeriodID: periodID,
		CohortID: cohortID,
		Capacity: req.Capacity,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Remove a slot capacity override
// @Param    pid  path  int  true  "Period ID"
// @Param    sid  path  int  true  "Slot ID"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Router   /periods/{pid}/slots/{sid}/capacity [delete]
func (h *handlers) clearSlotCapacity(c *gin.Context) {
	periodID, ok := parseInt64Param(c, "pid")
	if !ok {
		return
	}
	slotID, ok := parseInt64Param(c, "sid")
	if !ok {
		return
	}

	if err := h.svcs.Admin.ClearSlotCapacity(c.Request.Context(), periodID, slotID); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Best discount per line item
// @Param    req  body  QuoteRequest  true  "line items"
// @Success  200  {object}  QuoteResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  429  {object}  ErrorResponse "rate limited (promo code lookups)"
// @Router   /quotes [post]
func (h *handlers) quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	// Only promo lookups are throttled; they are the guessable surface.
	if l := h.guards.QuoteLimiter; l != nil && req.hasPromo() {
		allowed, _, retryAfter, err := l.Allow(ctx, "ip:"+c.ClientIP())
		if err != nil {
			respondErr(c, err)
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
			return
		}
	}

	res, err := h.svcs.Discount.QuoteItems(ctx, req.Items)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, QuoteResponse{Items: res})
}

// @Summary  Canonical price breakdown of a reservation
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  domain.PriceBreakdown
// @Failure  404  {object}  ErrorResponse
// @Router   /reservations/{id}/breakdown [get]
func (h *handlers) getBreakdown(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	b, err := h.svcs.Pricing.CanonicalTotal(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, b, "no-cache", true)
}

// @Summary  Recompute and persist reservation totals
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  pricing.Reconciliation
// @Failure  404  {object}  ErrorResponse
// @Router   /reservations/{id}/reconcile [post]
func (h *handlers) reconcile(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	rec, err := h.svcs.Pricing.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// @Summary  Drift between stored and canonical totals (read-only)
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  pricing.AuditReport
// @Failure  404  {object}  ErrorResponse
// @Router   /reservations/{id}/audit [get]
func (h *handlers) audit(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	rep, err := h.svcs.Pricing.Audit(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, rep)
}

// @Summary  Drop cached capacity and staff of a slot for a date range
// @Param    id   path  int                true  "Slot ID"
// @Param    req  body  InvalidateRequest  true  "range"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Router   /slots/{id}/invalidate [post]
func (h *handlers) invalidateSlot(c *gin.Context) {
	slotID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	from, errFrom := time.Parse(time.DateOnly, req.From)
	to, errTo := time.Parse(time.DateOnly, req.To)
	if errFrom != nil || errTo != nil || to.Before(from) {
		badRequest(c, "invalid range (YYYY-MM-DD, from <= to)")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	if err := h.svcs.InvalidateSlot(c.Request.Context(), slotID, from, to, reason); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
