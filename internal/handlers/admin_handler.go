package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/middleware"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
	"github.com/smarttransit/rail-reservation/internal/utils"
)

// JobStatusProvider reports scheduled job state
type JobStatusProvider interface {
	GetJobStatus() map[string]interface{}
}

// AdminHandler handles staff operations on the catalog, discounts,
// cancellation policies and bookings
type AdminHandler struct {
	catalog    *services.ScheduleCatalogService
	discounts  *services.DiscountService
	policies   *services.CancellationPolicyService
	bookings   *services.BookingService
	expiration *services.BookingExpirationService
	audits     *services.AuditService
	jobs       JobStatusProvider
	logger     *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler. jobs may be nil when the
// scheduler is not running.
func NewAdminHandler(
	catalog *services.ScheduleCatalogService,
	discounts *services.DiscountService,
	policies *services.CancellationPolicyService,
	bookings *services.BookingService,
	expiration *services.BookingExpirationService,
	audits *services.AuditService,
	jobs JobStatusProvider,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		catalog:    catalog,
		discounts:  discounts,
		policies:   policies,
		bookings:   bookings,
		expiration: expiration,
		audits:     audits,
		jobs:       jobs,
		logger:     logger,
	}
}

// ============================================================================
// SCHEDULES
// ============================================================================

// PublishSchedule handles POST /api/v1/admin/schedules
func (h *AdminHandler) PublishSchedule(c *gin.Context) {
	var schedule models.Schedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.catalog.Publish(c.Request.Context(), &schedule); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditSchedulePublished, "schedule", schedule.ID.String(), models.JSONMap{"route": schedule.Route.Name})
	c.JSON(http.StatusCreated, schedule)
}

// UpdateScheduleStatus handles PATCH /api/v1/admin/schedules/:id/status
func (h *AdminHandler) UpdateScheduleStatus(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateScheduleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	schedule, err := h.catalog.UpdateStatus(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditScheduleStatusUpdated, "schedule", id.String(), models.JSONMap{"status": req.Status})
	c.JSON(http.StatusOK, schedule)
}

// ============================================================================
// DISCOUNTS
// ============================================================================

// ListDiscounts handles GET /api/v1/admin/discounts
func (h *AdminHandler) ListDiscounts(c *gin.Context) {
	discounts, err := h.discounts.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discounts": discounts})
}

// CreateDiscount handles POST /api/v1/admin/discounts
func (h *AdminHandler) CreateDiscount(c *gin.Context) {
	var discount models.Discount
	if err := c.ShouldBindJSON(&discount); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.discounts.Create(c.Request.Context(), &discount); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditDiscountCreated, "discount", discount.Code, nil)
	c.JSON(http.StatusCreated, discount)
}

// DeactivateDiscount handles DELETE /api/v1/admin/discounts/:code
func (h *AdminHandler) DeactivateDiscount(c *gin.Context) {
	code := c.Param("code")
	if err := h.discounts.Deactivate(c.Request.Context(), code); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditDiscountDeactivated, "discount", code, nil)
	c.Status(http.StatusNoContent)
}

// ============================================================================
// CANCELLATION POLICIES
// ============================================================================

// ListPolicies handles GET /api/v1/admin/cancellation-policies
func (h *AdminHandler) ListPolicies(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// CreatePolicy handles POST /api/v1/admin/cancellation-policies
func (h *AdminHandler) CreatePolicy(c *gin.Context) {
	var policy models.CancellationPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.policies.Create(c.Request.Context(), &policy); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditPolicyCreated, "cancellation_policy", policy.ID.String(), nil)
	c.JSON(http.StatusCreated, policy)
}

// ActivatePolicy handles POST /api/v1/admin/cancellation-policies/:id/activate
func (h *AdminHandler) ActivatePolicy(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	policy, err := h.policies.Activate(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditPolicyActivated, "cancellation_policy", id.String(), nil)
	c.JSON(http.StatusOK, policy)
}

// ============================================================================
// BOOKINGS / JOBS
// ============================================================================

// CancelBooking handles POST /api/v1/admin/bookings/:id/cancel
func (h *AdminHandler) CancelBooking(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), &models.CancelBookingRequest{
		BookingID: id,
		ByStaff:   true,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditBookingStaffCancelled, "booking", id.String(), models.JSONMap{"refund": booking.RefundAmount})
	c.JSON(http.StatusOK, booking)
}

// RunExpiry handles POST /api/v1/admin/jobs/expire-bookings
func (h *AdminHandler) RunExpiry(c *gin.Context) {
	expired, err := h.expiration.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.audit(c, models.AuditExpirySweepTriggered, "job", "expire-bookings", models.JSONMap{"expired": expired})
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

// JobStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// AuditLog handles GET /api/v1/admin/audit-logs
func (h *AdminHandler) AuditLog(c *gin.Context) {
	filter := models.AuditFilter{Action: c.Query("action")}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "Invalid user_id", err)
			return
		}
		filter.UserID = &userID
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	events, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// audit records who changed what
func (h *AdminHandler) audit(c *gin.Context, action, entityType, entityID string, details models.JSONMap) {
	event := models.AuditEvent{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  utils.ClientIP(c),
		UserAgent:  utils.UserAgent(c),
		Details:    details,
	}
	if userCtx, ok := middleware.GetUserContext(c); ok {
		event.UserID = &userCtx.UserID
	}
	h.audits.Record(c.Request.Context(), event)
}
