package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
)

// ScheduleHandler serves the public catalog and seat availability
type ScheduleHandler struct {
	catalog   *services.ScheduleCatalogService
	seats     *services.SeatReservationService
	discounts *services.DiscountService
	logger    *logrus.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(
	catalog *services.ScheduleCatalogService,
	seats *services.SeatReservationService,
	discounts *services.DiscountService,
	logger *logrus.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		catalog:   catalog,
		seats:     seats,
		discounts: discounts,
		logger:    logger,
	}
}

// ListSchedules handles GET /api/v1/schedules?source=&destination=&date=YYYY-MM-DD
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	filter := models.ScheduleFilter{
		Source:      c.Query("source"),
		Destination: c.Query("destination"),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			badRequest(c, "Invalid date, expected YYYY-MM-DD", nil)
			return
		}
		filter.Date = &date
	}

	schedules, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// GetSchedule handles GET /api/v1/schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// GetSeats handles GET /api/v1/schedules/:id/seats
func (h *ScheduleHandler) GetSeats(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	classes, err := h.seats.AvailableSeats(c.Request.Context(), schedule)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	free := 0
	for _, class := range classes {
		free += len(class.Free)
	}

	c.JSON(http.StatusOK, gin.H{
		"schedule_id": schedule.ID,
		"capacity":    schedule.Capacity,
		"available":   free,
		"classes":     classes,
	})
}

// QuoteDiscount handles GET /api/v1/discounts/:code/quote?schedule_id=&amount=
func (h *ScheduleHandler) QuoteDiscount(c *gin.Context) {
	scheduleID, err := uuid.Parse(c.Query("schedule_id"))
	if err != nil {
		badRequest(c, "Invalid schedule_id", err)
		return
	}
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || amount < 0 {
		badRequest(c, "Invalid amount", nil)
		return
	}

	quote, err := h.discounts.Quote(c.Request.Context(), c.Param("code"), amount, scheduleID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}
