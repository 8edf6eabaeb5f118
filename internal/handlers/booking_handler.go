package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
)

// BookingHandler handles passenger booking operations
type BookingHandler struct {
	bookings *services.BookingService
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, payments *services.PaymentService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, payments: payments, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.UserID = userCtx.UserID

	booking, err := h.bookings.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListByUser(c.Request.Context(), userCtx.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetBooking handles GET /api/v1/bookings/:id. Staff may read any booking.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var booking *models.Booking
	var err error
	if userCtx.HasAnyRole(models.RoleStaff, models.RoleAdmin) {
		booking, err = h.bookings.Get(c.Request.Context(), id)
	} else {
		booking, err = h.bookings.GetForUser(c.Request.Context(), id, userCtx.UserID)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), booking.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking":  booking,
		"payments": payments,
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), &models.CancelBookingRequest{
		BookingID: id,
		UserID:    userCtx.UserID,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// PayBooking handles POST /api/v1/bookings/:id/pay
func (h *BookingHandler) PayBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.BookingID = id
	req.UserID = userCtx.UserID

	payment, err := h.payments.ProcessPayment(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment": payment,
		"booking": booking,
	})
}
