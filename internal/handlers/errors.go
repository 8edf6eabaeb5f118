package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Seats   []int  `json:"seats,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins
var errorMappings = []errorMapping{
	{models.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
	{models.ErrInvalidSeatRange, http.StatusBadRequest, "INVALID_SEAT_RANGE"},
	{models.ErrSeatConflict, http.StatusConflict, "SEAT_CONFLICT"},
	{models.ErrAlreadyConfirmed, http.StatusConflict, "ALREADY_CONFIRMED"},
	{models.ErrScheduleUnavailable, http.StatusConflict, "SCHEDULE_UNAVAILABLE"},
	{models.ErrInvalidBooking, http.StatusConflict, "INVALID_BOOKING"},
	{models.ErrDiscountInvalid, http.StatusConflict, "DISCOUNT_NOT_APPLICABLE"},
	{models.ErrInsufficientPoints, http.StatusPaymentRequired, "INSUFFICIENT_POINTS"},
	{models.ErrChargeDeclined, http.StatusPaymentRequired, "CHARGE_DECLINED"},
	{models.ErrChargeTimeout, http.StatusGatewayTimeout, "CHARGE_TIMEOUT"},
	{models.ErrCancellationNotAllowed, http.StatusForbidden, "CANCELLATION_NOT_ALLOWED"},
	{models.ErrNotBookingOwner, http.StatusForbidden, "NOT_BOOKING_OWNER"},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{models.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
	{models.ErrDiscountNotFound, http.StatusNotFound, "DISCOUNT_NOT_FOUND"},
	{models.ErrPolicyNotFound, http.StatusNotFound, "POLICY_NOT_FOUND"},
	{models.ErrPaymentMethodNotFound, http.StatusNotFound, "PAYMENT_METHOD_NOT_FOUND"},
	{models.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
}

// writeError maps a service error to its HTTP status. Unknown errors are
// logged and reported as 500 without their details.
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		resp := ErrorResponse{
			Error:   http.StatusText(m.status),
			Message: err.Error(),
			Code:    m.code,
		}
		var conflict *models.SeatConflictError
		if errors.As(err, &conflict) {
			resp.Seats = conflict.Seats
		}
		var limited *services.RateLimitError
		if errors.As(err, &limited) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}
		c.JSON(m.status, resp)
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: "An internal error occurred",
		Code:    "INTERNAL_ERROR",
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Message: message,
		Code:    "INVALID_REQUEST",
	}
	if err != nil {
		resp.Message = message + ": " + err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
