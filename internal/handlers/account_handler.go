package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
)

// AccountHandler serves saved payment methods and the loyalty balance
type AccountHandler struct {
	payments *services.PaymentService
	loyalty  *services.LoyaltyService
	logger   *logrus.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(payments *services.PaymentService, loyalty *services.LoyaltyService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{payments: payments, loyalty: loyalty, logger: logger}
}

// ListPaymentMethods handles GET /api/v1/payment-methods
func (h *AccountHandler) ListPaymentMethods(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	methods, err := h.payments.ListPaymentMethods(c.Request.Context(), userCtx.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

// SavePaymentMethod handles POST /api/v1/payment-methods
func (h *AccountHandler) SavePaymentMethod(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.SavePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.UserID = userCtx.UserID

	method, err := h.payments.SavePaymentMethod(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, method)
}

// LoyaltyBalance handles GET /api/v1/loyalty/balance
func (h *AccountHandler) LoyaltyBalance(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	balance, err := h.loyalty.Balance(c.Request.Context(), userCtx.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
