package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/middleware"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/pkg/jwt"
)

// Handlers bundles every HTTP handler
type Handlers struct {
	Auth      *AuthHandler
	Schedules *ScheduleHandler
	Bookings  *BookingHandler
	Accounts  *AccountHandler
	Admin     *AdminHandler
	Health    *HealthHandler
}

// RegisterRoutes mounts the API on router. metrics may be nil.
func RegisterRoutes(router *gin.Engine, h Handlers, jwtService *jwt.Service, metrics http.Handler, logger *logrus.Logger) {
	router.GET("/health", h.Health.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")

	// Public routes
	v1.POST("/auth/login", h.Auth.Login)
	v1.GET("/schedules", h.Schedules.ListSchedules)
	v1.GET("/schedules/:id", h.Schedules.GetSchedule)
	v1.GET("/schedules/:id/seats", h.Schedules.GetSeats)
	v1.GET("/discounts/:code/quote", h.Schedules.QuoteDiscount)

	// Authenticated passenger routes
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtService, logger))
	{
		protected.POST("/bookings", h.Bookings.CreateBooking)
		protected.GET("/bookings", h.Bookings.ListBookings)
		protected.GET("/bookings/:id", h.Bookings.GetBooking)
		protected.POST("/bookings/:id/cancel", h.Bookings.CancelBooking)
		protected.POST("/bookings/:id/pay", h.Bookings.PayBooking)

		protected.GET("/payment-methods", h.Accounts.ListPaymentMethods)
		protected.POST("/payment-methods", h.Accounts.SavePaymentMethod)
		protected.GET("/loyalty/balance", h.Accounts.LoyaltyBalance)
	}

	// Staff routes
	admin := v1.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtService, logger), middleware.RequireRole(models.RoleStaff, models.RoleAdmin))
	{
		admin.POST("/schedules", h.Admin.PublishSchedule)
		admin.PATCH("/schedules/:id/status", h.Admin.UpdateScheduleStatus)

		admin.GET("/discounts", h.Admin.ListDiscounts)
		admin.POST("/discounts", h.Admin.CreateDiscount)
		admin.DELETE("/discounts/:code", h.Admin.DeactivateDiscount)

		admin.GET("/cancellation-policies", h.Admin.ListPolicies)
		admin.POST("/cancellation-policies", h.Admin.CreatePolicy)
		admin.POST("/cancellation-policies/:id/activate", h.Admin.ActivatePolicy)

		admin.POST("/bookings/:id/cancel", h.Admin.CancelBooking)

		admin.GET("/jobs", h.Admin.JobStatus)
		admin.POST("/jobs/expire-bookings", h.Admin.RunExpiry)

		admin.GET("/audit-logs", h.Admin.AuditLog)
	}
}
