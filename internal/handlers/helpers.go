package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/middleware"
)

// pathUUID parses a UUID path parameter, answering 400 when malformed
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated user, answering 401 when absent
func currentUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "User context not found", Code: "MISSING_USER_CONTEXT"})
		return userCtx, false
	}
	return userCtx, true
}
