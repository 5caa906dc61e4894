package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
)

// RequireBusAccess lets admins through and restricts drivers to the bus
// named by the :busId path parameter. Must be used after AuthMiddleware.
func RequireBusAccess(registry *fleet.Registry, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found",
				"code":    "MISSING_USER_CONTEXT",
			})
			c.Abort()
			return
		}

		busID := c.Param("busId")
		bus, ok := registry.Bus(busID)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "unknown_bus",
				"message": "Bus is not in the fleet registry",
				"code":    "UNKNOWN_BUS",
			})
			c.Abort()
			return
		}

		switch userCtx.Role {
		case models.RoleAdmin:
		case models.RoleDriver:
			if !registry.IsAssignedDriver(bus.ID, userCtx.UserID) {
				logger.WithFields(logrus.Fields{
					"user_id": userCtx.UserID,
					"bus_id":  bus.ID,
				}).Warn("Driver requested a bus they are not assigned to")
				c.JSON(http.StatusForbidden, gin.H{
					"error":   "forbidden",
					"message": "You are not assigned to this bus",
					"code":    "NOT_ASSIGNED_DRIVER",
				})
				c.Abort()
				return
			}
		default:
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Set("bus", bus)
		c.Next()
	}
}
