package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/middleware"
	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/pkg/jwt"
)

// Handlers groups the handlers mounted by RegisterRoutes
type Handlers struct {
	Reservation *ReservationHandler
	Fleet       *FleetHandler
	SOS         *SOSHandler
	Admin       *AdminHandler
	Socket      *SocketHandler
}

// RegisterRoutes mounts the socket endpoint and the /api/v1 routes
func RegisterRoutes(router *gin.Engine, h Handlers, jwtService *jwt.Service, registry *fleet.Registry, logger *logrus.Logger) {
	auth := middleware.AuthMiddleware(jwtService, logger)

	router.GET("/ws", auth, h.Socket.Connect)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		seats := v1.Group("/seats")
		seats.Use(middleware.RequireRole(models.RoleStudent))
		{
			seats.POST("/reserve", h.Reservation.ReserveSeat)
			seats.POST("/cancel", h.Reservation.CancelReservation)
			seats.GET("/me", h.Reservation.GetMyReservation)
		}

		v1.GET("/buses/:busId", h.Fleet.GetBus)
		v1.GET("/buses/:busId/seats", middleware.RequireBusAccess(registry, logger), h.Reservation.ListBusReservations)
		v1.GET("/routes/:routeId/buses", h.Fleet.ListRouteBuses)
		v1.GET("/channels/:channel/recent", h.Fleet.GetRecentEvents)

		v1.POST("/sos", h.SOS.RaiseSOS)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/sos", h.SOS.ListAlerts)
			admin.POST("/sos/:alertId/resolve", h.SOS.ResolveAlert)
			admin.PUT("/buses/:busId/status", h.Admin.UpdateBusStatus)
			admin.PUT("/buses/:busId/route", h.Admin.AssignRoute)
			admin.GET("/sync/status", h.Admin.GetSyncStatus)
			admin.GET("/connections", h.Admin.ListConnections)
		}
	}
}
