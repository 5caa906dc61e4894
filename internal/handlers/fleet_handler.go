package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/realtime"
	"github.com/smarttransit/fleet-sync/internal/services"
)

// FleetHandler serves read-only fleet snapshots and channel backlogs
type FleetHandler struct {
	registry   *fleet.Registry
	fleetState *services.FleetStateService
	router     *realtime.Router
	logger     *logrus.Logger
}

// NewFleetHandler creates a new FleetHandler
func NewFleetHandler(registry *fleet.Registry, fleetState *services.FleetStateService, router *realtime.Router, logger *logrus.Logger) *FleetHandler {
	return &FleetHandler{
		registry:   registry,
		fleetState: fleetState,
		router:     router,
		logger:     logger,
	}
}

// GetBus handles GET /api/v1/buses/:busId
// The location is omitted until the bus has reported one.
func (h *FleetHandler) GetBus(c *gin.Context) {
	busID := c.Param("busId")

	bus, ok := h.registry.Bus(busID)
	if !ok {
		respondError(c, h.logger, services.ErrUnknownBus)
		return
	}

	response := gin.H{"bus": bus}
	if state, ok := h.fleetState.Get(busID); ok {
		response["state"] = state
	}
	c.JSON(http.StatusOK, response)
}

// ListRouteBuses handles GET /api/v1/routes/:routeId/buses
func (h *FleetHandler) ListRouteBuses(c *gin.Context) {
	routeID := c.Param("routeId")

	states, err := h.fleetState.ListByRoute(routeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"routeId": routeID,
		"buses":   states,
		"count":   len(states),
	})
}

// GetRecentEvents handles GET /api/v1/channels/:channel/recent
func (h *FleetHandler) GetRecentEvents(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	channel := c.Param("channel")
	kind, _, valid := models.ParseChannel(channel)
	if !valid {
		respondError(c, h.logger, fmt.Errorf("%w: unknown channel %q", services.ErrInvalidContent, channel))
		return
	}
	if kind == models.ChannelKindAdmin && userCtx.Role != models.RoleAdmin {
		respondError(c, h.logger, services.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, models.HistoryPayload{
		Channel: channel,
		Events:  h.router.GetRecent(channel),
	})
}
