package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/realtime"
	"github.com/smarttransit/fleet-sync/internal/services"
)

// AdminHandler handles admin-only fleet operations
type AdminHandler struct {
	fleetState *services.FleetStateService
	sync       *services.SyncService
	registry   *realtime.Registry
	logger     *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	fleetState *services.FleetStateService,
	syncService *services.SyncService,
	registry *realtime.Registry,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		fleetState: fleetState,
		sync:       syncService,
		registry:   registry,
		logger:     logger,
	}
}

// UpdateBusStatus handles PUT /api/v1/admin/buses/:busId/status
func (h *AdminHandler) UpdateBusStatus(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req models.UpdateBusStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", services.ErrInvalidContent, err))
		return
	}

	payload, err := h.fleetState.SetStatus(c.Param("busId"), models.BusStatus(req.Status), userCtx.Identity())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// AssignRoute handles PUT /api/v1/admin/buses/:busId/route
func (h *AdminHandler) AssignRoute(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req models.AssignRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	payload, err := h.fleetState.AssignRoute(c.Param("busId"), req.RouteID, userCtx.Identity())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// GetSyncStatus handles GET /api/v1/admin/sync/status
func (h *AdminHandler) GetSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Status())
}

// ListConnections handles GET /api/v1/admin/connections
func (h *AdminHandler) ListConnections(c *gin.Context) {
	connections := h.registry.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"connections": connections,
		"count":       len(connections),
	})
}
