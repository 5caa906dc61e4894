package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/services"
)

// SOSHandler serves the emergency alert endpoints
type SOSHandler struct {
	sos    *services.SOSService
	logger *logrus.Logger
}

// NewSOSHandler creates a new SOSHandler
func NewSOSHandler(sos *services.SOSService, logger *logrus.Logger) *SOSHandler {
	return &SOSHandler{
		sos:    sos,
		logger: logger,
	}
}

// RaiseSOS handles POST /api/v1/sos
// An alert is never refused: a body that fails to parse still raises one
// with the caller's identity and the default description.
func (h *SOSHandler) RaiseSOS(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req models.RaiseSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithField("user_id", userCtx.UserID).WithError(err).Warn("Malformed SOS body, raising alert anyway")
		req = models.RaiseSOSRequest{}
	}

	alert, report := h.sos.Raise(userCtx.Identity(), req)

	c.JSON(http.StatusAccepted, gin.H{
		"alert":    alert,
		"delivery": report,
	})
}

// ListAlerts handles GET /api/v1/admin/sos?active=true
func (h *SOSHandler) ListAlerts(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	alerts := h.sos.List(activeOnly)

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert handles POST /api/v1/admin/sos/:alertId/resolve
func (h *SOSHandler) ResolveAlert(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	alert, err := h.sos.Resolve(c.Param("alertId"), userCtx.Identity())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": alert})
}
