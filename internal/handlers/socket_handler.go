package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/config"
	"github.com/smarttransit/fleet-sync/internal/middleware"
	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/realtime"
	"github.com/smarttransit/fleet-sync/internal/services"
	"github.com/smarttransit/fleet-sync/internal/utils"
)

// SocketHandler upgrades authenticated requests to realtime connections
type SocketHandler struct {
	registry *realtime.Registry
	commands *services.CommandService
	cfg      realtime.ClientConfig
	logger   *logrus.Logger
}

// NewSocketHandler creates a new SocketHandler
func NewSocketHandler(registry *realtime.Registry, commands *services.CommandService, cfg config.RealtimeConfig, logger *logrus.Logger) *SocketHandler {
	return &SocketHandler{
		registry: registry,
		commands: commands,
		cfg: realtime.ClientConfig{
			PongWait:      cfg.HeartbeatTimeout,
			PingInterval:  cfg.PingInterval,
			SendBuffer:    cfg.SendBuffer,
			MaxFrameBytes: cfg.MaxFrameBytes,
		},
		logger: logger,
	}
}

// Connect handles GET /ws
// The identity comes from the token. Clients may also send userId and role
// in the query; when present they must agree with the token.
func (h *SocketHandler) Connect(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	if userID := c.Query("userId"); userID != "" && userID != userCtx.UserID {
		h.rejectHandshake(c, userCtx, "userId does not match token")
		return
	}
	if role := c.Query("role"); role != "" && models.Role(role) != userCtx.Role {
		h.rejectHandshake(c, userCtx, "role does not match token")
		return
	}

	ws, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an error response
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Warn("Socket upgrade failed")
		return
	}

	client := realtime.NewClient(ws, h.cfg, h.logger)
	conn := realtime.NewConnection(userCtx.UserID, userCtx.Role, client)
	conn.Device = utils.ParseDevice(c.Request.UserAgent())
	conn.RemoteIP = utils.RealIP(c.Request.RemoteAddr, c.GetHeader("X-Real-IP"), c.GetHeader("X-Forwarded-For"))

	h.registry.Register(conn)
	fields := logrus.Fields{
		"connection_id": conn.ID,
		"user_id":       conn.UserID,
		"role":          conn.Role,
		"device":        conn.Device.DeviceType,
		"ip":            conn.RemoteIP,
	}
	h.logger.WithFields(fields).Info("Socket connected")

	h.commands.Greet(conn)
	client.Run(c.Request.Context(), conn, h.commands)

	h.registry.Unregister(conn.ID)
	h.logger.WithFields(fields).Info("Socket disconnected")
}

func (h *SocketHandler) rejectHandshake(c *gin.Context, userCtx middleware.UserContext, reason string) {
	h.logger.WithFields(logrus.Fields{
		"user_id": userCtx.UserID,
		"role":    userCtx.Role,
		"reason":  reason,
	}).Warn("Socket handshake rejected")
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": "Handshake identity does not match the access token",
		"code":    "IDENTITY_MISMATCH",
	})
}
