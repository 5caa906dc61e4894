package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/config"
	"github.com/smarttransit/fleet-sync/internal/database"
	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/handlers"
	"github.com/smarttransit/fleet-sync/internal/middleware"
	"github.com/smarttransit/fleet-sync/internal/realtime"
	"github.com/smarttransit/fleet-sync/internal/services"
	"github.com/smarttransit/fleet-sync/pkg/jwt"
	"github.com/smarttransit/fleet-sync/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit fleet sync service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if err := database.EnsureSchema(db); err != nil {
		logger.Fatalf("Failed to prepare database schema: %v", err)
	}

	// Load the fleet registry
	fleetRegistry, err := fleet.Load(cfg.Fleet.RegistryPath)
	if err != nil {
		logger.Fatalf("Failed to load fleet registry: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"path":   cfg.Fleet.RegistryPath,
		"buses":  len(fleetRegistry.Buses()),
		"routes": len(fleetRegistry.Routes()),
	}).Info("Fleet registry loaded")

	// Initialize realtime fan-out
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, fleetRegistry, cfg.Realtime.HistoryDepth, logger)
	reaper := realtime.NewReaper(registry, cfg.Realtime.HeartbeatTimeout, cfg.Realtime.ReapInterval, logger)

	// Initialize SOS escalation gateway
	var smsGateway sms.Gateway
	if cfg.SOS.SMSMode == "production" {
		smsGateway = sms.NewHTTPGateway(sms.HTTPConfig{
			APIURL:   cfg.SOS.SMSAPIURL,
			APIKey:   cfg.SOS.SMSAPIKey,
			SenderID: cfg.SOS.SMSSenderID,
		})
		logger.Infof("%s initialized for SOS escalation", smsGateway.Name())
	} else {
		smsGateway = sms.NewLogGateway(logger)
		logger.Info("SMS gateway in development mode (escalations are only logged)")
	}

	// Initialize services
	logger.Info("Initializing services...")
	syncService := services.NewSyncService(cfg.Sync, logger)
	ledger := services.NewReservationLedger(fleetRegistry, database.NewReservationRepository(db), syncService, router, logger)
	fleetState := services.NewFleetStateService(fleetRegistry, router, logger)
	messaging := services.NewMessagingService(fleetRegistry, router, logger)
	sosService := services.NewSOSService(database.NewSOSAlertRepository(db), syncService, router, smsGateway, cfg.SOS.EscalationPhone, logger)
	commands := services.NewCommandService(registry, router, fleetRegistry, ledger, fleetState, messaging, sosService, logger)

	if err := ledger.Load(); err != nil {
		logger.Fatalf("Failed to restore reservations: %v", err)
	}
	if err := sosService.Load(); err != nil {
		logger.Fatalf("Failed to restore SOS alerts: %v", err)
	}

	if err := syncService.Start(); err != nil {
		logger.Fatalf("Failed to start sync service: %v", err)
	}
	reaper.Start()
	logger.Info("Services initialized")

	// Initialize JWT service
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize Gin router
	engine := gin.New()

	// Middleware
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(cors.New(corsConfig))

	// Health check endpoint
	engine.GET("/health", healthCheckHandler(db, registry, syncService))

	handlers.RegisterRoutes(engine, handlers.Handlers{
		Reservation: handlers.NewReservationHandler(ledger, logger),
		Fleet:       handlers.NewFleetHandler(fleetRegistry, fleetState, router, logger),
		SOS:         handlers.NewSOSHandler(sosService, logger),
		Admin:       handlers.NewAdminHandler(fleetState, syncService, registry, logger),
		Socket:      handlers.NewSocketHandler(registry, commands, cfg.Realtime, logger),
	}, jwtService, fleetRegistry, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Sockets are hijacked and outlive Shutdown
	reaper.Stop()
	for _, conn := range registry.Stale(time.Now().Add(time.Hour)) {
		conn.Close()
	}

	if err := sosService.Wait(ctx); err != nil {
		logger.WithError(err).Warn("SOS writes or escalations still running at shutdown")
	}

	logger.Info("Stopping sync service...")
	syncService.Stop()
	if remaining := syncService.Drain(ctx); remaining > 0 {
		logger.WithField("remaining", remaining).Error("Shut down with unsynced writes")
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.Query())

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if userCtx, exists := c.Get(middleware.UserContextKey); exists {
			fields["user"] = userCtx
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// redactQuery hides socket tokens passed in the query string
func redactQuery(values url.Values) string {
	if values.Has("token") {
		values.Set("token", "****")
	}
	return values.Encode()
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, registry *realtime.Registry, syncService *services.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"database":       "healthy",
			"connections":    registry.Count(),
			"pending_writes": syncService.PendingCount(),
			"version":        version,
			"timestamp":      time.Now().Unix(),
		})
	}
}
