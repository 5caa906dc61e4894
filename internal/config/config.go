package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Realtime socket configuration
	Realtime RealtimeConfig

	// Fleet registry configuration
	Fleet FleetConfig

	// Persistence retry configuration
	Sync SyncConfig

	// SOS escalation configuration
	SOS SOSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// RealtimeConfig holds socket fan-out configuration
type RealtimeConfig struct {
	HeartbeatTimeout time.Duration // silent connections are unregistered after this
	PingInterval     time.Duration
	ReapInterval     time.Duration
	HistoryDepth     int // recent events retained per channel
	SendBuffer       int // outbound frames queued per connection
	MaxFrameBytes    int64
}

// FleetConfig holds the fleet registry location
type FleetConfig struct {
	RegistryPath string
}

// SyncConfig holds the persistence retry policy
type SyncConfig struct {
	RetrySchedule string // cron spec for the retry sweep
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxAttempts   int
}

// SOSConfig holds SMS escalation configuration for emergency alerts
type SOSConfig struct {
	SMSMode         string // "dev" logs messages, "production" sends them
	SMSAPIURL       string
	SMSAPIKey       string
	SMSSenderID     string
	EscalationPhone []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	heartbeatTimeout := getEnvAsDuration("REALTIME_HEARTBEAT_TIMEOUT", 30*time.Second)

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "3001"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 86400)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		},
		Realtime: RealtimeConfig{
			HeartbeatTimeout: heartbeatTimeout,
			PingInterval:     getEnvAsDuration("REALTIME_PING_INTERVAL", 10*time.Second),
			ReapInterval:     getEnvAsDuration("REALTIME_REAP_INTERVAL", heartbeatTimeout/3),
			HistoryDepth:     getEnvAsInt("REALTIME_HISTORY_DEPTH", 50),
			SendBuffer:       getEnvAsInt("REALTIME_SEND_BUFFER", 64),
			MaxFrameBytes:    int64(getEnvAsInt("REALTIME_MAX_FRAME_BYTES", 8192)),
		},
		Fleet: FleetConfig{
			RegistryPath: getEnv("FLEET_REGISTRY_PATH", "config/fleet.yaml"),
		},
		Sync: SyncConfig{
			RetrySchedule: getEnv("SYNC_RETRY_SCHEDULE", "@every 10s"),
			BaseBackoff:   getEnvAsDuration("SYNC_BASE_BACKOFF", 5*time.Second),
			MaxBackoff:    getEnvAsDuration("SYNC_MAX_BACKOFF", 5*time.Minute),
			MaxAttempts:   getEnvAsInt("SYNC_MAX_ATTEMPTS", 8),
		},
		SOS: SOSConfig{
			SMSMode:         getEnv("SOS_SMS_MODE", "dev"),
			SMSAPIURL:       getEnv("SOS_SMS_API_URL", ""),
			SMSAPIKey:       getEnv("SOS_SMS_API_KEY", ""),
			SMSSenderID:     getEnv("SOS_SMS_SENDER_ID", "CampusRide"),
			EscalationPhone: getEnvAsSlice("SOS_ESCALATION_PHONES", nil),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Realtime.HeartbeatTimeout <= 0 {
		return fmt.Errorf("REALTIME_HEARTBEAT_TIMEOUT must be positive")
	}

	if c.Realtime.PingInterval <= 0 || c.Realtime.PingInterval >= c.Realtime.HeartbeatTimeout {
		return fmt.Errorf("REALTIME_PING_INTERVAL must be positive and shorter than the heartbeat timeout")
	}

	if c.Realtime.ReapInterval <= 0 {
		return fmt.Errorf("REALTIME_REAP_INTERVAL must be positive")
	}

	if c.Realtime.HistoryDepth <= 0 {
		return fmt.Errorf("REALTIME_HISTORY_DEPTH must be positive")
	}

	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("REALTIME_SEND_BUFFER must be positive")
	}

	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive")
	}

	if c.Sync.BaseBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("SYNC_BASE_BACKOFF must be positive and not exceed SYNC_MAX_BACKOFF")
	}

	// Escalation gateway is only required when SMS is actually sent
	switch c.SOS.SMSMode {
	case "dev":
	case "production":
		if c.SOS.SMSAPIURL == "" {
			return fmt.Errorf("SOS_SMS_API_URL is required in production SMS mode")
		}
		if c.SOS.SMSAPIKey == "" {
			return fmt.Errorf("SOS_SMS_API_KEY is required in production SMS mode")
		}
	default:
		return fmt.Errorf("invalid SOS_SMS_MODE: %s (must be 'dev' or 'production')", c.SOS.SMSMode)
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
