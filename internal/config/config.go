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

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Payment gateways
const (
	GatewaySimulated = "simulated"
	GatewayPAYable   = "payable"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Redis configuration (schedule cache and distributed seat locks)
	Redis RedisConfig

	// Booking lifecycle configuration
	Booking BookingConfig

	// Payment settlement configuration
	Payment PaymentConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string // development, staging, production
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout time.Duration
	EnableMetrics   bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // postgres or memory
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled        bool
	Addr           string
	Password       string
	DB             int
	ScheduleTTL    time.Duration
	LockTTL        time.Duration
	LockRetryDelay time.Duration
}

// BookingConfig holds booking lifecycle settings
type BookingConfig struct {
	PendingTimeout   time.Duration // Unpaid PENDING bookings older than this are cancelled
	ExpirySchedule   string        // robfig/cron spec for the auto-expiry sweep
	ReminderSchedule string        // robfig/cron spec for departure reminders
	ReminderWindow   time.Duration
	MaxPassengers    int
	LockTimeout      time.Duration // Max wait for the per-schedule critical section
}

// PaymentConfig holds settlement settings
type PaymentConfig struct {
	ChargeTimeout        time.Duration
	LoyaltyPointsPerUnit float64 // Points earned per currency unit on non-wallet payments
	Currency             string
	SimulateGatewayDelay time.Duration
	DeclineAmountsAbove  float64 // Simulated gateway declines above this, 0 disables

	// Gateway selects "simulated" or "payable"
	Gateway string

	// PAYable IPG credentials
	MerchantKey   string
	MerchantToken string
	Environment   string // dev, sandbox, production
	GatewayURL    string // Overrides the environment endpoint when set
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost int

	// Login throttling, 0 disables a limit
	LoginMaxAttempts      int
	LoginWindow           time.Duration
	LoginMaxAttemptsPerIP int
	LoginIPWindow         time.Duration

	AuditRetention       time.Duration
	AuditCleanupSchedule string // robfig/cron spec, empty disables

	// First staff account, created at startup when no user has the email
	BootstrapAdminEmail        string
	BootstrapAdminPasswordHash string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORE_DRIVER", StoreDriverPostgres),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			ScheduleTTL:    getEnvAsDuration("REDIS_SCHEDULE_TTL", 5*time.Minute),
			LockTTL:        getEnvAsDuration("REDIS_LOCK_TTL", 10*time.Second),
			LockRetryDelay: getEnvAsDuration("REDIS_LOCK_RETRY_DELAY", 25*time.Millisecond),
		},
		Booking: BookingConfig{
			PendingTimeout:   getEnvAsDuration("BOOKING_PENDING_TIMEOUT", 15*time.Minute),
			ExpirySchedule:   getEnv("BOOKING_EXPIRY_SCHEDULE", "@every 5m"),
			ReminderSchedule: getEnv("BOOKING_REMINDER_SCHEDULE", "@every 30m"),
			ReminderWindow:   getEnvAsDuration("BOOKING_REMINDER_WINDOW", 24*time.Hour),
			MaxPassengers:    getEnvAsInt("BOOKING_MAX_PASSENGERS", 6),
			LockTimeout:      getEnvAsDuration("BOOKING_LOCK_TIMEOUT", 5*time.Second),
		},
		Payment: PaymentConfig{
			ChargeTimeout:        getEnvAsDuration("PAYMENT_CHARGE_TIMEOUT", 15*time.Second),
			LoyaltyPointsPerUnit: getEnvAsFloat("LOYALTY_POINTS_PER_UNIT", 0.1),
			Currency:             getEnv("PAYMENT_CURRENCY", "LKR"),
			SimulateGatewayDelay: getEnvAsDuration("PAYMENT_SIMULATED_DELAY", 0),
			DeclineAmountsAbove:  getEnvAsFloat("PAYMENT_SIMULATED_DECLINE_ABOVE", 0),
			Gateway:              getEnv("PAYMENT_GATEWAY", GatewaySimulated),
			MerchantKey:          getEnv("PAYABLE_MERCHANT_KEY", ""),
			MerchantToken:        getEnv("PAYABLE_MERCHANT_TOKEN", ""),
			Environment:          getEnv("PAYABLE_ENVIRONMENT", "sandbox"),
			GatewayURL:           getEnv("PAYABLE_GATEWAY_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			BcryptCost:                 getEnvAsInt("BCRYPT_COST", 12),
			LoginMaxAttempts:           getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:                getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
			LoginMaxAttemptsPerIP:      getEnvAsInt("LOGIN_MAX_ATTEMPTS_PER_IP", 20),
			LoginIPWindow:              getEnvAsDuration("LOGIN_IP_WINDOW", time.Hour),
			AuditRetention:             getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
			AuditCleanupSchedule:       getEnv("AUDIT_CLEANUP_SCHEDULE", "@daily"),
			BootstrapAdminEmail:        getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			BootstrapAdminPasswordHash: getEnv("BOOTSTRAP_ADMIN_PASSWORD_HASH", ""),
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
	switch c.Database.Driver {
	case StoreDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.PendingTimeout <= 0 {
		return fmt.Errorf("BOOKING_PENDING_TIMEOUT must be positive")
	}

	if c.Booking.MaxPassengers <= 0 {
		return fmt.Errorf("BOOKING_MAX_PASSENGERS must be positive")
	}

	if c.Payment.ChargeTimeout <= 0 {
		return fmt.Errorf("PAYMENT_CHARGE_TIMEOUT must be positive")
	}

	if c.Payment.LoyaltyPointsPerUnit < 0 {
		return fmt.Errorf("LOYALTY_POINTS_PER_UNIT must not be negative")
	}

	switch c.Payment.Gateway {
	case GatewaySimulated:
	case GatewayPAYable:
		if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYABLE_MERCHANT_KEY and PAYABLE_MERCHANT_TOKEN are required for the payable gateway")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_GATEWAY: %s (must be 'simulated' or 'payable')", c.Payment.Gateway)
	}

	if (c.Security.BootstrapAdminEmail == "") != (c.Security.BootstrapAdminPasswordHash == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD_HASH must be set together")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED is set")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
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

// getEnvAsDuration accepts Go duration strings ("15m") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
	return defaultValue
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
