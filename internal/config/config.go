// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	NATS     NATSConfig
	Storage  StorageConfig
	Identity IdentityConfig
	Reminder ReminderConfig
	Workflow WorkflowConfig
}

// ServiceConfig identifies the service in logs.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DatabaseConfig holds Postgres pool settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
}

// SMTPConfig configures the outbound mailer. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Sender   string
	Username string
	Password string
	StartTLS bool
}

// NATSConfig configures the notification event publisher. An empty URL
// disables publishing.
type NATSConfig struct {
	URL string
}

// StorageConfig controls where uploaded documents land.
type StorageConfig struct {
	Root    string
	UNCBase string
}

// IdentityConfig controls caller identity resolution.
type IdentityConfig struct {
	AllowDevHeaders bool
	DefaultRoles    []string
	SystemUser      string
}

// ReminderConfig controls the aging-reminder scheduler. An empty Schedule
// disables the cron job; manual triggering stays available.
type ReminderConfig struct {
	Schedule string
}

// WorkflowConfig holds engine policy knobs.
type WorkflowConfig struct {
	// FinalStatus is the status a workflow reaches when every step approves.
	FinalStatus string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "contract-review"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8000),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvInt("SERVER_MAX_BODY_BYTES", 10*1024*1024)),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "contract_review"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 25),
			Sender:   getEnv("SMTP_SENDER", "noreply@contractreview.local"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			StartTLS: getEnvBool("SMTP_STARTTLS", false),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Storage: StorageConfig{
			Root:    getEnv("CONTRACT_REVIEW_STORAGE", "storage"),
			UNCBase: getEnv("CONTRACT_REVIEW_UNC_BASE", `\\FQDN\Subfolder`),
		},
		Identity: IdentityConfig{
			AllowDevHeaders: getEnvBool("ALLOW_DEV_HEADERS", true),
			DefaultRoles:    splitList(getEnv("DEFAULT_ROLES", "")),
			SystemUser:      getEnv("SYSTEM_USER", "system.scheduler"),
		},
		Reminder: ReminderConfig{
			Schedule: getEnv("REMINDER_SCHEDULE", ""),
		},
		Workflow: WorkflowConfig{
			FinalStatus: getEnv("WORKFLOW_FINAL_STATUS", "Archived"),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Server.Port)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
