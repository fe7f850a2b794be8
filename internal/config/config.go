package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trip-planner/internal/domain"
)

// Config holds application configuration
type Config struct {
	Port                   string
	ListenAddr             string // host the views server binds, loopback by default
	AllowRemote            bool   // permits a non-loopback ListenAddr
	APIBaseURL             string
	DatabaseURL            string // empty keeps client storage in memory
	RabbitMQURL            string // empty disables event fan-out
	AllowedOrigins         string
	Environment            string // development, staging, production
	RequestTimeout         time.Duration
	LogLevel               string
	LogFormat              string
	DefaultCompilationName string
}

// Load loads configuration from the environment (and .env when present) and validates it
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		ListenAddr:             getEnv("LISTEN_ADDR", "127.0.0.1"),
		AllowRemote:            getEnv("ALLOW_REMOTE_VIEWS", "false") == "true",
		APIBaseURL:             getEnv("API_BASE_URL", "http://127.0.0.1:8000/api"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RabbitMQURL:            getEnv("RABBITMQ_URL", ""),
		AllowedOrigins:         getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", ""),
		DefaultCompilationName: getEnv("DEFAULT_COMPILATION_NAME", domain.DefaultCompilationName),
	}

	timeout, err := parseDuration(getEnv("REQUEST_TIMEOUT", ""))
	if err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for correctness and fills defaults left empty
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL must be set")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL (got %q)", c.APIBaseURL)
	}

	// Bearer tokens travel on every request, so production requires TLS
	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must use https in production")
	}

	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = "127.0.0.1"
	}
	// the views server acts as the single signed-in account
	if !isLoopback(c.ListenAddr) && !c.AllowRemote {
		return fmt.Errorf("LISTEN_ADDR %q is not a loopback address; set ALLOW_REMOTE_VIEWS=true to expose the views server", c.ListenAddr)
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}

	if strings.TrimSpace(c.DefaultCompilationName) == "" {
		c.DefaultCompilationName = domain.DefaultCompilationName
	}

	if c.LogFormat == "" {
		c.LogFormat = "json"
		if c.IsDevelopment() {
			c.LogFormat = "text"
		}
	}

	if c.IsProduction() && c.AllowedOrigins != "" {
		log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
	}

	return nil
}

// Addr is the views server listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenAddr, c.Port)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// UsesPersistentStorage reports whether client storage is backed by PostgreSQL
func (c *Config) UsesPersistentStorage() bool {
	return c.DatabaseURL != ""
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
