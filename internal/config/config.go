// Package config loads the portal configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const insecureSessionSecret = "insecure-dev-only-session-secret-do-not-use"

// Config holds all portal configuration.
type Config struct {
	// Server
	ListenAddr string
	BaseURL    string
	Debug      bool

	// External leads API
	APIURL     string
	APITimeout time.Duration

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	DBPath        string
	RedisURL      string // sessions go to Redis instead of SQLite when set

	// Receipt email
	SendGridKey string
	FromEmail   string
	FromName    string

	// Feed
	TabsFile    string
	DemoEnrich  bool
	UnitsTTL    time.Duration
	VisitorTTL  time.Duration
	SweepEvery  time.Duration
	RateLimit   int // requests per minute per IP
	CORSOrigins []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr: getEnv("PORTAL_LISTEN", ":8080"),
		BaseURL:    strings.TrimRight(getEnv("PORTAL_BASE_URL", "http://localhost:8080"), "/"),
		Debug:      getEnvBool("PORTAL_DEBUG", false),

		APIURL:     getEnv("PORTAL_API_URL", "http://localhost:5000"),
		APITimeout: getEnvDuration("PORTAL_API_TIMEOUT", 15*time.Second),

		SessionSecret: os.Getenv("PORTAL_SESSION_SECRET"),
		SessionTTL:    getEnvDuration("PORTAL_SESSION_TTL", 8*time.Hour),
		DBPath:        getEnv("PORTAL_DB_PATH", "./portal.db"),
		RedisURL:      os.Getenv("PORTAL_REDIS_URL"),

		SendGridKey: os.Getenv("PORTAL_SENDGRID_KEY"),
		FromEmail:   getEnv("PORTAL_FROM_EMAIL", "no-reply@citizenintel.local"),
		FromName:    getEnv("PORTAL_FROM_NAME", "Citizen Intelligence Portal"),

		TabsFile:    os.Getenv("PORTAL_TABS_FILE"),
		DemoEnrich:  getEnvBool("PORTAL_DEMO_ENRICH", true),
		UnitsTTL:    getEnvDuration("PORTAL_UNITS_TTL", 10*time.Minute),
		VisitorTTL:  getEnvDuration("PORTAL_VISITOR_TTL", 30*time.Minute),
		SweepEvery:  getEnvDuration("PORTAL_SWEEP_INTERVAL", 5*time.Minute),
		RateLimit:   getEnvInt("PORTAL_RATE_LIMIT_RPM", 120),
		CORSOrigins: splitList(os.Getenv("PORTAL_CORS_ORIGINS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Secure reports whether the portal is served over HTTPS.
func (c *Config) Secure() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

func (c *Config) validate() error {
	if c.SessionSecret == "" || c.SessionSecret == "change-me-in-production" {
		if c.Secure() {
			return errors.New("PORTAL_SESSION_SECRET must be set to a strong random value in production (try: openssl rand -hex 32)")
		}
		c.SessionSecret = insecureSessionSecret
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("PORTAL_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("PORTAL_RATE_LIMIT_RPM must be positive, got %d", c.RateLimit)
	}
	return nil
}

// InsecureSecret reports whether the development session secret is in use.
func (c *Config) InsecureSecret() bool {
	return c.SessionSecret == insecureSessionSecret
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
