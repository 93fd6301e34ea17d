package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Roster sources.
const (
	RosterLive    = "live"
	RosterFixture = "fixture"
)

// CronSpecs holds one schedule per round kind plus the roster sync.
// An empty spec disables the job.
type CronSpecs struct {
	Sync       string
	PAR        string
	Game       string
	Goals      string
	Multimodal string
	Hydration  string
	IPAQCheck  string
}

// AppConfig holds all configuration for the application
type AppConfig struct {
	HTTPHost string
	HTTPPort int

	StorageDriver string
	DatabaseURL   string

	RegistryURL  string
	ScoringURL   string
	DeviationURL string
	GatewayURL   string
	SenderID     string

	HTTPClientTimeout time.Duration
	HTTPClientRetries int
	HTTPClientBackoff time.Duration

	RosterSource  string
	RosterFixture string

	CronSpecs          CronSpecs
	IPAQReminderWindow time.Duration

	LogLevel    string
	Environment string

	TelegramToken   string // Optional; enables the operator console
	AdminTelegramID int64
}

// Addr is the listen address of the HTTP surface.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.HTTPHost = getEnv("HTTP_HOST", "0.0.0.0")
	if cfg.HTTPPort, err = getInt("HTTP_PORT", 5005); err != nil {
		return nil, err
	}

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres))
	switch cfg.StorageDriver {
	case StoragePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = postgresURL()
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", cfg.StorageDriver, StoragePostgres, StorageMemory)
	}

	cfg.RegistryURL = os.Getenv("REGISTRY_URL")
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = os.Getenv("CCDR_URL")
	}
	cfg.ScoringURL = os.Getenv("SCORING_URL")
	cfg.DeviationURL = os.Getenv("DEVIATION_URL")
	cfg.GatewayURL = os.Getenv("GATEWAY_URL")
	for name, value := range map[string]string{
		"REGISTRY_URL":  cfg.RegistryURL,
		"SCORING_URL":   cfg.ScoringURL,
		"DEVIATION_URL": cfg.DeviationURL,
		"GATEWAY_URL":   cfg.GatewayURL,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s is not set", name)
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	cfg.SenderID = getEnv("SENDER_ID", "recommendLib")

	if cfg.HTTPClientTimeout, err = getDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPClientRetries, err = getInt("HTTP_CLIENT_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.HTTPClientRetries < 0 {
		return nil, fmt.Errorf("HTTP_CLIENT_RETRIES must not be negative")
	}
	if cfg.HTTPClientBackoff, err = getDuration("HTTP_CLIENT_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}

	cfg.RosterSource = strings.ToLower(getEnv("ROSTER_SOURCE", RosterLive))
	cfg.RosterFixture = os.Getenv("ROSTER_FIXTURE")
	switch cfg.RosterSource {
	case RosterLive:
	case RosterFixture:
		if strings.TrimSpace(cfg.RosterFixture) == "" {
			return nil, fmt.Errorf("ROSTER_FIXTURE is required when ROSTER_SOURCE=%s", RosterFixture)
		}
	default:
		return nil, fmt.Errorf("invalid ROSTER_SOURCE %q", cfg.RosterSource)
	}

	cfg.CronSpecs = CronSpecs{
		Sync:       getCron("CRON_SPEC_SYNC", "0 6 * * *"),        // Default: 6:00 AM daily
		PAR:        getCron("CRON_SPEC_PAR", "0 10 * * *"),        // Default: 10:00 AM daily
		Game:       getCron("CRON_SPEC_GAME", "0 18 * * 0"),       // Default: Sunday 6 PM
		Goals:      getCron("CRON_SPEC_GOALS", "0 19 * * 0"),      // Default: Sunday 7 PM
		Multimodal: getCron("CRON_SPEC_MULTIMODAL", "0 9 * * 1"),  // Default: Monday 9 AM
		Hydration:  getCron("CRON_SPEC_HYDRATION", "0 12 * * *"),  // Default: noon daily
		IPAQCheck:  getCron("CRON_SPEC_IPAQ_CHECK", "0 11 * * *"), // Default: 11:00 AM daily
	}

	if cfg.IPAQReminderWindow, err = getDuration("IPAQ_REMINDER_WINDOW", 7*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

func postgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASS", "procare")),
		Host:     getEnv("POSTGRES_HOST", "db") + ":" + getEnv("POSTGRES_PORT", "5432"),
		Path:     "/" + getEnv("POSTGRES_DB", "procare"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getCron differs from getEnv in that an explicitly empty value disables the job.
func getCron(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getDuration accepts Go durations ("10s") and a day suffix ("7d").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid %s: %q", key, raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}
