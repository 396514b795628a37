package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDataDir           = "."
	defaultDownloadDir       = "/downloads"
	defaultServerPort        = "0.0.0.0:5000"
	defaultFetchMode         = FetchModeStream
	defaultScanInterval      = 0
	defaultHTTPTimeout       = 15 * time.Second
	defaultRetryCount        = 0
	defaultRetryDelay        = 10 * time.Second
	defaultHistoryLimit      = 50
	defaultLogLevel          = "info"
	defaultDBFilePermissions = 0666
)

// File names inside DATA_DIR, shared with the viewer CLI.
const (
	RegistryFileName = "downloaded.json"
	HistoryFileName  = "history.db"
)

const (
	FetchModeStream = "stream"
	FetchModeRanged = "ranged"
)

type Config struct {
	ProviderURL       string
	ProviderUser      string
	ProviderPass      string
	DownloadDir       string
	DataDir           string
	ServerPort        string
	FetchMode         string
	ScanInterval      time.Duration
	HTTPTimeout       time.Duration
	RetryCount        int
	RetryDelay        time.Duration
	HistoryLimit      int
	LogLevel          log.Level
	DBFilePermissions os.FileMode
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.WithField("error", err).Debug("no .env file loaded")
	}

	cfg := &Config{
		DownloadDir:       getEnvOrDefault("DOWNLOAD_DIR", defaultDownloadDir),
		DataDir:           getEnvOrDefault("DATA_DIR", defaultDataDir),
		ServerPort:        getEnvOrDefault("SERVER_PORT", defaultServerPort),
		FetchMode:         strings.ToLower(getEnvOrDefault("FETCH_MODE", defaultFetchMode)),
		ScanInterval:      defaultScanInterval,
		HTTPTimeout:       defaultHTTPTimeout,
		RetryCount:        defaultRetryCount,
		RetryDelay:        defaultRetryDelay,
		HistoryLimit:      defaultHistoryLimit,
		DBFilePermissions: defaultDBFilePermissions,
	}

	if err := cfg.loadRequired(); err != nil {
		return nil, err
	}
	if err := cfg.loadOptional(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadRequired() error {
	required := map[string]*string{
		"XC_URL":  &c.ProviderURL,
		"XC_USER": &c.ProviderUser,
		"XC_PASS": &c.ProviderPass,
	}

	for key, ptr := range required {
		value := os.Getenv(key)
		if value == "" {
			return fmt.Errorf("required environment variable missing: %s", key)
		}
		*ptr = value
	}
	c.ProviderURL = strings.TrimRight(c.ProviderURL, "/")
	return nil
}

func (c *Config) loadOptional() error {
	durations := map[string]*time.Duration{
		"SCAN_INTERVAL": &c.ScanInterval,
		"HTTP_TIMEOUT":  &c.HTTPTimeout,
		"RETRY_DELAY":   &c.RetryDelay,
	}
	for key, ptr := range durations {
		if err := parseDurationEnv(key, ptr); err != nil {
			return err
		}
	}

	ints := map[string]*int{
		"RETRY_COUNT":   &c.RetryCount,
		"HISTORY_LIMIT": &c.HistoryLimit,
	}
	for key, ptr := range ints {
		if err := parseIntEnv(key, ptr); err != nil {
			return err
		}
	}

	level, err := log.ParseLevel(getEnvOrDefault("LOG_LEVEL", defaultLogLevel))
	if err != nil {
		return fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	c.LogLevel = level
	return nil
}

func (c *Config) Validate() error {
	if c.FetchMode != FetchModeStream && c.FetchMode != FetchModeRanged {
		return fmt.Errorf("FETCH_MODE must be %q or %q, got %q", FetchModeStream, FetchModeRanged, c.FetchMode)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("RETRY_COUNT must not be negative")
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("SCAN_INTERVAL must not be negative")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, target *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("environment variable %s must be a duration: %w", key, err)
	}
	*target = d
	return nil
}

func parseIntEnv(key string, target *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("environment variable %s must be a valid integer: %w", key, err)
	}
	*target = n
	return nil
}

func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, RegistryFileName)
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, HistoryFileName)
}
