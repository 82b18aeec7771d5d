package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultDataDir = "/etc/openmct"

// Config holds runtime settings for the openmct service.
type Config struct {
	DataDir     string
	ObjectsFile string
	ExportDir   string

	PollInterval   time.Duration
	BroadcastDelay time.Duration
	HTTPTimeout    time.Duration
	DNSCacheTTL    time.Duration

	BackendHost    string
	FrontendPort   int
	MetricsPort    int
	AllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogFile   string

	// HistoryEnabled records fetched samples to HistoryFile.
	HistoryEnabled   bool
	HistoryFile      string
	HistoryRetention time.Duration

	// EnvOverrides records which settings came from the environment.
	EnvOverrides map[string]bool
}

// EnvPath is the .env file inside the data directory.
func (c *Config) EnvPath() string {
	return filepath.Join(c.DataDir, ".env")
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BackendHost, c.FrontendPort)
}

// Load reads configuration from defaults, .env files and the environment.
func Load() (*Config, error) {
	dataDir := defaultDataDir
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		dataDir = dir
	}

	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		} else {
			log.Info().Str("file", envFile).Msg("Loaded .env file")
		}
	}
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		DataDir:      dataDir,
		ExportDir:    filepath.Join(dataDir, "exports"),
		PollInterval: time.Second,
		HTTPTimeout:  10 * time.Second,
		DNSCacheTTL:  5 * time.Minute,
		BackendHost:  "0.0.0.0",
		FrontendPort: 7660,
		MetricsPort:  9091,
		LogLevel:     "info",
		LogFormat:    "auto",

		HistoryEnabled:   true,
		HistoryFile:      filepath.Join(dataDir, "history.db"),
		HistoryRetention: 2 * time.Hour,

		EnvOverrides: make(map[string]bool),
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strSettings := map[string]*string{
		"OBJECTS_FILE": &c.ObjectsFile,
		"EXPORT_DIR":   &c.ExportDir,
		"BACKEND_HOST": &c.BackendHost,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,
		"LOG_FILE":     &c.LogFile,
		"HISTORY_FILE": &c.HistoryFile,
	}
	for key, target := range strSettings {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*target = v
			c.EnvOverrides[key] = true
		}
	}

	durSettings := map[string]*time.Duration{
		"POLL_INTERVAL":     &c.PollInterval,
		"BROADCAST_DELAY":   &c.BroadcastDelay,
		"HTTP_TIMEOUT":      &c.HTTPTimeout,
		"DNS_CACHE_TTL":     &c.DNSCacheTTL,
		"HISTORY_RETENTION": &c.HistoryRetention,
	}
	for key, target := range durSettings {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = d
		c.EnvOverrides[key] = true
	}

	intSettings := map[string]*int{
		"FRONTEND_PORT": &c.FrontendPort,
		"METRICS_PORT":  &c.MetricsPort,
	}
	for key, target := range intSettings {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = n
		c.EnvOverrides[key] = true
	}

	if v := strings.TrimSpace(os.Getenv("HISTORY_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HISTORY_ENABLED: %w", err)
		}
		c.HistoryEnabled = enabled
		c.EnvOverrides["HISTORY_ENABLED"] = true
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
		c.EnvOverrides["ALLOWED_ORIGINS"] = true
	}
	return nil
}

// ParseDuration accepts Go duration strings ("1.5s") or bare integers,
// which are milliseconds.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.Trim(strings.TrimSpace(v), "'\"")
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FrontendPort <= 0 || c.FrontendPort > 65535 {
		return fmt.Errorf("invalid frontend port: %d", c.FrontendPort)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.FrontendPort {
		return fmt.Errorf("metrics port must differ from frontend port")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative")
	}
	if c.BroadcastDelay < 0 {
		return fmt.Errorf("broadcast delay must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.DNSCacheTTL <= 0 {
		return fmt.Errorf("dns cache ttl must be positive")
	}
	if c.HistoryEnabled && c.HistoryRetention <= 0 {
		return fmt.Errorf("history retention must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}
