package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the TCP port the game protocol listens on.
	DefaultPort = 12346
	// DefaultOpsPort serves health and metrics over HTTP.
	DefaultOpsPort = 9090
	// DefaultAPIBaseURL is the identity service queried for user, chart
	// and record lookups.
	DefaultAPIBaseURL = "https://phira.5wyxi.com"
	// DefaultConfigFile is read when CONFIG_FILE is unset and the file
	// exists in the working directory.
	DefaultConfigFile = "server.yml"
)

// Config holds validated server configuration. Values come from an
// optional YAML file overridden by environment variables; the --port
// flag in main wins over both.
type Config struct {
	Port       int    `yaml:"port"`
	OpsPort    int    `yaml:"ops_port"`
	APIBaseURL string `yaml:"api_base_url"`

	Environment    string `yaml:"environment"`
	AllowedOrigins string `yaml:"allowed_origins"`
	LogDir         string `yaml:"log_dir"`

	// ChatRateLimit caps chat messages per user, in ulule/limiter
	// notation (count-period, e.g. "20-M").
	ChatRateLimit string `yaml:"chat_rate_limit"`

	// Monitors lists user ids allowed to join rooms as monitors.
	Monitors []int32 `yaml:"monitors"`
}

// Development reports whether the server runs with development
// conveniences such as colored console logs.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// MonitorSet returns the monitor allow-list as a lookup set.
func (c *Config) MonitorSet() map[int32]struct{} {
	set := make(map[int32]struct{}, len(c.Monitors))
	for _, id := range c.Monitors {
		set[id] = struct{}{}
	}
	return set
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (server.yml when unset and the file exists), and
// environment variables, in that order. Returns an error if any
// resulting value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           DefaultPort,
		OpsPort:        DefaultOpsPort,
		APIBaseURL:     DefaultAPIBaseURL,
		Environment:    "production",
		AllowedOrigins: "*",
		LogDir:         "log",
		ChatRateLimit:  "20-M",
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	var errors []string

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", raw))
		} else {
			cfg.Port = port
		}
	}

	if raw := os.Getenv("OPS_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", raw))
		} else {
			cfg.OpsPort = port
		}
	}

	cfg.APIBaseURL = getEnvOrDefault("API_BASE_URL", cfg.APIBaseURL)
	cfg.Environment = getEnvOrDefault("ENVIRONMENT", cfg.Environment)
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogDir = getEnvOrDefault("LOG_DIR", cfg.LogDir)
	cfg.ChatRateLimit = getEnvOrDefault("CHAT_RATE_LIMIT", cfg.ChatRateLimit)

	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("API_BASE_URL must be an absolute URL (got '%s')", cfg.APIBaseURL))
	}
	if cfg.Port == cfg.OpsPort {
		errors = append(errors, fmt.Sprintf("PORT and OPS_PORT must differ (both %d)", cfg.Port))
	}
	if !isValidRate(cfg.ChatRateLimit) {
		errors = append(errors, fmt.Sprintf("CHAT_RATE_LIMIT must look like '20-M' (got '%s')", cfg.ChatRateLimit))
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// loadFile merges a YAML config file into cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// isValidRate checks the count-period notation used by the limiter,
// e.g. "20-M" or "100-H".
func isValidRate(rate string) bool {
	parts := strings.Split(rate, "-")
	if len(parts) != 2 {
		return false
	}
	if n, err := strconv.Atoi(parts[0]); err != nil || n < 1 {
		return false
	}
	switch parts[1] {
	case "S", "M", "H", "D":
		return true
	}
	return false
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("configuration validated",
		"port", cfg.Port,
		"ops_port", cfg.OpsPort,
		"api_base_url", cfg.APIBaseURL,
		"environment", cfg.Environment,
		"log_dir", cfg.LogDir,
		"chat_rate_limit", cfg.ChatRateLimit,
		"monitors", len(cfg.Monitors),
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
