package config

import (
	"os"
	"strconv"
)

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	LogSubstitutions bool `yaml:"log_substitutions"` // Log substitution counts per document
	LogVerbose       bool `yaml:"log_verbose"`       // Log individual substitutions (original vs token)
}

// DetectorConfig holds configuration for the external detection service
type DetectorConfig struct {
	BaseURL         string   `yaml:"base_url"`          // Base URL of the NER service
	TimeoutSeconds  int      `yaml:"timeout_seconds"`   // Request timeout
	Threshold       float64  `yaml:"threshold"`         // Minimum confidence for accepted entities
	Labels          []string `yaml:"labels"`            // Entity type allowlist; empty for service default
	CacheTTLMinutes int      `yaml:"cache_ttl_minutes"` // Detection result cache TTL; 0 disables caching
}

// DatabaseConfig holds mapping persistence configuration
type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"`        // Whether to use database storage
	Driver       string `yaml:"driver"`         // "sqlite" or "postgres"
	Path         string `yaml:"path"`           // SQLite database file path
	Host         string `yaml:"host"`           // PostgreSQL host
	Port         int    `yaml:"port"`           // PostgreSQL port
	Database     string `yaml:"database"`       // PostgreSQL database name
	Username     string `yaml:"username"`       // PostgreSQL username
	Password     string `yaml:"-"`              // PostgreSQL password, env only
	SSLMode      string `yaml:"ssl_mode"`       // SSL mode (disable, require, etc.)
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections
	MaxLifetime  int    `yaml:"max_lifetime"`   // Connection max lifetime in seconds
	CleanupHours int    `yaml:"cleanup_hours"`  // Hours after which to cleanup old mappings
}

// Config holds all configuration for the pseudonymization service
type Config struct {
	ServerPort    string         `yaml:"server_port"`
	ContextWindow int            `yaml:"context_window"` // Bytes of context captured around each span
	DefaultLabel  string         `yaml:"default_label"`  // Fallback anonymization label; empty disables
	MappingPath   string         `yaml:"mapping_path"`   // JSON mapping file path
	RateLimit     float64        `yaml:"rate_limit"`
	RateBurst     int            `yaml:"rate_burst"`
	Detector      DetectorConfig `yaml:"detector"`
	Database      DatabaseConfig `yaml:"database"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerPort:    ":8080",
		ContextWindow: 40,
		DefaultLabel:  "",
		MappingPath:   "mapping.json",
		RateLimit:     20,
		RateBurst:     40,
		Detector: DetectorConfig{
			BaseURL:         "http://localhost:8000",
			TimeoutSeconds:  30,
			Threshold:       0.5,
			CacheTTLMinutes: 30,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Driver:       "sqlite",
			Path:         "anonydoc.db",
			Host:         "localhost",
			Port:         5432,
			Database:     "anonydoc",
			Username:     "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  300,
			CleanupHours: 24,
		},
		Logging: LoggingConfig{
			LogSubstitutions: true,
			LogVerbose:       false,
		},
	}
}

// LoadFromEnv overrides configuration from environment variables
func LoadFromEnv(cfg *Config) {
	loadServerConfig(cfg)
	loadDetectorConfig(cfg)
	loadDatabaseConfig(cfg)
	loadLoggingConfig(cfg)
}

func loadServerConfig(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.ServerPort = port
	}

	if window := os.Getenv("CONTEXT_WINDOW"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			cfg.ContextWindow = w
		}
	}

	if label := os.Getenv("DEFAULT_LABEL"); label != "" {
		cfg.DefaultLabel = label
	}

	if path := os.Getenv("MAPPING_PATH"); path != "" {
		cfg.MappingPath = path
	}

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		if l, err := strconv.ParseFloat(limit, 64); err == nil {
			cfg.RateLimit = l
		}
	}

	if burst := os.Getenv("RATE_BURST"); burst != "" {
		if b, err := strconv.Atoi(burst); err == nil {
			cfg.RateBurst = b
		}
	}
}

func loadDetectorConfig(cfg *Config) {
	if baseURL := os.Getenv("DETECTOR_BASE_URL"); baseURL != "" {
		cfg.Detector.BaseURL = baseURL
	}

	if timeout := os.Getenv("DETECTOR_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			cfg.Detector.TimeoutSeconds = t
		}
	}

	if threshold := os.Getenv("DETECTOR_THRESHOLD"); threshold != "" {
		if th, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Detector.Threshold = th
		}
	}

	if ttl := os.Getenv("DETECTOR_CACHE_TTL_MINUTES"); ttl != "" {
		if m, err := strconv.Atoi(ttl); err == nil {
			cfg.Detector.CacheTTLMinutes = m
		}
	}
}

func loadDatabaseConfig(cfg *Config) {
	if dbEnabled := os.Getenv("DB_ENABLED"); dbEnabled != "" {
		cfg.Database.Enabled = dbEnabled == "true"
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Database.Path = path
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.Username = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}

	if sslMode := os.Getenv("DB_SSL_MODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	if cleanupHours := os.Getenv("DB_CLEANUP_HOURS"); cleanupHours != "" {
		if hours, err := strconv.Atoi(cleanupHours); err == nil {
			cfg.Database.CleanupHours = hours
		}
	}
}

func loadLoggingConfig(cfg *Config) {
	if logSubs := os.Getenv("LOG_SUBSTITUTIONS"); logSubs != "" {
		cfg.Logging.LogSubstitutions = logSubs == "true"
	}

	if logVerbose := os.Getenv("LOG_VERBOSE"); logVerbose != "" {
		cfg.Logging.LogVerbose = logVerbose == "true"
	}
}
