package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	DatabaseMode string
	Supabase     *SupabaseConfig
	SQLite       *SQLiteConfig
	Features     *FeatureFlags
	Auth         *AuthConfig
	Log          *LogConfig
	Addr         string
	DebugEnabled bool
}

// SupabaseConfig holds the hosted backend settings
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	DBURL          string
	HTTPTimeout    time.Duration
}

// SQLiteConfig holds the embedded backend settings
type SQLiteConfig struct {
	Path string
}

// FeatureFlags are the product toggles. Each is on unless set to exactly "false".
type FeatureFlags struct {
	DesktopMode     bool `json:"desktop_mode"`
	AI              bool `json:"ai"`
	WorkflowBuilder bool `json:"workflow_builder"`
	Marketplace     bool `json:"marketplace"`
	Realtime        bool `json:"realtime"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	BasicAuthUser string
	BasicAuthPass string
}

// Enabled reports whether a password was configured
func (a *AuthConfig) Enabled() bool {
	return a != nil && a.BasicAuthPass != ""
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string
	File  string
}

// DefaultSQLitePath is the embedded database file used when SQLITE_PATH is unset
const DefaultSQLitePath = "construction.db"

// LoadConfig loads configuration from environment variables
// .env file is automatically loaded via autoload import
func LoadConfig() *Config {
	cfg := &Config{
		DatabaseMode: strings.TrimSpace(os.Getenv("DATABASE_MODE")),
		Supabase: &SupabaseConfig{
			URL:            getEnvWithDefault("SUPABASE_URL", ""),
			AnonKey:        getEnvWithDefault("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnvWithDefault("SUPABASE_SERVICE_ROLE_KEY", ""),
			DBURL:          getEnvWithDefault("SUPABASE_DB_URL", ""),
			HTTPTimeout:    getDurationEnvWithDefault("SUPABASE_HTTP_TIMEOUT", 30*time.Second),
		},
		SQLite: &SQLiteConfig{
			Path: getEnvWithDefault("SQLITE_PATH", DefaultSQLitePath),
		},
		Features: LoadFeatureFlags(),
		Auth: &AuthConfig{
			BasicAuthUser: getEnvWithDefault("SITEBASE_ADMIN_USER", "admin"),
			BasicAuthPass: getEnvWithDefault("SITEBASE_ADMIN_PASS", ""),
		},
		Log: &LogConfig{
			Level: getEnvWithDefault("LOG_LEVEL", "info"),
			File:  getEnvWithDefault("LOG_FILE", ""),
		},
		Addr:         getEnvWithDefault("SITEBASE_ADDR", ":8080"),
		DebugEnabled: getBoolEnvWithDefault("DEBUG", false),
	}

	return cfg
}

// LoadFeatureFlags reads the FEATURE_* toggles
func LoadFeatureFlags() *FeatureFlags {
	return &FeatureFlags{
		DesktopMode:     getFeatureFlag("FEATURE_DESKTOP_MODE"),
		AI:              getFeatureFlag("FEATURE_AI"),
		WorkflowBuilder: getFeatureFlag("FEATURE_WORKFLOW_BUILDER"),
		Marketplace:     getFeatureFlag("FEATURE_MARKETPLACE"),
		Realtime:        getFeatureFlag("FEATURE_REALTIME"),
	}
}

// LogSummary writes the non-secret parts of the configuration to logger
func (c *Config) LogSummary(logger *slog.Logger) {
	logger.Info("configuration loaded",
		"database_mode", c.DatabaseMode,
		"sqlite_path", c.SQLite.Path,
		"supabase_url_set", c.Supabase.URL != "",
		"supabase_anon_key_set", c.Supabase.AnonKey != "",
		"supabase_service_key_set", c.Supabase.ServiceRoleKey != "",
		"admin_auth", c.Auth.Enabled(),
		"addr", c.Addr,
		"debug", c.DebugEnabled,
	)
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnvWithDefault gets a boolean environment variable with a default fallback
func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		slog.Warn("invalid boolean value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

// getDurationEnvWithDefault gets a duration environment variable with a default fallback
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
		slog.Warn("invalid duration value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

// getFeatureFlag is true unless the variable is exactly "false"
func getFeatureFlag(key string) bool {
	return os.Getenv(key) != "false"
}
