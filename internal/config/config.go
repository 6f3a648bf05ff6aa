package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// devSessionSecret signs session tokens when GOALBOARD_DEV_MODE=true and no
// secret is configured. Never use it outside development.
const devSessionSecret = "goalboard-dev-session-secret"

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Auth            AuthConfig            `yaml:"auth"`
	Stores          StoresConfig          `yaml:"stores"`
	Bus             BusConfig             `yaml:"bus"`
	Worker          WorkerConfig          `yaml:"worker"`
	SnapshotStorage SnapshotStorageConfig `yaml:"snapshot_storage"`
	Log             LogConfig             `yaml:"log"`
	Client          ClientConfig          `yaml:"client"`
	Preferences     PreferencesConfig     `yaml:"preferences"`
	Export          ExportConfig          `yaml:"export"`

	// DevMode relaxes secret requirements. Env-only.
	DevMode bool `yaml:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	ReadTimeout Duration `yaml:"read_timeout"`
	// WriteTimeout of zero leaves watch streams open indefinitely.
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	Heartbeat       Duration `yaml:"heartbeat"`
}

// AuthConfig contains token signing settings. Secrets are env-only.
type AuthConfig struct {
	SessionSecret     string   `yaml:"-"`
	CustomTokenSecret string   `yaml:"-"`
	AdminKey          string   `yaml:"-"`
	CustomTokenIssuer string   `yaml:"custom_token_issuer"`
	TokenTTL          Duration `yaml:"token_ttl"`
}

// StoresConfig contains namespace storage settings.
type StoresConfig struct {
	RootPath string `yaml:"root_path"`
}

// BusConfig selects the change fan-out. An empty AMQP URL keeps fan-out in process.
type BusConfig struct {
	AMQPURL  string `yaml:"-"` // env-only, carries credentials
	Exchange string `yaml:"exchange"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SnapshotInterval   Duration `yaml:"snapshot_interval"`
	CompactionInterval Duration `yaml:"compaction_interval"`
	// ChangeLogRetention of zero disables compaction.
	ChangeLogRetention Duration `yaml:"change_log_retention"`
}

// SnapshotStorageConfig contains S3-compatible snapshot upload settings.
// An empty bucket disables uploads.
type SnapshotStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"`
	SecretKey string   `yaml:"-"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig contains dashboard client settings.
type ClientConfig struct {
	// BackendURL is the document service. Empty leaves the dashboard offline.
	BackendURL string `yaml:"backend_url"`
	// Local serves documents in process from Stores.RootPath instead of BackendURL.
	Local            bool     `yaml:"local"`
	App              string   `yaml:"app"`
	CustomToken      string   `yaml:"-"` // env-only
	SessionCachePath string   `yaml:"session_cache_path"`
	RequestTimeout   Duration `yaml:"request_timeout"`
}

// PreferencesConfig locates the display preference file.
type PreferencesConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig contains report export settings.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
	// SheetsCredentialsFile is a Google service account JSON key.
	SheetsCredentialsFile string `yaml:"sheets_credentials_file"`
	SpreadsheetID         string `yaml:"spreadsheet_id"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("GOALBOARD_CONFIG_PATH", "config/goalboard.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	return finish(cfg)
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and an explicit config path.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if cfg.DevMode && cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = devSessionSecret
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxBodyBytes:    1 << 20,
			Heartbeat:       Duration(25 * time.Second),
		},
		Auth: AuthConfig{
			TokenTTL: Duration(30 * 24 * time.Hour),
		},
		Stores: StoresConfig{
			RootPath: "~/.goalboard/apps",
		},
		Bus: BusConfig{
			Exchange: "goalboard.changes",
		},
		Worker: WorkerConfig{
			SnapshotInterval:   Duration(1 * time.Hour),
			CompactionInterval: Duration(24 * time.Hour),
			ChangeLogRetention: Duration(30 * 24 * time.Hour),
		},
		SnapshotStorage: SnapshotStorageConfig{
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			BackendURL:       "http://localhost:8080",
			App:              "default-pm-app-mtid",
			SessionCachePath: "~/.goalboard/session.yaml",
			RequestTimeout:   Duration(15 * time.Second),
		},
		Preferences: PreferencesConfig{
			Path: "~/.goalboard/preferences.yaml",
		},
		Export: ExportConfig{
			OutputDir: ".",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("GOALBOARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("GOALBOARD_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("GOALBOARD_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("GOALBOARD_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envDuration("GOALBOARD_HEARTBEAT", &cfg.Server.Heartbeat)

	// Auth
	envString("GOALBOARD_SESSION_SECRET", &cfg.Auth.SessionSecret)
	envString("GOALBOARD_CUSTOM_TOKEN_SECRET", &cfg.Auth.CustomTokenSecret)
	envString("GOALBOARD_CUSTOM_TOKEN_ISSUER", &cfg.Auth.CustomTokenIssuer)
	envString("GOALBOARD_ADMIN_KEY", &cfg.Auth.AdminKey)
	envDuration("GOALBOARD_TOKEN_TTL", &cfg.Auth.TokenTTL)

	// Stores
	envString("GOALBOARD_STORES_ROOT", &cfg.Stores.RootPath)

	// Bus
	envString("GOALBOARD_AMQP_URL", &cfg.Bus.AMQPURL)
	envString("GOALBOARD_AMQP_EXCHANGE", &cfg.Bus.Exchange)

	// Worker
	envDuration("GOALBOARD_SNAPSHOT_INTERVAL", &cfg.Worker.SnapshotInterval)
	envDuration("GOALBOARD_COMPACTION_INTERVAL", &cfg.Worker.CompactionInterval)
	envDuration("GOALBOARD_CHANGE_LOG_RETENTION", &cfg.Worker.ChangeLogRetention)

	// Snapshot storage
	envString("GOALBOARD_SNAPSHOT_BUCKET", &cfg.SnapshotStorage.Bucket)
	envString("GOALBOARD_S3_ENDPOINT", &cfg.SnapshotStorage.Endpoint)
	envString("GOALBOARD_S3_REGION", &cfg.SnapshotStorage.Region)
	envString("GOALBOARD_S3_ACCESS_KEY", &cfg.SnapshotStorage.AccessKey)
	envString("GOALBOARD_S3_SECRET_KEY", &cfg.SnapshotStorage.SecretKey)
	if v := os.Getenv("GOALBOARD_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.SnapshotStorage.UseSSL = &useSSL
	}
	envDuration("GOALBOARD_S3_URL_EXPIRY", &cfg.SnapshotStorage.URLExpiry)

	// Log
	envString("GOALBOARD_LOG_LEVEL", &cfg.Log.Level)
	envString("GOALBOARD_LOG_FORMAT", &cfg.Log.Format)

	// Client
	envString("GOALBOARD_BACKEND_URL", &cfg.Client.BackendURL)
	if v := os.Getenv("GOALBOARD_LOCAL"); v != "" {
		cfg.Client.Local = v == "true" || v == "1"
	}
	envString("GOALBOARD_APP", &cfg.Client.App)
	envString("GOALBOARD_CUSTOM_TOKEN", &cfg.Client.CustomToken)
	envString("GOALBOARD_SESSION_CACHE", &cfg.Client.SessionCachePath)
	envDuration("GOALBOARD_REQUEST_TIMEOUT", &cfg.Client.RequestTimeout)

	// Preferences and export
	envString("GOALBOARD_PREFERENCES_PATH", &cfg.Preferences.Path)
	envString("GOALBOARD_EXPORT_DIR", &cfg.Export.OutputDir)
	envString("GOALBOARD_SHEETS_CREDENTIALS", &cfg.Export.SheetsCredentialsFile)
	envString("GOALBOARD_SPREADSHEET_ID", &cfg.Export.SpreadsheetID)

	cfg.DevMode = os.Getenv("GOALBOARD_DEV_MODE") == "true"
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// expandPaths resolves a leading "~/" in file locations.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Stores.RootPath,
		&c.Client.SessionCachePath,
		&c.Preferences.Path,
		&c.Export.SheetsCredentialsFile,
	} {
		if !strings.HasPrefix(*p, "~/") {
			continue
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		*p = filepath.Join(home, (*p)[2:])
	}
	return nil
}

// validate checks values every command depends on.
func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Worker.SnapshotInterval <= 0 {
		return errors.New("worker.snapshot_interval must be positive")
	}
	if c.Worker.ChangeLogRetention > 0 && c.Worker.CompactionInterval <= 0 {
		return errors.New("worker.compaction_interval must be positive when retention is set")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Client.App == "" {
		return errors.New("client.app is required")
	}
	return nil
}

// ValidateServer checks the settings required to serve documents.
// In dev mode (GOALBOARD_DEV_MODE=true) a built-in session secret is used.
func (c *Config) ValidateServer() error {
	if c.Auth.SessionSecret == "" {
		return errors.New("GOALBOARD_SESSION_SECRET is required")
	}
	if len(c.Auth.SessionSecret) < 16 {
		return errors.New("GOALBOARD_SESSION_SECRET must be at least 16 bytes")
	}
	if c.SnapshotStorage.Bucket != "" && c.SnapshotStorage.Endpoint == "" {
		return errors.New("snapshot_storage.endpoint is required when a bucket is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
