package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete entitlement daemon configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Product ProductConfig `yaml:"product" envconfig:"PRODUCT"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Trial   TrialConfig   `yaml:"trial" envconfig:"TRIAL"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains the localhost HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"48751"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"5"`
}

// ProductConfig identifies the product against the license verification API.
// When both ID and Permalink are empty, entitlement enforcement is disabled
// and the engine reports full access unconditionally.
type ProductConfig struct {
	ID        string `yaml:"id" envconfig:"ID"`
	Permalink string `yaml:"permalink" envconfig:"PERMALINK"`
	BundleID  string `yaml:"bundle_id" envconfig:"BUNDLE_ID" default:"com.droppy.app"`
	Version   string `yaml:"version" envconfig:"VERSION" default:"dev"`
}

// LicenseConfig contains the seat-claim protocol configuration
type LicenseConfig struct {
	VerifyEndpoint       string        `yaml:"verify_endpoint" envconfig:"VERIFY_ENDPOINT" default:"https://api.gumroad.com/v2/licenses/verify"`
	RequestTimeout       time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"15s"`
	MaxDeviceActivations int           `yaml:"max_device_activations" envconfig:"MAX_DEVICE_ACTIVATIONS" default:"1"`
}

// TrialConfig contains the trial entitlement configuration. Endpoint is
// optional; when empty the trial clock is purely local.
type TrialConfig struct {
	Endpoint          string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	APIKey            string        `yaml:"api_key" envconfig:"API_KEY"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"15s"`
	Duration          time.Duration `yaml:"duration" envconfig:"DURATION" default:"72h"`
	RollbackTolerance time.Duration `yaml:"rollback_tolerance" envconfig:"ROLLBACK_TOLERANCE" default:"5m"`
	RemoteGraceWindow time.Duration `yaml:"remote_grace_window" envconfig:"REMOTE_GRACE_WINDOW" default:"24h"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/droppyd.log"`
}

// PathsConfig contains file system paths for the redundant local stores
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	SecureStore   string `yaml:"secure_store" envconfig:"SECURE_STORE" default:"entitlement.sec"`
	SettingsDB    string `yaml:"settings_db" envconfig:"SETTINGS_DB" default:"settings.db"`
	TrialMarker   string `yaml:"trial_marker" envconfig:"TRIAL_MARKER" default:".trial-consumed"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// RemoteTrialMode reports whether a server-authoritative trial service is
// configured.
func (c *Config) RemoteTrialMode() bool {
	return c.Trial.Endpoint != ""
}

// EnforcementDisabled reports whether the product is entirely unconfigured,
// which switches entitlement enforcement off.
func (c *Config) EnforcementDisabled() bool {
	return c.Product.ID == "" && c.Product.Permalink == ""
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("DROPPY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays file values onto the env-derived config. envconfig
// fills struct defaults for unset variables, so a file value wins whenever
// the env side still carries the default; an env var explicitly set to the
// default value is indistinguishable from an unset one and loses to the file.
func mergeConfigs(fileConfig, envConfig Config) Config {
	def := Default()
	merged := envConfig

	overlay(&merged.Server.Port, fileConfig.Server.Port, def.Server.Port)
	overlay(&merged.Server.ReadTimeout, fileConfig.Server.ReadTimeout, def.Server.ReadTimeout)
	overlay(&merged.Server.WriteTimeout, fileConfig.Server.WriteTimeout, def.Server.WriteTimeout)
	overlay(&merged.Server.IdleTimeout, fileConfig.Server.IdleTimeout, def.Server.IdleTimeout)
	overlay(&merged.Server.ShutdownTimeout, fileConfig.Server.ShutdownTimeout, def.Server.ShutdownTimeout)
	overlay(&merged.Server.RateLimitRPS, fileConfig.Server.RateLimitRPS, def.Server.RateLimitRPS)
	overlay(&merged.Server.RateLimitBurst, fileConfig.Server.RateLimitBurst, def.Server.RateLimitBurst)

	overlay(&merged.Product.ID, fileConfig.Product.ID, def.Product.ID)
	overlay(&merged.Product.Permalink, fileConfig.Product.Permalink, def.Product.Permalink)
	overlay(&merged.Product.BundleID, fileConfig.Product.BundleID, def.Product.BundleID)
	overlay(&merged.Product.Version, fileConfig.Product.Version, def.Product.Version)

	overlay(&merged.License.VerifyEndpoint, fileConfig.License.VerifyEndpoint, def.License.VerifyEndpoint)
	overlay(&merged.License.RequestTimeout, fileConfig.License.RequestTimeout, def.License.RequestTimeout)
	overlay(&merged.License.MaxDeviceActivations, fileConfig.License.MaxDeviceActivations, def.License.MaxDeviceActivations)

	overlay(&merged.Trial.Endpoint, fileConfig.Trial.Endpoint, def.Trial.Endpoint)
	overlay(&merged.Trial.APIKey, fileConfig.Trial.APIKey, def.Trial.APIKey)
	overlay(&merged.Trial.RequestTimeout, fileConfig.Trial.RequestTimeout, def.Trial.RequestTimeout)
	overlay(&merged.Trial.Duration, fileConfig.Trial.Duration, def.Trial.Duration)
	overlay(&merged.Trial.RollbackTolerance, fileConfig.Trial.RollbackTolerance, def.Trial.RollbackTolerance)
	overlay(&merged.Trial.RemoteGraceWindow, fileConfig.Trial.RemoteGraceWindow, def.Trial.RemoteGraceWindow)

	overlay(&merged.Logging.Level, fileConfig.Logging.Level, def.Logging.Level)
	overlay(&merged.Logging.Format, fileConfig.Logging.Format, def.Logging.Format)
	overlay(&merged.Logging.Output, fileConfig.Logging.Output, def.Logging.Output)
	overlay(&merged.Logging.FilePath, fileConfig.Logging.FilePath, def.Logging.FilePath)

	overlay(&merged.Paths.ExecutableDir, fileConfig.Paths.ExecutableDir, def.Paths.ExecutableDir)
	overlay(&merged.Paths.SecureStore, fileConfig.Paths.SecureStore, def.Paths.SecureStore)
	overlay(&merged.Paths.SettingsDB, fileConfig.Paths.SettingsDB, def.Paths.SettingsDB)
	overlay(&merged.Paths.TrialMarker, fileConfig.Paths.TrialMarker, def.Paths.TrialMarker)
	overlay(&merged.Paths.LogsDir, fileConfig.Paths.LogsDir, def.Paths.LogsDir)

	return merged
}

// overlay replaces *dst with the file value when dst still holds the default
func overlay[T comparable](dst *T, file, def T) {
	var zero T
	if file == zero {
		return
	}
	if *dst == def {
		*dst = file
	}
}

// resolvePaths anchors relative store paths at the executable directory
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	c.Paths.ExecutableDir = paths.ExecutableDir
	c.Paths.SecureStore = paths.Resolve(c.Paths.SecureStore)
	c.Paths.SettingsDB = paths.Resolve(c.Paths.SettingsDB)
	c.Paths.TrialMarker = paths.Resolve(c.Paths.TrialMarker)
	c.Paths.LogsDir = paths.Resolve(c.Paths.LogsDir)

	return nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.License.MaxDeviceActivations < 1 {
		return fmt.Errorf("max device activations must be at least 1, got %d", c.License.MaxDeviceActivations)
	}

	if c.Trial.Duration <= 0 {
		return fmt.Errorf("trial duration must be positive")
	}

	if c.Trial.RollbackTolerance < 0 {
		return fmt.Errorf("rollback tolerance must not be negative")
	}

	if c.Trial.RemoteGraceWindow <= 0 {
		return fmt.Errorf("remote grace window must be positive")
	}

	if c.Logging.Format != "json" {
		// Structured output only; the host parses these logs.
		c.Logging.Format = "json"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/droppyd.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            48751,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    2,
			RateLimitBurst:  5,
		},
		Product: ProductConfig{
			BundleID: "com.droppy.app",
			Version:  "dev",
		},
		License: LicenseConfig{
			VerifyEndpoint:       "https://api.gumroad.com/v2/licenses/verify",
			RequestTimeout:       15 * time.Second,
			MaxDeviceActivations: 1,
		},
		Trial: TrialConfig{
			RequestTimeout:    15 * time.Second,
			Duration:          72 * time.Hour,
			RollbackTolerance: 5 * time.Minute,
			RemoteGraceWindow: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/droppyd.log",
		},
		Paths: PathsConfig{
			SecureStore: "entitlement.sec",
			SettingsDB:  "settings.db",
			TrialMarker: ".trial-consumed",
			LogsDir:     "logs",
		},
	}
}
