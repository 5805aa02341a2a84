// Package config handles configuration loading, validation, and management for credledger.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete registry configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Storage configuration for the certificate journal.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Hash selects the content and tree hash.
	Hash HashConfig `toml:"hash" json:"hash" yaml:"hash"`

	// Signing configuration for root commitments.
	Signing SigningConfig `toml:"signing" json:"signing" yaml:"signing"`

	// Issuers lists the principals allowed to issue and revoke.
	Issuers IssuersConfig `toml:"issuers" json:"issuers" yaml:"issuers"`

	// Ingest configuration for the request inbox.
	Ingest IngestConfig `toml:"ingest" json:"ingest" yaml:"ingest"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// HashConfig selects the hash codec.
type HashConfig struct {
	// Algorithm is "sha256" (default), "blake2b" or "xorfold".
	// Changing it invalidates every stored content hash.
	Algorithm string `toml:"algorithm" json:"algorithm" yaml:"algorithm"`
}

// SigningConfig holds root signing configuration.
type SigningConfig struct {
	// Enabled signs every published root.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// KeyPath is the path to the Ed25519 private key.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`

	// PublicKeyPath is the path to the Ed25519 public key.
	PublicKeyPath string `toml:"public_key_path" json:"public_key_path" yaml:"public_key_path"`
}

// IssuersConfig holds the authorized issuer list.
type IssuersConfig struct {
	// Authorized caller ids.
	Authorized []string `toml:"authorized" json:"authorized" yaml:"authorized"`
}

// IngestConfig holds the request inbox configuration.
type IngestConfig struct {
	// Dir receives issue-request JSON files.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// DebounceMs is how long a file must be quiet before it is processed.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`

	// AuditPath receives JSON-line audit events for issue and revoke.
	// Empty disables the audit trail.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Enabled records operation metrics.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// TextfilePath is where metrics are written for the node_exporter
	// textfile collector.
	TextfilePath string `toml:"textfile_path" json:"textfile_path" yaml:"textfile_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "credledger.db"),
			BusyTimeoutMs: 5000,
		},
		Hash: HashConfig{
			Algorithm: "sha256",
		},
		Signing: SigningConfig{
			Enabled:       false,
			KeyPath:       filepath.Join(dir, "root_signing_key"),
			PublicKeyPath: filepath.Join(dir, "root_signing_key.pub"),
		},
		Issuers: IssuersConfig{
			Authorized: []string{},
		},
		Ingest: IngestConfig{
			Dir:        filepath.Join(dir, "inbox"),
			DebounceMs: 500,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "credledger.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			TextfilePath: filepath.Join(dir, "metrics", "credledger.prom"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Environment overrides are applied; the result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all directories the registry writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Signing.Enabled {
		dirs = append(dirs, filepath.Dir(c.Signing.KeyPath))
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.Logging.AuditPath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.AuditPath))
	}
	if c.Metrics.Enabled {
		dirs = append(dirs, filepath.Dir(c.Metrics.TextfilePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DataDir returns the base credledger data directory.
// Uses platform-specific paths or the CREDLEDGER_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("CREDLEDGER_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with CREDLEDGER_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CREDLEDGER_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv("CREDLEDGER_HASH_ALGORITHM"); v != "" {
		c.Hash.Algorithm = v
	}

	if v := os.Getenv("CREDLEDGER_SIGNING_KEY_PATH"); v != "" {
		c.Signing.KeyPath = v
		c.Signing.Enabled = true
	}

	// Comma separated
	if v := os.Getenv("CREDLEDGER_AUTHORIZED_ISSUERS"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.Issuers.Authorized = ids
	}

	if v := os.Getenv("CREDLEDGER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CREDLEDGER_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
		c.Logging.Output = "file"
	}
	if v := os.Getenv("CREDLEDGER_AUDIT_PATH"); v != "" {
		c.Logging.AuditPath = v
	}

	if v := os.Getenv("CREDLEDGER_METRICS_TEXTFILE"); v != "" {
		c.Metrics.TextfilePath = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Issuers.Authorized = append([]string{}, c.Issuers.Authorized...)
	return &clone
}

// SaveConfig writes cfg to path, choosing the encoding by extension.
// Unknown extensions are written as TOML.
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(cfg)
		data = []byte(sb.String())
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
