package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// VaultConfig holds configuration for the provider credential vault.
type VaultConfig struct {
	DisableKeyThreshold int `yaml:"disable_key_threshold"`
	// EncryptionKey is a base64 encoded 32 byte key used to seal provider secrets.
	EncryptionKey string `yaml:"encryption_key"`
	// RevivalSchedule is a cron spec for probing disabled keys. Empty disables revival.
	RevivalSchedule        string `yaml:"revival_schedule"`
	RevivalCooldownMinutes int    `yaml:"revival_cooldown_minutes"`
}

// ProvidersConfig holds per-vendor model names and call limits.
type ProvidersConfig struct {
	GeminiModel    string `yaml:"gemini_model"`
	OpenAIModel    string `yaml:"openai_model"`
	ClaudeModel    string `yaml:"claude_model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GenerationConfig controls how pipeline stages are executed.
type GenerationConfig struct {
	// Consistency is either "at_least_once" or "serialized".
	Consistency     string `yaml:"consistency"`
	RedisAddr       string `yaml:"redis_addr"`
	LeaseTTLSeconds int    `yaml:"lease_ttl_seconds"`
}

// PublisherConfig holds configuration for the CMS publisher.
type PublisherConfig struct {
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	HeadingColors  []string `yaml:"heading_colors"`
	Archive        S3Config `yaml:"archive"`
}

// S3Config describes the optional bucket that receives published HTML.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether an archive bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// AdminConfig holds configuration for the admin panel.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// Config holds the configuration for the content service.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Vault      VaultConfig      `yaml:"vault"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Admin      AdminConfig      `yaml:"admin"`
	Port       int              `yaml:"port"`
	Debug      bool             `yaml:"debug"`
}

const (
	ConsistencyAtLeastOnce = "at_least_once"
	ConsistencySerialized  = "serialized"
)

// DefaultHeadingColors is the palette article headings are coloured from.
var DefaultHeadingColors = []string{
	"#1a73e8", "#e91e63", "#4caf50", "#ff9800", "#9c27b0",
	"#00bcd4", "#f44336", "#3f51b5", "#009688", "#ff5722",
	"#673ab7", "#2196f3", "#8bc34a", "#ffc107", "#795548",
}

// envOverrides mirrors the settings that may be overridden from the environment.
// Empty values leave the file configuration untouched.
type envOverrides struct {
	DatabaseType     string `envconfig:"DATABASE_TYPE"`
	DatabaseDSN      string `envconfig:"DATABASE_DSN"`
	Port             int    `envconfig:"PORT"`
	Debug            string `envconfig:"DEBUG"`
	AdminPassword    string `envconfig:"ADMIN_PASSWORD"`
	EncryptionKey    string `envconfig:"VAULT_ENCRYPTION_KEY"`
	RedisAddr        string `envconfig:"REDIS_ADDR"`
	Consistency      string `envconfig:"CONSISTENCY"`
	ArchiveAccessKey string `envconfig:"ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `envconfig:"ARCHIVE_SECRET_KEY"`
}

// LoadConfig reads and parses the configuration file. It returns the config and the
// warnings produced while filling defaults.
var LoadConfig = func(path string) (*Config, []string, error) {
	var config Config
	var warnings []string

	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If the file does not exist we continue with an empty config and rely on the environment.

	var env envOverrides
	if err := envconfig.Process("CONTENTMILL", &env); err != nil {
		return nil, nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	applyOverrides(&config, env)

	warnings = append(warnings, config.applyDefaults()...)

	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, warnings, fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if err := config.validate(); err != nil {
		return nil, warnings, err
	}

	return &config, warnings, nil
}

func applyOverrides(config *Config, env envOverrides) {
	if env.DatabaseDSN != "" {
		config.Database.DSN = env.DatabaseDSN
	}
	if env.DatabaseType != "" {
		config.Database.Type = env.DatabaseType
	}
	if env.Port != 0 {
		config.Port = env.Port
	}
	if env.Debug != "" {
		config.Debug = env.Debug == "true"
	}
	if env.AdminPassword != "" {
		config.Admin.Password = env.AdminPassword
	}
	if env.EncryptionKey != "" {
		config.Vault.EncryptionKey = env.EncryptionKey
	}
	if env.RedisAddr != "" {
		config.Generation.RedisAddr = env.RedisAddr
	}
	if env.Consistency != "" {
		config.Generation.Consistency = env.Consistency
	}
	if env.ArchiveAccessKey != "" {
		config.Publisher.Archive.AccessKey = env.ArchiveAccessKey
	}
	if env.ArchiveSecretKey != "" {
		config.Publisher.Archive.SecretKey = env.ArchiveSecretKey
	}
}

func (c *Config) applyDefaults() []string {
	var warnings []string
	if c.Vault.DisableKeyThreshold == 0 {
		c.Vault.DisableKeyThreshold = 5
		warnings = append(warnings, "vault.disable_key_threshold not set, using default value of 5")
	}
	if c.Vault.RevivalCooldownMinutes == 0 {
		c.Vault.RevivalCooldownMinutes = 60
	}
	if c.Port == 0 {
		c.Port = 9595
	}
	if c.Providers.GeminiModel == "" {
		c.Providers.GeminiModel = "gemini-2.0-flash"
	}
	if c.Providers.OpenAIModel == "" {
		c.Providers.OpenAIModel = "gpt-4o-mini"
	}
	if c.Providers.ClaudeModel == "" {
		c.Providers.ClaudeModel = "claude-sonnet-4-20250514"
	}
	if c.Providers.MaxTokens == 0 {
		c.Providers.MaxTokens = 8000
	}
	if c.Providers.TimeoutSeconds == 0 {
		c.Providers.TimeoutSeconds = 120
	}
	if c.Generation.Consistency == "" {
		c.Generation.Consistency = ConsistencyAtLeastOnce
	}
	if c.Generation.LeaseTTLSeconds == 0 {
		c.Generation.LeaseTTLSeconds = 600
	}
	if c.Publisher.TimeoutSeconds == 0 {
		c.Publisher.TimeoutSeconds = 30
	}
	if len(c.Publisher.HeadingColors) == 0 {
		c.Publisher.HeadingColors = DefaultHeadingColors
	}
	if c.Vault.EncryptionKey == "" {
		warnings = append(warnings, "vault.encryption_key not set, a temporary key will be generated and stored secrets will not survive a restart")
	}
	return warnings
}

func (c *Config) validate() error {
	switch c.Generation.Consistency {
	case ConsistencyAtLeastOnce, ConsistencySerialized:
	default:
		return fmt.Errorf("generation.consistency must be %q or %q, got %q", ConsistencyAtLeastOnce, ConsistencySerialized, c.Generation.Consistency)
	}
	if c.Vault.EncryptionKey != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Vault.EncryptionKey))
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("vault.encryption_key must be 32 bytes encoded as base64")
		}
	}
	if c.Publisher.Archive.Enabled() && c.Publisher.Archive.Region == "" {
		return fmt.Errorf("publisher.archive.region is required when an archive bucket is configured")
	}
	return nil
}
