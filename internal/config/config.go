package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"logi-track/internal/email"
)

const DEFAULT_SUPPORT_URL = "https://github.com/logi-track/logi-track"
const QR_IMAGE_SIZE = 256

type RBACConfig struct {
	PolicyFile string   `mapstructure:"policy_file"` // Path to the RBAC policy file. Empty uses the embedded policy.
	Admins     []string `mapstructure:"admins"`      // Emails promoted to admin at startup
}

type TMSConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	// Request timeout in seconds
	Timeout       uint   `mapstructure:"timeout"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// Number of shipments reconciled in parallel
	Concurrency int `mapstructure:"concurrency"`
	// Cron expression for the background sync. Empty disables it.
	SyncSchedule string `mapstructure:"sync_schedule"`
}

// Configured reports whether the TMS client can be built.
func (t TMSConfig) Configured() bool {
	return t.URL != "" && t.APIKey != ""
}

type Config struct {
	// Secret key for signing tokens. Must be set in production.
	Secret     string `mapstructure:"secret"`
	NonceStore string `mapstructure:"nonce_store"`
	RedisURL   string `mapstructure:"redis_url"`
	LogLevel   string `mapstructure:"log_level"`
	// Optional log file, rotated by size.
	LogFile string `mapstructure:"log_file"`

	Listen string `mapstructure:"listen"`

	// Comma separated list of allowed CIDR networks. Empty means allow all.
	AllowedNetworks string `mapstructure:"allowed_networks"`

	RBAC RBACConfig `mapstructure:"rbac"`

	// User authentication TTL in days.
	UserAuthTTL uint `mapstructure:"user_auth_ttl"`
	// Magic link TTL in hours.
	MagicLinkTTL uint `mapstructure:"magic_link_ttl"`

	BaseURL    string `mapstructure:"base_url"` // Absolute base URL used in emails and QR labels, e.g. https://portal.example.com
	SupportURL string `mapstructure:"support_url"`

	Storage   Storage   `mapstructure:"storage"`
	Documents Documents `mapstructure:"documents"`
	TMS       TMSConfig `mapstructure:"tms"`

	Email email.SMTPConfig `mapstructure:"email"`
}

var Cfg *Config

// Check if running in Docker container by checking for the presence of /.dockerenv file
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

func getConfigPath() string {
	if runningInDocker() {
		return "/app/instance"
	}
	return "./instance"
}

// LoadConfig reads configuration from config.yaml, .env and environment variables.
// Environment variables use the key with dots replaced by underscores, e.g. TMS_API_KEY.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getConfigPath())
	v.AddConfigPath(".")

	for _, path := range configFile {
		if path != "" {
			v.SetConfigFile(path)
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Convert relative sqlite path to absolute instance folder
	if path := cfg.Storage.SQLite.Path; path != "" && path != ":memory:" && !filepath.IsAbs(path) {
		cfg.Storage.SQLite.Path = filepath.Join(getConfigPath(), path)
	}
	if path := cfg.Documents.Local.Path; path != "" && !filepath.IsAbs(path) {
		cfg.Documents.Local.Path = filepath.Join(getConfigPath(), path)
	}

	if cfg.TMS.Concurrency < 1 {
		slog.Warn("tms.concurrency must be at least 1", slog.Int("actual", cfg.TMS.Concurrency))
		cfg.TMS.Concurrency = 1
	}

	// Warn if secret is missing - this is a critical security setting for production
	if cfg.Secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			return nil, errors.New("SECRET configuration variable is required in production")
		}
		slog.Warn("Secret is not set. Do not use in production.")
	}

	return &cfg, nil
}
