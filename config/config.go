package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Shopify ShopifyConfig
	Feed    FeedConfig
	Sync    SyncConfig
	Catalog CatalogConfig
	Cache   CacheConfig
	Store   StoreConfig
	Events  EventsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ShopifyConfig holds storefront API configuration
type ShopifyConfig struct {
	ShopDomain  string `mapstructure:"shop_domain"`
	AccessToken string `mapstructure:"access_token"`
	APIVersion  string `mapstructure:"api_version"`
	BaseURL     string `mapstructure:"base_url"` // overrides https://<shop>.myshopify.com
}

// FeedConfig holds supplier feed configuration
type FeedConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds pacing and behaviour switches of a sync run
type SyncConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	BatchPause        time.Duration `mapstructure:"batch_pause"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	CleanupImages     bool          `mapstructure:"cleanup_images"`
	CleanupVariants   bool          `mapstructure:"cleanup_variants"`
	Publish           bool          `mapstructure:"publish"`
	Debug             bool          `mapstructure:"debug"`
	SkipUnchanged     bool          `mapstructure:"skip_unchanged"`
	FingerprintTTL    time.Duration `mapstructure:"fingerprint_ttl"`
}

// CatalogConfig holds storefront presentation defaults
type CatalogConfig struct {
	VendorFallback string            `mapstructure:"vendor_fallback"`
	TypeFallback   string            `mapstructure:"type_fallback"`
	DefaultColor   string            `mapstructure:"default_color"`
	GroupByFinish  bool              `mapstructure:"group_by_finish"`
	OpenTag        string            `mapstructure:"open_tag"`
	ClosedTag      string            `mapstructure:"closed_tag"`
	OptionNames    OptionNamesConfig `mapstructure:"option_names"`
}

// OptionNamesConfig holds the localized product option names
type OptionNamesConfig struct {
	Color  string `mapstructure:"color"`
	Size   string `mapstructure:"size"`
	Finish string `mapstructure:"finish"`
}

// CacheConfig holds fingerprint cache configuration
type CacheConfig struct {
	Type     string `mapstructure:"type"` // "memory" or "redis"
	RedisURL string `mapstructure:"redis_url"`
}

// StoreConfig holds run history storage configuration
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "none", "sqlite" or "pgx"
	DSN    string `mapstructure:"dsn"`
}

// EventsConfig holds Kafka outcome publishing configuration
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/feedsync/")

	// Environment variable settings
	v.SetEnvPrefix("FEEDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Events.Brokers = splitList(config.Events.Brokers)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory if present.
// Variables already set in the environment are not overridden.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(".env")
}

// setDefaults sets default configuration values. Every key is registered here so
// AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	// Shopify defaults
	v.SetDefault("shopify.shop_domain", "")
	v.SetDefault("shopify.access_token", "")
	v.SetDefault("shopify.api_version", "2024-07")
	v.SetDefault("shopify.base_url", "")

	// Feed defaults
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.timeout", "60s")

	// Sync defaults
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.batch_pause", "1500ms")
	v.SetDefault("sync.requests_per_second", 2.0)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.backoff_base", "500ms")
	v.SetDefault("sync.backoff_max", "8s")
	v.SetDefault("sync.cleanup_images", false)
	v.SetDefault("sync.cleanup_variants", false)
	v.SetDefault("sync.publish", false)
	v.SetDefault("sync.debug", false)
	v.SetDefault("sync.skip_unchanged", false)
	v.SetDefault("sync.fingerprint_ttl", "24h")

	// Catalog defaults
	v.SetDefault("catalog.vendor_fallback", "SoleDerva")
	v.SetDefault("catalog.type_fallback", "Ayakkabı")
	v.SetDefault("catalog.default_color", "STANDART")
	v.SetDefault("catalog.group_by_finish", true)
	v.SetDefault("catalog.open_tag", "satis:acik")
	v.SetDefault("catalog.closed_tag", "satis:kapali")
	v.SetDefault("catalog.option_names.color", "Renk")
	v.SetDefault("catalog.option_names.size", "Beden")
	v.SetDefault("catalog.option_names.finish", "Model")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")

	// Store defaults
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.dsn", "")

	// Events defaults
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "feedsync.products")
}

// splitList expands comma separated entries coming from a single env var
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Shopify.ShopDomain == "" {
		return fmt.Errorf("shop domain is required (set FEEDSYNC_SHOPIFY_SHOP_DOMAIN)")
	}

	if config.Shopify.AccessToken == "" {
		return fmt.Errorf("access token is required (set FEEDSYNC_SHOPIFY_ACCESS_TOKEN)")
	}

	if config.Feed.URL == "" {
		return fmt.Errorf("feed URL is required (set FEEDSYNC_FEED_URL)")
	}

	if config.Sync.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got: %d", config.Sync.BatchSize)
	}

	if config.Sync.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got: %v", config.Sync.RequestsPerSecond)
	}

	if config.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got: %d", config.Sync.MaxAttempts)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	switch config.Store.Driver {
	case "none":
	case "sqlite", "pgx":
		if config.Store.DSN == "" {
			return fmt.Errorf("store DSN is required when store driver is '%s'", config.Store.Driver)
		}
	default:
		return fmt.Errorf("store driver must be 'none', 'sqlite' or 'pgx', got: %s", config.Store.Driver)
	}

	return nil
}

// ShopBaseURL returns the admin API host for the configured shop
func (c ShopifyConfig) ShopBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	shop := strings.TrimPrefix(c.ShopDomain, "https://")
	shop = strings.TrimSuffix(shop, ".myshopify.com")
	return fmt.Sprintf("https://%s.myshopify.com", shop)
}
