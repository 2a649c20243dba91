package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	envSecretKey = "DOCUBEAUTY_SECRET_KEY"
	envRedisURL  = "REDIS_URL"

	defaultListen          = ":8080"
	defaultDescFileName    = "description.md"
	defaultMetaFileName    = "categories.yml"
	defaultManifestName    = "manifest.json"
	defaultMaxCategories   = 100
	defaultTokenTTLSeconds = 7 * 24 * 3600
)

// ScannerConfig drives the filesystem catalog scanner.
type ScannerConfig struct {
	ProductsRoot  string   `yaml:"products_root"`
	StaticDir     string   `yaml:"static_dir"` // card / thumbnail images live under <static_dir>/cards
	MetaFileName  string   `yaml:"meta_filename"`
	DescFileName  string   `yaml:"desc_filename"`
	MaxCategories int      `yaml:"max_categories"`
	SkipFiles     []string `yaml:"skip_files"`
}

// StoreConfig locates the override documents.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// CacheConfig locates the bundle / extraction cache.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// DeliveryConfig drives token signing and file resolution.
type DeliveryConfig struct {
	GoodsDir         string `yaml:"goods_dir"`
	ManifestFileName string `yaml:"manifest_filename"`
	TokenTTLSeconds  int    `yaml:"token_ttl_seconds"`
	SecretKey        string `yaml:"secret_key"`
	PaymentVerifyURL string `yaml:"payment_verify_url"`
}

func (c *DeliveryConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

type Config struct {
	Listen   string         `yaml:"listen"`
	LogLevel string         `yaml:"log_level"`
	RedisURL string         `yaml:"redis_url"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.Scanner.DescFileName == "" {
		c.Scanner.DescFileName = defaultDescFileName
	}
	if c.Scanner.MetaFileName == "" {
		c.Scanner.MetaFileName = defaultMetaFileName
	}
	if c.Scanner.MaxCategories < 1 {
		c.Scanner.MaxCategories = defaultMaxCategories
	}
	if c.Delivery.ManifestFileName == "" {
		c.Delivery.ManifestFileName = defaultManifestName
	}
	if c.Delivery.TokenTTLSeconds < 1 {
		c.Delivery.TokenTTLSeconds = defaultTokenTTLSeconds
	}
}

// MustLoad reads the YAML config, overlays a .env file if present and applies
// env overrides for secrets. Panics on a broken document: there is nothing
// useful to do without a config.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	// Best effort: a missing .env is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	if v := os.Getenv(envSecretKey); v != "" {
		cfg.Delivery.SecretKey = v
	}
	if v := os.Getenv(envRedisURL); v != "" {
		cfg.RedisURL = v
	}

	cfg.SetDefaults()

	if cfg.Delivery.SecretKey == "" {
		return nil, fmt.Errorf("secret key is not set (config delivery.secret_key or %s)", envSecretKey)
	}

	return &cfg, nil
}
