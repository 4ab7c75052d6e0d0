package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProxyConfig controls the MITM proxy listener and engine behavior.
type ProxyConfig struct {
	Port               int    `yaml:"port" env:"PROXY_PORT"`
	HTTPSMitmEnabled   bool   `yaml:"https_mitm_enabled" env:"PROXY_HTTPS_MITM_ENABLED"`
	SystemProxyEnabled bool   `yaml:"system_proxy_enabled" env:"PROXY_SYSTEM_PROXY_ENABLED"`
	UpstreamDialTimeout string `yaml:"upstream_dial_timeout" env:"PROXY_UPSTREAM_DIAL_TIMEOUT"`
}

// RecorderConfig controls the in-memory request recorder.
type RecorderConfig struct {
	MaxRequestRecords int `yaml:"max_request_records" env:"RECORDER_MAX_REQUEST_RECORDS"`
}

// CAConfig controls certificate authority material and leaf cert caching.
type CAConfig struct {
	StoreDir      string `yaml:"store_dir" env:"CA_STORE_DIR"`
	LeafCacheTTL  string `yaml:"leaf_cache_ttl" env:"CA_LEAF_CACHE_TTL"`
	LeafCacheSize int    `yaml:"leaf_cache_size" env:"CA_LEAF_CACHE_SIZE"`
}

// AdminAPIConfig controls the operator-facing control/admin HTTP API.
type AdminAPIConfig struct {
	Port            int      `yaml:"port" env:"ADMIN_API_PORT"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RateLimitPerSec int      `yaml:"rate_limit_per_sec" env:"ADMIN_API_RATE_LIMIT_PER_SEC"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// SandboxConfig controls the script sandbox execution budget.
type SandboxConfig struct {
	TimeoutMillis int `yaml:"timeout_millis" env:"SANDBOX_TIMEOUT_MILLIS"`
}

// Source is the engine-facing view onto configuration: callers ask for a
// typed key with a default rather than reaching into Config's concrete
// fields, so internal packages can be tested against a stub Source without
// depending on env/YAML loading at all.
type Source interface {
	Int(key string, def int) int
	Bool(key string, def bool) bool
	String(key string, def string) string
}

var _ Source = (*Config)(nil)

// Config is the top-level configuration for cmd/proxyd.
type Config struct {
	Proxy    ProxyConfig    `yaml:"proxy"`
	Recorder RecorderConfig `yaml:"recorder"`
	CA       CAConfig       `yaml:"ca"`
	AdminAPI AdminAPIConfig `yaml:"admin_api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Port:                8080,
			HTTPSMitmEnabled:    true,
			SystemProxyEnabled:  false,
			UpstreamDialTimeout: "30s",
		},
		Recorder: RecorderConfig{
			MaxRequestRecords: 2000,
		},
		CA: CAConfig{
			StoreDir:      "./data/ca",
			LeafCacheTTL:  "1h",
			LeafCacheSize: 256,
		},
		AdminAPI: AdminAPIConfig{
			Port:            8081,
			CORSOrigins:     []string{"*"},
			RateLimitPerSec: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sandbox: SandboxConfig{
			TimeoutMillis: 2000,
		},
	}
}

// Load loads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when none of the tagged fields have a matching
		// environment variable set; treat that as "no overrides" so local
		// runs work without exporting anything.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults for anything unset.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Int implements the engine's ConfigSource interface.
func (c *Config) Int(key string, def int) int {
	switch key {
	case "proxyPort":
		return c.Proxy.Port
	case "maxRequestRecords":
		return c.Recorder.MaxRequestRecords
	case "adminApiPort":
		return c.AdminAPI.Port
	case "caLeafCacheSize":
		return c.CA.LeafCacheSize
	case "sandboxTimeoutMillis":
		return c.Sandbox.TimeoutMillis
	default:
		return def
	}
}

// Bool implements the engine's ConfigSource interface.
func (c *Config) Bool(key string, def bool) bool {
	switch key {
	case "httpsMitmEnabled":
		return c.Proxy.HTTPSMitmEnabled
	case "systemProxyEnabled":
		return c.Proxy.SystemProxyEnabled
	default:
		return def
	}
}

// String implements the engine's ConfigSource interface.
func (c *Config) String(key string, def string) string {
	switch key {
	case "logLevel":
		return c.Logging.Level
	case "logFormat":
		return c.Logging.Format
	case "caStoreDir":
		return c.CA.StoreDir
	case "caLeafCacheTTL":
		return c.CA.LeafCacheTTL
	case "upstreamDialTimeout":
		return c.Proxy.UpstreamDialTimeout
	default:
		return def
	}
}
