package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Gateway modes
const (
	GatewayBridge  = "bridge"
	GatewaySandbox = "sandbox"
)

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	Precheck  PrecheckConfig  `yaml:"precheck"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHash     string        `yaml:"api_key_hash"`     // bcrypt hash, checked when api_key is empty
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Default: 1MB
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // Default: 10MB
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedIPs     []string      `yaml:"allowed_ips"` // empty = allow all
}

// GatewayConfig selects and configures the messaging gateway
type GatewayConfig struct {
	Mode              string        `yaml:"mode"` // bridge or sandbox
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unpaced
	Burst             int           `yaml:"burst"`
}

// SandboxConfig configures the capturing gateway
type SandboxConfig struct {
	UnresolvablePrefixes []string      `yaml:"unresolvable_prefixes"`
	SimulateErrors       bool          `yaml:"simulate_errors"`
	ErrorProbability     float64       `yaml:"error_probability"`
	Latency              time.Duration `yaml:"latency"`
}

// CampaignConfig contains campaign defaults and loop timing
type CampaignConfig struct {
	MediaDir               string        `yaml:"media_dir"`
	DefaultMinDelay        time.Duration `yaml:"default_min_delay"`
	DefaultMaxDelay        time.Duration `yaml:"default_max_delay"`
	DefaultSleepAfterCount int           `yaml:"default_sleep_after_count"`
	DefaultSleepDuration   time.Duration `yaml:"default_sleep_duration"`
	PausePollInterval      time.Duration `yaml:"pause_poll_interval"`
	CooldownCheckInterval  time.Duration `yaml:"cooldown_check_interval"`
}

// PrecheckConfig bounds existence lookups
type PrecheckConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`
}

// RateLimitConfig contains send quota settings
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Global        *LimitValues  `yaml:"global,omitempty"`
	Recipient     *LimitValues  `yaml:"recipient,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// NotifyConfig configures the completion mail
type NotifyConfig struct {
	Enabled       bool       `yaml:"enabled"`
	SMTPAddr      string     `yaml:"smtp_addr"`
	Username      string     `yaml:"username"`
	Password      string     `yaml:"password"`
	From          string     `yaml:"from"`
	To            []string   `yaml:"to"`
	SubjectPrefix string     `yaml:"subject_prefix"`
	DKIM          DKIMConfig `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
	Domain   string `yaml:"domain"`
}

// Load reads, defaults and validates the configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20
	}
	if c.API.MaxUploadBytes == 0 {
		c.API.MaxUploadBytes = 10 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Gateway.Mode == "" {
		c.Gateway.Mode = GatewayBridge
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Gateway.RequestsPerSecond > 0 && c.Gateway.Burst == 0 {
		c.Gateway.Burst = 1
	}

	if c.Sandbox.ErrorProbability == 0 {
		c.Sandbox.ErrorProbability = 0.1
	}

	if c.Campaign.MediaDir == "" {
		c.Campaign.MediaDir = "/var/lib/wabulk/uploads"
	}
	if c.Campaign.DefaultMinDelay == 0 {
		c.Campaign.DefaultMinDelay = 2 * time.Second
	}
	if c.Campaign.DefaultMaxDelay == 0 {
		c.Campaign.DefaultMaxDelay = 5 * time.Second
	}
	if c.Campaign.DefaultSleepAfterCount == 0 {
		c.Campaign.DefaultSleepAfterCount = 10
	}
	if c.Campaign.DefaultSleepDuration == 0 {
		c.Campaign.DefaultSleepDuration = 30 * time.Second
	}
	if c.Campaign.PausePollInterval == 0 {
		c.Campaign.PausePollInterval = 500 * time.Millisecond
	}
	if c.Campaign.CooldownCheckInterval == 0 {
		c.Campaign.CooldownCheckInterval = time.Second
	}

	if c.Precheck.Concurrency == 0 {
		c.Precheck.Concurrency = 8
	}
	if c.Precheck.LookupTimeout == 0 {
		c.Precheck.LookupTimeout = 15 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/wabulk/wabulk.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}

	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Notify.SubjectPrefix == "" {
		c.Notify.SubjectPrefix = "[wabulk]"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateCampaign(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateGateway() error {
	switch c.Gateway.Mode {
	case GatewayBridge:
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required in bridge mode")
		}
	case GatewaySandbox:
		if c.Sandbox.ErrorProbability < 0 || c.Sandbox.ErrorProbability > 1 {
			return fmt.Errorf("sandbox.error_probability must be between 0 and 1")
		}
	default:
		return fmt.Errorf("invalid gateway.mode: %s (must be bridge or sandbox)", c.Gateway.Mode)
	}

	if c.Gateway.RequestsPerSecond < 0 {
		return fmt.Errorf("gateway.requests_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateCampaign() error {
	if c.Campaign.DefaultMinDelay < 0 || c.Campaign.DefaultMaxDelay < c.Campaign.DefaultMinDelay {
		return fmt.Errorf("campaign.default_max_delay must not be below campaign.default_min_delay")
	}
	if c.Campaign.DefaultSleepAfterCount < 0 || c.Campaign.DefaultSleepDuration < 0 {
		return fmt.Errorf("campaign cooldown defaults must not be negative")
	}
	if c.Campaign.CooldownCheckInterval > time.Second {
		return fmt.Errorf("campaign.cooldown_check_interval must be at most 1s")
	}
	if c.Precheck.Concurrency < 0 {
		return fmt.Errorf("precheck.concurrency must not be negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.Global == nil && c.RateLimit.Recipient == nil {
		return fmt.Errorf("rate_limit.global or rate_limit.recipient is required when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if !c.Notify.Enabled {
		return nil
	}
	if c.Notify.SMTPAddr == "" {
		return fmt.Errorf("notify.smtp_addr is required when notify is enabled")
	}
	if c.Notify.From == "" || len(c.Notify.To) == 0 {
		return fmt.Errorf("notify.from and notify.to are required when notify is enabled")
	}

	dkim := c.Notify.DKIM
	if !dkim.Enabled {
		return nil
	}
	if dkim.Selector == "" {
		return fmt.Errorf("notify.dkim.selector is required when DKIM is enabled")
	}
	if dkim.KeyFile == "" {
		return fmt.Errorf("notify.dkim.key_file is required when DKIM is enabled")
	}
	if dkim.Domain == "" {
		return fmt.Errorf("notify.dkim.domain is required when DKIM is enabled")
	}
	return nil
}
