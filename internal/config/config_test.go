package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
api:
  listen_addr: ":9000"
  api_key: "secret"
  allowed_ips: ["10.0.0.0/8"]

gateway:
  mode: bridge
  base_url: "http://localhost:3000"
  api_key: "bridge-key"
  requests_per_second: 5

campaign:
  media_dir: "/tmp/media"
  default_min_delay: 1s
  default_max_delay: 3s
  default_sleep_after_count: 20
  default_sleep_duration: 1m

precheck:
  concurrency: 4

storage:
  path: "/tmp/wabulk.db"

logging:
  level: debug
  format: text

rate_limit:
  enabled: true
  global:
    messages_per_hour: 500
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":9000" {
		t.Errorf("API.ListenAddr = %v, want :9000", cfg.API.ListenAddr)
	}
	if cfg.API.APIKey != "secret" {
		t.Errorf("API.APIKey = %v, want secret", cfg.API.APIKey)
	}
	if len(cfg.API.AllowedIPs) != 1 || cfg.API.AllowedIPs[0] != "10.0.0.0/8" {
		t.Errorf("API.AllowedIPs = %v", cfg.API.AllowedIPs)
	}
	if cfg.Gateway.BaseURL != "http://localhost:3000" {
		t.Errorf("Gateway.BaseURL = %v", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.Burst != 1 {
		t.Errorf("Gateway.Burst = %v, want 1", cfg.Gateway.Burst)
	}
	if cfg.Campaign.DefaultMinDelay != time.Second {
		t.Errorf("Campaign.DefaultMinDelay = %v, want 1s", cfg.Campaign.DefaultMinDelay)
	}
	if cfg.Campaign.DefaultSleepAfterCount != 20 {
		t.Errorf("Campaign.DefaultSleepAfterCount = %v, want 20", cfg.Campaign.DefaultSleepAfterCount)
	}
	if cfg.Campaign.DefaultSleepDuration != time.Minute {
		t.Errorf("Campaign.DefaultSleepDuration = %v, want 1m", cfg.Campaign.DefaultSleepDuration)
	}
	if cfg.Precheck.Concurrency != 4 {
		t.Errorf("Precheck.Concurrency = %v, want 4", cfg.Precheck.Concurrency)
	}
	if cfg.Storage.Path != "/tmp/wabulk.db" {
		t.Errorf("Storage.Path = %v", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.RateLimit.Global == nil || cfg.RateLimit.Global.MessagesPerHour != 500 {
		t.Errorf("RateLimit.Global = %+v", cfg.RateLimit.Global)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
gateway:
  mode: sandbox
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %v, want :8080", cfg.API.ListenAddr)
	}
	if cfg.API.MaxUploadBytes != 10<<20 {
		t.Errorf("API.MaxUploadBytes = %v, want 10MB", cfg.API.MaxUploadBytes)
	}
	if cfg.Campaign.DefaultMinDelay != 2*time.Second || cfg.Campaign.DefaultMaxDelay != 5*time.Second {
		t.Errorf("default delays = %v..%v, want 2s..5s", cfg.Campaign.DefaultMinDelay, cfg.Campaign.DefaultMaxDelay)
	}
	if cfg.Campaign.DefaultSleepAfterCount != 10 {
		t.Errorf("Campaign.DefaultSleepAfterCount = %v, want 10", cfg.Campaign.DefaultSleepAfterCount)
	}
	if cfg.Campaign.DefaultSleepDuration != 30*time.Second {
		t.Errorf("Campaign.DefaultSleepDuration = %v, want 30s", cfg.Campaign.DefaultSleepDuration)
	}
	if cfg.Campaign.PausePollInterval != 500*time.Millisecond {
		t.Errorf("Campaign.PausePollInterval = %v, want 500ms", cfg.Campaign.PausePollInterval)
	}
	if cfg.Campaign.CooldownCheckInterval != time.Second {
		t.Errorf("Campaign.CooldownCheckInterval = %v, want 1s", cfg.Campaign.CooldownCheckInterval)
	}
	if cfg.Precheck.Concurrency != 8 {
		t.Errorf("Precheck.Concurrency = %v, want 8", cfg.Precheck.Concurrency)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
}

func validConfig() Config {
	cfg := Config{
		Gateway: GatewayConfig{Mode: GatewayBridge, BaseURL: "http://localhost:3000"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
	cfg.setDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "bridge without base url",
			modify:  func(c *Config) { c.Gateway.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "sandbox without base url",
			modify:  func(c *Config) { c.Gateway.Mode = GatewaySandbox; c.Gateway.BaseURL = "" },
			wantErr: false,
		},
		{
			name:    "unknown gateway mode",
			modify:  func(c *Config) { c.Gateway.Mode = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name:    "sandbox error probability out of range",
			modify:  func(c *Config) { c.Gateway.Mode = GatewaySandbox; c.Sandbox.ErrorProbability = 1.5 },
			wantErr: true,
		},
		{
			name:    "max delay below min delay",
			modify:  func(c *Config) { c.Campaign.DefaultMaxDelay = time.Second; c.Campaign.DefaultMinDelay = 2 * time.Second },
			wantErr: true,
		},
		{
			name:    "cooldown check interval too coarse",
			modify:  func(c *Config) { c.Campaign.CooldownCheckInterval = 5 * time.Second },
			wantErr: true,
		},
		{
			name:    "rate limit without limits",
			modify:  func(c *Config) { c.RateLimit.Enabled = true },
			wantErr: true,
		},
		{
			name: "notify without recipients",
			modify: func(c *Config) {
				c.Notify = NotifyConfig{Enabled: true, SMTPAddr: "localhost:25", From: "bulk@example.com"}
			},
			wantErr: true,
		},
		{
			name: "notify dkim without key file",
			modify: func(c *Config) {
				c.Notify = NotifyConfig{
					Enabled:  true,
					SMTPAddr: "localhost:25",
					From:     "bulk@example.com",
					To:       []string{"ops@example.com"},
					DKIM:     DKIMConfig{Enabled: true, Selector: "mail", Domain: "example.com"},
				}
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
