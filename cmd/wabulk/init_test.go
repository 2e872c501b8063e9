package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/wabulk/internal/config"
)

func TestGenerateRandomString(t *testing.T) {
	lengths := []int{8, 16, 32, 64}

	for _, length := range lengths {
		result := generateRandomString(length)
		if len(result) != length {
			t.Errorf("generateRandomString(%d) returned string of length %d", length, len(result))
		}
	}

	if generateRandomString(32) == generateRandomString(32) {
		t.Error("generateRandomString should generate unique strings")
	}
}

func TestGenerateConfig_Loads(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		bridgeURL string
	}{
		{"bridge", config.GatewayBridge, "http://localhost:3000"},
		{"sandbox", config.GatewaySandbox, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			initMode = tt.mode
			initBridgeURL = tt.bridgeURL
			initBridgeKey = "bridge-key"
			initDataDir = tmpDir

			path := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(path, []byte(generateConfig(`api_key: "testapikey"`)), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if err != nil {
				t.Fatalf("generated config does not load: %v", err)
			}
			if cfg.API.APIKey != "testapikey" {
				t.Errorf("API.APIKey = %q", cfg.API.APIKey)
			}
			if cfg.Gateway.Mode != tt.mode {
				t.Errorf("Gateway.Mode = %q, want %q", cfg.Gateway.Mode, tt.mode)
			}
			if cfg.Storage.Path != filepath.Join(tmpDir, "wabulk.db") {
				t.Errorf("Storage.Path = %q", cfg.Storage.Path)
			}
		})
	}
}

func TestRunInit_HashKey(t *testing.T) {
	tmpDir := t.TempDir()
	initOutput = filepath.Join(tmpDir, "config.yaml")
	initMode = config.GatewaySandbox
	initBridgeURL = ""
	initAPIKey = "plain-key"
	initHashKey = true
	initDataDir = tmpDir
	initForce = false
	t.Cleanup(func() { initHashKey = false; initAPIKey = "" })

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	data, err := os.ReadFile(initOutput)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "plain-key") {
		t.Error("config should not contain the plain API key")
	}

	cfg, err := config.Load(initOutput)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cfg.API.APIKeyHash), []byte("plain-key")); err != nil {
		t.Errorf("stored hash does not match key: %v", err)
	}

	if err := runInit(initCmd, nil); err == nil {
		t.Error("runInit() should refuse to overwrite without --force")
	}
}
