package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/wabulk/internal/config"
)

var (
	initOutput    string
	initMode      string
	initBridgeURL string
	initBridgeKey string
	initAPIKey    string
	initHashKey   bool
	initDataDir   string
	initForce     bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize wabulk configuration",
	Long: `Create a wabulk configuration file.

Examples:
  # Interactive mode - prompts for missing values
  wabulk init

  # Bridge mode with a stored bcrypt hash of the API key
  wabulk init --bridge-url http://localhost:3000 --hash-key

  # Quick setup for testing
  wabulk init --mode sandbox -o test.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initMode, "mode", config.GatewayBridge, "Gateway mode: bridge or sandbox")
	initCmd.Flags().StringVar(&initBridgeURL, "bridge-url", "", "WhatsApp bridge base URL (bridge mode)")
	initCmd.Flags().StringVar(&initBridgeKey, "bridge-key", "", "WhatsApp bridge API key")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (auto-generated if not provided)")
	initCmd.Flags().BoolVar(&initHashKey, "hash-key", false, "Store a bcrypt hash of the API key instead of the key")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/wabulk", "Data directory for the database and uploads")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
	}

	if initMode != config.GatewayBridge && initMode != config.GatewaySandbox {
		return fmt.Errorf("invalid mode: %s (must be bridge or sandbox)", initMode)
	}

	reader := bufio.NewReader(os.Stdin)
	if initMode == config.GatewayBridge && initBridgeURL == "" {
		initBridgeURL = prompt(reader, "WhatsApp bridge URL", "http://localhost:3000")
	}

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
	}

	apiKeyLine := fmt.Sprintf(`api_key: "%s"`, initAPIKey)
	if initHashKey {
		hash, err := bcrypt.GenerateFromPassword([]byte(initAPIKey), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash API key: %w", err)
		}
		apiKeyLine = fmt.Sprintf(`api_key_hash: "%s"`, hash)
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig(apiKeyLine)), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", initOutput)
	fmt.Printf("  API key: %s\n", initAPIKey)
	if initHashKey {
		fmt.Printf("  (only the bcrypt hash is stored, keep the key now)\n")
	}
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  wabulk config validate -c %s\n", initOutput)
	fmt.Printf("  wabulk serve -c %s\n", initOutput)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(apiKeyLine string) string {
	return fmt.Sprintf(`# wabulk configuration

api:
  listen_addr: ":8080"
  %s
  # allowed_ips: ["10.0.0.0/8"]

gateway:
  mode: %s
  base_url: "%s"
  api_key: "%s"
  timeout: 30s
  requests_per_second: 2
  burst: 1

sandbox:
  unresolvable_prefixes: []
  simulate_errors: false

campaign:
  media_dir: "%s/uploads"
  default_min_delay: 2s
  default_max_delay: 5s
  default_sleep_after_count: 10
  default_sleep_duration: 30s

precheck:
  concurrency: 8
  lookup_timeout: 15s

storage:
  path: "%s/wabulk.db"

logging:
  level: info
  format: json

metrics:
  enabled: false
  listen_addr: ":9090"

rate_limit:
  enabled: false
  # global:
  #   messages_per_hour: 500
  #   messages_per_day: 2000

notify:
  enabled: false
  # smtp_addr: "localhost:25"
  # from: "wabulk@example.com"
  # to: ["ops@example.com"]
`, apiKeyLine, initMode, initBridgeURL, initBridgeKey, initDataDir, initDataDir)
}
