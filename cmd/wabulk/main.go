package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/wabulk/internal/api"
	"github.com/foxzi/wabulk/internal/app"
	"github.com/foxzi/wabulk/internal/config"
	"github.com/foxzi/wabulk/internal/storage"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wabulk",
	Short: "wabulk - bulk campaign dispatcher",
	Long:  `wabulk sends paced, controllable bulk message campaigns through a WhatsApp bridge.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign server",
	Long:  `Start the wabulk HTTP API and campaign engine.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wabulk version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openDB opens the configured database. The server must not be running,
// BoltDB allows a single writer process.
func openDB() (*bolt.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	api.Version = version

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Gateway: %s", cfg.Gateway.Mode)
	if cfg.Gateway.Mode == config.GatewayBridge {
		fmt.Printf(" (%s)", cfg.Gateway.BaseURL)
	}
	fmt.Println()
	fmt.Printf("  Delays: %s..%s, cooldown %s after %d sends\n",
		cfg.Campaign.DefaultMinDelay, cfg.Campaign.DefaultMaxDelay,
		cfg.Campaign.DefaultSleepDuration, cfg.Campaign.DefaultSleepAfterCount)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}
	if cfg.Notify.Enabled {
		fmt.Printf("  Notify: %v via %s\n", cfg.Notify.To, cfg.Notify.SMTPAddr)
	}

	return nil
}
