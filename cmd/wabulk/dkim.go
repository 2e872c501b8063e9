package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/wabulk/internal/notify"
)

var (
	dkimDomain   string
	dkimSelector string
	dkimKeyFile  string
	dkimOutDir   string
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM keys for completion mail",
}

var dkimGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new DKIM key pair",
	Long:  `Generate a new RSA 2048-bit DKIM key for signing completion mail and print the DNS record.`,
	RunE:  runDKIMGenerate,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show DKIM DNS record from existing key",
	RunE:  runDKIMShow,
}

func init() {
	dkimGenerateCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimGenerateCmd.Flags().StringVar(&dkimSelector, "selector", "wabulk", "DKIM selector")
	dkimGenerateCmd.Flags().StringVar(&dkimOutDir, "out", ".", "Output directory for key file")
	dkimGenerateCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Path to private key file (required)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "wabulk", "DKIM selector")
	dkimShowCmd.MarkFlagRequired("key")
	dkimShowCmd.MarkFlagRequired("domain")

	dkimCmd.AddCommand(dkimGenerateCmd, dkimShowCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMGenerate(cmd *cobra.Command, args []string) error {
	key, err := notify.GenerateKey()
	if err != nil {
		return err
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.key", dkimDomain))
	if err := notify.SavePrivateKey(key, keyPath); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	record, err := notify.DNSRecord(key)
	if err != nil {
		return err
	}

	fmt.Printf("DKIM key generated successfully\n\n")
	fmt.Printf("Private key saved to: %s\n\n", keyPath)
	printDKIMRecord(record)
	fmt.Printf("\nAdd to the config:\n")
	fmt.Printf("  notify:\n    dkim:\n      enabled: true\n      domain: %s\n      selector: %s\n      key_file: %s\n",
		dkimDomain, dkimSelector, keyPath)

	return nil
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	key, err := notify.LoadPrivateKey(dkimKeyFile)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	record, err := notify.DNSRecord(key)
	if err != nil {
		return err
	}

	printDKIMRecord(record)
	return nil
}

func printDKIMRecord(record string) {
	fmt.Printf("DNS Record:\n")
	fmt.Printf("  Name: %s._domainkey.%s\n", dkimSelector, dkimDomain)
	fmt.Printf("  Type: TXT\n")
	fmt.Printf("  Value: %s\n", record)
}
