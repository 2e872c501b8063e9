package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/wabulk/internal/sandbox"
)

var (
	sandboxListTo    string
	sandboxListKind  string
	sandboxListLimit int
	sandboxClearAge  time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured by the sandbox gateway",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListTo, "to", "", "Filter by recipient id")
	sandboxListCmd.Flags().StringVar(&sandboxListKind, "kind", "", "Filter by kind (text, media)")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")

	sandboxClearCmd.Flags().DurationVar(&sandboxClearAge, "older-than", 0, "Clear only messages older than this (e.g. 72h)")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	storage, err := sandbox.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}

	return storage, func() { db.Close() }, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	messages, err := storage.List(cmd.Context(), sandbox.ListFilter{
		To:    sandboxListTo,
		Kind:  sandboxListKind,
		Limit: sandboxListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTO\tKIND\tCONTENT\tCAPTURED\tERROR")
	for _, msg := range messages {
		content := msg.Text
		if msg.Kind == sandbox.KindMedia {
			content = fmt.Sprintf("%s (%s) %s", msg.Filename, msg.MimeType, msg.Caption)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(msg.ID),
			msg.To,
			msg.Kind,
			truncate(content, 40),
			msg.CapturedAt.Format("2006-01-02 15:04:05"),
			msg.SimulatedErr,
		)
	}
	w.Flush()

	fmt.Printf("\nShowing: %d messages\n", len(messages))
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	count, err := storage.Clear(cmd.Context(), sandboxClearAge)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	fmt.Printf("Cleared %d messages\n", count)
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := storage.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Sandbox Statistics\n")
	fmt.Printf("==================\n\n")
	fmt.Printf("Total messages: %d\n", stats.Total)
	fmt.Printf("Total size:     %d bytes\n", stats.TotalSize)
	fmt.Printf("Simulated errors: %d\n", stats.Failed)
	for kind, n := range stats.ByKind {
		fmt.Printf("  %s: %d\n", kind, n)
	}
	if !stats.OldestAt.IsZero() {
		fmt.Printf("\nOldest: %s\n", stats.OldestAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Newest: %s\n", stats.NewestAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
