package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/storage"
)

var (
	reportLimit  int
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Last campaign report commands",
}

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last campaign report",
	RunE:  runReportShow,
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the last campaign report as JSON",
	RunE:  runReportExport,
}

func init() {
	reportShowCmd.Flags().IntVar(&reportLimit, "limit", 50, "Maximum number of rows to print (0 = all)")
	reportExportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default: campaign-<id>.json, - for stdout)")

	reportCmd.AddCommand(reportShowCmd, reportExportCmd)
	rootCmd.AddCommand(reportCmd)
}

func loadLastReport(cmd *cobra.Command) (*campaign.Report, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	store, err := storage.NewReportStore(db)
	if err != nil {
		return nil, err
	}

	report, err := store.LastReport(cmd.Context())
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("no campaign report stored")
	}
	return report, nil
}

func runReportShow(cmd *cobra.Command, args []string) error {
	report, err := loadLastReport(cmd)
	if err != nil {
		return err
	}

	printReport(os.Stdout, report, reportLimit)
	return nil
}

func printReport(out io.Writer, report *campaign.Report, limit int) {
	counts := report.Counts()

	fmt.Fprintf(out, "Report:   %s\n", report.ID)
	fmt.Fprintf(out, "Status:   %s\n", report.Status)
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(out, "Started:  %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished: %s (%s)\n",
			report.FinishedAt.Format("2006-01-02 15:04:05"),
			report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Rows:     %d (sent %d, failed %d, unresolvable %d)\n\n",
		len(report.Rows),
		counts[campaign.OutcomeSent],
		counts[campaign.OutcomeFailed],
		counts[campaign.OutcomeUnresolvable],
	)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNUMBER\tOUTCOME\tERROR")
	for i, row := range report.Rows {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", row.Sequence, row.Address, row.Outcome, truncate(row.Error, 60))
	}
	w.Flush()

	if limit > 0 && len(report.Rows) > limit {
		fmt.Fprintf(out, "... %d more rows\n", len(report.Rows)-limit)
	}
}

func runReportExport(cmd *cobra.Command, args []string) error {
	report, err := loadLastReport(cmd)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	switch reportOutput {
	case "-":
		fmt.Println(string(data))
		return nil
	case "":
		reportOutput = fmt.Sprintf("campaign-%s.json", report.ID)
	}

	if err := os.WriteFile(reportOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report exported to %s (%d rows)\n", reportOutput, len(report.Rows))
	return nil
}
