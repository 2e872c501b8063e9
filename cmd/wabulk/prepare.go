package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/wabulk/internal/recipient"
	"github.com/foxzi/wabulk/internal/template"
)

var (
	prepareHeaders  string
	prepareTemplate string
	prepareJSON     bool
	prepareLimit    int
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <file>",
	Short: "Preview how a recipient file is parsed",
	Long: `Parse a .csv, .txt or .xlsx recipient file offline and print the prepared
recipients. The first column is the phone number; --headers names the
remaining columns for use in templates.

Examples:
  wabulk prepare contacts.csv --headers name,oid
  wabulk prepare contacts.xlsx --headers name --template "Hi {{name}}"
  wabulk prepare contacts.csv --json > recipients.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

func init() {
	prepareCmd.Flags().StringVar(&prepareHeaders, "headers", "", "Comma separated names for columns 2..n")
	prepareCmd.Flags().StringVar(&prepareTemplate, "template", "", "Render this template for each recipient")
	prepareCmd.Flags().BoolVar(&prepareJSON, "json", false, "Print the prepared recipients as JSON")
	prepareCmd.Flags().IntVar(&prepareLimit, "limit", 20, "Maximum number of recipients to print (0 = all)")

	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	prepared, err := prepareFile(filepath.Base(args[0]), f, recipient.ParseHeaders(prepareHeaders))
	if err != nil {
		return err
	}

	if prepareJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prepared)
	}

	printPrepared(os.Stdout, prepared, prepareTemplate, prepareLimit)
	return nil
}

func prepareFile(name string, r io.Reader, headers []string) (recipient.Prepared, error) {
	rows, err := recipient.ParseFile(name, r)
	if err != nil {
		return recipient.Prepared{}, fmt.Errorf("parse failed: %w", err)
	}
	return recipient.Prepare(rows, headers), nil
}

func printPrepared(out io.Writer, prepared recipient.Prepared, tmpl string, limit int) {
	fmt.Fprintf(out, "Rows: %d, valid recipients: %d\n\n", prepared.TotalRows, prepared.ValidRecipients)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if tmpl != "" {
		fmt.Fprintln(w, "ROW\tNUMBER\tMESSAGE")
	} else {
		fmt.Fprintln(w, "ROW\tNUMBER\tVARIABLES")
	}
	for i, r := range prepared.Recipients {
		if limit > 0 && i >= limit {
			break
		}
		if tmpl != "" {
			msg := strings.ReplaceAll(template.Fill(tmpl, r.Variables), "\n", " ")
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.RowIndex, r.Address, truncate(msg, 60))
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.RowIndex, r.Address, namedVars(r.Variables))
	}
	w.Flush()

	if limit > 0 && len(prepared.Recipients) > limit {
		fmt.Fprintf(out, "... %d more recipients\n", len(prepared.Recipients)-limit)
	}
}

// namedVars formats the header variables, leaving out positional and
// generated ones
func namedVars(vars map[string]string) string {
	var parts []string
	for k, v := range vars {
		if isPositional(k) || k == "date" || k == "time" || k == "random" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func isPositional(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, "var") {
		return false
	}
	n, err := strconv.Atoi(lower[3:])
	return err == nil && n >= 1 && n <= 10
}
