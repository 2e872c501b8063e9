package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/wabulk/internal/template"
)

var (
	templateText     string
	templateTextFile string
	templateCaption  string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Saved template commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a saved template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Create or replace a saved template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateSave,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

func init() {
	templateSaveCmd.Flags().StringVar(&templateText, "text", "", "Message template")
	templateSaveCmd.Flags().StringVar(&templateTextFile, "file", "", "Read the message template from a file")
	templateSaveCmd.Flags().StringVar(&templateCaption, "caption", "", "Media caption template")

	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateSaveCmd, templateDeleteCmd)
	rootCmd.AddCommand(templateCmd)
}

func getTemplateStorage() (*template.Storage, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	templateStorage, err := template.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create template storage: %w", err)
	}

	return templateStorage, func() { db.Close() }, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	templates, err := storage.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTEMPLATE\tVARIABLES\tUPDATED")
	for _, tmpl := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			tmpl.Name,
			truncate(strings.ReplaceAll(tmpl.Template, "\n", " "), 40),
			strings.Join(template.Placeholders(tmpl.Template+"\n"+tmpl.Caption), ","),
			tmpl.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d templates\n", len(templates))
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := storage.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	fmt.Printf("Name:    %s\n", tmpl.Name)
	fmt.Printf("Updated: %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04:05"))
	if vars := template.Placeholders(tmpl.Template + "\n" + tmpl.Caption); len(vars) > 0 {
		fmt.Printf("Variables: %s\n", strings.Join(vars, ", "))
	}
	fmt.Printf("\n--- Template ---\n%s\n", tmpl.Template)
	if tmpl.Caption != "" {
		fmt.Printf("\n--- Caption ---\n%s\n", tmpl.Caption)
	}
	return nil
}

func runTemplateSave(cmd *cobra.Command, args []string) error {
	text := templateText
	if templateTextFile != "" {
		data, err := os.ReadFile(templateTextFile)
		if err != nil {
			return fmt.Errorf("failed to read template file: %w", err)
		}
		text = string(data)
	}
	if text == "" && templateCaption == "" {
		return fmt.Errorf("--text, --file or --caption is required")
	}

	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl := &template.Template{Name: args[0], Template: text, Caption: templateCaption}
	if err := storage.Save(cmd.Context(), tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	fmt.Printf("Template %q saved\n", tmpl.Name)
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := storage.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template %q deleted\n", args[0])
	return nil
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
