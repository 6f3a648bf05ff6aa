package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	exportOutDir string
	exportSheets bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the monthly report as an Excel workbook",
	Long:  "Render the current activities to an .xlsx file, and optionally publish the same report to the configured Google Sheets spreadsheet.",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOutDir, "out", "",
		"Output directory (overrides export.output_dir)")
	exportCmd.Flags().BoolVar(&exportSheets, "sheets", false,
		"Also publish to Google Sheets")
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd, exportSheets)
	if err != nil {
		return err
	}
	defer c.close()

	f, err := c.dashboard.Export()
	if err != nil {
		return err
	}

	dir := exportOutDir
	if dir == "" {
		dir = c.cfg.Export.OutputDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, f.Data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if exportSheets {
		if err := c.dashboard.PublishSheets(cmd.Context()); err != nil {
			return fmt.Errorf("publish to sheets: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published to spreadsheet %s\n", c.cfg.Export.SpreadsheetID)
	}
	return nil
}
