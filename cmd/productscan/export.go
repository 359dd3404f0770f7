package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/report"
)

// Export formats.
const (
	exportCSV  = "csv"
	exportXLSX = "xlsx"
	exportJSON = "json"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export the URLs discovered by a crawl session",
		Long: `Export writes the URLs a recorded session discovered, with their class
and discovery time, as CSV, an Excel workbook or JSON.

The session ID may be shortened to any unique prefix, as printed by
'productscan history'.

Examples:
  # Product URLs as CSV on stdout
  productscan export 3f2a9c

  # Every discovered URL as an Excel workbook
  productscan export --class all -f xlsx -o urls.xlsx 3f2a9c`,
		Args: cobra.ExactArgs(1),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP(flagFormat, "f", exportCSV, "Export format: csv, xlsx or json")
	cmd.Flags().String("class", model.ClassProduct.String(),
		"URL class to export: product, category, pagination or all")
	cmd.Flags().StringP(flagOutput, "o", "", "Output file (default: stdout; required for xlsx)")
	cmd.Flags().String(flagDBDir, defaultDBDir(), "Directory of the history database")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, args []string) (err error) {
	format, err := cmd.Flags().GetString(flagFormat)
	if err != nil {
		return err
	}
	className, err := cmd.Flags().GetString("class")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString(flagOutput)
	if err != nil {
		return err
	}

	class := model.ParseURLClass(className)
	if class == model.ClassUnknown && className != "all" {
		return fmt.Errorf("unknown URL class %q", className)
	}
	if format == exportXLSX && outputPath == "" {
		return fmt.Errorf("xlsx export needs --%s", flagOutput)
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	s, err := findSession(ctx, db, args[0])
	if err != nil {
		return err
	}
	rows, err := db.SessionURLs(ctx, s.ID, class)
	if err != nil {
		return err
	}
	records := make([]model.URLRecord, len(rows))
	for i, r := range rows {
		records[i] = model.URLRecord{URL: r.URL, Class: r.Class, DiscoveredAt: r.DiscoveredAt}
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, closeFn, ferr := createReportFile(outputPath)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := closeFn(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	}

	exporter, err := newExporter(format, out)
	if err != nil {
		return err
	}
	if err := exporter.Export(records); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if outputPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d URLs to %s\n", len(records), outputPath)
	}
	return nil
}

func newExporter(format string, out io.Writer) (report.Exporter, error) {
	switch format {
	case exportCSV:
		return report.NewCSVExporter(out), nil
	case exportXLSX:
		return report.NewXLSXExporter(out), nil
	case exportJSON:
		return report.NewJSONExporter(out), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
