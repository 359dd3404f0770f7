package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/productscan/internal/model"
)

// Exporter writes discovered URL records in a tabular format.
type Exporter interface {
	Export(records []model.URLRecord) error
}

// exportHeader is the column layout shared by every exporter.
var exportHeader = []string{"url", "class", "discovered_at"}

// CSVExporter writes URL records as CSV.
type CSVExporter struct {
	baseWriter
}

// NewCSVExporter creates a CSVExporter that outputs to the given writer.
func NewCSVExporter(output io.Writer) *CSVExporter {
	return &CSVExporter{baseWriter: newBaseWriter(output)}
}

// Export writes a header row and one row per record.
func (e *CSVExporter) Export(records []model.URLRecord) error {
	cw := csv.NewWriter(e.output)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.URL, r.Class.String(), formatDiscovered(r.DiscoveredAt)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONExporter writes URL records as a JSON array.
type JSONExporter struct {
	baseWriter
}

// NewJSONExporter creates a JSONExporter that outputs to the given writer.
func NewJSONExporter(output io.Writer) *JSONExporter {
	return &JSONExporter{baseWriter: newBaseWriter(output)}
}

// Export writes every record; an empty input produces "[]".
func (e *JSONExporter) Export(records []model.URLRecord) error {
	if records == nil {
		records = []model.URLRecord{}
	}
	enc := json.NewEncoder(e.output)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// XLSXExporter writes URL records as an Excel workbook with one sheet.
type XLSXExporter struct {
	baseWriter
	sheet string
}

// DefaultSheetName is the name of the sheet holding exported URLs.
const DefaultSheetName = "URLs"

// NewXLSXExporter creates an XLSXExporter that outputs to the given writer.
func NewXLSXExporter(output io.Writer) *XLSXExporter {
	return &XLSXExporter{baseWriter: newBaseWriter(output), sheet: DefaultSheetName}
}

// Export builds the workbook in memory and writes it to the output.
func (e *XLSXExporter) Export(records []model.URLRecord) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(e.sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.URL, r.Class.String(), formatDiscovered(r.DiscoveredAt)}
		if err := f.SetSheetRow(e.sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(e.sheet, "A", "A", 80); err != nil {
		return err
	}
	if err := f.Write(e.output); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func formatDiscovered(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
