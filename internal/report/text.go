package report

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TextWriter outputs human-readable statistics for terminal display.
// Counts are formatted with thousands separators for the configured
// language.
type TextWriter struct {
	baseWriter

	printer *message.Printer
	title   cases.Caser
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithLanguage sets the language used for number formatting.
func WithLanguage(tag language.Tag) TextWriterOption {
	return func(w *TextWriter) {
		w.printer = message.NewPrinter(tag)
		w.title = cases.Title(tag)
	}
}

// WithVerbose adds timestamps and the output path to the summary.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
		title:      cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the final statistics of one session.
func (w *TextWriter) Write(summary *Summary) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	w.line(&sb, "Start URL", summary.StartURL)
	w.line(&sb, "Site", summary.SiteTag)
	status := w.title.String(summary.State)
	if summary.Interrupted {
		status += " (interrupted)"
	}
	w.line(&sb, "Status", status)
	if summary.FailureReason != "" {
		w.line(&sb, "Reason", summary.FailureReason)
	}
	w.line(&sb, "Duration", summary.Duration.Round(time.Millisecond).String())
	w.line(&sb, "Total URLs", w.printer.Sprintf("%d", summary.URLsFound))
	w.line(&sb, "Successful", w.printer.Sprintf("%d", summary.SuccessfulScrapes))
	w.line(&sb, "Failed", w.printer.Sprintf("%d", summary.FailedScrapes))
	w.line(&sb, "Pages", w.printer.Sprintf("%d", summary.PagesProcessed))
	w.line(&sb, "Products", w.printer.Sprintf("%d", summary.TotalProducts))
	w.line(&sb, "Categories", w.printer.Sprintf("%d", summary.Categories))
	w.line(&sb, "Pagination", w.printer.Sprintf("%d", summary.Paginations))
	w.line(&sb, "Avg/page", w.printer.Sprintf("%.2f", summary.AverageProductsPerPage))
	if w.verbose {
		w.line(&sb, "Run ID", summary.SessionID)
		w.line(&sb, "Started", summary.StartedAt.Format(time.RFC3339))
		if !summary.EndedAt.IsZero() {
			w.line(&sb, "Ended", summary.EndedAt.Format(time.RFC3339))
		}
		if summary.OutputPath != "" {
			w.line(&sb, "Output", summary.OutputPath)
		}
	}
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

// WriteAll outputs every summary followed by batch totals.
func (w *TextWriter) WriteAll(summaries []*Summary) (int, error) {
	total, err := writeAll(summaries, w.Write)
	if err != nil || len(summaries) < 2 {
		return total, err
	}

	var products, pages, failed int
	for _, s := range summaries {
		products += s.TotalProducts
		pages += s.PagesProcessed
		if s.Failed() {
			failed++
		}
	}
	n, err := io.WriteString(w.output, w.printer.Sprintf(
		"Batch: %d sessions, %d failed, %d pages, %d products\n",
		len(summaries), failed, pages, products,
	))
	return total + n, err
}

// WriteProgress prints a one-line progress update for a running session.
func (w *TextWriter) WriteProgress(summary *Summary) (int, error) {
	return io.WriteString(w.output, w.printer.Sprintf(
		"[%s] page %d: %d products (%d urls, %d failed)\n",
		summary.State, summary.PagesProcessed, summary.TotalProducts,
		summary.URLsFound, summary.FailedScrapes,
	))
}

func (w *TextWriter) line(sb *strings.Builder, label, value string) {
	sb.WriteString(w.printer.Sprintf("  %-12s %s\n", label+":", value))
}
