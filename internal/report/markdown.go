package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/productscan/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs one session report.
func (w *MarkdownWriter) Write(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Report")
	md.PlainText("")
	w.writeSession(md, summary)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteAll outputs one document with an overview table and a section
// per session.
func (w *MarkdownWriter) WriteAll(summaries []*Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Batch Crawl Report")
	md.PlainText("")

	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{
			"`" + s.StartURL + "`",
			statusText(s),
			strconv.Itoa(s.PagesProcessed),
			strconv.Itoa(s.TotalProducts),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Start URL", "Status", "Pages", "Products"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, s := range summaries {
		md.H2(s.StartURL)
		md.PlainText("")
		w.writeSession(md, s)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeSession(md *markdown.Markdown, s *Summary) {
	rows := [][]string{
		{"Start URL", "`" + s.StartURL + "`"},
		{"Site", s.SiteTag},
		{"Run ID", "`" + s.SessionID + "`"},
		{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Status", statusText(s)},
		{"Pages Processed", strconv.Itoa(s.PagesProcessed)},
		{"Successful Scrapes", strconv.Itoa(s.SuccessfulScrapes)},
		{"Failed Scrapes", strconv.Itoa(s.FailedScrapes)},
		{"Products", strconv.Itoa(s.TotalProducts)},
		{"Average Products/Page", fmt.Sprintf("%.2f", s.AverageProductsPerPage)},
	}
	if s.OutputPath != "" {
		rows = append(rows, []string{"Output File", "`" + s.OutputPath + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.TotalProducts+s.Categories+s.Paginations > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of discovered URL classes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Discovered URLs by Class"),
		piechart.WithShowData(true),
	)
	if s.TotalProducts > 0 {
		chart.LabelAndIntValue("Product", uint64(s.TotalProducts))
	}
	if s.Categories > 0 {
		chart.LabelAndIntValue("Category", uint64(s.Categories))
	}
	if s.Paginations > 0 {
		chart.LabelAndIntValue("Pagination", uint64(s.Paginations))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch {
	case s.Failed():
		md.Cautionf("Crawl failed: %s", s.FailureReason)
	case s.TotalProducts == 0:
		md.Warningf("No product URLs were discovered after %d page(s).", s.PagesProcessed)
	case s.FailedScrapes > 0:
		md.Note(fmt.Sprintf("%d page(s) could not be acquired.", s.FailedScrapes))
	default:
		md.Tip("Crawl completed without acquisition failures.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [productscan](https://github.com/nao1215/productscan)*")
}

func statusText(s *Summary) string {
	if s.Failed() {
		return "❌ Failed"
	}
	if s.Interrupted {
		return "⚠️ Interrupted"
	}
	if s.State == model.StateDone.String() {
		return "✅ Complete"
	}
	return "⚠️ " + s.State
}
