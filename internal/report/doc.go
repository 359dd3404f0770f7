// Package report renders crawl summaries and exports discovered URLs.
//
// Summary writers:
//   - TextWriter: human-readable statistics for the terminal
//   - JSONWriter: structured output for tool integration
//   - MarkdownWriter: a shareable run report with a class distribution chart
//
// URL exporters:
//   - CSVExporter
//   - XLSXExporter
//
// Writers implement the Writer interface and can be composed with
// MultiWriter to print to the terminal and a file at once.
package report
