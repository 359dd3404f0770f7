package report

import (
	"io"
)

// Writer defines the interface for summary output.
// Implementations write crawl summaries in various formats.
type Writer interface {
	// Write outputs a single session summary.
	// Returns the number of bytes written and any error encountered.
	Write(summary *Summary) (int, error)

	// WriteAll outputs the summaries of a batch run.
	WriteAll(summaries []*Summary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteAll outputs the batch summaries to all configured Writers.
func (m *MultiWriter) WriteAll(summaries []*Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteAll(summaries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// writeAll calls write for every summary, stopping on the first error.
func writeAll(summaries []*Summary, write func(*Summary) (int, error)) (int, error) {
	var total int
	for _, s := range summaries {
		n, err := write(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
