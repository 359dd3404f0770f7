package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/nao1215/productscan/internal/model"
)

// createTestSummary builds a summary from a finished session with sample data.
func createTestSummary(t *testing.T) *Summary {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	session, err := model.NewSession("https://shop.example.com/c/shoes",
		model.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session.SiteTag = "generic"
	for i := range 1234 {
		session.Add(fmt.Sprintf("https://shop.example.com/product/%d", i), model.ClassProduct)
	}
	session.Add("https://shop.example.com/category/boots", model.ClassCategory)
	session.Add("https://shop.example.com/c/shoes?page=2", model.ClassPagination)
	session.Stats.RecordPage(1000, now)
	session.Stats.RecordPage(234, now)
	session.Stats.RecordFailure(now)
	session.Transition(model.StateDone)
	session.Finish()

	return NewSummary(session, "/tmp/scraped_urls_20250301_120000.json")
}

func TestNewSummary(t *testing.T) {
	t.Parallel()

	s := createTestSummary(t)
	if s.TotalProducts != 1234 {
		t.Errorf("TotalProducts = %d, want 1234", s.TotalProducts)
	}
	if s.Categories != 1 || s.Paginations != 1 {
		t.Errorf("class counts = %d/%d, want 1/1", s.Categories, s.Paginations)
	}
	if s.URLsFound != 1236 {
		t.Errorf("URLsFound = %d, want 1236", s.URLsFound)
	}
	if s.AverageProductsPerPage != 617 {
		t.Errorf("AverageProductsPerPage = %v, want 617", s.AverageProductsPerPage)
	}
	if s.State != "done" || s.Failed() {
		t.Errorf("State = %q, want done", s.State)
	}
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	t.Run("formats counts with separators", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"CRAWL SUMMARY", "https://shop.example.com/c/shoes", "1,234", "Done", "617.00"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
		if strings.Contains(output, "Run ID") {
			t.Error("run ID should only appear in verbose mode")
		}
	})

	t.Run("verbose adds run details", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := createTestSummary(t)
		if _, err := NewTextWriter(&buf, WithVerbose(true)).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), s.SessionID) {
			t.Error("expected run ID in verbose output")
		}
		if !strings.Contains(buf.String(), s.OutputPath) {
			t.Error("expected output path in verbose output")
		}
	})

	t.Run("language changes separators", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf, WithLanguage(language.German)).Write(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "1.234") {
			t.Errorf("expected German grouping in output\n%s", buf.String())
		}
	})

	t.Run("failure reason", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary(t)
		s.State = "failed"
		s.FailureReason = "acquisition failed"

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "acquisition failed") {
			t.Error("expected failure reason in output")
		}
	})

	t.Run("batch totals", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		summaries := []*Summary{createTestSummary(t), createTestSummary(t)}
		if _, err := NewTextWriter(&buf).WriteAll(summaries); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Batch: 2 sessions, 0 failed, 4 pages, 2,468 products") {
			t.Errorf("missing batch totals\n%s", buf.String())
		}
	})

	t.Run("progress line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewTextWriter(&buf).WriteProgress(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := buf.String(); !strings.HasPrefix(got, "[done] page 2: 1,234 products") {
			t.Errorf("progress = %q", got)
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("single summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["total_products"] != float64(1234) {
			t.Errorf("total_products = %v", got["total_products"])
		}
		if _, ok := got["failure_reason"]; ok {
			t.Error("empty failure_reason should be omitted")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"session_id\"") {
			t.Error("expected indented output")
		}
	})

	t.Run("batch is one array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteAll([]*Summary{createTestSummary(t), createTestSummary(t)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got []Summary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteAll(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "[]" {
			t.Errorf("output = %q, want []", got)
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("session report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestSummary(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"# Crawl Report", "| Products", "```mermaid", "Discovered URLs by Class", "✅ Complete", "[!NOTE]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("failed session", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary(t)
		s.State = "failed"
		s.FailureReason = "blocked"

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!CAUTION]") {
			t.Error("expected caution alert")
		}
	})

	t.Run("batch overview", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteAll([]*Summary{createTestSummary(t)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "# Batch Crawl Report") {
			t.Error("expected batch header")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*Summary) (int, error)      { return 0, errors.New("boom") }
func (failingWriter) WriteAll([]*Summary) (int, error) { return 0, errors.New("boom") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewTextWriter(&text), NewJSONWriter(&js))
		n, err := mw.Write(createTestSummary(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		mw := NewMultiWriter(failingWriter{}, NewTextWriter(&buf))
		if _, err := mw.Write(createTestSummary(t)); err == nil {
			t.Fatal("expected error")
		}
		if buf.Len() != 0 {
			t.Error("later writers should not run after an error")
		}
	})
}
