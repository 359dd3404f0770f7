package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/productscan/internal/model"
)

func testRecords() []model.URLRecord {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.URLRecord{
		{URL: "https://shop.example.com/dp/B000000001", Class: model.ClassProduct, DiscoveredAt: at},
		{URL: "https://shop.example.com/category/boots", Class: model.ClassCategory, DiscoveredAt: at},
		{URL: "https://shop.example.com/c/shoes?page=2", Class: model.ClassPagination},
	}
}

func TestCSVExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewCSVExporter(&buf).Export(testRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0][0] != "url" || rows[0][1] != "class" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "product" || rows[1][2] != "2025-03-01T12:00:00Z" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[3][2] != "" {
		t.Errorf("zero time should export empty, got %q", rows[3][2])
	}
}

func TestXLSXExporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewXLSXExporter(&buf).Export(testRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(DefaultSheetName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[2][0] != "https://shop.example.com/category/boots" || rows[2][1] != "category" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestJSONExporter(t *testing.T) {
	t.Parallel()

	t.Run("writes classes by name", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewJSONExporter(&buf).Export(testRecords()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got []struct {
			URL   string `json:"url"`
			Class string `json:"class"`
		}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("records = %d, want 3", len(got))
		}
		if got[0].Class != "product" || got[2].Class != "pagination" {
			t.Errorf("classes = %q, %q", got[0].Class, got[2].Class)
		}
	})

	t.Run("empty input is an empty array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewJSONExporter(&buf).Export(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "[]" {
			t.Errorf("output = %q, want []", got)
		}
	})
}
