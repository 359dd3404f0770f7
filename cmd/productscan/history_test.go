package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/productscan/internal/database"
	"github.com/nao1215/productscan/internal/model"
)

// seedHistory records one finished session with two products, a
// category and a pagination URL, and returns the database directory and
// the session.
func seedHistory(t *testing.T) (string, *model.CrawlSession) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := model.NewSession("https://shop.example.com/c/shoes")
	if err != nil {
		t.Fatal(err)
	}
	s.SiteTag = "generic"
	s.Add("https://shop.example.com/c/shoes", model.ClassCategory)
	for i := 1; i <= 2; i++ {
		s.Add(fmt.Sprintf("https://shop.example.com/product/%d", i), model.ClassProduct)
	}
	s.Add("https://shop.example.com/c/shoes?page=2", model.ClassPagination)
	s.Stats.RecordPage(2, s.Now())
	s.Finish()
	s.Transition(model.StateDone)

	if err := db.RecordSession(context.Background(), s, filepath.Join(dir, "products.json")); err != nil {
		t.Fatal(err)
	}
	return dir, s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	dir, session := seedHistory(t)

	t.Run("lists sessions", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, session.ID[:8]) {
			t.Errorf("expected short id in output:\n%s", out)
		}
		if !strings.Contains(out, "https://shop.example.com/c/shoes") {
			t.Errorf("expected start url in output:\n%s", out)
		}
	})

	t.Run("lists sessions as JSON", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir, "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got []map[string]any
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(got) != 1 || got[0]["session_id"] != session.ID {
			t.Errorf("sessions = %v", got)
		}
	})

	t.Run("shows one session by prefix", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir, session.ID[:6])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "CRAWL SUMMARY") {
			t.Errorf("expected summary:\n%s", out)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--db-dir", dir, "zzzz")
		if !errors.Is(err, errSessionNotFound) {
			t.Errorf("error = %v, want errSessionNotFound", err)
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--db-dir", t.TempDir())
		if !errors.Is(err, errNoSessions) {
			t.Errorf("error = %v, want errNoSessions", err)
		}
	})
}

func TestExportCmd(t *testing.T) {
	t.Parallel()

	dir, session := seedHistory(t)

	t.Run("products as CSV", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "export", "--db-dir", dir, session.ID[:8])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want header and 2 products", len(rows))
		}
		for _, row := range rows[1:] {
			if row[1] != "product" {
				t.Errorf("class = %q, want product", row[1])
			}
		}
	})

	t.Run("all classes as JSON", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "export", "--db-dir", dir, "--class", "all", "-f", "json", session.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var records []model.URLRecord
		if err := json.Unmarshal([]byte(out), &records); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(records) != 4 {
			t.Errorf("records = %d, want 4", len(records))
		}
	})

	t.Run("xlsx to file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "urls.xlsx")
		if _, err := execute(t, "export", "--db-dir", dir, "-f", "xlsx", "-o", path, session.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, err := excelize.OpenFile(path)
		if err != nil {
			t.Fatalf("invalid workbook: %v", err)
		}
		defer f.Close()
		rows, err := f.GetRows("URLs")
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 3 {
			t.Errorf("rows = %d, want 3", len(rows))
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			args []string
		}{
			{"unknown class", []string{"--class", "brand"}},
			{"unknown format", []string{"-f", "pdf"}},
			{"xlsx without file", []string{"-f", "xlsx"}},
		}
		for _, tt := range tests {
			args := append([]string{"export", "--db-dir", dir}, tt.args...)
			args = append(args, session.ID)
			if _, err := execute(t, args...); err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
		}
	})
}

func TestDropRecent(t *testing.T) {
	t.Parallel()

	dir, seeded := seedHistory(t)
	db, err := database.Open(dir, database.Options{CreateIfNotExists: false})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	targets := []string{seeded.StartURL, "https://shop.example.com/c/bags"}
	got, err := dropRecent(context.Background(), db, targets, time.Hour, discardLogger())
	if err != nil {
		t.Fatalf("dropRecent() error = %v", err)
	}
	if len(got) != 1 || got[0] != "https://shop.example.com/c/bags" {
		t.Errorf("dropRecent() = %v, want only the bags category", got)
	}
}
