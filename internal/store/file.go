package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// TimeLayout is the layout of last_update.
const TimeLayout = "2006-01-02 15:04:05"

// File name layouts. The timestamp is the session start.
const (
	outputNameLayout   = "scraped_urls_20060102_150405.json"
	progressNameLayout = "scraping_progress_20060102_150405.json"
)

// OutputName returns the default output file name for a run started at t.
func OutputName(t time.Time) string {
	return t.Format(outputNameLayout)
}

// ProgressName returns the default progress file name for a run started at t.
func ProgressName(t time.Time) string {
	return t.Format(progressNameLayout)
}

// OutputFile is the JSON document holding the discovered products.
type OutputFile struct {
	ProductURLs []string    `json:"product_urls"`
	Stats       OutputStats `json:"stats"`
}

// OutputStats summarizes the runs that wrote an output file.
type OutputStats struct {
	TotalProducts          int     `json:"total_products"`
	ProductsPerPage        []int   `json:"products_per_page"`
	TotalPagesProcessed    int     `json:"total_pages_processed"`
	AverageProductsPerPage float64 `json:"average_products_per_page"`
	LastUpdate             string  `json:"last_update"`
}

// ProgressFile is the JSON document a run can be resumed from.
type ProgressFile struct {
	ProductURLs    []string      `json:"product_urls"`
	CategoryURLs   []string      `json:"category_urls"`
	PaginationURLs []string      `json:"pagination_urls"`
	Stats          ProgressStats `json:"stats"`

	// ResumePages maps a start URL to the listing page its last run was on.
	ResumePages map[string]string `json:"resume_pages,omitempty"`
}

// ProgressStats are the session counters at the time of writing.
type ProgressStats struct {
	TotalURLs         int `json:"total_urls"`
	SuccessfulScrapes int `json:"successful_scrapes"`
	FailedScrapes     int `json:"failed_scrapes"`
}

// Load reads an output file. A missing file is an empty document.
func Load(path string) (*OutputFile, error) {
	var f OutputFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadProgress reads a progress file. Output files are accepted too; they
// only carry products.
func LoadProgress(path string) (*ProgressFile, error) {
	var f ProgressFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// moveAside renames an unreadable file to <path>.corrupt-<timestamp> so
// the next write does not replace it with fewer URLs.
func moveAside(path string, now time.Time) (string, error) {
	aside := path + ".corrupt-" + now.Format("20060102_150405")
	if err := os.Rename(path, aside); err != nil {
		return "", err
	}
	return aside, nil
}

// writeAtomic writes v as indented JSON to a temporary file next to path
// and renames it over path.
func writeAtomic(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// union merges b into a, dropping duplicates and empty strings, and
// returns the sorted result.
func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, u := range list {
			if u != "" {
				set[u] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}
