package report

import (
	"time"

	"github.com/nao1215/productscan/internal/database"
	"github.com/nao1215/productscan/internal/model"
)

// Summary is the final statistics of one crawl session.
// It is produced for every run, including failed and interrupted ones.
type Summary struct {
	SessionID              string        `json:"session_id"`
	StartURL               string        `json:"start_url"`
	SiteTag                string        `json:"site_tag"`
	State                  string        `json:"state"`
	FailureReason          string        `json:"failure_reason,omitempty"`
	Interrupted            bool          `json:"interrupted,omitempty"`
	StartedAt              time.Time     `json:"started_at"`
	EndedAt                time.Time     `json:"ended_at"`
	Duration               time.Duration `json:"duration_ns"`
	URLsFound              int           `json:"urls_found"`
	SuccessfulScrapes      int           `json:"successful_scrapes"`
	FailedScrapes          int           `json:"failed_scrapes"`
	PagesProcessed         int           `json:"pages_processed"`
	TotalProducts          int           `json:"total_products"`
	Categories             int           `json:"category_urls"`
	Paginations            int           `json:"pagination_urls"`
	AverageProductsPerPage float64       `json:"average_products_per_page"`
	OutputPath             string        `json:"output_path,omitempty"`
}

// NewSummary snapshots a session. outputPath may be empty.
func NewSummary(session *model.CrawlSession, outputPath string) *Summary {
	stats := session.Stats.Snapshot()
	return &Summary{
		SessionID:              session.ID,
		StartURL:               session.StartURL,
		SiteTag:                session.SiteTag,
		State:                  session.State.String(),
		FailureReason:          session.FailureReason,
		Interrupted:            session.Interrupted,
		StartedAt:              session.StartedAt,
		EndedAt:                session.EndedAt,
		Duration:               session.Duration(),
		URLsFound:              stats.URLsFound,
		SuccessfulScrapes:      stats.SuccessfulScrapes,
		FailedScrapes:          stats.FailedScrapes,
		PagesProcessed:         stats.PagesProcessed,
		TotalProducts:          stats.TotalProducts,
		Categories:             len(session.URLs(model.ClassCategory)),
		Paginations:            len(session.URLs(model.ClassPagination)),
		AverageProductsPerPage: stats.AverageProductsPerPage(),
		OutputPath:             outputPath,
	}
}

// FromHistory rebuilds a summary from a stored session. Class counts
// other than products are not stored and stay zero.
func FromHistory(s database.SessionSummary) *Summary {
	avg := 0.0
	if s.PagesProcessed > 0 {
		avg = float64(s.TotalProducts) / float64(s.PagesProcessed)
	}
	return &Summary{
		SessionID:              s.ID,
		StartURL:               s.StartURL,
		SiteTag:                s.SiteTag,
		State:                  s.State,
		FailureReason:          s.FailureReason,
		StartedAt:              s.StartedAt,
		EndedAt:                s.EndedAt,
		Duration:               s.Duration(),
		SuccessfulScrapes:      s.SuccessfulScrapes,
		FailedScrapes:          s.FailedScrapes,
		PagesProcessed:         s.PagesProcessed,
		TotalProducts:          s.TotalProducts,
		AverageProductsPerPage: avg,
		OutputPath:             s.OutputPath,
	}
}

// Failed reports whether the session ended in the failed state.
func (s *Summary) Failed() bool {
	return s.State == model.StateFailed.String()
}
