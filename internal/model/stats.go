package model

import "time"

// CrawlStatistics holds the running counters of one session.
// It is mutated only by the goroutine driving the session.
type CrawlStatistics struct {
	// URLsFound counts every URL added to the visited set.
	URLsFound int

	// SuccessfulScrapes counts pages that were acquired and extracted.
	SuccessfulScrapes int

	// FailedScrapes counts pages whose acquisition failed.
	FailedScrapes int

	// PagesProcessed counts pages that went through extraction.
	PagesProcessed int

	// ProductsPerPage holds the number of new products found on each page.
	ProductsPerPage []int

	// TotalProducts is the number of distinct product URLs.
	TotalProducts int

	// LastUpdate is the time of the last recorded page.
	LastUpdate time.Time
}

// StatsSnapshot is a read-only copy of CrawlStatistics taken for
// persistence and for the final summary.
type StatsSnapshot struct {
	URLsFound         int
	SuccessfulScrapes int
	FailedScrapes     int
	PagesProcessed    int
	ProductsPerPage   []int
	TotalProducts     int
	LastUpdate        time.Time
}

// RecordPage appends a per-page product sample.
func (s *CrawlStatistics) RecordPage(products int, now time.Time) {
	s.PagesProcessed++
	s.SuccessfulScrapes++
	s.ProductsPerPage = append(s.ProductsPerPage, products)
	s.LastUpdate = now
}

// RecordFailure counts a page that could not be acquired.
func (s *CrawlStatistics) RecordFailure(now time.Time) {
	s.FailedScrapes++
	s.LastUpdate = now
}

// Snapshot returns a copy that does not alias the live counters.
func (s *CrawlStatistics) Snapshot() StatsSnapshot {
	perPage := make([]int, len(s.ProductsPerPage))
	copy(perPage, s.ProductsPerPage)
	return StatsSnapshot{
		URLsFound:         s.URLsFound,
		SuccessfulScrapes: s.SuccessfulScrapes,
		FailedScrapes:     s.FailedScrapes,
		PagesProcessed:    s.PagesProcessed,
		ProductsPerPage:   perPage,
		TotalProducts:     s.TotalProducts,
		LastUpdate:        s.LastUpdate,
	}
}

// AverageProductsPerPage returns the mean of the per-page samples,
// or 0 when no page has been processed.
func (s StatsSnapshot) AverageProductsPerPage() float64 {
	if len(s.ProductsPerPage) == 0 {
		return 0
	}
	sum := 0
	for _, n := range s.ProductsPerPage {
		sum += n
	}
	return float64(sum) / float64(len(s.ProductsPerPage))
}
