package store

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/nao1215/productscan/internal/model"
)

// DefaultBatchSize is the number of unsaved products that triggers a write.
const DefaultBatchSize = 10

// Store writes the output and progress files. It is safe for concurrent use
// by several sessions; writes are serialized.
type Store struct {
	outputPath   string
	progressPath string
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	order    []string
	sessions map[string]model.StatsSnapshot
}

// Option configures a Store.
type Option func(*Store)

// WithProgressPath sets the progress file path. Without it WriteProgress
// is a no-op.
func WithProgressPath(path string) Option {
	return func(s *Store) {
		s.progressPath = path
	}
}

// WithBatchSize sets the unsaved-product threshold for non-forced flushes.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source for last_update.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a Store writing products to outputPath.
func New(outputPath string, opts ...Option) (*Store, error) {
	if outputPath == "" {
		return nil, ErrNoOutputPath
	}
	s := &Store{
		outputPath: outputPath,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
		sessions:   make(map[string]model.StatsSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// OutputPath returns the output file path.
func (s *Store) OutputPath() string { return s.outputPath }

// ProgressPath returns the progress file path, empty if disabled.
func (s *Store) ProgressPath() string { return s.progressPath }

// Flush writes the session's products when at least the batch size of
// them are unsaved, or unconditionally when force is set. Products already
// in the file are kept; a file that exists but cannot be read is moved
// aside first. On failure the previous file is intact and the session's
// unsaved counter is not reset.
func (s *Store) Flush(session *model.CrawlSession, force bool) error {
	if !force && session.Unsaved() < s.batchSize {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := Load(s.outputPath)
	if err != nil {
		if merr := s.setAside(s.outputPath, err); merr != nil {
			return merr
		}
		existing = &OutputFile{}
	}

	s.track(session)
	products := union(existing.ProductURLs, session.Products())
	doc := OutputFile{
		ProductURLs: products,
		Stats:       s.aggregate(len(products)),
	}
	if err := writeAtomic(s.outputPath, doc); err != nil {
		s.logger.Error("flush failed", "path", s.outputPath, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPersistenceWriteFailed, s.outputPath, err)
	}

	flushed := session.Unsaved()
	session.MarkSaved()
	s.logger.Info("batch saved",
		"path", s.outputPath,
		"products", len(products),
		"new", flushed,
		"run_id", session.ID,
	)
	return nil
}

// track records the session's latest statistics. Callers hold s.mu.
func (s *Store) track(session *model.CrawlSession) {
	if _, ok := s.sessions[session.ID]; !ok {
		s.order = append(s.order, session.ID)
	}
	s.sessions[session.ID] = session.Stats.Snapshot()
}

// aggregate combines the statistics of every session flushed through the
// store. Callers hold s.mu.
func (s *Store) aggregate(totalProducts int) OutputStats {
	st := OutputStats{
		TotalProducts:   totalProducts,
		ProductsPerPage: []int{},
		LastUpdate:      s.now().Format(TimeLayout),
	}
	for _, id := range s.order {
		snap := s.sessions[id]
		st.ProductsPerPage = append(st.ProductsPerPage, snap.ProductsPerPage...)
		st.TotalPagesProcessed += snap.PagesProcessed
	}
	if n := len(st.ProductsPerPage); n > 0 {
		sum := 0
		for _, c := range st.ProductsPerPage {
			sum += c
		}
		st.AverageProductsPerPage = float64(sum) / float64(n)
	}
	return st
}

// WriteProgress writes the session's URL sets to the progress file, merged
// with what the file already holds.
func (s *Store) WriteProgress(session *model.CrawlSession) error {
	if s.progressPath == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := LoadProgress(s.progressPath)
	if err != nil {
		if merr := s.setAside(s.progressPath, err); merr != nil {
			return merr
		}
		existing = &ProgressFile{}
	}

	resumePages := make(map[string]string, len(existing.ResumePages)+1)
	maps.Copy(resumePages, existing.ResumePages)
	if session.ListingURL != "" {
		resumePages[session.StartURL] = session.ListingURL
	}

	doc := ProgressFile{
		ProductURLs:    union(existing.ProductURLs, session.URLs(model.ClassProduct)),
		CategoryURLs:   union(existing.CategoryURLs, session.URLs(model.ClassCategory)),
		PaginationURLs: union(existing.PaginationURLs, session.URLs(model.ClassPagination)),
		Stats: ProgressStats{
			TotalURLs:         session.VisitedCount(),
			SuccessfulScrapes: session.Stats.SuccessfulScrapes,
			FailedScrapes:     session.Stats.FailedScrapes,
		},
		ResumePages: resumePages,
	}
	if err := writeAtomic(s.progressPath, doc); err != nil {
		s.logger.Error("progress write failed", "path", s.progressPath, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPersistenceWriteFailed, s.progressPath, err)
	}
	s.logger.Info("progress saved", "path", s.progressPath, "visited", doc.Stats.TotalURLs)
	return nil
}

// setAside moves an unreadable file out of the way. The error is
// ErrPersistenceWriteFailed when the file cannot be moved, in which case
// nothing is written. Callers hold s.mu.
func (s *Store) setAside(path string, readErr error) error {
	aside, err := moveAside(path, s.now())
	if err != nil {
		s.logger.Error("unreadable file kept in place, not writing", "path", path, "error", readErr)
		return fmt.Errorf("%w: %s is unreadable (%w) and could not be moved aside: %w",
			ErrPersistenceWriteFailed, path, readErr, err)
	}
	s.logger.Warn("unreadable file moved aside", "path", path, "moved_to", aside, "error", readErr)
	return nil
}

// Resume seeds session with the URLs of a progress or output file so that
// they are neither revisited nor counted as new. When the file records the
// listing page an earlier run on the same start URL reached, the session
// resumes there.
func Resume(session *model.CrawlSession, path string) (int, error) {
	f, err := LoadProgress(path)
	if err != nil {
		return 0, err
	}
	if page := f.ResumePages[session.StartURL]; page != "" {
		session.ResumeURL = page
	}
	before := session.VisitedCount()
	session.Seed(model.ClassProduct, f.ProductURLs)
	session.Seed(model.ClassCategory, f.CategoryURLs)
	session.Seed(model.ClassPagination, f.PaginationURLs)
	return session.VisitedCount() - before, nil
}
