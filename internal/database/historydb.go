package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/productscan/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "productscan.db"

// timeLayout is how timestamps are stored.
const timeLayout = "2006-01-02 15:04:05"

// HistoryDB stores crawl sessions and their discovered URLs.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		site_tag TEXT NOT NULL,
		state TEXT NOT NULL,
		failure_reason TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		total_products INTEGER DEFAULT 0,
		pages_processed INTEGER DEFAULT 0,
		successful_scrapes INTEGER DEFAULT 0,
		failed_scrapes INTEGER DEFAULT 0,
		output_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_url ON sessions(start_url);
	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		url TEXT NOT NULL,
		class TEXT NOT NULL,
		discovered_at TEXT NOT NULL,
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_urls_session ON urls(session_id);
	CREATE INDEX IF NOT EXISTS idx_urls_class ON urls(class);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SessionSummary is a stored crawl session.
type SessionSummary struct {
	ID                string
	StartURL          string
	SiteTag           string
	State             string
	FailureReason     string
	StartedAt         time.Time
	EndedAt           time.Time
	TotalProducts     int
	PagesProcessed    int
	SuccessfulScrapes int
	FailedScrapes     int
	OutputPath        string
}

// Duration returns the run time, zero for an unfinished session.
func (s SessionSummary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// RecordSession upserts the session row and inserts the URLs the session
// discovered. Re-recording a session only adds new URLs.
func (h *HistoryDB) RecordSession(ctx context.Context, session *model.CrawlSession, outputPath string) (err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var endedAt sql.NullString
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullString{String: formatTime(session.EndedAt), Valid: true}
	}
	snap := session.Stats.Snapshot()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, start_url, site_tag, state, failure_reason, started_at, ended_at,
		total_products, pages_processed, successful_scrapes, failed_scrapes, output_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		failure_reason = excluded.failure_reason,
		ended_at = excluded.ended_at,
		total_products = excluded.total_products,
		pages_processed = excluded.pages_processed,
		successful_scrapes = excluded.successful_scrapes,
		failed_scrapes = excluded.failed_scrapes,
		output_path = excluded.output_path
	`,
		session.ID,
		session.StartURL,
		session.SiteTag,
		session.State.String(),
		session.FailureReason,
		formatTime(session.StartedAt),
		endedAt,
		snap.TotalProducts,
		snap.PagesProcessed,
		snap.SuccessfulScrapes,
		snap.FailedScrapes,
		outputPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO urls (session_id, url, class, discovered_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id, url) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare url insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range session.Records() {
		if _, err = stmt.ExecContext(ctx, session.ID, rec.URL, rec.Class.String(), formatTime(rec.DiscoveredAt)); err != nil {
			return fmt.Errorf("failed to save url: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

const sessionColumns = `id, start_url, site_tag, state, failure_reason, started_at, ended_at,
	total_products, pages_processed, successful_scrapes, failed_scrapes, output_path`

// ListSessions returns the most recent sessions first. A non-positive
// limit returns all of them.
func (h *HistoryDB) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindSession returns the session whose ID starts with idPrefix. It returns
// nil when nothing matches and an error when the prefix is ambiguous.
func (h *HistoryDB) FindSession(ctx context.Context, idPrefix string) (*SessionSummary, error) {
	if idPrefix == "" {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(idPrefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	defer rows.Close()

	var found []SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousID, idPrefix)
	}
}

// URLRow is a stored discovered URL.
type URLRow struct {
	URL          string
	Class        model.URLClass
	DiscoveredAt time.Time
}

// SessionURLs returns the URLs of a session in discovery order. With
// ClassUnknown every class is returned.
func (h *HistoryDB) SessionURLs(ctx context.Context, sessionID string, class model.URLClass) ([]URLRow, error) {
	query := `SELECT url, class, discovered_at FROM urls WHERE session_id = ?`
	args := []any{sessionID}
	if class != model.ClassUnknown {
		query += ` AND class = ?`
		args = append(args, class.String())
	}
	query += ` ORDER BY id`

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get session urls: %w", err)
	}
	defer rows.Close()

	var out []URLRow
	for rows.Next() {
		var (
			row          URLRow
			className    string
			discoveredAt string
		)
		if err := rows.Scan(&row.URL, &className, &discoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		row.Class = model.ParseURLClass(className)
		row.DiscoveredAt = parseTimestamp(discoveredAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// HasRecentSession reports whether startURL was crawled within duration.
func (h *HistoryDB) HasRecentSession(ctx context.Context, startURL string, duration time.Duration) (bool, error) {
	cutoff := formatTime(time.Now().Add(-duration))
	var count int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE start_url = ? AND started_at > ?`,
		startURL, cutoff,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent sessions: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (SessionSummary, error) {
	var (
		s                  SessionSummary
		failure, output    sql.NullString
		startedAt, endedAt sql.NullString
	)
	err := r.Scan(&s.ID, &s.StartURL, &s.SiteTag, &s.State, &failure, &startedAt, &endedAt,
		&s.TotalProducts, &s.PagesProcessed, &s.SuccessfulScrapes, &s.FailedScrapes, &output)
	if err != nil {
		return s, fmt.Errorf("failed to scan session: %w", err)
	}
	s.FailureReason = failure.String
	s.OutputPath = output.String
	s.StartedAt = parseTimestamp(startedAt.String)
	if endedAt.Valid {
		s.EndedAt = parseTimestamp(endedAt.String)
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
