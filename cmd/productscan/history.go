package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/productscan/internal/config"
	"github.com/nao1215/productscan/internal/database"
	"github.com/nao1215/productscan/internal/report"
)

// defaultHistoryLimit is the number of sessions listed by default.
const defaultHistoryLimit = 20

var (
	errNoSessions      = errors.New("no crawl sessions recorded yet")
	errSessionNotFound = errors.New("session not found")
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List past crawl sessions",
		Long: `History lists the crawl sessions recorded in the history database,
most recent first. With a session ID (or a unique prefix of one) it prints
the summary of that session.

Examples:
  # List the last 20 sessions
  productscan history

  # List every session
  productscan history -n 0

  # Show one session as Markdown
  productscan history -f markdown 3f2a9c`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of sessions listed (0 = all)")
	cmd.Flags().StringP(flagFormat, "f", config.DefaultReportFormat,
		"Output format: text, json or markdown")
	cmd.Flags().String(flagDBDir, defaultDBDir(), "Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString(flagFormat)
	if err != nil {
		return err
	}
	w, err := summaryWriter(format, cmd.OutOrStdout(), persistentBool(cmd, flagVerbose))
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if len(args) == 1 {
		s, err := findSession(ctx, db, args[0])
		if err != nil {
			return err
		}
		_, err = w.Write(report.FromHistory(*s))
		return err
	}

	sessions, err := db.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No crawl sessions recorded yet.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'productscan crawl <url>' to start one.")
		return nil
	}

	if format == config.ReportText || format == "" {
		return listSessions(cmd.OutOrStdout(), sessions)
	}
	summaries := make([]*report.Summary, len(sessions))
	for i, s := range sessions {
		summaries[i] = report.FromHistory(s)
	}
	_, err = w.WriteAll(summaries)
	return err
}

// listSessions prints one line per session.
func listSessions(out io.Writer, sessions []database.SessionSummary) error {
	fmt.Fprintf(out, "Crawl history (%d sessions):\n\n", len(sessions))
	fmt.Fprintf(out, "  %-8s  %-19s  %-10s  %-9s  %8s  %5s  %s\n",
		"ID", "Started", "Site", "State", "Products", "Pages", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, s := range sessions {
		fmt.Fprintf(out, "  %-8s  %-19s  %-10s  %-9s  %8d  %5d  %s\n",
			shortID(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.SiteTag,
			s.State,
			s.TotalProducts,
			s.PagesProcessed,
			s.StartURL,
		)
	}

	fmt.Fprintln(out, "\nUse 'productscan history <id>' to show a session.")
	fmt.Fprintln(out, "Use 'productscan export <id>' to export its URLs.")
	return nil
}

// openHistory opens the database named by the --db-dir flag without
// creating it.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	dir, err := cmd.Flags().GetString(flagDBDir)
	if err != nil {
		return nil, err
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoSessions, err)
	}
	return db, nil
}

// findSession resolves an ID prefix to exactly one stored session.
func findSession(ctx context.Context, db *database.HistoryDB, idPrefix string) (*database.SessionSummary, error) {
	s, err := db.FindSession(ctx, idPrefix)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %q", errSessionNotFound, idPrefix)
	}
	return s, nil
}

// defaultDBDir is the default --db-dir value.
func defaultDBDir() string {
	return config.XDGDataDir()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
