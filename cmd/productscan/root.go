package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/productscan/internal/log"
)

// Persistent flag names.
const (
	flagVerbose = "verbose"
	flagConfig  = "config"
	flagLogJSON = "log-json"
)

// NewRootCmd creates the root command for productscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "productscan",
		Short: "Collect product URLs from e-commerce category pages",
		Long: `productscan crawls e-commerce category and search-result pages and
collects the URLs of the product-detail pages they list.

It renders pages in a real browser, falls back to plain HTTP fetches and
fresh identities when a site pushes back, follows next-page links, URL
parameters and infinite scroll, and saves what it finds incrementally so
an interrupted crawl loses nothing.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP(flagConfig, "c", "",
		"Configuration file path (default: .productscan.yaml in current or home directory)")
	cmd.PersistentFlags().Bool(flagLogJSON, false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// persistentBool reads a persistent flag from the command or its root.
func persistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// persistentString reads a persistent string flag, empty when undefined.
func persistentString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// newLogger builds the sanitizing logger selected by the global flags.
func newLogger(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}
