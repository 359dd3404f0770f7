package main

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/productscan/internal/config"
	"github.com/nao1215/productscan/internal/profile"
)

//go:embed templates/productscan.yaml
var configTemplate embed.FS

const templatePath = "templates/productscan.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter .productscan.yaml",
		Long: `Init writes a commented configuration file with the default crawl
limits, proxy sources and an empty sites section.

With --with-sites the sites section is filled with the built-in selector
profiles (amazon, alibaba, noon, sharafdg, generic) so they can be tuned
when a marketplace changes its markup.

Examples:
  productscan init
  productscan init -o ~/.productscan.yaml
  productscan init --with-sites -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Path of the file to write")
	cmd.Flags().BoolP("force", "f", false, "Replace an existing file")
	cmd.Flags().Bool("with-sites", false, "Include the built-in site profiles")
	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	withSites, err := cmd.Flags().GetBool("with-sites")
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
	}

	content, err := renderTemplate(withSites)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", path)
	if withSites {
		fmt.Fprintln(out, "The sites section holds the built-in profiles; edit the selectors in place.")
	}
	return nil
}

// renderTemplate returns the embedded template, with the empty sites key
// replaced by the built-in profiles when withSites is set.
func renderTemplate(withSites bool) ([]byte, error) {
	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}
	if !withSites {
		return content, nil
	}

	registry, err := profile.NewRegistry()
	if err != nil {
		return nil, err
	}
	sites, err := config.MarshalSites(config.BuiltinSites(registry))
	if err != nil {
		return nil, err
	}

	key := []byte("\nsites:\n")
	if !bytes.Contains(content, key) {
		return nil, errors.New("config template has no sites section")
	}
	return bytes.Replace(content, key, append([]byte("\n"), sites...), 1), nil
}
