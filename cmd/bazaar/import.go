package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/bazaar/internal/catalog"
)

var (
	importForce        bool
	importAllowPrivate bool
)

var importCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import listings from an RSS or Atom feed",
	Long: `Fetches a feed of classified ads and stores its items as listings in the
local catalog. Items imported before, matched by GUID or link, are updated in
place. The feed's ETag and Last-Modified are remembered so an unchanged feed is
not downloaded again unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.catalog == nil {
			return errNotLocal
		}

		importer := catalog.NewImporter(b.catalog, catalog.ImporterOptions{
			UserAgent:         cfg.Import.UserAgent,
			Timeout:           cfg.Import.HTTPTimeout,
			AllowPrivateHosts: importAllowPrivate,
			Force:             importForce,
		})

		start := time.Now()
		res, err := importer.Import(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		w := cmd.OutOrStdout()
		if res.NotModified {
			fmt.Fprintf(w, "%s is unchanged since the last import\n", res.URL)
			return nil
		}
		done := lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80")).Bold(true)
		fmt.Fprintf(w, "%s %s\n", done.Render("✓"), res.URL)
		fmt.Fprintf(w, "  created: %d\n", res.Created)
		fmt.Fprintf(w, "  updated: %d\n", res.Updated)
		fmt.Fprintf(w, "  took:    %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importForce, "force", false, "download the feed even if it has not changed")
	importCmd.Flags().BoolVar(&importAllowPrivate, "allow-private", false, "allow feeds on localhost and private networks")
}
