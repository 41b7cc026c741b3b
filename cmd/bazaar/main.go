package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/tui"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
	quiet      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bazaar",
	Short: "Browse marketplace listings in the terminal",
	Long: `bazaar is a terminal client for a second-hand marketplace.

It pages through the newest listings, searches them by title as you type and
lets sellers remove their own items. Listings come from a local catalog filled
with "bazaar import", or from a hosted PostgREST backend.

Example usage:
  bazaar                          # Browse listings
  bazaar import https://.../rss   # Import listings from a feed
  bazaar list --search lamp       # Print the first page of matches`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = debuglog.Close()
	},
	RunE: runBrowse,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Open the listing browser (default)",
	RunE:  runBrowse,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ~/.config/bazaar/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: off, error, warn, info, debug")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "skip startup banner")

	rootCmd.AddCommand(browseCmd)
}

// setup loads the configuration and starts logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Database.Path = dbPath
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(loaded.Log.Level), loaded.Log.File); err != nil {
		return err
	}
	cfg = loaded
	debuglog.WithFields(map[string]interface{}{
		"backend": cfg.Backend.Kind,
		"db":      cfg.Database.Path,
		"command": cmd.Name(),
	}).Debugf("configuration loaded")
	return nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if !quiet {
		tui.ShowBanner(Version)
	}
	return tui.Run(cmd.Context(), b.svc, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
