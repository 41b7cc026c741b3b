package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/tui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Runs without a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		if !quiet {
			tui.ShowBanner(Version)
		}
		fmt.Printf("bazaar %s\n", Version)
		fmt.Println("Marketplace listings browser")
		fmt.Println("github.com/pders01/bazaar")
		fmt.Printf("go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

var configGenCmd = &cobra.Command{
	Use:               "generate-config",
	Short:             "Write the default configuration file",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		configFile := configPath
		if configFile == "" {
			home, _ := os.UserHomeDir()
			configFile = filepath.Join(home, ".config", "bazaar", "config.toml")
		}

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configGenCmd)
}
