// Package main is the terminal duel client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/duel/internal/config"
)

var (
	configPath string
	// v carries defaults, DUEL_ environment overrides and bound flags.
	v = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "duel",
	Short: "Two-player table-driven duels in the terminal",
	Long: `duel plays a two-player duel against a synthetic opponent or a remote
player reached through the relay server, a room-scoped edge relay or a
peer mesh.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to configuration file")
	flags.String("log-level", "warn", "minimum log level")
	flags.String("catalog-url", "", "remote character catalog base URL; empty uses bundled characters")
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("client.catalog_url", flags.Lookup("catalog-url"))
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(charactersCmd)
}

// loadConfig merges the config file, environment and flags.
func loadConfig() (config.Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return config.LoadFromViper(v)
}
