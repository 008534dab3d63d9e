package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/diary"
)

var (
	verbose     bool
	configPath  string
	backendName string

	cfg diary.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "diary",
	Short: "A personal diary backed by a hosted database",
	Long: `Diary keeps dated journal entries in a notes table protected by
row-level security. Run "diary serve" for the web interface or use the
note commands directly from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := diary.LoadConfig(configPath)
		if err != nil {
			fatal("Failed to load configuration", err)
		}
		if backendName != "" {
			loaded.Backend = backendName
		}
		cfg = loaded

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: nearest diary.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Backend adapter: supabase, postgres or memory")
}
