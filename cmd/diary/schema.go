package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/diary/pkg/adapters/postgres"
)

var schemaApply bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the SQL for the notes table and its row-level security policies",
	Long: `Schema prints the table definition and policies the diary expects.
With --apply it runs them against DIARY_DATABASE_URL.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !schemaApply {
			fmt.Print(postgres.Schema)
			return
		}
		if cfg.DatabaseURL == "" {
			fatal("Cannot apply schema", fmt.Errorf("DIARY_DATABASE_URL is not set"))
		}

		ctx := context.Background()
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("Failed to connect to database", err)
		}
		store, err := postgres.New(postgres.Config{DB: db, JWTSecret: []byte(cfg.JWTSecret), Logger: slog.Default()})
		if err != nil {
			fatal("Failed to initialize store", err)
		}
		defer store.Close()

		if err := store.ApplySchema(ctx); err != nil {
			fatal("Failed to apply schema", err)
		}
		fmt.Println("Schema applied.")
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaApply, "apply", false, "Run the schema against the configured database")
}
