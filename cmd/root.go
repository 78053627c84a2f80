// Package cmd implements the lexbase command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "lexbase",
	Short: "lexbase - legal knowledge base with semantic search",
	Long: `lexbase manages a searchable knowledge base of legal documents.

Documents are chunked, embedded, and stored across a pgvector index and a
MongoDB metadata store. Search is semantic: queries match by meaning, with
optional category and document type filters.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called from main.
func Execute() error {
	slog.SetDefault(initLogger())
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; LOG_JSON switches to JSON output for log shippers.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
