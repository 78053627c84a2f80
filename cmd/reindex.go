package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the knowledge base from stored files",
	Long: `Rebuild every document from its stored file: old chunks are deleted and
the document is chunked and embedded again. Run this after changing the
embedder model or to reconcile the two stores.

Only one reindex can run at a time per knowledge directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, runReindex)
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(ctx context.Context, a *app) error {
	result, err := a.Manager.Reindex(ctx)
	if err != nil {
		return err
	}

	s := defaultStyles()
	fmt.Println(s.Success.Render("Reindex complete"))
	fmt.Println(renderField(s, "Documents", fmt.Sprintf("%d", result.DocumentsProcessed)))
	fmt.Println(renderField(s, "Chunks", fmt.Sprintf("%d", result.ChunksCreated)))
	if result.DocumentsSkipped > 0 {
		fmt.Println(renderField(s, "Skipped", fmt.Sprintf("%d (see logs)", result.DocumentsSkipped)))
	}
	return nil
}
