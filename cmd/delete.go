package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all its chunks",
	Long: `Delete a document: every chunk is removed from the vector index and the
metadata store, and the stored file is deleted. Use "lexbase list" to find
document ids.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			return runDelete(ctx, a, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(ctx context.Context, a *app, documentID string) error {
	deleted, err := a.Manager.Delete(ctx, documentID)
	if err != nil {
		return err
	}

	s := defaultStyles()
	fmt.Println(s.Success.Render(fmt.Sprintf("Deleted document %s (%d chunks)", documentID, deleted)))
	return nil
}
