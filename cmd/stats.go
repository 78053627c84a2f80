package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/knowledge"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, runStats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context, a *app) error {
	stats, err := a.Manager.Stats(ctx)
	if err != nil {
		return err
	}

	s := defaultStyles()
	fmt.Println(renderHeader(s, "Knowledge base"))
	fmt.Println(renderField(s, "Documents", fmt.Sprintf("%d", stats.TotalDocuments)))
	fmt.Println(renderField(s, "Chunks", fmt.Sprintf("%d", stats.TotalChunks)))
	fmt.Println(renderField(s, "Vector points", fmt.Sprintf("%d", stats.VectorPointCount)))
	fmt.Println(renderField(s, "Index status", stats.CollectionStatus))

	printGroups(s, "By category", stats.ByCategory)
	printGroups(s, "By document type", stats.ByDocumentType)
	return nil
}

func printGroups(s styles, title string, groups []knowledge.GroupCount) {
	if len(groups) == 0 {
		return
	}
	fmt.Printf("\n%s\n", renderHeader(s, title))
	for _, g := range groups {
		fmt.Println(renderField(s, g.Key,
			fmt.Sprintf("%d document(s), %d chunk(s)", g.DocumentCount, g.ChunkCount)))
	}
}
