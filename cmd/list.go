package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/knowledge"
)

var (
	listCategory string
	listType     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, runList)
	},
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	listCmd.Flags().StringVar(&listType, "type", "", "filter by document type (pdf, docx, text)")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, a *app) error {
	filter := knowledge.ListFilter{Category: listCategory}
	if listType != "" {
		docType, err := resolveDocumentType(listType, "")
		if err != nil {
			return err
		}
		filter.DocumentType = docType
	}

	docs, err := a.Manager.List(ctx, filter)
	if err != nil {
		return err
	}

	s := defaultStyles()
	if len(docs) == 0 {
		fmt.Println(s.Muted.Render("No documents."))
		return nil
	}

	fmt.Println(renderHeader(s, fmt.Sprintf("%d document(s)", len(docs))))
	for _, doc := range docs {
		fmt.Printf("\n%s\n", s.Value.Render(doc.FileName))
		fmt.Println(renderField(s, "ID", doc.DocumentID))
		fmt.Println(renderField(s, "Category", doc.Category))
		fmt.Println(renderField(s, "Type", string(doc.DocumentType)))
		fmt.Println(renderField(s, "Chunks", fmt.Sprintf("%d (%d bytes)", doc.ChunkCount, doc.TotalContentLength)))
		fmt.Println(renderField(s, "Added", doc.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}
