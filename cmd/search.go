package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/knowledge"
)

var (
	searchLimit     int
	searchThreshold float64
	searchType      string
	searchCategory  string
	searchFull      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base semantically",
	Long: `Search the knowledge base by meaning. The query is embedded and matched
against stored chunks; results are ranked by similarity score.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			return runSearch(ctx, a, strings.Join(args, " "))
		})
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "minimum similarity score 0..1 (default from config)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict to a document type (pdf, docx, text)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict to a category")
	searchCmd.Flags().BoolVar(&searchFull, "full", false, "print full chunk content instead of the preview")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, a *app, query string) error {
	opts := []knowledge.SearchOption{
		knowledge.WithLimit(a.Config.SearchLimit),
		knowledge.WithScoreThreshold(float32(a.Config.ScoreThreshold)),
	}
	if searchLimit > 0 {
		opts = append(opts, knowledge.WithLimit(searchLimit))
	}
	if searchThreshold >= 0 {
		opts = append(opts, knowledge.WithScoreThreshold(float32(searchThreshold)))
	}
	if searchCategory != "" {
		opts = append(opts, knowledge.WithCategory(searchCategory))
	}
	if searchType != "" {
		docType, err := resolveDocumentType(searchType, "")
		if err != nil {
			return err
		}
		opts = append(opts, knowledge.WithDocumentType(docType))
	}

	results, err := a.Manager.Search(ctx, query, opts...)
	if err != nil {
		return err
	}

	s := defaultStyles()
	if len(results) == 0 {
		fmt.Println(s.Muted.Render("No results."))
		return nil
	}

	fmt.Println(renderHeader(s, fmt.Sprintf("%d result(s) for %q", len(results), query)))
	for i, r := range results {
		fmt.Printf("\n%s %s\n",
			s.Score.Render(fmt.Sprintf("%d. [%.3f]", i+1, r.Score)),
			s.Value.Render(fmt.Sprintf("%s (chunk %d)", r.FileName, r.ChunkIndex)))
		fmt.Println(renderField(s, "Category", r.Category))
		fmt.Println(renderField(s, "Document", r.DocumentID))

		content := r.Content
		if searchFull && r.FullContent != "" {
			content = r.FullContent
		}
		for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
			fmt.Printf("  %s\n", s.Muted.Render(line))
		}
	}
	return nil
}
