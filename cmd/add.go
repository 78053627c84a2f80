package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/internal/knowledge"
)

var (
	addType     string
	addCategory string
	addMeta     []string
)

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Ingest a document into the knowledge base",
	Long: `Ingest a document: the file is copied into the knowledge directory,
split into chunks, embedded, and indexed for semantic search.

The document type is inferred from the file extension unless --type is
given. Supported types: pdf, docx, text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			return runAdd(ctx, a, args[0])
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addType, "type", "", "document type (pdf, docx, text); inferred from extension if empty")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category to file the document under (default: general)")
	addCmd.Flags().StringArrayVar(&addMeta, "meta", nil, "extra metadata as key=value (repeatable)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(ctx context.Context, a *app, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied CLI argument
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	docType, err := resolveDocumentType(addType, path)
	if err != nil {
		return err
	}

	meta, err := parseMetaFlags(addMeta)
	if err != nil {
		return err
	}

	result, err := a.Manager.Add(ctx, filepath.Base(path), data, docType, addCategory, meta)
	if err != nil {
		return err
	}

	s := defaultStyles()
	fmt.Println(s.Success.Render("Document added"))
	fmt.Println(renderField(s, "Document ID", result.DocumentID))
	fmt.Println(renderField(s, "Chunks", fmt.Sprintf("%d", result.ChunksCreated)))
	fmt.Println(renderField(s, "Stored at", result.StoragePath))
	return nil
}

// resolveDocumentType maps the --type flag, or the file extension when the
// flag is empty, to a document type.
func resolveDocumentType(flag, path string) (knowledge.DocumentType, error) {
	if flag != "" {
		switch strings.ToLower(flag) {
		case "pdf":
			return knowledge.TypePDF, nil
		case "docx":
			return knowledge.TypeDocx, nil
		case "text", "txt":
			return knowledge.TypeText, nil
		default:
			return "", fmt.Errorf("unknown document type %q (expected pdf, docx, or text)", flag)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return knowledge.TypePDF, nil
	case ".docx":
		return knowledge.TypeDocx, nil
	default:
		return knowledge.TypeText, nil
	}
}

// parseMetaFlags converts repeated key=value flags into a metadata map.
func parseMetaFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --meta value %q (expected key=value)", pair)
		}
		meta[key] = value
	}
	return meta, nil
}
