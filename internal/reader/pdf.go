package reader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDF reads PDF documents using plain-text extraction.
type PDF struct {
	opts Options
}

// NewPDF creates a PDF reader with the given chunking options.
func NewPDF(opts Options) *PDF {
	return &PDF{opts: opts.withDefaults()}
}

// Read extracts chunks from the PDF file at path.
func (r *PDF) Read(path string) ([]Chunk, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	plain, err := doc.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("failed to read pdf text: %w", err)
	}

	text := normalizeWhitespace(sanitizeUTF8(buf.String()))
	pages := doc.NumPage()

	parts := splitText(text, r.opts)
	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, Chunk{
			Content: part,
			Meta:    map[string]any{"format": "pdf", "page_count": pages},
		})
	}
	return chunks, nil
}
