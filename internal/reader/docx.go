package reader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Docx reads Office Open XML word-processing documents. The format is a ZIP
// archive; the text body lives in word/document.xml.
type Docx struct {
	opts Options
}

// NewDocx creates a DOCX reader with the given chunking options.
func NewDocx(opts Options) *Docx {
	return &Docx{opts: opts.withDefaults()}
}

// Read extracts chunks from the DOCX file at path.
func (r *Docx) Read(path string) ([]Chunk, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx archive: %w", err)
	}
	defer func() {
		_ = archive.Close()
	}()

	text, err := extractDocumentText(&archive.Reader)
	if err != nil {
		return nil, err
	}
	title := extractCoreTitle(&archive.Reader)

	parts := splitText(normalizeWhitespace(text), r.opts)
	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		meta := map[string]any{"format": "docx"}
		if title != "" {
			meta["title"] = title
		}
		chunks = append(chunks, Chunk{Content: part, Meta: meta})
	}
	return chunks, nil
}

// extractDocumentText pulls the paragraph text out of word/document.xml.
func extractDocumentText(archive *zip.Reader) (string, error) {
	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read document.xml: %w", err)
		}

		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

// documentXML mirrors the subset of the WordprocessingML schema we need.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("failed to parse document.xml: %w", err)
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				result.WriteString(text.Content)
			}
		}
	}
	return strings.TrimSpace(result.String()), nil
}

// extractCoreTitle reads the document title from docProps/core.xml if present.
func extractCoreTitle(archive *zip.Reader) string {
	for _, file := range archive.File {
		if file.Name != "docProps/core.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return ""
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return ""
		}

		var core struct {
			Title string `xml:"title"`
		}
		if err := xml.Unmarshal(content, &core); err == nil {
			return strings.TrimSpace(core.Title)
		}
		return ""
	}
	return ""
}
