package reader

import (
	"fmt"
	"os"
	"unicode/utf8"
)

// Text reads plain-text files.
type Text struct {
	opts Options
}

// NewText creates a plain-text reader with the given chunking options.
func NewText(opts Options) *Text {
	return &Text{opts: opts.withDefaults()}
}

// Read extracts chunks from the text file at path.
func (r *Text) Read(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built by the coordinator, not user input
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := normalizeWhitespace(sanitizeUTF8(string(data)))

	parts := splitText(text, r.opts)
	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, Chunk{
			Content: part,
			Meta:    map[string]any{"format": "text"},
		})
	}
	return chunks, nil
}

// sanitizeUTF8 drops invalid byte sequences so downstream stores never see
// broken encodings.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
