// Package reader extracts retrievable text chunks from raw document files.
//
// Each reader handles one file format and returns the document's content as
// an ordered sequence of chunks, ready for embedding. Chunking is
// sentence-aware with a configurable size and overlap so that retrieval
// units stay semantically coherent.
package reader

import (
	"strings"
)

// Chunk is one unit of extracted text plus reader-supplied metadata.
type Chunk struct {
	Content string
	Meta    map[string]any
}

// Options control how extracted text is split into chunks.
type Options struct {
	// ChunkSize is the target chunk length in bytes. Default 1000.
	ChunkSize int

	// ChunkOverlap is how many trailing bytes of one chunk are repeated at
	// the start of the next. Default 200.
	ChunkOverlap int

	// MinChunkLength drops trailing fragments shorter than this. Default 50.
	MinChunkLength int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 200
	}
	if o.MinChunkLength <= 0 {
		o.MinChunkLength = 50
	}
	return o
}

// splitText splits plain text into overlapping chunks on sentence
// boundaries. Sentences longer than the chunk size become chunks of their
// own rather than being cut mid-sentence.
func splitText(text string, opts Options) []string {
	opts = opts.withDefaults()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if len(chunk) >= opts.MinChunkLength {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence) > opts.ChunkSize {
			tail := overlapTail(current.String(), opts.ChunkOverlap)
			flush()
			current.WriteString(tail)
		}
		current.WriteString(sentence)
		current.WriteString(" ")
	}
	flush()

	// Degenerate input: one sentence shorter than MinChunkLength still
	// deserves a chunk, otherwise short documents vanish entirely.
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// overlapTail returns the last n bytes of s, aligned to a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// splitSentences performs basic sentence splitting on punctuation
// followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// normalizeWhitespace collapses runs of whitespace while preserving
// paragraph breaks as sentence boundaries.
func normalizeWhitespace(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n\n")
}
