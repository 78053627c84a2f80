package testutil

import (
	"context"
	"hash/fnv"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// FakeEmbedder is a deterministic ai.Embedder for tests that need real
// vectors without a network call. Identical texts embed to identical
// vectors, so similarity search over fake embeddings behaves consistently
// across runs.
type FakeEmbedder struct {
	// Dimension of produced vectors. Defaults to 768 to match the
	// knowledge_points schema.
	Dimension int
}

var _ ai.Embedder = (*FakeEmbedder)(nil)

func (f *FakeEmbedder) Name() string { return "fake-embedder" }

func (f *FakeEmbedder) Register(r api.Registry) {}

// Embed derives each vector from an FNV hash of the input text.
func (f *FakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	dim := f.Dimension
	if dim <= 0 {
		dim = 768
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		embeddings[i] = &ai.Embedding{Embedding: hashVector(text, dim)}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// hashVector expands a text hash into a unit-scale vector.
func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float32(seed%2000)/1000.0 - 1.0
	}
	return vec
}
