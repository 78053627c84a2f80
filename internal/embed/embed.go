// Package embed wires the embedding backend and applies client-side rate
// limiting around it.
package embed

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// VectorDimension is the embedding size stored by the knowledge_points
// schema (vector(768)). Gemini embedding models default to larger outputs
// and support truncation to this size via OutputDimensionality.
const VectorDimension int32 = 768

// NewGoogleAI initializes Genkit with the GoogleAI plugin and returns the
// embedder for the given model. Requires GEMINI_API_KEY in the environment.
func NewGoogleAI(ctx context.Context, model string) (ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("failed to initialize genkit")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, model)
	if embedder == nil {
		return nil, fmt.Errorf("unknown embedder model: %s", model)
	}
	return embedder, nil
}

// Dimensioned wraps an embedder and requests a fixed output dimensionality
// for every embed call that carries no provider options. Without it the
// provider returns its model default (3072 for gemini-embedding-001), which
// the vector schema rejects.
type Dimensioned struct {
	inner ai.Embedder
	dim   int32
}

var _ ai.Embedder = (*Dimensioned)(nil)

// NewDimensioned wraps inner so embeddings come back with dim values.
func NewDimensioned(inner ai.Embedder, dim int32) *Dimensioned {
	return &Dimensioned{inner: inner, dim: dim}
}

func (e *Dimensioned) Name() string {
	return e.inner.Name()
}

func (e *Dimensioned) Register(r api.Registry) {
	e.inner.Register(r)
}

// Embed delegates with OutputDimensionality set. Caller-supplied options
// win; the request itself is never mutated.
func (e *Dimensioned) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if req.Options != nil {
		return e.inner.Embed(ctx, req)
	}
	dim := e.dim
	sized := *req
	sized.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	return e.inner.Embed(ctx, &sized)
}

// RateLimited wraps an embedder with a token-bucket limiter. One token is
// spent per request regardless of batch size, which matches per-request API
// quotas.
type RateLimited struct {
	inner   ai.Embedder
	limiter *rate.Limiter
}

var _ ai.Embedder = (*RateLimited)(nil)

// NewRateLimited wraps inner at requestsPerSecond with the given burst.
// Non-positive values disable limiting.
func NewRateLimited(inner ai.Embedder, requestsPerSecond float64, burst int) *RateLimited {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (e *RateLimited) Name() string {
	return e.inner.Name()
}

func (e *RateLimited) Register(r api.Registry) {
	e.inner.Register(r)
}

// Embed blocks until the limiter grants a token, then delegates. Context
// cancellation interrupts the wait.
func (e *RateLimited) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit wait: %w", err)
	}
	return e.inner.Embed(ctx, req)
}
