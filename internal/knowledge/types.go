package knowledge

import "time"

// DocumentType identifies the file format of an uploaded document.
type DocumentType string

// Supported document types. A type is usable only when a matching reader
// is registered with the Manager.
const (
	TypePDF  DocumentType = "pdf"
	TypeDocx DocumentType = "docx"
	TypeText DocumentType = "text"
)

// DefaultCategory is used when the caller does not supply a category.
const DefaultCategory = "general"

// Point is one record in the vector index: an identifier, the embedding
// vector, and a self-describing payload. The payload carries enough fields
// (document_id, chunk_id, vector_point_id, document_type, category,
// chunk_index) to be useful even when the metadata store record is missing.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one vector similarity search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// CollectionInfo describes the health of the vector index.
type CollectionInfo struct {
	PointCount int64
	Status     string
}

// Chunk is one retrievable unit of text derived from a logical document,
// as persisted in the metadata store. ChunkID is derived from the document
// id and ordinal position; VectorPointID is an independent identifier so
// vector-index identity stays decoupled from metadata-store identity.
type Chunk struct {
	ChunkID       string
	DocumentID    string
	VectorPointID string
	StoragePath   string
	FileName      string
	DocumentType  DocumentType
	Category      string
	ChunkIndex    int
	TotalChunks   int
	Content       string
	ContentLength int
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DocumentSummary is one row of the List view: a logical document with its
// chunks rolled up.
type DocumentSummary struct {
	DocumentID         string
	FileName           string
	StoragePath        string
	DocumentType       DocumentType
	Category           string
	ChunkCount         int64
	TotalContentLength int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ListFilter restricts List to a category and/or document type. Zero values
// impose no constraint.
type ListFilter struct {
	Category     string
	DocumentType DocumentType
}

// GroupCount is a per-group rollup used in Stats.
type GroupCount struct {
	Key           string
	DocumentCount int64
	ChunkCount    int64
}

// StoreStats is the metadata-store side of Stats.
type StoreStats struct {
	TotalDocuments int64
	TotalChunks    int64
	ByCategory     []GroupCount
	ByDocumentType []GroupCount
}

// Stats reports knowledge-base totals across both stores.
type Stats struct {
	TotalDocuments   int64
	TotalChunks      int64
	VectorPointCount int64
	CollectionStatus string
	ByCategory       []GroupCount
	ByDocumentType   []GroupCount
}

// AddResult summarizes a successful ingestion.
type AddResult struct {
	DocumentID    string
	ChunksCreated int
	StoragePath   string
}

// SearchResult is one merged search hit: similarity score and payload from
// the vector index, full content from the metadata store when available.
type SearchResult struct {
	VectorPointID string
	Score         float32
	Content       string
	FileName      string
	DocumentType  DocumentType
	Category      string
	ChunkIndex    int
	DocumentID    string
	FullContent   string
	Metadata      map[string]any
}

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	DocumentsProcessed int
	ChunksCreated      int
	DocumentsSkipped   int
}

// Search defaults applied when no option overrides them.
const (
	DefaultSearchLimit    = 5
	DefaultScoreThreshold = 0.7

	previewMaxRunes = 200
)

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit          int
	scoreThreshold float32
	documentType   DocumentType
	category       string
}

// WithLimit sets the maximum number of results to return.
func WithLimit(limit int) SearchOption {
	return func(c *searchConfig) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithScoreThreshold sets the minimum (inclusive) similarity score a hit
// must reach to be returned.
func WithScoreThreshold(threshold float32) SearchOption {
	return func(c *searchConfig) {
		c.scoreThreshold = threshold
	}
}

// WithDocumentType restricts results to one document type.
func WithDocumentType(t DocumentType) SearchOption {
	return func(c *searchConfig) {
		c.documentType = t
	}
}

// WithCategory restricts results to one category.
func WithCategory(category string) SearchOption {
	return func(c *searchConfig) {
		c.category = category
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		limit:          DefaultSearchLimit,
		scoreThreshold: DefaultScoreThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
