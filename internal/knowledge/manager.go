package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/lexbase/lexbase/internal/reader"
)

// Reader extracts ordered text chunks from a saved document file.
// The interface is defined here, on the consumer side; internal/reader
// provides the per-format implementations.
type Reader interface {
	Read(path string) ([]reader.Chunk, error)
}

// VectorIndex is the coordinator's view of the similarity index.
// Implementations store (id, vector, payload) records, support batch
// upsert, filtered nearest-neighbor search with an inclusive score
// threshold, deletion by id set, and collection introspection.
type VectorIndex interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]Hit, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	Info(ctx context.Context) (CollectionInfo, error)
}

// ChunkStore is the coordinator's view of the metadata store: full chunk
// content and structured metadata keyed by chunk id, grouped by logical
// document id.
//
// FindByPointID returns (nil, nil) when no record matches; absence is an
// expected condition during search, not an error.
type ChunkStore interface {
	InsertMany(ctx context.Context, chunks []Chunk) error
	FindByDocument(ctx context.Context, documentID string) ([]Chunk, error)
	FindByPointID(ctx context.Context, pointID string) (*Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]DocumentSummary, error)
	Stats(ctx context.Context) (StoreStats, error)
}

// Vector index payload keys. The payload is self-describing: these fields
// are enough to present a search hit without a metadata store lookup.
const (
	payloadDocumentID   = "document_id"
	payloadChunkID      = "chunk_id"
	payloadPointID      = "vector_point_id"
	payloadStoragePath  = "storage_path"
	payloadFileName     = "file_name"
	payloadDocumentType = "document_type"
	payloadCategory     = "category"
	payloadChunkIndex   = "chunk_index"
	payloadTotalChunks  = "total_chunks"
	payloadCreatedAt    = "created_at"
	payloadPreview      = "content_preview"
)

// Manager coordinates the vector index and the metadata store so that
// every chunk exists in both or in neither after a successful operation.
//
// The dual-write is not transactional: within Add the vector upsert runs
// before the metadata insert, and within Delete the vector deletion runs
// before the metadata deletion. That ordering bounds which store can
// transiently hold an orphan, and Reindex rebuilds everything from the raw
// files as the reconciliation mechanism.
//
// Manager holds no mutable in-process state beyond its store handles; it
// is safe for concurrent use.
type Manager struct {
	vectors  VectorIndex
	chunks   ChunkStore
	embedder ai.Embedder
	readers  map[DocumentType]Reader
	baseDir  string
	logger   *slog.Logger

	reindexLock *flock.Flock
}

// Deps carries the Manager's constructor dependencies. All stores are
// injected so tests can substitute in-memory fakes.
type Deps struct {
	Vectors  VectorIndex
	Chunks   ChunkStore
	Embedder ai.Embedder
	Readers  map[DocumentType]Reader
	BaseDir  string
	Logger   *slog.Logger
}

// NewManager creates a knowledge base coordinator rooted at deps.BaseDir.
// The directory is created if absent.
func NewManager(deps Deps) (*Manager, error) {
	switch {
	case deps.Vectors == nil:
		return nil, fmt.Errorf("vector index is required")
	case deps.Chunks == nil:
		return nil, fmt.Errorf("chunk store is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case len(deps.Readers) == 0:
		return nil, fmt.Errorf("at least one reader is required")
	case deps.BaseDir == "":
		return nil, fmt.Errorf("base directory is required")
	}

	if err := os.MkdirAll(deps.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base directory: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		vectors:     deps.Vectors,
		chunks:      deps.Chunks,
		embedder:    deps.Embedder,
		readers:     deps.Readers,
		baseDir:     deps.BaseDir,
		logger:      logger,
		reindexLock: flock.New(filepath.Join(deps.BaseDir, ".reindex.lock")),
	}, nil
}

// Add ingests one document: persist the raw bytes, extract chunks, embed
// them in a single batched call, then write the vector index followed by
// the metadata store.
//
// Add is not atomic across the two stores. A failure after the vector
// upsert leaves vector-only orphans; the error reports the failing stage
// and Reindex repairs the document wholesale.
func (m *Manager) Add(ctx context.Context, fileName string, data []byte, docType DocumentType, category string, customMetadata map[string]any) (*AddResult, error) {
	rdr, ok := m.readers[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, docType)
	}

	if category == "" {
		category = DefaultCategory
	}

	documentID := uuid.NewString()

	// Category directories are shared across concurrent Add calls;
	// MkdirAll is create-if-absent.
	categoryDir := filepath.Join(m.baseDir, category)
	if err := os.MkdirAll(categoryDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating category directory %q: %w", ErrStoreWrite, category, err)
	}

	storagePath := filepath.Join(categoryDir, documentID+"_"+filepath.Base(fileName))
	if err := os.WriteFile(storagePath, data, 0o640); err != nil {
		return nil, fmt.Errorf("%w: saving document file: %w", ErrStoreWrite, err)
	}

	rawChunks, err := rdr.Read(storagePath)
	if err != nil {
		// The raw file stays on disk for inspection.
		m.logger.Error("document read failed",
			"op", "add", "document_id", documentID, "path", storagePath, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, storagePath, err)
	}

	// One batched embedding call per document; zero chunks skip embedding
	// entirely.
	var embeddings [][]float32
	if len(rawChunks) > 0 {
		texts := make([]string, len(rawChunks))
		for i, c := range rawChunks {
			texts[i] = c.Content
		}
		embeddings, err = m.embedTexts(ctx, texts)
		if err != nil {
			m.logger.Error("embedding failed",
				"op", "add", "document_id", documentID, "chunks", len(rawChunks), "error", err)
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}

	now := time.Now().UTC()
	points := make([]Point, 0, len(rawChunks))
	records := make([]Chunk, 0, len(rawChunks))

	for i, raw := range rawChunks {
		pointID := uuid.NewString()
		chunkID := fmt.Sprintf("%s_chunk_%d", documentID, i)

		payload := map[string]any{
			payloadDocumentID:   documentID,
			payloadStoragePath:  storagePath,
			payloadFileName:     fileName,
			payloadDocumentType: string(docType),
			payloadCategory:     category,
			payloadChunkIndex:   i,
			payloadTotalChunks:  len(rawChunks),
			payloadChunkID:      chunkID,
			payloadPointID:      pointID,
			payloadCreatedAt:    now.Format(time.RFC3339),
			payloadPreview:      contentPreview(raw.Content),
		}
		overlayMetadata(payload, raw.Meta)
		overlayMetadata(payload, customMetadata)

		points = append(points, Point{ID: pointID, Vector: embeddings[i], Payload: payload})
		records = append(records, Chunk{
			ChunkID:       chunkID,
			DocumentID:    documentID,
			VectorPointID: pointID,
			StoragePath:   storagePath,
			FileName:      fileName,
			DocumentType:  docType,
			Category:      category,
			ChunkIndex:    i,
			TotalChunks:   len(rawChunks),
			Content:       raw.Content,
			ContentLength: len(raw.Content),
			Metadata:      payload,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	// Vector write first, then metadata: a crash in between leaves
	// vector-only orphans, never metadata rows pointing at nothing
	// that Search would try to serve as a hit.
	if len(points) > 0 {
		if err := m.vectors.Upsert(ctx, points); err != nil {
			m.logger.Error("vector upsert failed",
				"op", "add", "document_id", documentID, "stage", "vector_write", "error", err)
			return nil, fmt.Errorf("%w: vector upsert for document %s: %w", ErrStoreWrite, documentID, err)
		}
		if err := m.chunks.InsertMany(ctx, records); err != nil {
			m.logger.Error("metadata insert failed; vector points are orphaned until reindex",
				"op", "add", "document_id", documentID, "stage", "metadata_write", "error", err)
			return nil, fmt.Errorf("%w: metadata insert for document %s: %w", ErrStoreWrite, documentID, err)
		}
	}

	m.logger.Info("document added",
		"document_id", documentID, "file_name", fileName, "category", category, "chunks", len(rawChunks))

	return &AddResult{
		DocumentID:    documentID,
		ChunksCreated: len(rawChunks),
		StoragePath:   storagePath,
	}, nil
}

// Search embeds the query once, runs a filtered nearest-neighbor search,
// and joins each hit with its metadata store record. A missing metadata
// record degrades gracefully to the payload-carried preview; results keep
// the vector index's relevance ordering.
func (m *Manager) Search(ctx context.Context, query string, opts ...SearchOption) ([]SearchResult, error) {
	cfg := buildSearchConfig(opts)

	embeddings, err := m.embedTexts(ctx, []string{query})
	if err != nil {
		m.logger.Error("query embedding failed", "op", "search", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	filter := make(map[string]string)
	if cfg.documentType != "" {
		filter[payloadDocumentType] = string(cfg.documentType)
	}
	if cfg.category != "" {
		filter[payloadCategory] = cfg.category
	}

	hits, err := m.vectors.Search(ctx, embeddings[0], cfg.limit, cfg.scoreThreshold, filter)
	if err != nil {
		m.logger.Error("vector search failed", "op", "search", "error", err)
		return nil, fmt.Errorf("%w: vector search: %w", ErrStoreQuery, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := SearchResult{
			VectorPointID: hit.ID,
			Score:         hit.Score,
			Content:       payloadString(hit.Payload, payloadPreview),
			FileName:      payloadString(hit.Payload, payloadFileName),
			DocumentType:  DocumentType(payloadString(hit.Payload, payloadDocumentType)),
			Category:      payloadString(hit.Payload, payloadCategory),
			ChunkIndex:    payloadInt(hit.Payload, payloadChunkIndex),
			DocumentID:    payloadString(hit.Payload, payloadDocumentID),
			Metadata:      hit.Payload,
		}

		chunk, err := m.chunks.FindByPointID(ctx, hit.ID)
		if err != nil {
			m.logger.Error("metadata lookup failed", "op", "search", "vector_point_id", hit.ID, "error", err)
			return nil, fmt.Errorf("%w: metadata lookup for point %s: %w", ErrStoreQuery, hit.ID, err)
		}
		if chunk != nil {
			result.FullContent = chunk.Content
			if len(chunk.Metadata) > 0 {
				result.Metadata = chunk.Metadata
			}
		}

		results = append(results, result)
	}

	m.logger.Info("knowledge search", "query", query, "results", len(results))
	return results, nil
}

// Delete removes every chunk of a logical document from both stores plus
// its raw file. Vector deletion runs before metadata deletion; a crash in
// between leaves metadata rows whose vectors are gone, which Search never
// surfaces and Reindex reconciles.
func (m *Manager) Delete(ctx context.Context, documentID string) (int, error) {
	records, err := m.chunks.FindByDocument(ctx, documentID)
	if err != nil {
		m.logger.Error("chunk lookup failed", "op", "delete", "document_id", documentID, "error", err)
		return 0, fmt.Errorf("%w: finding chunks for document %s: %w", ErrStoreQuery, documentID, err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	pointIDs := make([]string, len(records))
	for i, rec := range records {
		pointIDs[i] = rec.VectorPointID
	}

	if err := m.vectors.DeleteByIDs(ctx, pointIDs); err != nil {
		m.logger.Error("vector delete failed",
			"op", "delete", "document_id", documentID, "stage", "vector_delete", "error", err)
		return 0, fmt.Errorf("%w: vector delete for document %s: %w", ErrStoreWrite, documentID, err)
	}

	if _, err := m.chunks.DeleteByDocument(ctx, documentID); err != nil {
		m.logger.Error("metadata delete failed",
			"op", "delete", "document_id", documentID, "stage", "metadata_delete", "error", err)
		return 0, fmt.Errorf("%w: metadata delete for document %s: %w", ErrStoreWrite, documentID, err)
	}

	// The metadata store is the source of truth; a raw file that already
	// vanished is tolerated.
	if err := os.Remove(records[0].StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove document file",
			"document_id", documentID, "path", records[0].StoragePath, "error", err)
	}

	m.logger.Info("document deleted", "document_id", documentID, "chunks", len(records))
	return len(records), nil
}

// List returns one summary row per logical document, newest first,
// optionally filtered by category and document type.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]DocumentSummary, error) {
	summaries, err := m.chunks.ListDocuments(ctx, filter)
	if err != nil {
		m.logger.Error("list failed", "op", "list", "error", err)
		return nil, fmt.Errorf("%w: listing documents: %w", ErrStoreQuery, err)
	}
	return summaries, nil
}

// Stats reports totals from the metadata store together with the vector
// index's point count and health status. Read-only.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := m.chunks.Stats(ctx)
	if err != nil {
		m.logger.Error("stats failed", "op", "stats", "stage", "metadata", "error", err)
		return nil, fmt.Errorf("%w: metadata stats: %w", ErrStoreQuery, err)
	}

	info, err := m.vectors.Info(ctx)
	if err != nil {
		m.logger.Error("stats failed", "op", "stats", "stage", "vector", "error", err)
		return nil, fmt.Errorf("%w: vector index info: %w", ErrStoreQuery, err)
	}

	return &Stats{
		TotalDocuments:   storeStats.TotalDocuments,
		TotalChunks:      storeStats.TotalChunks,
		VectorPointCount: info.PointCount,
		CollectionStatus: info.Status,
		ByCategory:       storeStats.ByCategory,
		ByDocumentType:   storeStats.ByDocumentType,
	}, nil
}

// Reindex rebuilds every logical document from its raw file: snapshot the
// document list, then per document read the raw bytes, delete the old
// chunks, and ingest again. A document whose raw file is gone, or whose
// rebuild fails, is counted as skipped and never aborts the run; re-running
// Reindex is safe because each per-document cycle starts from a clean
// delete.
//
// An advisory file lock rejects concurrent reindex runs over the same
// knowledge directory.
func (m *Manager) Reindex(ctx context.Context) (*ReindexResult, error) {
	locked, err := m.reindexLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reindex lock: %w", err)
	}
	if !locked {
		return nil, ErrReindexRunning
	}
	defer func() {
		if err := m.reindexLock.Unlock(); err != nil {
			m.logger.Warn("failed to release reindex lock", "error", err)
		}
	}()

	// Snapshot first so the loop never iterates a collection it is
	// mutating.
	snapshot, err := m.chunks.ListDocuments(ctx, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents for reindex: %w", ErrStoreQuery, err)
	}

	result := &ReindexResult{}
	for _, doc := range snapshot {
		// Read the raw bytes before deleting anything: Delete removes the
		// file, and a document whose source is already gone must keep its
		// existing chunks rather than be destroyed.
		data, err := os.ReadFile(doc.StoragePath) // #nosec G304 -- paths come from the metadata store, written by Add
		if err != nil {
			m.logger.Warn("skipping document with missing raw file",
				"op", "reindex", "document_id", doc.DocumentID, "path", doc.StoragePath, "error", err)
			result.DocumentsSkipped++
			continue
		}

		if _, err := m.Delete(ctx, doc.DocumentID); err != nil {
			m.logger.Warn("failed to delete document during reindex",
				"op", "reindex", "document_id", doc.DocumentID, "error", err)
			result.DocumentsSkipped++
			continue
		}

		added, err := m.Add(ctx, doc.FileName, data, doc.DocumentType, doc.Category, nil)
		if err != nil {
			m.logger.Warn("failed to re-add document during reindex",
				"op", "reindex", "document_id", doc.DocumentID, "error", err)
			result.DocumentsSkipped++
			continue
		}

		result.DocumentsProcessed++
		result.ChunksCreated += added.ChunksCreated
	}

	m.logger.Info("reindex complete",
		"processed", result.DocumentsProcessed,
		"chunks", result.ChunksCreated,
		"skipped", result.DocumentsSkipped)
	return result, nil
}

// embedTexts generates embeddings for all texts in one batched request.
func (m *Manager) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := m.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = emb.Embedding
	}
	return out, nil
}

// identityKeys are payload fields caller metadata may never overwrite.
var identityKeys = map[string]struct{}{
	payloadDocumentID: {},
	payloadChunkID:    {},
	payloadPointID:    {},
}

// overlayMetadata merges extra fields over the generated payload. Extra
// fields win on collision except for identity keys.
func overlayMetadata(payload map[string]any, extra map[string]any) {
	for k, v := range extra {
		if _, protected := identityKeys[k]; protected {
			continue
		}
		payload[k] = v
	}
}

// contentPreview truncates content to previewMaxRunes characters, appending
// an ellipsis marker when truncated. Counting runes rather than bytes keeps
// previews the same visible length regardless of script.
func contentPreview(content string) string {
	if utf8.RuneCountInString(content) <= previewMaxRunes {
		return content
	}
	return string([]rune(content)[:previewMaxRunes]) + "..."
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
