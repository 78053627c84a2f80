package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/gofrs/flock"
	"go.uber.org/goleak"

	"github.com/lexbase/lexbase/internal/reader"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr       error // Error to return
	shortResponse  bool  // Return fewer embeddings than inputs
	callCount      int   // Track number of calls
	lastInputCount int   // Track batch size for verification
}

func (m *mockEmbedder) Name() string {
	return "mock-embedder"
}

func (m *mockEmbedder) Register(r api.Registry) {
	// No-op for testing
}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	m.lastInputCount = len(req.Input)

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	n := len(req.Input)
	if m.shortResponse && n > 0 {
		n--
	}

	embeddings := make([]*ai.Embedding, n)
	for i := range embeddings {
		// Deterministic per-input vector so tests can tell inputs apart.
		embeddings[i] = &ai.Embedding{Embedding: []float32{float32(i), 0.5, 0.25}}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// callLog records cross-store call ordering.
type callLog struct {
	calls []string
}

func (l *callLog) record(name string) {
	l.calls = append(l.calls, name)
}

// fakeVectorIndex implements VectorIndex with an in-memory point set.
type fakeVectorIndex struct {
	log   *callLog
	order []string
	byID  map[string]Point

	upsertErr error
	searchErr error
	deleteErr error
	infoErr   error

	lastLimit     int
	lastThreshold float32
	lastFilter    map[string]string
}

func newFakeVectorIndex(log *callLog) *fakeVectorIndex {
	return &fakeVectorIndex{log: log, byID: make(map[string]Point)}
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, points []Point) error {
	f.log.record("vector.upsert")
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range points {
		if _, exists := f.byID[p.ID]; !exists {
			f.order = append(f.order, p.ID)
		}
		f.byID[p.ID] = p
	}
	return nil
}

func (f *fakeVectorIndex) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]Hit, error) {
	f.log.record("vector.search")
	f.lastLimit = limit
	f.lastThreshold = scoreThreshold
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	const score = 0.95
	if score < scoreThreshold {
		return nil, nil
	}

	var hits []Hit
	for _, id := range f.order {
		p := f.byID[id]
		matches := true
		for k, want := range filter {
			if got, _ := p.Payload[k].(string); got != want {
				matches = false
				break
			}
		}
		if !matches {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: score, Payload: p.Payload})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (f *fakeVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	f.log.record("vector.delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.byID, id)
	}
	remaining := f.order[:0]
	for _, id := range f.order {
		if _, ok := f.byID[id]; ok {
			remaining = append(remaining, id)
		}
	}
	f.order = remaining
	return nil
}

func (f *fakeVectorIndex) Info(ctx context.Context) (CollectionInfo, error) {
	if f.infoErr != nil {
		return CollectionInfo{}, f.infoErr
	}
	return CollectionInfo{PointCount: int64(len(f.byID)), Status: "green"}, nil
}

// fakeChunkStore implements ChunkStore with an in-memory chunk slice.
type fakeChunkStore struct {
	log    *callLog
	chunks []Chunk

	insertErr    error
	findErr      error
	findPointErr error
	deleteErr    error
	listErr      error
	statsErr     error

	// Point ids FindByPointID pretends not to have, to exercise the
	// graceful-degradation path in Search.
	missingPoints map[string]bool
}

func newFakeChunkStore(log *callLog) *fakeChunkStore {
	return &fakeChunkStore{log: log, missingPoints: make(map[string]bool)}
}

func (f *fakeChunkStore) InsertMany(ctx context.Context, chunks []Chunk) error {
	f.log.record("chunks.insert")
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeChunkStore) FindByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []Chunk
	for _, c := range f.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) FindByPointID(ctx context.Context, pointID string) (*Chunk, error) {
	if f.findPointErr != nil {
		return nil, f.findPointErr
	}
	if f.missingPoints[pointID] {
		return nil, nil
	}
	for i := range f.chunks {
		if f.chunks[i].VectorPointID == pointID {
			return &f.chunks[i], nil
		}
	}
	return nil, nil
}

func (f *fakeChunkStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	f.log.record("chunks.delete")
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var deleted int64
	remaining := f.chunks[:0]
	for _, c := range f.chunks {
		if c.DocumentID == documentID {
			deleted++
			continue
		}
		remaining = append(remaining, c)
	}
	f.chunks = remaining
	return deleted, nil
}

func (f *fakeChunkStore) ListDocuments(ctx context.Context, filter ListFilter) ([]DocumentSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	index := make(map[string]int)
	var summaries []DocumentSummary
	for _, c := range f.chunks {
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		if filter.DocumentType != "" && c.DocumentType != filter.DocumentType {
			continue
		}
		i, ok := index[c.DocumentID]
		if !ok {
			index[c.DocumentID] = len(summaries)
			summaries = append(summaries, DocumentSummary{
				DocumentID:   c.DocumentID,
				FileName:     c.FileName,
				StoragePath:  c.StoragePath,
				DocumentType: c.DocumentType,
				Category:     c.Category,
				CreatedAt:    c.CreatedAt,
				UpdatedAt:    c.UpdatedAt,
			})
			i = len(summaries) - 1
		}
		summaries[i].ChunkCount++
		summaries[i].TotalContentLength += int64(c.ContentLength)
	}
	return summaries, nil
}

func (f *fakeChunkStore) Stats(ctx context.Context) (StoreStats, error) {
	if f.statsErr != nil {
		return StoreStats{}, f.statsErr
	}
	docs := make(map[string]bool)
	byCategory := make(map[string]*GroupCount)
	for _, c := range f.chunks {
		first := !docs[c.DocumentID]
		docs[c.DocumentID] = true
		g, ok := byCategory[c.Category]
		if !ok {
			g = &GroupCount{Key: c.Category}
			byCategory[c.Category] = g
		}
		g.ChunkCount++
		if first {
			g.DocumentCount++
		}
	}
	stats := StoreStats{
		TotalDocuments: int64(len(docs)),
		TotalChunks:    int64(len(f.chunks)),
	}
	for _, g := range byCategory {
		stats.ByCategory = append(stats.ByCategory, *g)
	}
	return stats, nil
}

// ============================================================================
// Test Fixtures
// ============================================================================

type testFixture struct {
	manager  *Manager
	vectors  *fakeVectorIndex
	chunks   *fakeChunkStore
	embedder *mockEmbedder
	log      *callLog
	baseDir  string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	log := &callLog{}
	f := &testFixture{
		vectors:  newFakeVectorIndex(log),
		chunks:   newFakeChunkStore(log),
		embedder: &mockEmbedder{},
		log:      log,
		baseDir:  t.TempDir(),
	}

	mgr, err := NewManager(Deps{
		Vectors:  f.vectors,
		Chunks:   f.chunks,
		Embedder: f.embedder,
		Readers: map[DocumentType]Reader{
			TypeText: reader.NewText(reader.Options{ChunkSize: 300, ChunkOverlap: 60}),
		},
		BaseDir: f.baseDir,
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	f.manager = mgr
	return f
}

func sampleContent() []byte {
	return []byte(strings.Repeat("The parties agree to the terms set out in this clause. ", 30))
}

// ============================================================================
// Constructor
// ============================================================================

func TestNewManager_Validation(t *testing.T) {
	vectors := newFakeVectorIndex(&callLog{})
	chunks := newFakeChunkStore(&callLog{})
	embedder := &mockEmbedder{}
	readers := map[DocumentType]Reader{TypeText: reader.NewText(reader.Options{})}

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing vectors", Deps{Chunks: chunks, Embedder: embedder, Readers: readers, BaseDir: "x"}},
		{"missing chunks", Deps{Vectors: vectors, Embedder: embedder, Readers: readers, BaseDir: "x"}},
		{"missing embedder", Deps{Vectors: vectors, Chunks: chunks, Readers: readers, BaseDir: "x"}},
		{"missing readers", Deps{Vectors: vectors, Chunks: chunks, Embedder: embedder, BaseDir: "x"}},
		{"missing base dir", Deps{Vectors: vectors, Chunks: chunks, Embedder: embedder, Readers: readers}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.deps); err == nil {
				t.Error("expected constructor error")
			}
		})
	}
}

// ============================================================================
// Add
// ============================================================================

func TestManager_Add(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	result, err := f.manager.Add(ctx, "terms.txt", sampleContent(), TypeText, "contracts", map[string]any{
		"source": "upload",
	})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if result.DocumentID == "" {
		t.Error("expected a generated document id")
	}
	if result.ChunksCreated < 2 {
		t.Errorf("expected multiple chunks, got %d", result.ChunksCreated)
	}
	if _, err := os.Stat(result.StoragePath); err != nil {
		t.Errorf("raw file not persisted: %v", err)
	}
	if !strings.Contains(result.StoragePath, filepath.Join(f.baseDir, "contracts")) {
		t.Errorf("file stored outside category directory: %s", result.StoragePath)
	}

	// One batched embedding call covering every chunk.
	if f.embedder.callCount != 1 {
		t.Errorf("expected 1 embedding call, got %d", f.embedder.callCount)
	}
	if f.embedder.lastInputCount != result.ChunksCreated {
		t.Errorf("expected batch of %d inputs, got %d", result.ChunksCreated, f.embedder.lastInputCount)
	}

	// Vector write strictly before metadata write.
	if len(f.log.calls) != 2 || f.log.calls[0] != "vector.upsert" || f.log.calls[1] != "chunks.insert" {
		t.Errorf("unexpected write ordering: %v", f.log.calls)
	}

	if len(f.chunks.chunks) != result.ChunksCreated {
		t.Fatalf("expected %d metadata records, got %d", result.ChunksCreated, len(f.chunks.chunks))
	}
	for i, c := range f.chunks.chunks {
		wantChunkID := fmt.Sprintf("%s_chunk_%d", result.DocumentID, i)
		if c.ChunkID != wantChunkID {
			t.Errorf("chunk %d: id = %q, want %q", i, c.ChunkID, wantChunkID)
		}
		if c.ChunkIndex != i || c.TotalChunks != result.ChunksCreated {
			t.Errorf("chunk %d: ordinal fields wrong: index=%d total=%d", i, c.ChunkIndex, c.TotalChunks)
		}
		point, ok := f.vectors.byID[c.VectorPointID]
		if !ok {
			t.Errorf("chunk %d: no vector point %s", i, c.VectorPointID)
			continue
		}
		if point.Payload[payloadDocumentID] != result.DocumentID {
			t.Errorf("chunk %d: payload document_id = %v", i, point.Payload[payloadDocumentID])
		}
		if point.Payload["source"] != "upload" {
			t.Errorf("chunk %d: custom metadata not applied: %v", i, point.Payload["source"])
		}
	}
}

func TestManager_AddUnsupportedType(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.manager.Add(context.Background(), "scan.pdf", []byte("%PDF"), TypePDF, "", nil)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}

	// Rejected before any side effect: no file, no store calls.
	entries, readErr := os.ReadDir(f.baseDir)
	if readErr != nil {
		t.Fatalf("failed to read base dir: %v", readErr)
	}
	for _, e := range entries {
		if e.Name() != ".reindex.lock" {
			t.Errorf("unexpected file created: %s", e.Name())
		}
	}
	if len(f.log.calls) != 0 {
		t.Errorf("expected no store calls, got %v", f.log.calls)
	}
}

func TestManager_AddEmptyDocument(t *testing.T) {
	f := newTestFixture(t)

	result, err := f.manager.Add(context.Background(), "empty.txt", nil, TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if result.ChunksCreated != 0 {
		t.Errorf("expected zero chunks, got %d", result.ChunksCreated)
	}
	if f.embedder.callCount != 0 {
		t.Error("embedder should not be called for zero chunks")
	}
	if len(f.log.calls) != 0 {
		t.Errorf("expected no store writes, got %v", f.log.calls)
	}
}

func TestManager_AddDefaultCategory(t *testing.T) {
	f := newTestFixture(t)

	result, err := f.manager.Add(context.Background(), "note.txt", sampleContent(), TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if got := f.chunks.chunks[0].Category; got != DefaultCategory {
		t.Errorf("category = %q, want %q", got, DefaultCategory)
	}
	if !strings.Contains(result.StoragePath, filepath.Join(f.baseDir, DefaultCategory)) {
		t.Errorf("file not under default category dir: %s", result.StoragePath)
	}
}

func TestManager_AddEmbeddingError(t *testing.T) {
	f := newTestFixture(t)
	f.embedder.embedErr = errors.New("quota exceeded")

	_, err := f.manager.Add(context.Background(), "terms.txt", sampleContent(), TypeText, "", nil)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	// Embedding runs before any store write.
	if len(f.log.calls) != 0 {
		t.Errorf("expected no store writes after embedding failure, got %v", f.log.calls)
	}
}

func TestManager_AddShortEmbeddingResponse(t *testing.T) {
	f := newTestFixture(t)
	f.embedder.shortResponse = true

	_, err := f.manager.Add(context.Background(), "terms.txt", sampleContent(), TypeText, "", nil)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding for count mismatch, got %v", err)
	}
}

func TestManager_AddVectorWriteError(t *testing.T) {
	f := newTestFixture(t)
	f.vectors.upsertErr = errors.New("index unavailable")

	_, err := f.manager.Add(context.Background(), "terms.txt", sampleContent(), TypeText, "", nil)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	// Metadata write never attempted.
	if len(f.chunks.chunks) != 0 {
		t.Error("metadata written despite vector failure")
	}
}

func TestManager_AddMetadataWriteError(t *testing.T) {
	f := newTestFixture(t)
	f.chunks.insertErr = errors.New("store down")

	_, err := f.manager.Add(context.Background(), "terms.txt", sampleContent(), TypeText, "", nil)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	// Vector-only orphans remain until reindex; that is the documented
	// failure mode.
	if len(f.vectors.byID) == 0 {
		t.Error("expected orphaned vector points after metadata failure")
	}
}

func TestManager_AddProtectsIdentityMetadata(t *testing.T) {
	f := newTestFixture(t)

	result, err := f.manager.Add(context.Background(), "terms.txt", sampleContent(), TypeText, "", map[string]any{
		payloadDocumentID: "spoofed",
		payloadChunkID:    "spoofed",
		"note":            "kept",
	})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	for _, p := range f.vectors.byID {
		if p.Payload[payloadDocumentID] != result.DocumentID {
			t.Errorf("document_id overwritten by custom metadata: %v", p.Payload[payloadDocumentID])
		}
		if p.Payload["note"] != "kept" {
			t.Errorf("non-identity custom metadata dropped: %v", p.Payload["note"])
		}
	}
}

// ============================================================================
// Search
// ============================================================================

func TestManager_Search(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	added, err := f.manager.Add(ctx, "terms.txt", sampleContent(), TypeText, "contracts", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	results, err := f.manager.Search(ctx, "agreement terms")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected search results")
	}

	first := results[0]
	if first.DocumentID != added.DocumentID {
		t.Errorf("document id = %q, want %q", first.DocumentID, added.DocumentID)
	}
	if first.Score <= 0 {
		t.Errorf("expected positive score, got %v", first.Score)
	}
	if first.FullContent == "" {
		t.Error("expected full content from the metadata store")
	}
	if first.Category != "contracts" {
		t.Errorf("category = %q", first.Category)
	}

	// Defaults flow through to the index.
	if f.vectors.lastLimit != DefaultSearchLimit {
		t.Errorf("limit = %d, want %d", f.vectors.lastLimit, DefaultSearchLimit)
	}
	if f.vectors.lastThreshold != DefaultScoreThreshold {
		t.Errorf("threshold = %v, want %v", f.vectors.lastThreshold, DefaultScoreThreshold)
	}
}

func TestManager_SearchFilters(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "contracts", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := f.manager.Add(ctx, "b.txt", sampleContent(), TypeText, "compliance", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	results, err := f.manager.Search(ctx, "query",
		WithCategory("compliance"),
		WithDocumentType(TypeText),
		WithLimit(50))
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if f.vectors.lastFilter[payloadCategory] != "compliance" {
		t.Errorf("category filter not passed: %v", f.vectors.lastFilter)
	}
	if f.vectors.lastFilter[payloadDocumentType] != string(TypeText) {
		t.Errorf("document type filter not passed: %v", f.vectors.lastFilter)
	}
	for _, r := range results {
		if r.Category != "compliance" {
			t.Errorf("unexpected category in filtered results: %q", r.Category)
		}
	}
}

func TestManager_SearchScoreThreshold(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	results, err := f.manager.Search(ctx, "query", WithScoreThreshold(0.99))
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results above threshold 0.99, got %d", len(results))
	}
}

func TestManager_SearchMissingMetadataRecord(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	for _, c := range f.chunks.chunks {
		f.chunks.missingPoints[c.VectorPointID] = true
	}

	results, err := f.manager.Search(ctx, "query")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected degraded results, not an empty set")
	}
	for _, r := range results {
		if r.FullContent != "" {
			t.Error("expected empty full content when metadata record is missing")
		}
		if r.Content == "" {
			t.Error("expected payload preview to survive metadata miss")
		}
	}
}

func TestManager_SearchEmbeddingError(t *testing.T) {
	f := newTestFixture(t)
	f.embedder.embedErr = errors.New("backend down")

	if _, err := f.manager.Search(context.Background(), "query"); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestManager_SearchVectorError(t *testing.T) {
	f := newTestFixture(t)
	f.vectors.searchErr = errors.New("index down")

	if _, err := f.manager.Search(context.Background(), "query"); !errors.Is(err, ErrStoreQuery) {
		t.Fatalf("expected ErrStoreQuery, got %v", err)
	}
}

// ============================================================================
// Delete
// ============================================================================

func TestManager_Delete(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	added, err := f.manager.Add(ctx, "terms.txt", sampleContent(), TypeText, "contracts", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	f.log.calls = nil

	deleted, err := f.manager.Delete(ctx, added.DocumentID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if deleted != added.ChunksCreated {
		t.Errorf("deleted %d chunks, want %d", deleted, added.ChunksCreated)
	}
	if len(f.vectors.byID) != 0 {
		t.Errorf("%d vector points survived deletion", len(f.vectors.byID))
	}
	if len(f.chunks.chunks) != 0 {
		t.Errorf("%d metadata records survived deletion", len(f.chunks.chunks))
	}
	if _, err := os.Stat(added.StoragePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("raw file survived deletion: %v", err)
	}

	// Vector delete strictly before metadata delete.
	if len(f.log.calls) != 2 || f.log.calls[0] != "vector.delete" || f.log.calls[1] != "chunks.delete" {
		t.Errorf("unexpected delete ordering: %v", f.log.calls)
	}
}

func TestManager_DeleteNotFound(t *testing.T) {
	f := newTestFixture(t)

	if _, err := f.manager.Delete(context.Background(), "no-such-doc"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestManager_DeleteMissingRawFile(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	added, err := f.manager.Add(ctx, "terms.txt", sampleContent(), TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := os.Remove(added.StoragePath); err != nil {
		t.Fatalf("failed to remove raw file: %v", err)
	}

	// A missing file is tolerated; store cleanup proceeds.
	if _, err := f.manager.Delete(ctx, added.DocumentID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if len(f.chunks.chunks) != 0 {
		t.Error("metadata records survived deletion")
	}
}

func TestManager_DeleteVectorError(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	added, err := f.manager.Add(ctx, "terms.txt", sampleContent(), TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	f.vectors.deleteErr = errors.New("index down")

	if _, err := f.manager.Delete(ctx, added.DocumentID); !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	// Metadata untouched when the vector delete fails.
	if len(f.chunks.chunks) == 0 {
		t.Error("metadata deleted despite vector failure")
	}
}

// ============================================================================
// List and Stats
// ============================================================================

func TestManager_List(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "contracts", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := f.manager.Add(ctx, "b.txt", sampleContent(), TypeText, "compliance", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	all, err := f.manager.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(all))
	}
	for _, doc := range all {
		if doc.ChunkCount == 0 || doc.TotalContentLength == 0 {
			t.Errorf("rollup fields empty: %+v", doc)
		}
	}

	filtered, err := f.manager.List(ctx, ListFilter{Category: "contracts"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].FileName != "a.txt" {
		t.Errorf("category filter wrong: %+v", filtered)
	}
}

func TestManager_Stats(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	added, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "contracts", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	stats, err := f.manager.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("total documents = %d", stats.TotalDocuments)
	}
	if stats.TotalChunks != int64(added.ChunksCreated) {
		t.Errorf("total chunks = %d, want %d", stats.TotalChunks, added.ChunksCreated)
	}
	if stats.VectorPointCount != int64(added.ChunksCreated) {
		t.Errorf("vector points = %d, want %d", stats.VectorPointCount, added.ChunksCreated)
	}
	if stats.CollectionStatus != "green" {
		t.Errorf("status = %q", stats.CollectionStatus)
	}
}

// ============================================================================
// Reindex
// ============================================================================

func TestManager_Reindex(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Add(ctx, "a.txt", sampleContent(), TypeText, "contracts", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := f.manager.Add(ctx, "b.txt", sampleContent(), TypeText, "compliance", nil); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	chunksBefore := len(f.chunks.chunks)

	result, err := f.manager.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex() failed: %v", err)
	}
	if result.DocumentsProcessed != 2 {
		t.Errorf("processed = %d, want 2", result.DocumentsProcessed)
	}
	if result.DocumentsSkipped != 0 {
		t.Errorf("skipped = %d, want 0", result.DocumentsSkipped)
	}
	// Same content, same chunker: chunk population is stable across runs.
	if len(f.chunks.chunks) != chunksBefore {
		t.Errorf("chunk count changed: %d -> %d", chunksBefore, len(f.chunks.chunks))
	}
	if len(f.vectors.byID) != chunksBefore {
		t.Errorf("vector count = %d, want %d", len(f.vectors.byID), chunksBefore)
	}

	// The knowledge base stays searchable afterwards.
	results, err := f.manager.Search(ctx, "terms", WithCategory("contracts"))
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) == 0 {
		t.Error("expected results after reindex")
	}
}

func TestManager_ReindexSkipsMissingRawFile(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	kept, err := f.manager.Add(ctx, "kept.txt", sampleContent(), TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	lost, err := f.manager.Add(ctx, "lost.txt", sampleContent(), TypeText, "", nil)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := os.Remove(lost.StoragePath); err != nil {
		t.Fatalf("failed to remove raw file: %v", err)
	}

	result, err := f.manager.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex() failed: %v", err)
	}
	if result.DocumentsProcessed != 1 {
		t.Errorf("processed = %d, want 1", result.DocumentsProcessed)
	}
	if result.DocumentsSkipped != 1 {
		t.Errorf("skipped = %d, want 1", result.DocumentsSkipped)
	}

	// The skipped document keeps its existing chunks.
	remaining, err := f.chunks.FindByDocument(ctx, lost.DocumentID)
	if err != nil {
		t.Fatalf("FindByDocument() failed: %v", err)
	}
	if len(remaining) != lost.ChunksCreated {
		t.Errorf("skipped document lost chunks: %d remain of %d", len(remaining), lost.ChunksCreated)
	}
	_ = kept
}

func TestManager_ReindexLockHeld(t *testing.T) {
	f := newTestFixture(t)

	other := flock.New(filepath.Join(f.baseDir, ".reindex.lock"))
	locked, err := other.TryLock()
	if err != nil {
		t.Fatalf("failed to take lock: %v", err)
	}
	if !locked {
		t.Fatal("expected to acquire lock")
	}
	defer func() {
		if err := other.Unlock(); err != nil {
			t.Errorf("failed to release lock: %v", err)
		}
	}()

	if _, err := f.manager.Reindex(context.Background()); !errors.Is(err, ErrReindexRunning) {
		t.Fatalf("expected ErrReindexRunning, got %v", err)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func TestContentPreview(t *testing.T) {
	short := "short content"
	if got := contentPreview(short); got != short {
		t.Errorf("short content modified: %q", got)
	}

	long := strings.Repeat("x", previewMaxRunes+50)
	got := contentPreview(long)
	if len(got) != previewMaxRunes+3 {
		t.Errorf("preview length = %d, want %d", len(got), previewMaxRunes+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview missing ellipsis: %q", got[len(got)-10:])
	}

	// The limit counts characters, not bytes: multi-byte content keeps the
	// same visible preview length.
	unicode := strings.Repeat("語", previewMaxRunes+50)
	got = contentPreview(unicode)
	if !strings.HasSuffix(got, "...") {
		t.Error("expected truncation of multi-byte content")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != previewMaxRunes {
		t.Errorf("preview rune count = %d, want %d", n, previewMaxRunes)
	}

	// Exactly at the limit stays untouched.
	exact := strings.Repeat("語", previewMaxRunes)
	if got := contentPreview(exact); got != exact {
		t.Error("content at the limit was truncated")
	}
}

func TestOverlayMetadata(t *testing.T) {
	payload := map[string]any{
		payloadDocumentID: "doc-1",
		payloadCategory:   "general",
	}
	overlayMetadata(payload, map[string]any{
		payloadDocumentID: "evil",
		payloadCategory:   "contracts",
		"extra":           42,
	})

	if payload[payloadDocumentID] != "doc-1" {
		t.Error("identity key overwritten")
	}
	if payload[payloadCategory] != "contracts" {
		t.Error("non-identity key not overwritten")
	}
	if payload["extra"] != 42 {
		t.Error("extra key not merged")
	}
}
