// Package metadata implements the chunk metadata store on MongoDB.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lexbase/lexbase/internal/knowledge"
)

// CollectionName is the MongoDB collection holding one record per chunk.
const CollectionName = "knowledge_metadata"

const queryTimeout = 10 * time.Second

// chunkRecord is the persisted shape of a knowledge.Chunk. The chunk id is
// the natural primary key, so it doubles as _id.
type chunkRecord struct {
	ChunkID       string         `bson:"_id"`
	DocumentID    string         `bson:"document_id"`
	VectorPointID string         `bson:"vector_point_id"`
	StoragePath   string         `bson:"storage_path"`
	FileName      string         `bson:"file_name"`
	DocumentType  string         `bson:"document_type"`
	Category      string         `bson:"category"`
	ChunkIndex    int            `bson:"chunk_index"`
	TotalChunks   int            `bson:"total_chunks"`
	Content       string         `bson:"content"`
	ContentLength int            `bson:"content_length"`
	Metadata      map[string]any `bson:"metadata,omitempty"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
}

func toRecord(c knowledge.Chunk) chunkRecord {
	return chunkRecord{
		ChunkID:       c.ChunkID,
		DocumentID:    c.DocumentID,
		VectorPointID: c.VectorPointID,
		StoragePath:   c.StoragePath,
		FileName:      c.FileName,
		DocumentType:  string(c.DocumentType),
		Category:      c.Category,
		ChunkIndex:    c.ChunkIndex,
		TotalChunks:   c.TotalChunks,
		Content:       c.Content,
		ContentLength: c.ContentLength,
		Metadata:      c.Metadata,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r chunkRecord) toChunk() knowledge.Chunk {
	return knowledge.Chunk{
		ChunkID:       r.ChunkID,
		DocumentID:    r.DocumentID,
		VectorPointID: r.VectorPointID,
		StoragePath:   r.StoragePath,
		FileName:      r.FileName,
		DocumentType:  knowledge.DocumentType(r.DocumentType),
		Category:      r.Category,
		ChunkIndex:    r.ChunkIndex,
		TotalChunks:   r.TotalChunks,
		Content:       r.Content,
		ContentLength: r.ContentLength,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Store persists chunk records and serves the grouped document views.
type Store struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// New creates a metadata store over the given database.
func New(db *mongo.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{coll: db.Collection(CollectionName), logger: logger}
}

var _ knowledge.ChunkStore = (*Store)(nil)

// Connect opens a MongoDB client, verifies connectivity, and returns the
// named database together with a disconnect function.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client.Database(dbName), client.Disconnect, nil
}

// EnsureIndexes creates the secondary indexes the store queries by. Safe to
// call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "vector_point_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "document_type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// InsertMany writes all chunk records in one call.
func (s *Store) InsertMany(ctx context.Context, chunks []knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	docs := make([]any, len(chunks))
	for i, c := range chunks {
		docs[i] = toRecord(c)
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunk records: %w", err)
	}
	return nil
}

// FindByDocument returns all chunks of a logical document in chunk order.
func (s *Store) FindByDocument(ctx context.Context, documentID string) ([]knowledge.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx,
		bson.M{"document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find chunks for document %s: %w", documentID, err)
	}

	var records []chunkRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode chunks for document %s: %w", documentID, err)
	}

	chunks := make([]knowledge.Chunk, len(records))
	for i, r := range records {
		chunks[i] = r.toChunk()
	}
	return chunks, nil
}

// FindByPointID returns the chunk behind a vector point, or (nil, nil) when
// no record matches.
func (s *Store) FindByPointID(ctx context.Context, pointID string) (*knowledge.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var record chunkRecord
	err := s.coll.FindOne(ctx, bson.M{"vector_point_id": pointID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chunk for point %s: %w", pointID, err)
	}

	chunk := record.toChunk()
	return &chunk, nil
}

// DeleteByDocument removes every chunk of a logical document and reports
// how many were deleted.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.coll.DeleteMany(ctx, bson.M{"document_id": documentID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return result.DeletedCount, nil
}

// ListDocuments rolls chunks up into one summary per logical document,
// newest first.
func (s *Store) ListDocuments(ctx context.Context, filter knowledge.ListFilter) ([]knowledge.DocumentSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := s.coll.Aggregate(ctx, listPipeline(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate documents: %w", err)
	}

	var groups []documentGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode document groups: %w", err)
	}

	summaries := make([]knowledge.DocumentSummary, len(groups))
	for i, g := range groups {
		summaries[i] = knowledge.DocumentSummary{
			DocumentID:         g.DocumentID,
			FileName:           g.FileName,
			StoragePath:        g.StoragePath,
			DocumentType:       knowledge.DocumentType(g.DocumentType),
			Category:           g.Category,
			ChunkCount:         g.ChunkCount,
			TotalContentLength: g.TotalContentLength,
			CreatedAt:          g.CreatedAt,
			UpdatedAt:          g.UpdatedAt,
		}
	}
	return summaries, nil
}

// Stats reports chunk and document totals, grouped by category and by
// document type.
func (s *Store) Stats(ctx context.Context) (knowledge.StoreStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	totalChunks, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return knowledge.StoreStats{}, fmt.Errorf("failed to count chunks: %w", err)
	}

	documentIDs, err := s.coll.Distinct(ctx, "document_id", bson.M{})
	if err != nil {
		return knowledge.StoreStats{}, fmt.Errorf("failed to count documents: %w", err)
	}

	byCategory, err := s.groupCounts(ctx, "category")
	if err != nil {
		return knowledge.StoreStats{}, err
	}
	byType, err := s.groupCounts(ctx, "document_type")
	if err != nil {
		return knowledge.StoreStats{}, err
	}

	return knowledge.StoreStats{
		TotalDocuments: int64(len(documentIDs)),
		TotalChunks:    totalChunks,
		ByCategory:     byCategory,
		ByDocumentType: byType,
	}, nil
}

func (s *Store) groupCounts(ctx context.Context, field string) ([]knowledge.GroupCount, error) {
	cursor, err := s.coll.Aggregate(ctx, groupCountPipeline(field))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by %s: %w", field, err)
	}

	var rows []struct {
		Key           string `bson:"_id"`
		DocumentCount int64  `bson:"document_count"`
		ChunkCount    int64  `bson:"chunk_count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s groups: %w", field, err)
	}

	counts := make([]knowledge.GroupCount, len(rows))
	for i, r := range rows {
		counts[i] = knowledge.GroupCount{
			Key:           r.Key,
			DocumentCount: r.DocumentCount,
			ChunkCount:    r.ChunkCount,
		}
	}
	return counts, nil
}

// documentGroup is the decode target for listPipeline output.
type documentGroup struct {
	DocumentID         string    `bson:"_id"`
	FileName           string    `bson:"file_name"`
	StoragePath        string    `bson:"storage_path"`
	DocumentType       string    `bson:"document_type"`
	Category           string    `bson:"category"`
	ChunkCount         int64     `bson:"chunk_count"`
	TotalContentLength int64     `bson:"total_content_length"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

// listPipeline groups chunks by document id, carrying first-chunk fields
// and summed sizes, sorted by creation time descending.
func listPipeline(filter knowledge.ListFilter) mongo.Pipeline {
	var pipeline mongo.Pipeline

	match := bson.D{}
	if filter.Category != "" {
		match = append(match, bson.E{Key: "category", Value: filter.Category})
	}
	if filter.DocumentType != "" {
		match = append(match, bson.E{Key: "document_type", Value: string(filter.DocumentType)})
	}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$document_id"},
			{Key: "file_name", Value: bson.D{{Key: "$first", Value: "$file_name"}}},
			{Key: "storage_path", Value: bson.D{{Key: "$first", Value: "$storage_path"}}},
			{Key: "document_type", Value: bson.D{{Key: "$first", Value: "$document_type"}}},
			{Key: "category", Value: bson.D{{Key: "$first", Value: "$category"}}},
			{Key: "chunk_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total_content_length", Value: bson.D{{Key: "$sum", Value: "$content_length"}}},
			{Key: "created_at", Value: bson.D{{Key: "$first", Value: "$created_at"}}},
			{Key: "updated_at", Value: bson.D{{Key: "$max", Value: "$updated_at"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	)
	return pipeline
}

// groupCountPipeline counts chunks and distinct documents per value of the
// given field.
func groupCountPipeline(field string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "chunk_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "documents", Value: bson.D{{Key: "$addToSet", Value: "$document_id"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "chunk_count", Value: 1},
			{Key: "document_count", Value: bson.D{{Key: "$size", Value: "$documents"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}
