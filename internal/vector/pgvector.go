// Package vector implements the vector index on PostgreSQL with the
// pgvector extension.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/lexbase/lexbase/internal/knowledge"
)

// Querier is the subset of pgx the store needs. pgxpool.Pool satisfies it;
// tests supply a mock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const queryTimeout = 10 * time.Second

// Store persists embedding points in the knowledge_points table. Similarity
// is cosine: score = 1 - cosine distance, so 1 is identical and 0 is
// orthogonal. Payload filtering uses JSONB containment backed by a GIN
// index.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// New creates a pgvector-backed store.
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

var _ knowledge.VectorIndex = (*Store)(nil)

// Upsert writes all points in one batch. Existing ids are overwritten.
func (s *Store) Upsert(ctx context.Context, points []knowledge.Point) error {
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for point %s: %w", p.ID, err)
		}
		batch.Queue(`
			INSERT INTO knowledge_points (id, embedding, payload)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE
			SET embedding = EXCLUDED.embedding,
			    payload = EXCLUDED.payload`,
			p.ID, pgvector.NewVector(p.Vector), payload)
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Warn("failed to close batch results", "error", err)
		}
	}()

	for i := range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", points[i].ID, err)
		}
	}
	return nil
}

// Search returns up to limit points nearest to the query vector, with
// scores at or above scoreThreshold, ordered most similar first. A non-empty
// filter restricts results to payloads containing every key/value pair.
func (s *Store) Search(ctx context.Context, vec []float32, limit int, scoreThreshold float32, filter map[string]string) ([]knowledge.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filterJSON, err := filterArg(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM knowledge_points
		WHERE ($2::jsonb IS NULL OR payload @> $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(vec), filterJSON, float64(scoreThreshold), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}
	defer rows.Close()

	var hits []knowledge.Hit
	for rows.Next() {
		var (
			id          string
			payloadJSON []byte
			score       float64
		)
		if err := rows.Scan(&id, &payloadJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			s.logger.Warn("skipping point with malformed payload", "id", id, "error", err)
			continue
		}

		hits = append(hits, knowledge.Hit{ID: id, Score: float32(score), Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search rows: %w", err)
	}
	return hits, nil
}

// DeleteByIDs removes the given points. Unknown ids are ignored.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_points WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	if tag.RowsAffected() != int64(len(ids)) {
		s.logger.Debug("delete affected fewer rows than requested",
			"requested", len(ids), "deleted", tag.RowsAffected())
	}
	return nil
}

// Info reports the point count. A successful count doubles as the health
// probe, so Status is green exactly when the table is reachable.
func (s *Store) Info(ctx context.Context) (knowledge.CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_points`).Scan(&count); err != nil {
		return knowledge.CollectionInfo{}, fmt.Errorf("failed to count points: %w", err)
	}
	return knowledge.CollectionInfo{PointCount: count, Status: "green"}, nil
}

// filterArg converts a filter map to the JSONB containment argument. An
// empty filter yields nil, which the query treats as no constraint.
func filterArg(filter map[string]string) (any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search filter: %w", err)
	}
	return data, nil
}
