// Package knowledge coordinates a document knowledge base across two
// independent backends: a vector index for semantic similarity search and
// a metadata store for full chunk content and structured queries.
//
// # Overview
//
// The package consists of two main components:
//
//   - Manager: ingestion, search, deletion, listing, and reindexing of
//     logical documents
//   - Seeder: idempotent ingestion of a built-in starter corpus
//
// A logical document is one uploaded file. Ingestion splits it into
// ordered chunks, embeds all chunks in a single batched call, and writes
// each chunk to both backends under linked identifiers.
//
// # Ingestion Flow
//
//	Raw file bytes
//	     |
//	     v
//	Persist under baseDir/<category>/<documentID>_<fileName>
//	     |
//	     v
//	Reader extracts ordered chunks (per document type)
//	     |
//	     v
//	Batched embedding (one call per document)
//	     |
//	     v
//	Vector index upsert, then metadata store insert
//
// # Consistency Model
//
// The two writes are not transactional. Ordering bounds the damage: Add
// writes vectors first, so a mid-operation failure leaves vector-only
// orphans that filtered search plus the metadata join tolerate. Delete
// removes vectors first for the symmetric reason. Reindex rebuilds every
// document from its raw file and is the reconciliation mechanism for both
// kinds of orphan.
//
// # Search
//
// Search embeds the query once and runs a filtered nearest-neighbor query
// against the vector index:
//
//	results, err := mgr.Search(ctx, "termination notice period",
//	    knowledge.WithLimit(5),
//	    knowledge.WithCategory("contracts"))
//
// Each hit is joined with its metadata record by vector point id. When the
// record is missing the hit degrades to the payload-carried preview rather
// than failing the whole search.
//
// # Backends
//
// The Manager depends only on the VectorIndex and ChunkStore interfaces
// defined in this package. Production wiring uses PostgreSQL with pgvector
// for the index (internal/vector) and MongoDB for the metadata store
// (internal/metadata); tests substitute in-memory fakes.
//
// # Thread Safety
//
// Manager methods are safe for concurrent use. Concurrent Add calls for
// different documents never contend; Reindex takes an advisory file lock
// so only one rebuild runs per knowledge directory at a time.
package knowledge
