package knowledge

import "errors"

// Sentinel errors for the coordinator's failure taxonomy. Callers check
// with errors.Is; details are attached via wrapping.
var (
	// ErrUnsupportedType indicates no reader is registered for the declared
	// document type. Raised before any side effect.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrRead indicates the reader failed to parse the saved file. The raw
	// file remains on disk for inspection.
	ErrRead = errors.New("document read failed")

	// ErrEmbedding indicates the embedding backend failed. Embedding runs
	// before any store write, so the operation aborts cleanly; safe to
	// retry at the caller.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDocumentNotFound indicates the target document id has no chunks.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStoreWrite indicates the vector or metadata store rejected a write.
	// Inside Add the dual-write is not atomic: a failure after the vector
	// upsert but before the metadata insert leaves vector-only orphans;
	// Reindex is the reconciliation mechanism.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStoreQuery indicates a read against either store failed.
	ErrStoreQuery = errors.New("store query failed")

	// ErrReindexRunning indicates another reindex holds the advisory lock.
	ErrReindexRunning = errors.New("reindex already in progress")
)
