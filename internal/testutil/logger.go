// Package testutil provides shared testing utilities for the lexbase
// project: a discard logger, a deterministic fake embedder, and a
// PostgreSQL test container with the pgvector schema applied.
package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// Use this in tests to reduce noise.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
