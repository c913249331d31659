// Package sqlite is the default, single-file storage backend.
//
// A Store wraps one modernc.org/sqlite database (pure Go, no cgo) at
// <data dir>/kb.db and hands out DocumentStore, VectorIndex and
// ConversationStore views over it. Vectors are kept as little-endian
// float32 blobs next to their permission tag and scored in Go, so the
// permission filter runs before any similarity is computed.
//
// The connection runs in WAL mode with MaxOpenConns(1); schema changes come
// from the migrations package and are recorded in schema_migrations.
package sqlite
