// Package storage provides SQLite-based persistence for indexed transcripts.
//
// The storage layer manages:
//   - Session records and their content hashes
//   - Transcript chunks
//   - The shared embedding cache
//   - Full-text (FTS5) and vector search
//
// # Database Schema
//
// Tables:
//   - sessions: one row per session key, carrying the fixed-shape metadata
//     record and the content hash of the currently indexed transcript
//   - chunks: ordered chunk set per session, replaced wholesale on reindex
//   - chunks_fts: FTS5 index over chunk content, trigger-maintained
//   - embedding_cache: write-once vectors keyed by chunk content hash
//   - sync_state: single row holding the last successful sync time
//
// # Atomic Reindex
//
// A session reindex is a single transaction:
//
//	err := store.ReplaceSessionChunks(ctx, session, chunks, vectors)
//
// It upserts the session row, deletes the previous chunk set, inserts the
// new one and adds any new cache vectors. A crash or error mid-operation
// leaves the previous fully-indexed state visible to readers.
//
// # Embedding Sharing
//
// Chunks do not own vectors. Vector search joins chunks to embedding_cache
// on content_hash, so byte-identical chunk text in any number of sessions
// shares one stored vector.
//
// # Build Tags
//
// CGO build (sqlite_vec tag) uses github.com/mattn/go-sqlite3 and computes
// cosine distance inside SQLite via the sqlite-vec extension:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go build uses modernc.org/sqlite and computes distances in Go:
//
//	CGO_ENABLED=0 go build
//
// The extension is probed once at open; a failed probe downgrades to the
// Go scan without affecting lexical search.
package storage
