// Package embedder generates embedding vectors for transcript chunks.
//
// Three providers are supported:
//   - jina: Jina AI API (1024 dimensions)
//   - openai: OpenAI API (1536 dimensions)
//   - local: deterministic offline vectors (384 dimensions)
//
// Provider selection is environment-driven via NewFromEnv, with
// CONDOSEARCH_EMBEDDING_PROVIDER taking priority over API-key detection.
// Setting the provider to "none" disables embedding; the rest of the
// system then runs lexical-only.
//
// API providers retry with exponential backoff and cache vectors in a
// bounded in-memory LRU keyed by content hash. Persistent caching lives in
// the storage layer; this cache only absorbs repeat lookups within a
// process lifetime.
package embedder
