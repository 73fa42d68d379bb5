// Package indexer converts session transcripts into persisted chunk sets.
//
// Change detection is hash-based: a transcript digest is compared against
// the stored session hash and an unchanged session is never rewritten,
// regardless of how often sync runs. A changed session is rechunked,
// embedded (cache first, provider for misses) and committed through one
// atomic replace. Provider failures degrade the session to lexical-only
// indexing instead of failing it.
package indexer
