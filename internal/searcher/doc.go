// Package searcher implements hybrid retrieval over indexed transcripts.
//
// A query fans out to two signals: FTS5 BM25 lexical search and cosine
// similarity over cached embeddings. Each signal contributes an
// oversampled candidate set, scores are min-max normalized per set, and
// candidates fuse at 0.7 vector + 0.3 lexical. When a query runs without a
// vector candidate set the lexical score stands alone unweighted. Results
// dedupe to the best chunk per session, so one long session cannot crowd
// out the rest of the result list.
//
// Vector trouble of any kind (no provider, embedding failure, vector
// search failure) degrades a query to lexical-only; it never errors.
//
// Recent query results live in an injected, TTL-bounded LRU cache that the
// sync pass purges whenever new data lands.
package searcher
