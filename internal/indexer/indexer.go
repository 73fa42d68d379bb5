package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acastellana/clawcondos-sub001/internal/chunker"
	"github.com/acastellana/clawcondos-sub001/internal/embedder"
	"github.com/acastellana/clawcondos-sub001/internal/storage"
	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

// Stats reports what one IndexSession call did.
type Stats struct {
	SessionKey  string
	Skipped     bool // content hash unchanged, nothing written
	ChunkCount  int
	CacheHits   int  // chunks whose vector came from the embedding cache
	Embedded    int  // new vectors computed this call
	LexicalOnly bool // provider failed or absent; chunks indexed without vectors
}

// SessionIndexer turns raw transcripts into persisted, searchable chunk
// sets. It owns the change-detection gate: a session whose transcript hash
// matches the stored hash is never rewritten.
type SessionIndexer struct {
	store    storage.Store
	embedder embedder.Embedder // nil means lexical-only indexing
	logger   *slog.Logger
}

// NewSessionIndexer creates an indexer. embed may be nil to disable
// vector indexing entirely.
func NewSessionIndexer(store storage.Store, embed embedder.Embedder, logger *slog.Logger) *SessionIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionIndexer{
		store:    store,
		embedder: embed,
		logger:   logger,
	}
}

// IndexSession indexes one session's transcript. If the transcript hash
// matches what is stored the call is a no-op. Otherwise the session's
// chunk set is rebuilt and committed atomically, replacing the previous
// set. Embedding failures degrade the affected chunks to lexical-only and
// never fail the call.
func (ix *SessionIndexer) IndexSession(ctx context.Context, key string, meta types.SessionMetadata, msgs []types.Message) (*Stats, error) {
	stats := &Stats{SessionKey: key}

	hash := HashTranscript(msgs)

	existing, err := ix.store.GetSession(ctx, key)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	if existing != nil && existing.ContentHash == hash {
		stats.Skipped = true
		return stats, nil
	}

	chunks := chunker.ChunkMessages(msgs)
	stats.ChunkCount = len(chunks)

	vectors, err := ix.embedChunks(ctx, chunks, stats)
	if err != nil {
		return nil, err
	}

	session := &storage.Session{
		SessionKey:    key,
		DisplayName:   meta.DisplayName,
		ProjectLabels: meta.ProjectLabels,
		IsSubagent:    meta.IsSubagent,
		ContentHash:   hash,
		LastIndexedAt: time.Now().UTC(),
	}

	stored := make([]*storage.Chunk, len(chunks))
	for i, c := range chunks {
		stored[i] = &storage.Chunk{
			Ordinal:     c.Ordinal,
			Content:     c.Content,
			Role:        string(c.Role),
			TokenCount:  c.TokenCount,
			ContentHash: c.ContentHash,
		}
	}

	if err := ix.store.ReplaceSessionChunks(ctx, session, stored, vectors); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", key, err)
	}

	ix.logger.Debug("indexed session",
		"session", key,
		"chunks", stats.ChunkCount,
		"cache_hits", stats.CacheHits,
		"embedded", stats.Embedded,
		"lexical_only", stats.LexicalOnly)
	return stats, nil
}

// embedChunks resolves vectors for the chunk set: cache hits cost nothing,
// the rest go to the provider in bounded batches. Any provider failure is
// logged and the affected chunks are left without vectors.
func (ix *SessionIndexer) embedChunks(ctx context.Context, chunks []chunker.Chunk, stats *Stats) ([]*storage.CachedEmbedding, error) {
	if ix.embedder == nil || !ix.embedder.Available() {
		stats.LexicalOnly = len(chunks) > 0
		return nil, nil
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// Dedupe by content hash first; identical text needs one vector.
	hashes := make([][32]byte, 0, len(chunks))
	textByHash := make(map[[32]byte]string, len(chunks))
	for _, c := range chunks {
		if _, seen := textByHash[c.ContentHash]; seen {
			continue
		}
		textByHash[c.ContentHash] = c.Content
		hashes = append(hashes, c.ContentHash)
	}

	cached, err := ix.store.GetCachedEmbeddings(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}
	stats.CacheHits = len(cached)

	missHashes := make([][32]byte, 0, len(hashes))
	for _, h := range hashes {
		if _, ok := cached[h]; !ok {
			missHashes = append(missHashes, h)
		}
	}
	if len(missHashes) == 0 {
		return nil, nil
	}

	vectors := make([]*storage.CachedEmbedding, 0, len(missHashes))
	for start := 0; start < len(missHashes); start += embedder.MaxBatchSize {
		end := start + embedder.MaxBatchSize
		if end > len(missHashes) {
			end = len(missHashes)
		}
		batch := missHashes[start:end]
		texts := make([]string, len(batch))
		for i, h := range batch {
			texts[i] = textByHash[h]
		}

		embedded, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Lexical indexing proceeds; the missing vectors are
			// picked up on the next content change.
			ix.logger.Warn("embedding provider failed, indexing lexical-only",
				"provider", ix.embedder.Provider(),
				"chunks", len(batch),
				"error", err)
			stats.LexicalOnly = true
			continue
		}
		for i, v := range embedded {
			vectors = append(vectors, &storage.CachedEmbedding{
				ContentHash: batch[i],
				Vector:      v,
				Dimension:   len(v),
				Provider:    ix.embedder.Provider(),
			})
		}
		stats.Embedded += len(embedded)
	}

	return vectors, nil
}
