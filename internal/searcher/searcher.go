package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/acastellana/clawcondos-sub001/internal/embedder"
	"github.com/acastellana/clawcondos-sub001/internal/storage"
	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

const (
	// Oversample is how many candidates each signal contributes per
	// requested result, giving fusion and dedup room to work.
	Oversample = 4

	// Fusion weights. Vector similarity dominates when available; lexical
	// relevance always contributes.
	VectorWeight  = 0.7
	LexicalWeight = 0.3

	// DefaultLimit and MaxLimit bound the result count.
	DefaultLimit = 10
	MaxLimit     = 50
)

// ErrEmptyQuery is returned for queries with no searchable terms.
var ErrEmptyQuery = errors.New("empty search query")

// Searcher runs hybrid lexical + vector retrieval over the index. A nil or
// unavailable embedder degrades it to lexical-only without error.
type Searcher struct {
	store    storage.Store
	embedder embedder.Embedder
	cache    *QueryCache // nil disables query caching
	logger   *slog.Logger
}

// New creates a searcher. embed and cache may both be nil.
func New(store storage.Store, embed embedder.Embedder, cache *QueryCache, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		store:    store,
		embedder: embed,
		cache:    cache,
		logger:   logger,
	}
}

// candidate accumulates one chunk's normalized scores during fusion.
type candidate struct {
	chunkID   int64
	sessionID int64
	lexical   float64
	vector    float64
	fused     float64
}

// Search returns the top results for a free-text query. Lexical and vector
// candidate sets are oversampled, min-max normalized, fused, then deduped
// to the best chunk per session.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := cacheKey(query, limit)
	if s.cache != nil {
		if results, ok := s.cache.Get(key); ok {
			return results, nil
		}
	}

	terms := strings.Fields(query)
	fetch := limit * Oversample

	lexical, err := s.store.SearchText(ctx, terms, fetch)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	vector := s.vectorCandidates(ctx, query, fetch)

	results, err := s.fuse(ctx, terms, lexical, vector, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, results)
	}
	return results, nil
}

// vectorCandidates embeds the query and runs the vector search. Every
// failure path degrades to an empty candidate set; vector trouble never
// fails a search.
func (s *Searcher) vectorCandidates(ctx context.Context, query string, fetch int) []storage.VectorResult {
	if s.embedder == nil || !s.embedder.Available() {
		return nil
	}
	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		s.logger.Warn("query embedding failed, searching lexical-only", "error", err)
		return nil
	}
	results, err := s.store.SearchVector(ctx, vectors[0], fetch)
	if err != nil {
		s.logger.Warn("vector search failed, searching lexical-only", "error", err)
		return nil
	}
	return results
}

// fuse combines the candidate sets, keeps the best chunk per session and
// materializes the top results.
func (s *Searcher) fuse(ctx context.Context, terms []string, lexical []storage.TextResult, vector []storage.VectorResult, limit int) ([]types.SearchResult, error) {
	lexNorm := normalizeText(lexical)
	vecNorm := normalizeVector(vector)

	merged := make(map[int64]*candidate, len(lexical)+len(vector))
	for _, r := range lexical {
		merged[r.ChunkID] = &candidate{
			chunkID:   r.ChunkID,
			sessionID: r.SessionID,
			lexical:   lexNorm[r.ChunkID],
		}
	}
	for _, r := range vector {
		c, ok := merged[r.ChunkID]
		if !ok {
			c = &candidate{chunkID: r.ChunkID, sessionID: r.SessionID}
			merged[r.ChunkID] = c
		}
		c.vector = vecNorm[r.ChunkID]
	}

	// With no vector candidates at all the lexical score stands alone;
	// scaling it by the lexical weight would misreport degraded-mode scores.
	hasVector := len(vector) > 0

	// Best chunk per session; a session appears at most once.
	bestPerSession := make(map[int64]*candidate, len(merged))
	for _, c := range merged {
		if hasVector {
			c.fused = VectorWeight*c.vector + LexicalWeight*c.lexical
		} else {
			c.fused = c.lexical
		}
		if best, ok := bestPerSession[c.sessionID]; !ok || c.fused > best.fused {
			bestPerSession[c.sessionID] = c
		}
	}

	ranked := make([]*candidate, 0, len(bestPerSession))
	for _, c := range bestPerSession {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].fused != ranked[j].fused {
			return ranked[i].fused > ranked[j].fused
		}
		return ranked[i].chunkID < ranked[j].chunkID
	})
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}

	results := make([]types.SearchResult, 0, len(ranked))
	for _, c := range ranked {
		chunk, err := s.store.GetChunk(ctx, c.chunkID)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %d: %w", c.chunkID, err)
		}
		session, err := s.store.GetSessionByID(ctx, c.sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %d: %w", c.sessionID, err)
		}
		results = append(results, types.SearchResult{
			SessionKey:  session.SessionKey,
			DisplayName: session.DisplayName,
			ChunkID:     chunk.ID,
			Role:        types.Role(chunk.Role),
			Score:       c.fused,
			Snippet:     makeSnippet(chunk.Content, terms),
		})
	}
	return results, nil
}

// normalizeText min-max normalizes lexical scores to [0,1]. A degenerate
// range (one candidate, or all scores equal) maps every candidate to 1.
func normalizeText(results []storage.TextResult) map[int64]float64 {
	scores := make(map[int64]float64, len(results))
	if len(results) == 0 {
		return scores
	}
	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	span := maxScore - minScore
	for _, r := range results {
		if span == 0 {
			scores[r.ChunkID] = 1.0
		} else {
			scores[r.ChunkID] = (r.Score - minScore) / span
		}
	}
	return scores
}

// normalizeVector is normalizeText for the vector candidate set.
func normalizeVector(results []storage.VectorResult) map[int64]float64 {
	scores := make(map[int64]float64, len(results))
	if len(results) == 0 {
		return scores
	}
	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	span := maxScore - minScore
	for _, r := range results {
		if span == 0 {
			scores[r.ChunkID] = 1.0
		} else {
			scores[r.ChunkID] = (r.Score - minScore) / span
		}
	}
	return scores
}
