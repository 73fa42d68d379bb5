package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// searchText performs BM25 full-text search using FTS5. Terms are quoted
// individually, which escapes FTS5 operators and gives implicit AND
// semantics across terms.
func searchText(ctx context.Context, db *sql.DB, terms []string, limit int) ([]TextResult, error) {
	match := buildMatchExpr(terms)
	if match == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		return []TextResult{}, nil
	}

	// bm25() returns negated relevance (lower is better); ordering
	// ascending puts the best match first.
	query := `
		SELECT c.id, c.session_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.SessionID, &r.Score); err != nil {
			return nil, err
		}
		// Flip so higher is better for the caller.
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// buildMatchExpr assembles an FTS5 MATCH expression from query terms.
// Each term is double-quoted so user input can't inject FTS5 syntax.
func buildMatchExpr(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// searchVectorNative computes cosine distance inside SQLite via the
// sqlite-vec extension. Vectors live in the embedding cache and are shared
// across chunks through the content-hash join.
func searchVectorNative(ctx context.Context, db *sql.DB, queryVector []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	blob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); convert to
	// similarity to keep one score convention.
	query := `
		SELECT c.id, c.session_id, 1.0 - vec_distance_cosine(ec.vector, ?) AS similarity
		FROM chunks c
		JOIN embedding_cache ec ON ec.content_hash = c.content_hash
		ORDER BY similarity DESC
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ChunkID, &r.SessionID, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorFallback scans cached embeddings and ranks by cosine
// similarity computed in Go. Used when sqlite-vec is not loaded.
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}

	query := `
		SELECT c.id, c.session_id, ec.vector
		FROM chunks c
		JOIN embedding_cache ec ON ec.content_hash = c.content_hash
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]VectorResult, 0, 256)
	for rows.Next() {
		var (
			r    VectorResult
			blob []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.SessionID, &blob); err != nil {
			return nil, err
		}
		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // dimension mismatch (provider changed), skip
		}
		r.Score = cosineSimilarity(queryVector, vector)
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
