package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSession(key string) *Session {
	return &Session{
		SessionKey:    key,
		DisplayName:   "Session " + key,
		ProjectLabels: []string{"infra", "deploy"},
		ContentHash:   sha256.Sum256([]byte(key + "-v1")),
		LastIndexedAt: time.Now().UTC(),
	}
}

func testChunk(ordinal int, content, role string) *Chunk {
	return &Chunk{
		Ordinal:     ordinal,
		Content:     content,
		Role:        role,
		TokenCount:  (len(content) + 3) / 4,
		ContentHash: sha256.Sum256([]byte(content)),
	}
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	assert.NotNil(t, store.db)
}

func TestGetSessionNotFound(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetSessionByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceSessionChunksRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	session := testSession("alpha")
	chunks := []*Chunk{
		testChunk(0, "user: deploy the staging environment", "user"),
		testChunk(1, "assistant: running the deploy now", "assistant"),
		testChunk(2, "user: looks good, thanks", "user"),
	}

	err := store.ReplaceSessionChunks(ctx, session, chunks, nil)
	require.NoError(t, err)
	assert.Greater(t, session.ID, int64(0))

	got, err := store.GetSession(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "Session alpha", got.DisplayName)
	assert.Equal(t, []string{"infra", "deploy"}, got.ProjectLabels)
	assert.False(t, got.IsSubagent)
	assert.Equal(t, session.ContentHash, got.ContentHash)

	byID, err := store.GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", byID.SessionKey)

	stored, err := store.ListChunksBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, c := range stored {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, chunks[i].Content, c.Content)
		assert.Equal(t, chunks[i].ContentHash, c.ContentHash)
	}

	first, err := store.GetChunk(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, stored[0].Content, first.Content)
}

func TestReplaceSessionChunksReplacesNotAppends(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	session := testSession("beta")
	initial := []*Chunk{
		testChunk(0, "user: obsolete kubernetes question", "user"),
		testChunk(1, "assistant: obsolete kubernetes answer", "assistant"),
		testChunk(2, "user: unrelated tail", "user"),
	}
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, initial, nil))
	firstID := session.ID

	session.ContentHash = sha256.Sum256([]byte("beta-v2"))
	replacement := []*Chunk{
		testChunk(0, "user: fresh terraform question", "user"),
		testChunk(1, "assistant: fresh terraform answer", "assistant"),
	}
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, replacement, nil))

	// Same session row, entirely new chunk set.
	assert.Equal(t, firstID, session.ID)
	stored, err := store.ListChunksBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "user: fresh terraform question", stored[0].Content)

	// The FTS index must follow the replacement.
	hits, err := store.SearchText(ctx, []string{"kubernetes"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.SearchText(ctx, []string{"terraform"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestEmbeddingCacheWriteOnce(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	hash := sha256.Sum256([]byte("shared chunk text"))
	session := testSession("gamma")
	chunks := []*Chunk{testChunk(0, "shared chunk text", "user")}

	original := []*CachedEmbedding{{
		ContentHash: hash,
		Vector:      []float32{1, 2, 3},
		Dimension:   3,
		Provider:    "local",
	}}
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, chunks, original))

	// A second write for the same hash must not overwrite the entry.
	session.ContentHash = sha256.Sum256([]byte("gamma-v2"))
	conflicting := []*CachedEmbedding{{
		ContentHash: hash,
		Vector:      []float32{9, 9, 9},
		Dimension:   3,
		Provider:    "local",
	}}
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, chunks, conflicting))

	found, err := store.GetCachedEmbeddings(ctx, [][32]byte{hash})
	require.NoError(t, err)
	require.Contains(t, found, hash)
	assert.Equal(t, []float32{1, 2, 3}, found[hash])
}

func TestGetCachedEmbeddings(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	empty, err := store.GetCachedEmbeddings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	known := sha256.Sum256([]byte("known"))
	unknown := sha256.Sum256([]byte("unknown"))
	session := testSession("delta")
	require.NoError(t, store.ReplaceSessionChunks(ctx, session,
		[]*Chunk{testChunk(0, "known", "user")},
		[]*CachedEmbedding{{ContentHash: known, Vector: []float32{0.5}, Dimension: 1, Provider: "local"}}))

	found, err := store.GetCachedEmbeddings(ctx, [][32]byte{known, unknown})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, known)
	assert.NotContains(t, found, unknown)
}

func TestPruneEmbeddingCache(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	session := testSession("epsilon")
	chunks := make([]*Chunk, 5)
	vectors := make([]*CachedEmbedding, 5)
	for i := range chunks {
		content := fmt.Sprintf("chunk number %d", i)
		chunks[i] = testChunk(i, content, "user")
		vectors[i] = &CachedEmbedding{
			ContentHash: sha256.Sum256([]byte(content)),
			Vector:      []float32{float32(i)},
			Dimension:   1,
			Provider:    "local",
		}
	}
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, chunks, vectors))

	// Under the cap: nothing removed.
	removed, err := store.PruneEmbeddingCache(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = store.PruneEmbeddingCache(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.EmbeddingCount)
}

func TestSearchText(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	one := testSession("one")
	require.NoError(t, store.ReplaceSessionChunks(ctx, one, []*Chunk{
		testChunk(0, "user: how do I deploy to the staging cluster", "user"),
		testChunk(1, "assistant: use the staging pipeline", "assistant"),
	}, nil))

	two := testSession("two")
	require.NoError(t, store.ReplaceSessionChunks(ctx, two, []*Chunk{
		testChunk(0, "user: rotate the database credentials", "user"),
	}, nil))

	hits, err := store.SearchText(ctx, []string{"staging"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, one.ID, h.SessionID)
	}

	// Terms combine with AND semantics.
	hits, err = store.SearchText(ctx, []string{"staging", "cluster"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = store.SearchText(ctx, []string{"nonexistent"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchTextEscapesOperators(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	session := testSession("quoting")
	require.NoError(t, store.ReplaceSessionChunks(ctx, session, []*Chunk{
		testChunk(0, "user: what does NEAR mean here", "user"),
	}, nil))

	// FTS5 operators and quotes in terms must behave as literals.
	for _, terms := range [][]string{
		{"NEAR"},
		{`he"llo`},
		{"AND", "mean"},
	} {
		_, err := store.SearchText(ctx, terms, 10)
		assert.NoError(t, err, "terms %v", terms)
	}

	_, err := store.SearchText(ctx, []string{"  ", ""}, 10)
	assert.Error(t, err)
}

func TestSearchVectorFallback(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	contentA := "chunk about deployments"
	contentB := "chunk about databases"
	session := testSession("vectors")
	require.NoError(t, store.ReplaceSessionChunks(ctx, session,
		[]*Chunk{
			testChunk(0, contentA, "user"),
			testChunk(1, contentB, "assistant"),
		},
		[]*CachedEmbedding{
			{ContentHash: sha256.Sum256([]byte(contentA)), Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "local"},
			{ContentHash: sha256.Sum256([]byte(contentB)), Vector: []float32{0, 1, 0}, Dimension: 3, Provider: "local"},
		}))

	hits, err := store.SearchVector(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	hits, err = store.SearchVector(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Dimension mismatch candidates are skipped, not errors.
	hits, err = store.SearchVector(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSyncStateRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	initial, err := store.GetLastSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, initial.IsZero())

	stamp := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSyncedAt(ctx, stamp))

	got, err := store.GetLastSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(got.UTC()))

	// Overwrite with a later stamp.
	later := stamp.Add(time.Hour)
	require.NoError(t, store.SetLastSyncedAt(ctx, later))
	got, err = store.GetLastSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, later.Equal(got.UTC()))
}

func TestStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.SessionCount)
	assert.Zero(t, status.ChunkCount)

	session := testSession("status")
	content := "user: some indexed content"
	require.NoError(t, store.ReplaceSessionChunks(ctx, session,
		[]*Chunk{testChunk(0, content, "user")},
		[]*CachedEmbedding{{ContentHash: sha256.Sum256([]byte(content)), Vector: []float32{1}, Dimension: 1, Provider: "local"}}))

	status, err = store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.SessionCount)
	assert.Equal(t, 1, status.ChunkCount)
	assert.Equal(t, 1, status.EmbeddingCount)
	assert.Equal(t, VectorExtensionAvailable && store.NativeVectorSearch(), status.NativeVectorOps)
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	store, err := NewSQLiteStore(path, logger)
	require.NoError(t, err)

	session := testSession("persistent")
	require.NoError(t, store.ReplaceSessionChunks(ctx, session,
		[]*Chunk{testChunk(0, "user: survives a reopen", "user")}, nil))
	require.NoError(t, store.Close())

	// Reopening runs the migration pass again against the existing schema.
	store, err = NewSQLiteStore(path, logger)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	got, err := store.GetSession(ctx, "persistent")
	require.NoError(t, err)
	assert.Equal(t, session.ContentHash, got.ContentHash)

	hits, err := store.SearchText(ctx, []string{"survives"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	vector := []float32{0.1, -2.5, 1024.75, 0}
	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
}
