package indexer

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acastellana/clawcondos-sub001/internal/storage"
	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

// countingEmbedder is a deterministic in-process embedder that records how
// many texts it was asked to embed.
type countingEmbedder struct {
	batchCalls    int
	textsEmbedded int
	fail          bool
	unavailable   bool
}

func (f *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.fail {
		return nil, assert.AnError
	}
	f.textsEmbedded += len(texts)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		digest := sha256.Sum256([]byte(text))
		vectors[i] = []float32{
			float32(digest[0]) / 255.0,
			float32(digest[1]) / 255.0,
			float32(digest[2]) / 255.0,
		}
	}
	return vectors, nil
}

func (f *countingEmbedder) Available() bool { return !f.unavailable }
func (f *countingEmbedder) Dimension() int  { return 3 }
func (f *countingEmbedder) Provider() string {
	return "counting"
}
func (f *countingEmbedder) Close() error { return nil }

func setupStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func transcript(texts ...string) []types.Message {
	msgs := make([]types.Message, len(texts))
	for i, text := range texts {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msgs[i] = types.Message{Role: role, Text: text}
	}
	return msgs
}

func TestIndexSessionIdempotent(t *testing.T) {
	store := setupStore(t)
	emb := &countingEmbedder{}
	ix := NewSessionIndexer(store, emb, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	meta := types.SessionMetadata{DisplayName: "Deploy chat", ProjectLabels: []string{"infra"}}
	msgs := transcript("deploy to staging", "running the deploy now")

	stats, err := ix.IndexSession(ctx, "s1", meta, msgs)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, 1, stats.Embedded)

	session, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	before, err := store.ListChunksBySession(ctx, session.ID)
	require.NoError(t, err)

	// Same transcript again: nothing written, nothing embedded.
	stats, err = ix.IndexSession(ctx, "s1", meta, msgs)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Zero(t, stats.ChunkCount)
	assert.Equal(t, 1, emb.batchCalls)

	after, err := store.ListChunksBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}

func TestIndexSessionReplacesOnChange(t *testing.T) {
	store := setupStore(t)
	ix := NewSessionIndexer(store, &countingEmbedder{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	meta := types.SessionMetadata{DisplayName: "Editable"}
	_, err := ix.IndexSession(ctx, "s1", meta, transcript("original kubernetes question"))
	require.NoError(t, err)

	session, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	firstID := session.ID

	stats, err := ix.IndexSession(ctx, "s1", meta, transcript("revised terraform question"))
	require.NoError(t, err)
	assert.False(t, stats.Skipped)

	session, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, firstID, session.ID)

	chunks, err := store.ListChunksBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "terraform")
	assert.NotContains(t, chunks[0].Content, "kubernetes")
}

func TestIndexSessionMetadataStored(t *testing.T) {
	store := setupStore(t)
	ix := NewSessionIndexer(store, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	meta := types.SessionMetadata{
		DisplayName:   "Subagent run",
		ProjectLabels: []string{"proj-a", "proj-b"},
		IsSubagent:    true,
	}
	_, err := ix.IndexSession(ctx, "sub1", meta, transcript("child task output"))
	require.NoError(t, err)

	session, err := store.GetSession(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, meta, session.Metadata())
}

func TestIndexSessionEmbeddingCacheDedup(t *testing.T) {
	store := setupStore(t)
	emb := &countingEmbedder{}
	ix := NewSessionIndexer(store, emb, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	shared := transcript("identical transcript text shared across sessions")

	_, err := ix.IndexSession(ctx, "a", types.SessionMetadata{DisplayName: "A"}, shared)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.textsEmbedded)

	// Second session with byte-identical content: vector comes from the
	// persistent cache, the provider is never called again.
	stats, err := ix.IndexSession(ctx, "b", types.SessionMetadata{DisplayName: "B"}, shared)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Zero(t, stats.Embedded)
	assert.Equal(t, 1, emb.textsEmbedded)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ChunkCount)
	assert.Equal(t, 1, status.EmbeddingCount)
}

func TestIndexSessionProviderFailureDegradesToLexical(t *testing.T) {
	store := setupStore(t)
	emb := &countingEmbedder{fail: true}
	ix := NewSessionIndexer(store, emb, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	stats, err := ix.IndexSession(ctx, "s1", types.SessionMetadata{DisplayName: "Degraded"},
		transcript("searchable even without vectors"))
	require.NoError(t, err)
	assert.True(t, stats.LexicalOnly)
	assert.Zero(t, stats.Embedded)

	// Chunks landed and lexical search over them works.
	hits, err := store.SearchText(ctx, []string{"searchable"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.EmbeddingCount)
}

func TestIndexSessionNilEmbedder(t *testing.T) {
	store := setupStore(t)
	ix := NewSessionIndexer(store, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	stats, err := ix.IndexSession(ctx, "s1", types.SessionMetadata{DisplayName: "Lexical"},
		transcript("no vectors configured"))
	require.NoError(t, err)
	assert.True(t, stats.LexicalOnly)
	assert.Equal(t, 1, stats.ChunkCount)
}

func TestIndexSessionUnavailableEmbedder(t *testing.T) {
	store := setupStore(t)
	emb := &countingEmbedder{unavailable: true}
	ix := NewSessionIndexer(store, emb, slog.New(slog.DiscardHandler))

	stats, err := ix.IndexSession(context.Background(), "s1",
		types.SessionMetadata{DisplayName: "Offline"}, transcript("provider offline"))
	require.NoError(t, err)
	assert.True(t, stats.LexicalOnly)
	assert.Zero(t, emb.batchCalls)
}
