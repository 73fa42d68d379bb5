package storage

import (
	"context"
	"errors"
	"time"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Store defines the interface for persisting and querying indexed
// transcript data.
type Store interface {
	// Session operations
	GetSession(ctx context.Context, sessionKey string) (*Session, error)
	GetSessionByID(ctx context.Context, sessionID int64) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)

	// Chunk operations
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksBySession(ctx context.Context, sessionID int64) ([]*Chunk, error)

	// ReplaceSessionChunks commits a full reindex of one session as a
	// single transaction: the session row is upserted with its new hash
	// and metadata, the previous chunk set is deleted, the new chunk set
	// is inserted, and any freshly computed vectors are added to the
	// embedding cache. A failure rolls everything back, leaving the
	// previous fully-indexed state visible.
	ReplaceSessionChunks(ctx context.Context, session *Session, chunks []*Chunk, vectors []*CachedEmbedding) error

	// Embedding cache operations
	GetCachedEmbeddings(ctx context.Context, hashes [][32]byte) (map[[32]byte][]float32, error)
	PruneEmbeddingCache(ctx context.Context, maxEntries int) (int, error)

	// Search operations
	SearchText(ctx context.Context, terms []string, limit int) ([]TextResult, error)
	SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error)

	// Sync bookkeeping
	GetLastSyncedAt(ctx context.Context) (time.Time, error)
	SetLastSyncedAt(ctx context.Context, t time.Time) error

	// Status operations
	Status(ctx context.Context) (*IndexStatus, error)

	Close() error
}

// Session represents an indexed transcript session. ContentHash is the
// digest of the message list the currently persisted chunk set was built
// from; it is the single source of truth for "needs reindex".
type Session struct {
	ID            int64
	SessionKey    string
	DisplayName   string
	ProjectLabels []string
	IsSubagent    bool
	ContentHash   [32]byte
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Metadata returns the session's fixed-shape metadata record.
func (s *Session) Metadata() types.SessionMetadata {
	return types.SessionMetadata{
		DisplayName:   s.DisplayName,
		ProjectLabels: s.ProjectLabels,
		IsSubagent:    s.IsSubagent,
	}
}

// Chunk represents one stored transcript chunk. Ordinals are contiguous
// from zero within a session; the whole set is replaced on reindex.
type Chunk struct {
	ID          int64
	SessionID   int64
	Ordinal     int
	Content     string
	Role        string
	TokenCount  int
	ContentHash [32]byte
	CreatedAt   time.Time
}

// CachedEmbedding is one embedding-cache entry, keyed by the SHA-256 of the
// chunk text it embeds. Entries are written at most once and never mutate;
// identical text shares one entry across all sessions.
type CachedEmbedding struct {
	ContentHash [32]byte
	Vector      []float32
	Dimension   int
	Provider    string
	CreatedAt   time.Time
}

// TextResult represents a result from full-text search. Score is the
// negated FTS5 bm25 value, so higher is better.
type TextResult struct {
	ChunkID   int64
	SessionID int64
	Score     float64
}

// VectorResult represents a result from vector similarity search. Score is
// cosine similarity, higher is better.
type VectorResult struct {
	ChunkID   int64
	SessionID int64
	Score     float64
}

// IndexStatus contains statistics about the index.
type IndexStatus struct {
	SessionCount    int
	ChunkCount      int
	EmbeddingCount  int
	IndexSizeMB     float64
	LastSyncedAt    time.Time
	NativeVectorOps bool
}
