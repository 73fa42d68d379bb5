package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// nativeVec is true when the sqlite-vec extension answered the probe
	// at open time. When false, vector queries use the Go distance scan.
	nativeVec bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if absent) the index database at dbPath and
// applies any pending migrations. A missing or empty file is simply a fresh
// index. If the build carries the sqlite-vec extension it is probed once; a
// failed probe downgrades vector queries to the Go scan for the process
// lifetime and is logged a single time.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if VectorExtensionAvailable {
		var version string
		if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
			logger.Warn("sqlite-vec extension unavailable, vector search falls back to in-process scan",
				"error", err)
		} else {
			s.nativeVec = true
		}
	}

	return s, nil
}

// NativeVectorSearch reports whether vector distance is computed by the
// sqlite-vec extension rather than the Go fallback.
func (s *SQLiteStore) NativeVectorSearch() bool {
	return s.nativeVec
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Session operations

const sessionColumns = `id, session_key, display_name, project_labels, is_subagent,
       content_hash, last_indexed_at, created_at, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, sessionKey string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_key = ?`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, sessionKey))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessionByID(ctx context.Context, sessionID int64) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY session_key`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess          Session
		displayName   sql.NullString
		labelsJSON    sql.NullString
		hash          []byte
		lastIndexedAt sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.SessionKey, &displayName, &labelsJSON, &sess.IsSubagent,
		&hash, &lastIndexedAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(sess.ContentHash[:], hash)
	if displayName.Valid {
		sess.DisplayName = displayName.String
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &sess.ProjectLabels); err != nil {
			return nil, fmt.Errorf("corrupt project_labels for session %s: %w", sess.SessionKey, err)
		}
	}
	if lastIndexedAt.Valid {
		sess.LastIndexedAt = lastIndexedAt.Time
	}
	return &sess, nil
}

func marshalLabels(labels []string) (interface{}, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Chunk operations

const chunkColumns = `id, session_id, ordinal, content, role, token_count, content_hash, created_at`

func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`
	chunk, err := scanChunk(s.db.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *SQLiteStore) ListChunksBySession(ctx context.Context, sessionID int64) ([]*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE session_id = ? ORDER BY ordinal`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		chunk Chunk
		hash  []byte
	)
	err := row.Scan(
		&chunk.ID, &chunk.SessionID, &chunk.Ordinal, &chunk.Content,
		&chunk.Role, &chunk.TokenCount, &hash, &chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)
	return &chunk, nil
}

// ReplaceSessionChunks commits one session reindex atomically. See the
// Store interface for the contract.
func (s *SQLiteStore) ReplaceSessionChunks(ctx context.Context, session *Session, chunks []*Chunk, vectors []*CachedEmbedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	labels, err := marshalLabels(session.ProjectLabels)
	if err != nil {
		return fmt.Errorf("failed to encode project labels: %w", err)
	}

	upsert := `
		INSERT INTO sessions (session_key, display_name, project_labels, is_subagent,
		                      content_hash, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			display_name = excluded.display_name,
			project_labels = excluded.project_labels,
			is_subagent = excluded.is_subagent,
			content_hash = excluded.content_hash,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, upsert,
		session.SessionKey, nullIfEmpty(session.DisplayName), labels, session.IsSubagent,
		session.ContentHash[:], now, now, now).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	session.LastIndexedAt = now
	session.UpdatedAt = now

	// Replace, never patch: the old chunk set goes away entirely. The FTS
	// delete trigger removes the matching index rows.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	insert := `
		INSERT INTO chunks (session_id, ordinal, content, role, token_count, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, chunk := range chunks {
		chunk.SessionID = session.ID
		res, err := tx.ExecContext(ctx, insert,
			session.ID, chunk.Ordinal, chunk.Content, chunk.Role,
			chunk.TokenCount, chunk.ContentHash[:], now)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.Ordinal, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			chunk.ID = id
		}
		chunk.CreatedAt = now
	}

	// Cache entries are write-once: OR IGNORE keeps an existing row for
	// the same content hash untouched.
	cacheInsert := `
		INSERT OR IGNORE INTO embedding_cache (content_hash, vector, dimension, provider, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, v := range vectors {
		blob := serializeVector(v.Vector)
		if _, err := tx.ExecContext(ctx, cacheInsert,
			v.ContentHash[:], blob, v.Dimension, v.Provider, now); err != nil {
			return fmt.Errorf("failed to insert embedding cache entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reindex: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Embedding cache operations

func (s *SQLiteStore) GetCachedEmbeddings(ctx context.Context, hashes [][32]byte) (map[[32]byte][]float32, error) {
	found := make(map[[32]byte][]float32, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		hh := h
		args[i] = hh[:]
	}

	query := `SELECT content_hash, vector FROM embedding_cache WHERE content_hash IN (` +
		strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hashBytes, blob []byte
		if err := rows.Scan(&hashBytes, &blob); err != nil {
			return nil, err
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		found[hash] = deserializeVector(blob)
	}
	return found, rows.Err()
}

// PruneEmbeddingCache deletes the oldest cache entries beyond maxEntries
// and returns how many rows were removed. The cache is otherwise unbounded.
func (s *SQLiteStore) PruneEmbeddingCache(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&count); err != nil {
		return 0, err
	}
	excess := count - maxEntries
	if excess <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM embedding_cache WHERE content_hash IN (
			SELECT content_hash FROM embedding_cache
			ORDER BY created_at ASC, content_hash ASC
			LIMIT ?
		)
	`
	res, err := s.db.ExecContext(ctx, query, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to prune embedding cache: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// Search operations

func (s *SQLiteStore) SearchText(ctx context.Context, terms []string, limit int) ([]TextResult, error) {
	return searchText(ctx, s.db, terms, limit)
}

func (s *SQLiteStore) SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error) {
	if s.nativeVec {
		return searchVectorNative(ctx, s.db, vector, limit)
	}
	return searchVectorFallback(ctx, s.db, vector, limit)
}

// Sync bookkeeping

func (s *SQLiteStore) GetLastSyncedAt(ctx context.Context) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, "SELECT last_synced_at FROM sync_state WHERE id = 1").Scan(&t)
	if err == sql.ErrNoRows || (err == nil && !t.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.Time, nil
}

func (s *SQLiteStore) SetLastSyncedAt(ctx context.Context, at time.Time) error {
	query := `
		INSERT INTO sync_state (id, last_synced_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_synced_at = excluded.last_synced_at
	`
	_, err := s.db.ExecContext(ctx, query, at)
	return err
}

// Status operations

func (s *SQLiteStore) Status(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{NativeVectorOps: s.nativeVec}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&status.SessionCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunkCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&status.EmbeddingCount); err != nil {
		return nil, err
	}

	lastSynced, err := s.GetLastSyncedAt(ctx)
	if err != nil {
		return nil, err
	}
	status.LastSyncedAt = lastSynced

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}
