package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acastellana/clawcondos-sub001/internal/embedder"
	"github.com/acastellana/clawcondos-sub001/internal/indexer"
	"github.com/acastellana/clawcondos-sub001/internal/searcher"
	"github.com/acastellana/clawcondos-sub001/internal/sessionsource"
	"github.com/acastellana/clawcondos-sub001/internal/storage"
	"github.com/acastellana/clawcondos-sub001/internal/syncer"
)

const (
	// ServerName is the MCP server name
	ServerName = "condosearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBDir is the default location for the database
	DefaultDBDir = "~/.condosearch"

	dbFileName = "condosearch.db"
)

// Config holds server construction options.
type Config struct {
	DBDir        string        // database directory, DefaultDBDir if empty
	SessionsDir  string        // directory of session transcript files
	SyncInterval time.Duration // 0 disables periodic sync
	Logger       *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	store        storage.Store
	embedder     embedder.Embedder
	syncer       *syncer.Syncer
	searcher     *searcher.Searcher
	queryCache   *searcher.QueryCache
	syncInterval time.Duration
	logger       *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbDir, err := expandDBDir(cfg.DBDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dbDir, dbFileName), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if emb == nil {
		logger.Info("embedding disabled, search runs lexical-only")
	}

	queryCache := searcher.NewQueryCache(searcher.DefaultQueryCacheSize, searcher.DefaultQueryTTL)
	srch := searcher.New(store, emb, queryCache, logger)

	ix := indexer.NewSessionIndexer(store, emb, logger)
	source := sessionsource.NewJSONLSource(cfg.SessionsDir, logger)
	sync := syncer.New(store, ix, source, logger, queryCache.Purge)

	mcpServer := server.NewMCPServer(ServerName, ServerVersion)

	s := &Server{
		mcp:          mcpServer,
		store:        store,
		embedder:     emb,
		syncer:       sync,
		searcher:     srch,
		queryCache:   queryCache,
		syncInterval: cfg.SyncInterval,
		logger:       logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown. Periodic
// sync, when configured, runs for exactly the lifetime of the serve loop.
func (s *Server) Serve(ctx context.Context) error {
	if s.syncInterval > 0 {
		if err := s.syncer.Start(s.syncInterval); err != nil {
			return err
		}
	}
	defer s.Close()
	return server.ServeStdio(s.mcp)
}

// Close stops background work and releases resources.
func (s *Server) Close() {
	s.syncer.Stop()
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	_ = s.store.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(syncSessionsTool(), s.handleSyncSessions)
	s.mcp.AddTool(searchTranscriptsTool(), s.handleSearchTranscripts)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

// expandDBDir resolves the default and ~-prefixed database directories.
func expandDBDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDBDir
	}
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return dir, nil
}
