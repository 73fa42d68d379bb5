package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acastellana/clawcondos-sub001/internal/searcher"
	"github.com/acastellana/clawcondos-sub001/internal/syncer"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// handleSyncSessions handles the sync_sessions tool invocation. A request
// arriving while a pass is running coalesces with it and reports that.
func (s *Server) handleSyncSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.syncer.Sync(ctx)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"status": "already_running",
		})), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"status":        "complete",
		"run_id":        result.RunID,
		"sessions_seen": result.SessionsSeen,
		"indexed":       result.Indexed,
		"skipped":       result.Skipped,
		"failed":        result.Failed,
		"duration_ms":   result.Duration.Milliseconds(),
	}
	if result.Truncated {
		response["truncated"] = true
		response["page_limit"] = syncer.MaxSessionPage
	}
	if result.Pruned > 0 {
		response["embeddings_pruned"] = result.Pruned
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchTranscripts handles the search_transcripts tool invocation
func (s *Server) handleSearchTranscripts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit),
			map[string]interface{}{
				"param": "limit",
				"value": limit,
			})
	}

	results, err := s.searcher.Search(ctx, query, limit)
	if errors.Is(err, searcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	formatted := make([]map[string]interface{}, len(results))
	for i, r := range results {
		formatted[i] = map[string]interface{}{
			"session_key":  r.SessionKey,
			"display_name": r.DisplayName,
			"chunk_id":     r.ChunkID,
			"role":         string(r.Role),
			"score":        r.Score,
			"snippet":      r.Snippet,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": formatted,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.store.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	provider := "none"
	if s.embedder != nil {
		provider = s.embedder.Provider()
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"sessions_count":   status.SessionCount,
			"chunks_count":     status.ChunkCount,
			"embeddings_count": status.EmbeddingCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"embedding_provider": provider,
		"native_vector_ops":  status.NativeVectorOps,
		"cached_queries":     s.queryCache.Len(),
	}
	if status.LastSyncedAt.IsZero() {
		response["last_synced_at"] = nil
	} else {
		response["last_synced_at"] = status.LastSyncedAt.Format(time.RFC3339)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
