package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// syncSessionsTool returns the tool definition for sync_sessions
func syncSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_sessions",
		Description: "Refresh the transcript index from the session source. Only sessions whose content changed are reindexed; a request made while a sync is running coalesces with it.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchTranscriptsTool returns the tool definition for search_transcripts
func searchTranscriptsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_transcripts",
		Description: "Search indexed session transcripts with hybrid lexical and semantic retrieval. Returns at most one result per session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index statistics: session, chunk and embedding counts, index size, last sync time and vector-search capability",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
