// Package mcp implements the Model Context Protocol (MCP) server for
// transcript search.
//
// The server exposes three tools to MCP clients:
//   - sync_sessions: refresh the index from the session source
//   - search_transcripts: hybrid lexical + semantic search over transcripts
//   - get_status: index statistics and capabilities
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. stdout carries the
// protocol; all logging goes to stderr.
//
// # Tool: sync_sessions
//
// Runs one sync pass. Sessions whose transcript hash is unchanged are
// skipped; the rest are rechunked and reindexed atomically. If a pass is
// already running the call returns {"status": "already_running"} instead
// of starting a second one.
//
// # Tool: search_transcripts
//
//	{
//	  "name": "search_transcripts",
//	  "arguments": {"query": "rotate credentials", "limit": 10}
//	}
//
// Results carry the session key, display name, role, fused score and a
// bounded snippet. Each session contributes at most one result.
//
// # Tool: get_status
//
// Reports session/chunk/embedding counts, database size, the active
// embedding provider, last sync time and whether native vector search is
// available.
package mcp
