package types

// SearchResult is one ranked entry returned by a transcript search. Each
// result represents a distinct session; Snippet is taken from the session's
// best-scoring chunk.
type SearchResult struct {
	SessionKey  string
	DisplayName string
	ChunkID     int64
	Role        Role
	Score       float64
	Snippet     string
}
