package chunker

import (
	"crypto/sha256"
	"strings"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

const (
	// TargetChunkChars is the size a chunk is allowed to grow to before the
	// next message forces a flush (~400 tokens).
	TargetChunkChars = 1600

	// OverlapChars is how much of a flushed chunk's tail seeds the next
	// buffer, preserving continuity across the boundary (~80 tokens).
	OverlapChars = 320

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunk is a bounded, possibly overlapping slice of a transcript, the atomic
// unit of indexing and retrieval.
type Chunk struct {
	Ordinal     int
	Content     string
	Role        types.Role
	TokenCount  int
	ContentHash [32]byte
}

// ChunkMessages splits an ordered transcript into overlapping chunks.
//
// Messages are accumulated into a buffer as "role: text" lines. When the next
// message would push a non-empty buffer past TargetChunkChars the buffer is
// flushed as a chunk and the new buffer is seeded with the flushed chunk's
// trailing OverlapChars characters. Blank messages are skipped. The final
// buffer is always flushed, so any transcript with at least one non-blank
// message yields at least one chunk. Identical input always yields identical
// boundaries and overlap text.
func ChunkMessages(msgs []types.Message) []Chunk {
	var (
		out  []Chunk
		buf  strings.Builder
		role types.Role
	)

	for _, m := range msgs {
		if m.IsBlank() {
			continue
		}
		piece := string(m.Role) + ": " + strings.TrimSpace(m.Text)

		if buf.Len() > 0 && buf.Len()+1+len(piece) > TargetChunkChars {
			flushed := buf.String()
			out = append(out, newChunk(len(out), flushed, role))
			buf.Reset()
			buf.WriteString(overlapTail(flushed))
			role = m.Role
		}
		if buf.Len() == 0 {
			role = m.Role
		} else {
			buf.WriteByte('\n')
		}
		buf.WriteString(piece)
	}

	if buf.Len() > 0 {
		out = append(out, newChunk(len(out), buf.String(), role))
	}
	return out
}

func newChunk(ordinal int, content string, role types.Role) Chunk {
	return Chunk{
		Ordinal:     ordinal,
		Content:     content,
		Role:        role,
		TokenCount:  EstimateTokenCount(content),
		ContentHash: ComputeChunkHash(content),
	}
}

// overlapTail returns the trailing OverlapChars characters of a flushed
// chunk. Rune-based so multi-byte text is never split mid-character.
func overlapTail(content string) string {
	runes := []rune(content)
	if len(runes) <= OverlapChars {
		return content
	}
	return string(runes[len(runes)-OverlapChars:])
}

// ComputeChunkHash computes the SHA-256 hash for a chunk's content
func ComputeChunkHash(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}

// EstimateTokenCount estimates the number of tokens in a string,
// rounding up.
func EstimateTokenCount(text string) int {
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}
