package indexer

import (
	"crypto/sha256"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

// HashTranscript computes the content hash of an ordered transcript. The
// digest covers each message's role and text with NUL separators, so both
// edits and role changes alter the hash while formatting of the stored
// chunks does not feed back into it. This hash is the sole gate for
// reindexing a session.
func HashTranscript(msgs []types.Message) [32]byte {
	h := sha256.New()
	for _, m := range msgs {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Text))
		h.Write([]byte{0})
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
