package sessionsource

import (
	"context"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

// Descriptor identifies one session available at the source, with the
// fixed-shape metadata the index stores alongside it.
type Descriptor struct {
	Key         string
	DisplayName string
	Labels      []string
	IsSubagent  bool
}

// Metadata converts the descriptor into the stored metadata record.
func (d Descriptor) Metadata() types.SessionMetadata {
	name := d.DisplayName
	if name == "" {
		name = d.Key
	}
	return types.SessionMetadata{
		DisplayName:   name,
		ProjectLabels: d.Labels,
		IsSubagent:    d.IsSubagent,
	}
}

// Source enumerates sessions and loads bounded transcript previews. The
// sync pass never pulls a full transcript in one call; previews are capped
// by message count and total characters.
type Source interface {
	// ListSessions returns a descriptor for every session the source
	// currently knows about.
	ListSessions(ctx context.Context) ([]Descriptor, error)

	// PreviewSessions loads the trailing window of each requested
	// session's transcript: at most maxMessages messages and roughly
	// maxChars total characters, always the most recent ones. Keys with
	// no transcript are absent from the result.
	PreviewSessions(ctx context.Context, keys []string, maxMessages, maxChars int) (map[string][]types.Message, error)
}
