package types

// SessionMetadata is the fixed-shape descriptive record attached to an
// indexed session. All fields are optional; absent values are zero values.
type SessionMetadata struct {
	DisplayName   string
	ProjectLabels []string
	IsSubagent    bool
}
