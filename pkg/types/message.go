package types

import "strings"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single entry in a session transcript.
type Message struct {
	Role Role
	Text string
}

// IsBlank reports whether the message carries no indexable text.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Text) == ""
}
