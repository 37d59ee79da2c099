package models

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a conversation. Assistant turns grow
// incrementally while a stream is in flight and become immutable once the
// stream ends. Err marks a turn that terminated with a failure.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Err     bool   `json:"error,omitempty"`
	// TS is a UTC unix-nano timestamp, insertion order within a conversation.
	TS int64 `json:"ts,omitempty"`
}
