package models

// MessageRole identifies the author of a prompt message.
type MessageRole string

const (
	RoleSystem MessageRole = "system"
	RoleUser   MessageRole = "user"
)

// Message is one turn of a prompt as built by a reasoning strategy.
// Provider clients translate these into their wire format; nothing else
// about the prompt is provider-specific.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// UserMessage builds a single user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage builds a single system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
