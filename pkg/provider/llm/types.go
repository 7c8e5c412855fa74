package llm

// Role values accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// UserMessage is a convenience constructor for a user-role Message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
