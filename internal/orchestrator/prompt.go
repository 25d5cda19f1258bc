package orchestrator

import "strings"

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var roleLabels = map[Role]string{
	RoleSystem:    "System",
	RoleUser:      "User",
	RoleAssistant: "Assistant",
}

// BuildPrompt flattens messages into one prompt, each rendered as
// "<Role>: <content>" and separated by a blank line. Messages with any other
// role are dropped.
func BuildPrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		label, ok := roleLabels[Role(strings.ToLower(string(m.Role)))]
		if !ok {
			continue
		}
		parts = append(parts, label+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
