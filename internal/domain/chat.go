package domain

// Role identifies the author of a chat turn. The values are the ones the
// knowledge base expects on the wire.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "ai"
)

// ChatTurn is a single prior message in the conversation sent along with a
// question, oldest first.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a question to the knowledge base.
type ChatRequest struct {
	History  []ChatTurn `json:"history"`
	Question string     `json:"question"`
}
