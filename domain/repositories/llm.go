package repositories

import "context"

// Role defines the type of message sender.
type Role string

const (
	SystemRole Role = "system"
	UserRole   Role = "user"
	ModelRole  Role = "model"
)

// ChatMessage represents a single message sent to the language model.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LanguageModel abstracts any hosted chat/LLM provider. Callers must treat
// failures as expected: timeouts and malformed output degrade to fallbacks,
// they never crash a session.
type LanguageModel interface {
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (string, error)
}
