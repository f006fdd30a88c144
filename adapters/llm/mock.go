package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicai/server/domain/repositories"
)

// MockLLM is an offline LanguageModel for local development and tests. It
// replays scripted responses in order, then repeats the last one; with no
// script it echoes a canned completion derived from the prompt.
type MockLLM struct {
	Responses []string
	Err       error

	calls    int
	prompts  []string
	maxToken []int
}

// NewMockLLM creates a mock with the given scripted responses.
func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{Responses: responses}
}

// Complete implements repositories.LanguageModel.
func (m *MockLLM) Complete(_ context.Context, messages []repositories.ChatMessage, maxTokens int, _ float32) (string, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	m.prompts = append(m.prompts, prompt.String())
	m.maxToken = append(m.maxToken, maxTokens)
	m.calls++

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return fmt.Sprintf("Mock completion for %d message(s)", len(messages)), nil
	}
	idx := m.calls - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// Calls returns how many completions were requested.
func (m *MockLLM) Calls() int { return m.calls }

// Prompts returns the concatenated message text of each call, in order.
func (m *MockLLM) Prompts() []string { return m.prompts }
