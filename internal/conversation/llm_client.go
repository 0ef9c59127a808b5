package conversation

import (
	"context"
	"strings"
)

// ChatRole tags a turn in the generation context.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the context handed to a text-generation provider.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// blank reports whether the turn carries no text; providers drop these.
func (m ChatMessage) blank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// TokenUsage is what a provider reports for one completion.
type TokenUsage struct {
	Input  int32
	Output int32
}

func (u TokenUsage) Total() int32 { return u.Input + u.Output }

// LLMRequest is a provider-neutral completion call. System turns may appear
// anywhere in Messages; each client lifts them into its own system slot.
type LLMRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is a text-generation provider (Bedrock Converse or Gemini).
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
