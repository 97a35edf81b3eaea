package reply

import (
	"context"
	"strings"

	"github.com/wolfman30/guestpilot/internal/rental"
)

// ChatRole is the speaker of one turn sent to the model. The guest is always
// the user; the host and earlier AI replies are the assistant.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// roleOf maps a stored message onto a chat turn. IsUser marks the host side.
func roleOf(m rental.Message) ChatRole {
	if m.IsUser {
		return ChatRoleAssistant
	}
	return ChatRoleUser
}

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// TokenUsage is what the provider reports for one completion.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Total is TotalTokens, or input plus output when the provider omits it.
func (u TokenUsage) Total() int32 {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}

// LLMRequest carries the property prompt and the guest thread for one reply.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// SystemText joins the non-blank system blocks for providers that accept a
// single instruction.
func (r LLMRequest) SystemText() string {
	blocks := make([]string, 0, len(r.System))
	for _, b := range r.System {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.Join(blocks, "\n\n")
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient writes the host's next message for a guest thread.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
