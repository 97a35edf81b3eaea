// Package reply generates AI answers to guest messages for properties with
// auto-pilot enabled.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

const (
	defaultTemperature  = 0.7
	defaultMaxTokens    = 300
	defaultHistoryLimit = 10
)

// GeneratorConfig tunes the completion request.
type GeneratorConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int32
	HistoryLimit int
}

// Result is the outcome of one generation. Err wraps
// rental.ErrReplyGeneration when the model could not produce a reply.
type Result struct {
	Text   string
	Prompt string
	Err    error
}

// Generator turns a property, a thread and a new guest message into a reply.
type Generator struct {
	llm    LLMClient
	cfg    GeneratorConfig
	logger *logging.Logger
}

func NewGenerator(llm LLMClient, cfg GeneratorConfig, logger *logging.Logger) *Generator {
	if llm == nil {
		panic("reply: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	} else if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Generator{llm: llm, cfg: cfg, logger: logger}
}

// Generate asks the model for a reply to msg. It never panics on model
// failure; the error is carried in Result.Err.
func (g *Generator) Generate(ctx context.Context, p rental.Property, conv rental.Conversation, msg rental.Message) Result {
	prompt := BuildSystemPrompt(p, conv)
	req := LLMRequest{
		Model:       g.cfg.Model,
		System:      []string{prompt},
		Messages:    append(g.history(conv, msg.ID), ChatMessage{Role: ChatRoleUser, Content: guestTurn(msg.Text)}),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		return Result{Prompt: prompt, Err: fmt.Errorf("%w: %w", rental.ErrReplyGeneration, err)}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{Prompt: prompt, Err: fmt.Errorf("%w: empty completion", rental.ErrReplyGeneration)}
	}
	g.logger.Debug("reply generated",
		"property_id", p.ID,
		"conversation_id", conv.ID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"total_tokens", resp.Usage.Total(),
	)
	return Result{Text: text, Prompt: prompt}
}

// history returns up to HistoryLimit earlier messages as chat turns.
func (g *Generator) history(conv rental.Conversation, currentID string) []ChatMessage {
	prior := make([]rental.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.ID == currentID && currentID != "" {
			continue
		}
		prior = append(prior, m)
	}
	if len(prior) > g.cfg.HistoryLimit {
		prior = prior[len(prior)-g.cfg.HistoryLimit:]
	}
	out := make([]ChatMessage, 0, len(prior)+1)
	for _, m := range prior {
		out = append(out, ChatMessage{Role: roleOf(m), Content: m.Text})
	}
	return out
}
