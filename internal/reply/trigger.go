package reply

import (
	"context"
	"time"

	"github.com/wolfman30/guestpilot/internal/observability/metrics"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

const (
	defaultReplyTimeout = 8 * time.Second
	// DefaultFallbackText is sent when generation fails.
	DefaultFallbackText = "Thanks for your message! Your host has been notified and will get back to you shortly."
)

// ReplyGenerator is the internal generation step.
type ReplyGenerator interface {
	Generate(ctx context.Context, p rental.Property, conv rental.Conversation, msg rental.Message) Result
}

// TriggerConfig configures the outer reply boundary.
type TriggerConfig struct {
	Timeout      time.Duration
	FallbackText string
}

// Trigger gates generation on auto-pilot and converts failures into the
// fallback text so that intake never fails because of the model.
type Trigger struct {
	gen      ReplyGenerator
	timeout  time.Duration
	fallback string
	metrics  *metrics.IntakeMetrics
	logger   *logging.Logger
}

func NewTrigger(gen ReplyGenerator, cfg TriggerConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *Trigger {
	if gen == nil {
		panic("reply: generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReplyTimeout
	}
	if cfg.FallbackText == "" {
		cfg.FallbackText = DefaultFallbackText
	}
	return &Trigger{gen: gen, timeout: cfg.Timeout, fallback: cfg.FallbackText, metrics: m, logger: logger}
}

// Reply returns the text to send the guest and whether auto-pilot produced
// one. The generator is called at most once.
func (t *Trigger) Reply(ctx context.Context, p rental.Property, conv rental.Conversation, msg rental.Message) (string, bool) {
	if !p.AutoPilot {
		t.metrics.ObserveReply("skipped")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- t.gen.Generate(ctx, p, conv, msg) }()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{Err: ctx.Err()}
	}

	if res.Err != nil {
		t.logger.Error("reply generation failed, using fallback",
			"property_id", p.ID,
			"conversation_id", conv.ID,
			"error", res.Err,
		)
		t.metrics.ObserveReply("fallback")
		return t.fallback, true
	}
	t.metrics.ObserveReply("generated")
	return res.Text, true
}

// Preview runs the generator regardless of auto-pilot and without the
// fallback substitution. Used by the console sandbox.
func (t *Trigger) Preview(ctx context.Context, p rental.Property, msg rental.Message) Result {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.gen.Generate(ctx, p, rental.Conversation{}, msg)
}
