package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/guestpilot/internal/config"
	"github.com/wolfman30/guestpilot/internal/reply"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// BuildLLMClient wires the configured completion provider, wrapped with the
// fallback provider when one is set. With no provider the canned client
// answers so that the console sandbox and auto-pilot still work locally.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (reply.LLMClient, func(), error) {
	primary, closePrimary, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, nil, err
	}
	if primary == nil {
		logger.Warn("no LLM provider configured; using canned replies")
		return reply.CannedLLMClient{}, closePrimary, nil
	}
	logger.Info("using LLM provider", "provider", cfg.LLMProvider)

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		return primary, closePrimary, nil
	}
	fallback, closeFallback, err := buildProvider(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		closePrimary()
		return nil, nil, err
	}
	if fallback == nil {
		return primary, closePrimary, nil
	}
	logger.Info("LLM fallback provider enabled", "provider", fallbackName)
	return reply.NewFallbackLLMClient(primary, fallback, logger), func() {
		closePrimary()
		closeFallback()
	}, nil
}

// buildProvider returns nil for the "none" provider.
func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (reply.LLMClient, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, noop, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("bootstrap: bedrock provider requires BEDROCK_MODEL_ID")
		}
		return reply.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), noop, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil, fmt.Errorf("bootstrap: gemini provider requires GEMINI_API_KEY")
		}
		client, err := reply.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}
