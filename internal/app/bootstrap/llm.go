package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/leadqual-platform/internal/config"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// BuildLLMClient selects the text-generation provider named by LLM_PROVIDER.
// The returned close func releases provider resources and is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, string, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, "", noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LLMProvider {
	case "", "bedrock":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return nil, "", noop, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		logger.Info("using bedrock text generation", "model", model)
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), model, noop, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", noop, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		logger.Info("using gemini text generation", "model", cfg.GeminiModelID)
		return client, cfg.GeminiModelID, client.Close, nil
	default:
		return nil, "", noop, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// BuildGenerator wraps the client with the configured model settings.
func BuildGenerator(cfg *appconfig.Config, client conversation.LLMClient, model string, m *metrics.PipelineMetrics) *conversation.Generator {
	return conversation.NewGenerator(client, conversation.GeneratorConfig{
		Model:       model,
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Temperature: float32(cfg.LLMTemperature),
		Timeout:     cfg.GenerationTimeout,
	}, m)
}
