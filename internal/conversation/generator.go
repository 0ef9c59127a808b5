package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
)

var generatorTracer = otel.Tracer("leadqual.internal.conversation.generator")

// ResponseGenerator produces the assistant's reply for a prepared context.
type ResponseGenerator interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
}

// GeneratorConfig tunes a Generator.
type GeneratorConfig struct {
	Model       string
	MaxTokens   int32
	Temperature float32
	Timeout     time.Duration
}

// Generator calls an LLMClient once per request. There is no retry and no
// canned fallback: any failure is reported as ErrGenerationFailure.
type Generator struct {
	client  LLMClient
	cfg     GeneratorConfig
	metrics *metrics.PipelineMetrics
}

func NewGenerator(client LLMClient, cfg GeneratorConfig, m *metrics.PipelineMetrics) *Generator {
	if client == nil {
		panic("conversation: llm client required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Generator{client: client, cfg: cfg, metrics: m}
}

func (g *Generator) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, span := generatorTracer.Start(ctx, "conversation.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", g.cfg.Model),
		attribute.Int("llm.messages", len(messages)),
	)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, LLMRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errors.New("conversation: empty reply")
	}
	if err != nil {
		span.RecordError(err)
		genErr := generationError(err)
		g.metrics.ObserveGeneration(string(genErr.Kind), time.Since(start))
		return "", genErr
	}

	g.metrics.ObserveGeneration("ok", time.Since(start))
	g.metrics.ObserveTokens(g.cfg.Model, int(resp.Usage.Input), int(resp.Usage.Output))
	span.SetAttributes(
		attribute.Int("llm.input_tokens", int(resp.Usage.Input)),
		attribute.Int("llm.output_tokens", int(resp.Usage.Output)),
	)
	return strings.TrimSpace(resp.Text), nil
}

// generationError classifies err as an upstream failure or timeout while
// keeping ErrGenerationFailure in the chain for errors.Is.
func generationError(err error) *apperr.Error {
	classified := apperr.Upstream("response generation failed", err)
	classified.Err = fmt.Errorf("%w: %w", ErrGenerationFailure, err)
	return classified
}
