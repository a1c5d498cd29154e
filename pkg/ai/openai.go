package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	genDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sqlquest",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of SQL generation requests",
	}, []string{"model"})

	genFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlquest",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of SQL generation failures",
	}, []string{"model"})
)

const generatorSystemPrompt = `You write safe, syntactically correct SQL for SQLite.
Return only the SQL query with no prose or commentary.
Do not include code fences.
If uncertain, return:
SELECT 'INSUFFICIENT_INFO';`

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
// Temperature is pinned to zero so repeated questions produce stable SQL.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/sqlquest/sqlquest-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "ai_generator").Logger(),
	}, nil
}

// GenerateSQL asks the model for a single SELECT statement answering the
// question against the supplied schema, then sanitizes the reply.
func (g *OpenAIGenerator) GenerateSQL(parent context.Context, input GenerationInput) (GenerationResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_sql", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("tier", input.Tier),
		attribute.String("quality", qualityOrDefault(input.Quality)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generatorSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildGenerationPrompt(input),
			},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	genDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		genFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isTransport(err) {
			return GenerationResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return GenerationResult{}, fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		genFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GenerationResult{}, err
	}

	sql := EnforceSelectOnly(StripCodeFences(resp.Choices[0].Message.Content))

	return GenerationResult{
		SQL:          sql,
		Insufficient: IsInsufficient(sql),
		Model:        g.cfg.Model,
	}, nil
}

func buildGenerationPrompt(input GenerationInput) string {
	builder := strings.Builder{}
	builder.WriteString("User question:\n")
	builder.WriteString(input.Question)
	builder.WriteString("\n\nDatabase schema (SQLite):\n")
	builder.WriteString(input.SchemaMarkdown)
	builder.WriteString("\n\nRules:\n")
	builder.WriteString("- Output exactly one SQL query.\n")
	builder.WriteString("- Use only a SELECT statement.\n")
	builder.WriteString("- Do not include comments or explanations.\n")
	builder.WriteString("- Do not use code fences.\n")
	builder.WriteString("- If insufficient info: SELECT 'INSUFFICIENT_INFO';")
	if instruction := qualityInstruction(qualityOrDefault(input.Quality)); instruction != "" {
		builder.WriteString("\n")
		builder.WriteString(instruction)
	}
	return builder.String()
}

func qualityOrDefault(quality string) string {
	if !ValidQuality(quality) {
		return QualityCorrect
	}
	return quality
}

func qualityInstruction(quality string) string {
	switch quality {
	case QualityPartial:
		return "- Produce a query that is close to correct but contains one subtle flaw the user must find, such as a missing condition or a wrong comparison."
	case QualityIncorrect:
		return "- Produce a query that looks plausible but answers a slightly different question than asked."
	default:
		return ""
	}
}

func isTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
