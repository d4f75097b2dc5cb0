package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-trip-planner/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var ErrEmptyReply = errors.New("model returned an empty reply")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message
	Temperature *float32
	MaxTokens   int32
	// JSON asks the backend for a JSON reply where it supports one without
	// constraining the top-level type.
	JSON bool
}

type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is a single request/response LLM completion backend.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Model() string
}

func Temperature(t float32) *float32 { return &t }

// NewClient builds the configured backend and wraps it with rate limiting,
// a per call timeout, tracing and metrics.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	var (
		backend Client
		err     error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is not set")
		}
		backend = NewOpenAIClient(apiKey, "", cfg.Model)
	case ProviderGemini, "":
		apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("GOOGLE_GEMINI_API_KEY environment variable is not set")
		}
		backend, err = NewGeminiClient(ctx, apiKey, cfg.Model)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return NewLimitedClient(backend, cfg.RequestsPerMinute, cfg.Timeout, logger), nil
}

// LimitedClient throttles calls to the wrapped backend.
type LimitedClient struct {
	next    Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

var _ Client = (*LimitedClient)(nil)

// NewLimitedClient allows requestsPerMinute calls per minute with a burst of
// one minute's worth. A non-positive rate disables throttling.
func NewLimitedClient(next Client, requestsPerMinute int, timeout time.Duration, logger *slog.Logger) *LimitedClient {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
	return &LimitedClient{
		next:    next,
		limiter: limiter,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "llm_client")),
	}
}

func (c *LimitedClient) Model() string { return c.next.Model() }

func (c *LimitedClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("llm.model", c.next.Model()),
		attribute.Int("llm.messages", len(req.Messages)),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return nil, fmt.Errorf("llm rate limiter: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := c.next.Complete(ctx, req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m := metrics.Get()
	attrs := metric.WithAttributes(attribute.String("model", c.next.Model()), attribute.String("outcome", outcome))
	m.LLMRequestsTotal.Add(ctx, 1, attrs)
	m.LLMRequestDuration.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		c.logger.WarnContext(ctx, "LLM completion failed", slog.Any("error", err), slog.Duration("latency", elapsed))
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.completion_tokens", completion.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	return completion, nil
}
