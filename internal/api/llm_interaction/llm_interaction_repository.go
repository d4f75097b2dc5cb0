package llmInteraction

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-trip-planner/app/db"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	SaveExchange(ctx context.Context, exchange types.LLMExchange) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewRepositoryImpl(pgpool database.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *RepositoryImpl) SaveExchange(ctx context.Context, exchange types.LLMExchange) error {
	ctx, span := otel.Tracer("LLMInteractionRepository").Start(ctx, "SaveExchange", trace.WithAttributes(
		attribute.String("llm.purpose", exchange.Purpose),
	))
	defer span.End()

	query := `
        INSERT INTO llm_exchanges (
            plan_id, purpose, system_request, request, reply, full_chat,
            model_used, prompt_tokens, completion_tokens, latency_ms, error
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err := r.pgpool.Exec(ctx, query,
		exchange.PlanID, exchange.Purpose, exchange.SystemRequest, exchange.Request,
		exchange.Reply, exchange.FullChat, exchange.ModelUsed, exchange.PromptTokens,
		exchange.CompletionTokens, exchange.LatencyMs, exchange.Error,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save llm exchange: %w", err)
	}
	return nil
}
