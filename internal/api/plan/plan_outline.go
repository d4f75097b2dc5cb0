package plan

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

const outlineMaxTokens = 3500

// Conversation sends one completion request and logs the exchange.
// *llmInteraction.Recorder implements it.
type Conversation interface {
	Complete(ctx context.Context, client generativeAI.Client, purpose string, planID *uuid.UUID, req generativeAI.CompletionRequest) (string, error)
}

// OutlineGenerator produces the day agnostic outline of a plan and its
// promotional summary. Both calls degrade to an empty string on failure.
type OutlineGenerator struct {
	client       generativeAI.Client
	conversation Conversation
	logger       *slog.Logger
}

func NewOutlineGenerator(client generativeAI.Client, conversation Conversation, logger *slog.Logger) *OutlineGenerator {
	return &OutlineGenerator{
		client:       client,
		conversation: conversation,
		logger:       logger.With(slog.String("component", "outline_generator")),
	}
}

func (g *OutlineGenerator) Outline(ctx context.Context, planID uuid.UUID, properties []string, destination string, activities []types.Activity) string {
	ctx, span := otel.Tracer("OutlineGenerator").Start(ctx, "Outline", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
		attribute.Int("activities.count", len(activities)),
	))
	defer span.End()

	req := generativeAI.CompletionRequest{
		Messages: []generativeAI.Message{
			{Role: generativeAI.RoleSystem, Content: outlineSystemPrompt},
			{Role: generativeAI.RoleUser, Content: strings.Join(properties, ", ")},
			{Role: generativeAI.RoleSystem, Content: activitiesPrompt(destination, activities)},
		},
		Temperature: generativeAI.Temperature(0),
		MaxTokens:   outlineMaxTokens,
	}

	reply, err := g.conversation.Complete(ctx, g.client, types.LLMPurposeOutline, &planID, req)
	if err != nil {
		span.RecordError(err)
		g.logger.WarnContext(ctx, "Outline generation failed, continuing with an empty outline",
			slog.String("plan_id", planID.String()), slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(reply)
}

func (g *OutlineGenerator) Summary(ctx context.Context, planID uuid.UUID, outline string) string {
	ctx, span := otel.Tracer("OutlineGenerator").Start(ctx, "Summary", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	if outline == "" {
		g.logger.WarnContext(ctx, "Skipping summary for empty outline", slog.String("plan_id", planID.String()))
		return ""
	}

	req := generativeAI.CompletionRequest{
		Messages: []generativeAI.Message{
			{Role: generativeAI.RoleSystem, Content: summarySystemPrompt},
			{Role: generativeAI.RoleUser, Content: outline},
		},
		Temperature: generativeAI.Temperature(0),
		MaxTokens:   outlineMaxTokens,
	}

	reply, err := g.conversation.Complete(ctx, g.client, types.LLMPurposeSummary, &planID, req)
	if err != nil {
		span.RecordError(err)
		g.logger.WarnContext(ctx, "Summary generation failed, continuing with an empty summary",
			slog.String("plan_id", planID.String()), slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(reply)
}
