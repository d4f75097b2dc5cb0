package plan

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

const dayPlanMaxTokens = 1024

// DayPlanExpander turns an outline into one section list per trip day.
type DayPlanExpander struct {
	client        generativeAI.Client
	conversation  Conversation
	maxConcurrent int64
	logger        *slog.Logger
}

func NewDayPlanExpander(client generativeAI.Client, conversation Conversation, maxConcurrent int, logger *slog.Logger) *DayPlanExpander {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &DayPlanExpander{
		client:        client,
		conversation:  conversation,
		maxConcurrent: int64(maxConcurrent),
		logger:        logger.With(slog.String("component", "day_plan_expander")),
	}
}

// Expand issues one request per day, at most maxConcurrent at a time. The
// result always has one slot per day; slot i holds day i+1. A day whose
// request failed or whose reply was rejected is left empty.
func (e *DayPlanExpander) Expand(ctx context.Context, planID uuid.UUID, outline string, days int, properties []string) [][]types.DaySection {
	ctx, span := otel.Tracer("DayPlanExpander").Start(ctx, "Expand", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
		attribute.Int("plan.days", days),
	))
	defer span.End()

	if days <= 0 {
		return nil
	}

	results := make([][]types.DaySection, days)
	sem := semaphore.NewWeighted(e.maxConcurrent)
	var wg sync.WaitGroup

	for i := 0; i < days; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			e.logger.WarnContext(ctx, "Stopped issuing day requests", slog.Int("day", i+1), slog.Any("error", err))
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = e.expandDay(ctx, planID, i+1, outline, properties)
		}(i)
	}
	wg.Wait()

	return results
}

func (e *DayPlanExpander) expandDay(ctx context.Context, planID uuid.UUID, day int, outline string, properties []string) []types.DaySection {
	l := e.logger.With(slog.String("plan_id", planID.String()), slog.Int("day", day))

	req := generativeAI.CompletionRequest{
		Messages: []generativeAI.Message{
			{Role: generativeAI.RoleSystem, Content: dayPlanSystemPrompt},
			{Role: generativeAI.RoleUser, Content: dayPlanUserPrompt(day, properties, outline)},
		},
		Temperature: generativeAI.Temperature(0),
		MaxTokens:   dayPlanMaxTokens,
		JSON:        true,
	}

	reply, err := e.conversation.Complete(ctx, e.client, types.LLMPurposeDayPlan, &planID, req)
	if err != nil {
		l.WarnContext(ctx, "Day plan request failed, leaving the day empty", slog.Any("error", err))
		return nil
	}

	decoding := DecodeDayPlan(reply)
	if !decoding.Valid() {
		reason := "shape"
		if errors.Is(decoding.Err, ErrDayPlanNotJSON) {
			reason = "json"
		}
		metrics.Get().LLMReplyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		l.WarnContext(ctx, "Day plan reply rejected, leaving the day empty",
			slog.Any("error", decoding.Err),
			slog.String("reply", reply))
		return nil
	}
	return decoding.Sections
}
