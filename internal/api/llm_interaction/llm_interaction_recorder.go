package llmInteraction

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

// Recorder sends completion requests and appends every conversation, failed
// or not, to the exchange log.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.With(slog.String("component", "llm_recorder"))}
}

// Complete returns the raw reply of the model. The log row is written before
// returning regardless of the outcome; a logging failure never fails the call.
func (r *Recorder) Complete(ctx context.Context, client generativeAI.Client, purpose string, planID *uuid.UUID, req generativeAI.CompletionRequest) (string, error) {
	start := time.Now()
	completion, err := client.Complete(ctx, req)
	latency := time.Since(start)

	exchange := BuildExchange(purpose, planID, req.Messages, completion, err, latency)
	if exchange.ModelUsed == "" {
		exchange.ModelUsed = client.Model()
	}
	if saveErr := r.repo.SaveExchange(ctx, exchange); saveErr != nil {
		r.logger.ErrorContext(ctx, "Failed to log LLM exchange", slog.String("purpose", purpose), slog.Any("error", saveErr))
	}

	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// BuildExchange flattens a conversation into a log row. System and user
// turns are joined with "; " and the full transcript ends with the reply.
func BuildExchange(purpose string, planID *uuid.UUID, messages []generativeAI.Message, completion *generativeAI.Completion, callErr error, latency time.Duration) types.LLMExchange {
	var system, user []string
	for _, m := range messages {
		switch m.Role {
		case generativeAI.RoleSystem:
			system = append(system, m.Content)
		case generativeAI.RoleUser:
			user = append(user, m.Content)
		}
	}

	exchange := types.LLMExchange{
		PlanID:        planID,
		Purpose:       purpose,
		SystemRequest: strings.Join(system, "; "),
		Request:       strings.Join(user, "; "),
		LatencyMs:     int(latency.Milliseconds()),
	}

	transcript := append([]generativeAI.Message(nil), messages...)
	if completion != nil {
		exchange.Reply = completion.Content
		exchange.ModelUsed = completion.Model
		exchange.PromptTokens = completion.PromptTokens
		exchange.CompletionTokens = completion.CompletionTokens
		transcript = append(transcript, generativeAI.Message{Role: generativeAI.RoleAssistant, Content: completion.Content})
	}
	if callErr != nil {
		exchange.Error = callErr.Error()
	}

	full, err := json.Marshal(transcript)
	if err != nil {
		full = []byte("[]")
	}
	exchange.FullChat = full
	return exchange
}
