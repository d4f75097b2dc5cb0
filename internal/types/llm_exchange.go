package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// LLMExchange is one row of the append-only language model log.
type LLMExchange struct {
	PlanID           *uuid.UUID      `json:"plan_id,omitempty"`
	Purpose          string          `json:"purpose"`
	SystemRequest    string          `json:"system_request"`
	Request          string          `json:"request"`
	Reply            string          `json:"reply"`
	FullChat         json.RawMessage `json:"full_chat"`
	ModelUsed        string          `json:"model_used"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	LatencyMs        int             `json:"latency_ms"`
	Error            string          `json:"error,omitempty"`
}

const (
	LLMPurposeOutline     = "outline"
	LLMPurposeSummary     = "summary"
	LLMPurposeDayPlan     = "day_plan"
	LLMPurposeDescription = "destination_description"
)
