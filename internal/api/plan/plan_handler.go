package plan

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-trip-planner/app/middleware"
	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/internal/api"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

// EventStream upgrades a request to a subscription for one plan's terminal event.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, planID uuid.UUID, initial func(ctx context.Context) (*types.PlanEvent, error))
}

type Handler struct {
	service Service
	events  EventStream
	logger  *slog.Logger
}

func NewHandler(service Service, events EventStream, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		events:  events,
		logger:  logger,
	}
}

// CreatePlan accepts a plan request and answers before generation starts.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlanHandler").Start(r.Context(), "CreatePlan", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/plan"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "CreatePlan"))

	var req types.PlanRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		api.MessageResponse(w, r, http.StatusBadRequest, "Missing required parameters")
		return
	}

	var userID *uuid.UUID
	if id, ok := appMiddleware.GetUserIDFromContext(ctx); ok {
		userID = &id
	}

	accepted, err := h.service.RequestPlan(ctx, req, userID)
	switch {
	case errors.Is(err, ErrMissingParameters):
		api.MessageResponse(w, r, http.StatusBadRequest, "Missing required parameters")
		return
	case errors.Is(err, ErrInvalidParameters):
		api.MessageResponse(w, r, http.StatusBadRequest, "Invalid required parameters")
		return
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		l.WarnContext(ctx, "Plan generation queue unavailable", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "Plan generation is busy, try again shortly")
		return
	case err != nil:
		span.RecordError(err)
		l.ErrorContext(ctx, "Failed to accept plan request", slog.Any("error", err))
		api.MessageResponse(w, r, http.StatusInternalServerError, "Something went wrong")
		return
	}

	l.InfoContext(ctx, "Plan request accepted",
		slog.String("plan_id", accepted.PlanID.String()),
		slog.String("trip_id", accepted.TripID.String()))
	api.WriteJSONResponse(w, r, http.StatusOK, accepted)
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlanHandler").Start(r.Context(), "GetPlan", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/plan/{planID}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetPlan"))

	planID, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	status, err := h.service.GetPlanStatus(ctx, planID)
	if errors.Is(err, ErrPlanNotFound) {
		api.ErrorResponse(w, r, http.StatusNotFound, "Plan not found")
		return
	}
	if err != nil {
		span.RecordError(err)
		l.ErrorContext(ctx, "Failed to load plan", slog.String("plan_id", planID.String()), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load plan")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, status)
}

// PlanEvents streams the plan-ready or plan-failed event over a websocket.
func (h *Handler) PlanEvents(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	if _, err := h.service.TerminalEvent(r.Context(), planID); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Plan not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to load plan for events", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load plan")
		return
	}

	h.events.ServeWS(w, r, planID, func(ctx context.Context) (*types.PlanEvent, error) {
		return h.service.TerminalEvent(ctx, planID)
	})
}
