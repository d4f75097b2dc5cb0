package trip

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-trip-planner/app/middleware"
	"github.com/FACorreiaa/go-trip-planner/internal/api"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TripHandler").Start(r.Context(), "GetTrip", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/trips/{tripID}"),
	))
	defer span.End()

	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid trip ID format")
		return
	}

	var viewer *uuid.UUID
	if id, ok := appMiddleware.GetUserIDFromContext(ctx); ok {
		viewer = &id
	}

	t, err := h.service.GetTrip(ctx, tripID, viewer)
	if errors.Is(err, ErrTripNotFound) {
		api.ErrorResponse(w, r, http.StatusNotFound, "Trip not found")
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "Failed to load trip", slog.String("trip_id", tripID.String()), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load trip")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, t)
}
