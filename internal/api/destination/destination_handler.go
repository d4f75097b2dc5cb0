package destination

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/internal/api"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
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

// DestinationDetails answers immediately and enriches the destination of
// the trip in the background.
func (h *Handler) DestinationDetails(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("DestinationHandler").Start(r.Context(), "DestinationDetails", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/destination-details"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "DestinationDetails"))

	tripID, err := uuid.Parse(r.URL.Query().Get("tripid"))
	if err != nil {
		api.MessageResponse(w, r, http.StatusBadRequest, "missing tripid")
		return
	}

	err = h.service.RequestEnrichment(ctx, tripID)
	switch {
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, ErrDestinationNotFound):
		api.MessageResponse(w, r, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		l.WarnContext(ctx, "Enrichment queue unavailable", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "Enrichment is busy, try again shortly")
		return
	case err != nil:
		span.RecordError(err)
		l.ErrorContext(ctx, "Failed to queue enrichment", slog.String("trip_id", tripID.String()), slog.Any("error", err))
		api.MessageResponse(w, r, http.StatusInternalServerError, "Something went wrong")
		return
	}

	l.InfoContext(ctx, "Enrichment queued", slog.String("trip_id", tripID.String()))
	api.MessageResponse(w, r, http.StatusOK, "ok")
}
