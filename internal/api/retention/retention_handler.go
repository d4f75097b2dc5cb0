package retention

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

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

type runResponse struct {
	Response string  `json:"response"`
	Report   *Report `json:"report,omitempty"`
}

// RunCrons triggers a sweep outside the schedule.
func (h *Handler) RunCrons(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RetentionHandler").Start(r.Context(), "RunCrons", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/api/v1/clean-up/run-crons"),
	))
	defer span.End()

	report, err := h.service.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepRunning):
		api.WriteJSONResponse(w, r, http.StatusConflict, runResponse{Response: err.Error()})
		return
	case err != nil:
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "Manual retention sweep failed", slog.Any("error", err))
		api.WriteJSONResponse(w, r, http.StatusInternalServerError, runResponse{Response: "Something went wrong", Report: report})
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, runResponse{Response: "ok", Report: report})
}
