package trip

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-trip-planner/internal/api/plan"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	CreateTrip(ctx context.Context, trip types.Trip) (*types.Trip, error)
	TripIDsForPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error)
	GetTrip(ctx context.Context, tripID uuid.UUID, viewer *uuid.UUID) (*types.TripWithPlan, error)
}

type PlanReader interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (*types.Plan, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	plans  PlanReader
}

func NewServiceImpl(repo Repository, plans PlanReader, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		plans:  plans,
	}
}

func (s *ServiceImpl) CreateTrip(ctx context.Context, trip types.Trip) (*types.Trip, error) {
	return s.repo.CreateTrip(ctx, trip)
}

func (s *ServiceImpl) TripIDsForPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.TripIDsForPlan(ctx, planID)
}

// GetTrip returns a trip and its plan when the trip is public or belongs to
// viewer. Any other trip is reported as not found.
func (s *ServiceImpl) GetTrip(ctx context.Context, tripID uuid.UUID, viewer *uuid.UUID) (*types.TripWithPlan, error) {
	ctx, span := otel.Tracer("TripService").Start(ctx, "GetTrip", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
	))
	defer span.End()

	t, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	owned := viewer != nil && t.UserID != nil && *viewer == *t.UserID
	if !t.IsPublic && !owned {
		return nil, ErrTripNotFound
	}

	result := &types.TripWithPlan{Trip: *t}
	if t.PlanID == nil {
		return result, nil
	}
	p, err := s.plans.GetPlan(ctx, *t.PlanID)
	if errors.Is(err, plan.ErrPlanNotFound) {
		s.logger.WarnContext(ctx, "Trip points at a missing plan", slog.String("trip_id", tripID.String()))
		return result, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Plan = p
	return result, nil
}
