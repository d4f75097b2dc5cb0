package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var ErrMissingDestinationPlace = errors.New("no destination place supplied")

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	RequestPlan(ctx context.Context, req types.PlanRequest, userID *uuid.UUID) (*types.PlanAccepted, error)
	GetPlanStatus(ctx context.Context, planID uuid.UUID) (*types.PlanStatusResponse, error)
	TerminalEvent(ctx context.Context, planID uuid.UUID) (*types.PlanEvent, error)
}

// DestinationResolver resolves and enriches the destination of a plan and
// lists the activities used to seed the outline.
type DestinationResolver interface {
	Resolve(ctx context.Context, name string, place *types.GeocodedPlace) (*types.Destination, error)
	Enrich(ctx context.Context, destination *types.Destination)
	ListActivities(ctx context.Context, destinationID uuid.UUID) ([]types.Activity, error)
}

type TripStore interface {
	CreateTrip(ctx context.Context, trip types.Trip) (*types.Trip, error)
	TripIDsForPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error)
}

type Notifier interface {
	Publish(event types.PlanEvent)
}

type Submitter interface {
	Submit(job worker.Job) error
}

type ServiceImpl struct {
	logger       *slog.Logger
	repo         Repository
	destinations DestinationResolver
	trips        TripStore
	outlines     *OutlineGenerator
	days         *DayPlanExpander
	notifier     Notifier
	jobs         Submitter
	limits       Limits
}

func NewServiceImpl(
	repo Repository,
	destinations DestinationResolver,
	trips TripStore,
	outlines *OutlineGenerator,
	days *DayPlanExpander,
	notifier Notifier,
	jobs Submitter,
	limits Limits,
	logger *slog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		logger:       logger,
		repo:         repo,
		destinations: destinations,
		trips:        trips,
		outlines:     outlines,
		days:         days,
		notifier:     notifier,
		jobs:         jobs,
		limits:       limits,
	}
}

// RequestPlan validates the request, finds or creates the plan, creates a
// trip for the caller and queues whatever background work the plan still
// needs. It returns before any generation happens.
func (s *ServiceImpl) RequestPlan(ctx context.Context, req types.PlanRequest, userID *uuid.UUID) (*types.PlanAccepted, error) {
	ctx, span := otel.Tracer("PlanService").Start(ctx, "RequestPlan", trace.WithAttributes(
		attribute.String("plan.destination", req.Destination),
		attribute.String("plan.duration", req.Duration),
		attribute.String("plan.trip_type", req.TripType),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "RequestPlan"), slog.String("destination", req.Destination))

	if err := ValidateRequest(req, s.limits); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	params := req.Parameters()

	plan, err := s.repo.FindEquivalent(ctx, params)
	reused := err == nil
	if errors.Is(err, ErrPlanNotFound) {
		plan, err = s.repo.CreatePlan(ctx, params)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan lookup failed")
		return nil, err
	}

	trip, err := s.trips.CreateTrip(ctx, types.Trip{
		PlanID: &plan.ID,
		UserID: userID,
		Title:  fmt.Sprintf("%s trip to %s for %s", params.TripType, params.Destination, params.Duration),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create trip failed")
		return nil, err
	}

	if reused {
		l.InfoContext(ctx, "Reusing equivalent plan", slog.String("plan_id", plan.ID.String()), slog.String("status", string(plan.Status())))
		err = s.resume(ctx, plan, req.DestinationPlace)
	} else {
		err = s.submitGeneration(ctx, plan.ID, params, req.DestinationPlace)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queueing failed")
		return nil, err
	}

	metrics.Get().PlansRequestedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("reused", reused)))
	span.SetAttributes(attribute.String("plan.id", plan.ID.String()), attribute.String("trip.id", trip.ID.String()))
	span.SetStatus(codes.Ok, "")
	return &types.PlanAccepted{Response: "ok", PlanID: plan.ID, TripID: trip.ID}, nil
}

// resume decides what a reused plan still needs: a failed plan is generated
// again, a pending plan that stopped making progress is resubmitted and a
// generated plan without a destination gets one attached.
func (s *ServiceImpl) resume(ctx context.Context, plan *types.Plan, place *types.GeocodedPlace) error {
	switch plan.Status() {
	case types.PlanStatusPending:
		if s.limits.StaleAfter <= 0 || time.Since(plan.UpdatedAt) < s.limits.StaleAfter {
			return nil
		}
		claimed, err := s.repo.ClaimStalled(ctx, plan.ID, s.limits.StaleAfter)
		if err != nil || !claimed {
			return err
		}
		s.logger.WarnContext(ctx, "Resubmitting stalled plan",
			slog.String("plan_id", plan.ID.String()),
			slog.Time("updated_at", plan.UpdatedAt),
		)
		return s.submitGeneration(ctx, plan.ID, plan.PlanParameters, place)
	case types.PlanStatusFailed:
		cleared, err := s.repo.ClearFailure(ctx, plan.ID)
		if err != nil {
			return err
		}
		if !cleared {
			return nil
		}
		return s.submitGeneration(ctx, plan.ID, plan.PlanParameters, place)
	case types.PlanStatusGenerated:
		if plan.DestinationID != nil || place == nil {
			return nil
		}
		planID, name := plan.ID, plan.Destination
		err := s.jobs.Submit(worker.Job{
			Name: "attach-destination:" + planID.String(),
			Run: func(ctx context.Context) error {
				return s.attachDestination(ctx, planID, name, place)
			},
		})
		if errors.Is(err, worker.ErrQueueFull) {
			// The plan itself is usable; attaching is retried by the next request.
			s.logger.WarnContext(ctx, "Queue full, destination not attached", slog.String("plan_id", planID.String()))
			return nil
		}
		return err
	default:
		return nil
	}
}

func (s *ServiceImpl) submitGeneration(ctx context.Context, planID uuid.UUID, params types.PlanParameters, place *types.GeocodedPlace) error {
	err := s.jobs.Submit(worker.Job{
		Name: "generate-plan:" + planID.String(),
		Run: func(ctx context.Context) error {
			return s.Generate(ctx, planID, params, place)
		},
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, planID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark unqueued plan as failed", slog.String("plan_id", planID.String()), slog.Any("error", markErr))
		}
		return fmt.Errorf("failed to queue plan generation: %w", err)
	}
	return nil
}

func (s *ServiceImpl) attachDestination(ctx context.Context, planID uuid.UUID, name string, place *types.GeocodedPlace) error {
	destination, err := s.destinations.Resolve(ctx, name, place)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if err := s.repo.ConnectDestination(ctx, planID, destination.ID); err != nil {
		return err
	}
	s.destinations.Enrich(ctx, destination)
	return nil
}

// Generate runs the whole pipeline for one plan: destination resolution,
// enrichment, outline, summary, day plans and the final commit.
// A terminal event is published whatever the outcome.
func (s *ServiceImpl) Generate(ctx context.Context, planID uuid.UUID, params types.PlanParameters, place *types.GeocodedPlace) error {
	ctx, span := otel.Tracer("PlanService").Start(ctx, "Generate", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	start := time.Now()
	l := s.logger.With(slog.String("method", "Generate"), slog.String("plan_id", planID.String()))
	l.InfoContext(ctx, "Plan generation started")

	if place == nil {
		return s.fail(ctx, span, planID, ErrMissingDestinationPlace)
	}
	destination, err := s.destinations.Resolve(ctx, params.Destination, place)
	if err != nil {
		return s.fail(ctx, span, planID, fmt.Errorf("resolve destination: %w", err))
	}
	if err := s.repo.ConnectDestination(ctx, planID, destination.ID); err != nil {
		return s.fail(ctx, span, planID, err)
	}

	s.destinations.Enrich(ctx, destination)
	activities, err := s.destinations.ListActivities(ctx, destination.ID)
	if err != nil {
		l.WarnContext(ctx, "Could not load destination activities, outline will not be seeded", slog.Any("error", err))
	}

	properties := TripProperties(params)
	outline := s.outlines.Outline(ctx, planID, properties, params.Destination, activities)
	summary := s.outlines.Summary(ctx, planID, outline)
	days := s.days.Expand(ctx, planID, outline, DaysOf(params.Duration), properties)

	activityIDs := make([]uuid.UUID, 0, len(activities))
	for _, a := range activities {
		activityIDs = append(activityIDs, a.ID)
	}

	err = s.repo.CommitPlan(ctx, Commit{
		PlanID:      planID,
		Outline:     outline,
		Summary:     summary,
		Days:        days,
		ActivityIDs: activityIDs,
	})
	if errors.Is(err, ErrPlanAlreadyGenerated) {
		l.InfoContext(ctx, "Plan was generated by another run")
		span.SetStatus(codes.Ok, "already generated")
		return nil
	}
	if err != nil {
		return s.fail(ctx, span, planID, err)
	}

	m := metrics.Get()
	m.PlansGeneratedTotal.Add(ctx, 1)
	m.PlanGenerationDuration.Record(ctx, time.Since(start).Seconds())
	s.publish(ctx, types.PlanEvent{Event: types.PlanEventReady, PlanID: planID})

	l.InfoContext(ctx, "Plan generation complete", slog.Duration("elapsed", time.Since(start)))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *ServiceImpl) fail(ctx context.Context, span trace.Span, planID uuid.UUID, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "plan generation failed")
	s.logger.ErrorContext(ctx, "Plan generation failed", slog.String("plan_id", planID.String()), slog.Any("error", cause))

	metrics.Get().PlanGenerationFailuresTotal.Add(ctx, 1)
	if err := s.repo.MarkFailed(context.WithoutCancel(ctx), planID, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record plan failure", slog.String("plan_id", planID.String()), slog.Any("error", err))
	}
	s.publish(ctx, types.PlanEvent{Event: types.PlanEventFailed, PlanID: planID, Reason: cause.Error()})
	return cause
}

func (s *ServiceImpl) publish(ctx context.Context, event types.PlanEvent) {
	tripIDs, err := s.trips.TripIDsForPlan(context.WithoutCancel(ctx), event.PlanID)
	if err != nil {
		s.logger.WarnContext(ctx, "Could not load trips for plan event", slog.String("plan_id", event.PlanID.String()), slog.Any("error", err))
	}
	event.TripIDs = tripIDs
	s.notifier.Publish(event)
}

func (s *ServiceImpl) GetPlanStatus(ctx context.Context, planID uuid.UUID) (*types.PlanStatusResponse, error) {
	ctx, span := otel.Tracer("PlanService").Start(ctx, "GetPlanStatus", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &types.PlanStatusResponse{Status: plan.Status(), Plan: plan}, nil
}

// TerminalEvent returns the event a late subscriber should receive, or nil
// while the plan is still pending.
func (s *ServiceImpl) TerminalEvent(ctx context.Context, planID uuid.UUID) (*types.PlanEvent, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	var event types.PlanEvent
	switch plan.Status() {
	case types.PlanStatusGenerated:
		event = types.PlanEvent{Event: types.PlanEventReady, PlanID: planID}
	case types.PlanStatusFailed:
		event = types.PlanEvent{Event: types.PlanEventFailed, PlanID: planID, Reason: plan.FailureReason}
	default:
		return nil, nil
	}
	event.TripIDs, err = s.trips.TripIDsForPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
