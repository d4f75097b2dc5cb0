package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
)

var ErrSweepRunning = errors.New("retention sweep already running")

const (
	KindStalePlans             = "stale_plans"
	KindOrphanTrips            = "orphan_trips"
	KindIncompleteDestinations = "incomplete_destinations"
	KindDuplicateActivities    = "duplicate_activities"
	KindActivitiesNoPlaceID    = "activities_without_place_id"
	KindOrphanImages           = "orphan_images"
)

// Report counts the rows each step removed.
type Report struct {
	StalePlans             int64 `json:"stalePlans"`
	OrphanTrips            int64 `json:"orphanTrips"`
	IncompleteDestinations int64 `json:"incompleteDestinations"`
	DuplicateActivities    int64 `json:"duplicateActivities"`
	ActivitiesNoPlaceID    int64 `json:"activitiesWithoutPlaceId"`
	OrphanImages           int64 `json:"orphanImages"`
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Sweep(ctx context.Context) (*Report, error)
}

type ServiceImpl struct {
	logger    *slog.Logger
	repo      Repository
	threshold time.Duration
	now       func() time.Time
	running   sync.Mutex
}

func NewServiceImpl(repo Repository, threshold time.Duration, logger *slog.Logger) *ServiceImpl {
	if threshold <= 0 {
		threshold = 24 * time.Hour
	}
	return &ServiceImpl{
		logger:    logger,
		repo:      repo,
		threshold: threshold,
		now:       time.Now,
	}
}

// Sweep runs every reconciliation step once. Steps are independent: a failed
// step is logged and reported in the returned error while the rest still run.
// Overlapping sweeps are refused with ErrSweepRunning.
func (s *ServiceImpl) Sweep(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.running.Unlock()

	ctx, span := otel.Tracer("RetentionService").Start(ctx, "Sweep")
	defer span.End()

	start := s.now()
	cutoff := start.Add(-s.threshold)
	l := s.logger.With(slog.String("method", "Sweep"), slog.Time("cutoff", cutoff))

	var report Report
	var errs []error
	step := func(kind string, dst *int64, run func(ctx context.Context) (int64, error)) {
		n, err := run(ctx)
		*dst = n
		if n > 0 {
			metrics.Get().RetentionDeletedTotal.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
		}
		if err != nil {
			l.ErrorContext(ctx, "Retention step failed", slog.String("kind", kind), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}

	step(KindStalePlans, &report.StalePlans, func(ctx context.Context) (int64, error) {
		return s.repo.DeleteStalePlans(ctx, cutoff)
	})
	step(KindOrphanTrips, &report.OrphanTrips, func(ctx context.Context) (int64, error) {
		return s.repo.DeleteOrphanTrips(ctx, cutoff)
	})
	step(KindIncompleteDestinations, &report.IncompleteDestinations, func(ctx context.Context) (int64, error) {
		return s.repo.DeleteIncompleteDestinations(ctx, cutoff)
	})
	step(KindDuplicateActivities, &report.DuplicateActivities, s.dedupActivities)
	step(KindActivitiesNoPlaceID, &report.ActivitiesNoPlaceID, s.repo.DeleteActivitiesWithoutPlaceID)
	step(KindOrphanImages, &report.OrphanImages, s.repo.DeleteOrphanImages)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retention step failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	l.InfoContext(ctx, "Retention sweep finished",
		slog.Int64("stale_plans", report.StalePlans),
		slog.Int64("orphan_trips", report.OrphanTrips),
		slog.Int64("incomplete_destinations", report.IncompleteDestinations),
		slog.Int64("duplicate_activities", report.DuplicateActivities),
		slog.Int64("activities_without_place_id", report.ActivitiesNoPlaceID),
		slog.Int64("orphan_images", report.OrphanImages),
		slog.Duration("elapsed", s.now().Sub(start)))
	return &report, err
}

// dedupActivities merges activities sharing an external place id. A failed
// merge is skipped so the remaining groups still get merged.
func (s *ServiceImpl) dedupActivities(ctx context.Context) (int64, error) {
	keys, err := s.repo.ListActivitiesForDedup(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	var errs []error
	for _, m := range PlanDedup(keys) {
		if err := s.repo.MergeActivities(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("merge %s: %w", m.ExternalPlaceID, err))
			continue
		}
		removed += int64(len(m.Duplicates))
	}
	return removed, errors.Join(errs...)
}
