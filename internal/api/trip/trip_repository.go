package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-trip-planner/app/db"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var ErrTripNotFound = errors.New("trip not found")

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	CreateTrip(ctx context.Context, trip types.Trip) (*types.Trip, error)
	GetTrip(ctx context.Context, tripID uuid.UUID) (*types.Trip, error)
	TripIDsForPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewRepositoryImpl(pgpool database.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *RepositoryImpl) CreateTrip(ctx context.Context, trip types.Trip) (*types.Trip, error) {
	ctx, span := otel.Tracer("TripRepository").Start(ctx, "CreateTrip")
	defer span.End()

	query := `
        INSERT INTO trips (plan_id, user_id, title, is_public)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := r.pgpool.QueryRow(ctx, query, trip.PlanID, trip.UserID, trip.Title, trip.IsPublic).
		Scan(&trip.ID, &trip.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}
	span.SetAttributes(attribute.String("trip.id", trip.ID.String()))
	return &trip, nil
}

func (r *RepositoryImpl) GetTrip(ctx context.Context, tripID uuid.UUID) (*types.Trip, error) {
	ctx, span := otel.Tracer("TripRepository").Start(ctx, "GetTrip", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
	))
	defer span.End()

	var t types.Trip
	query := `SELECT id, plan_id, user_id, title, is_public, created_at FROM trips WHERE id = $1`
	err := r.pgpool.QueryRow(ctx, query, tripID).Scan(&t.ID, &t.PlanID, &t.UserID, &t.Title, &t.IsPublic, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &t, nil
}

// TripIDsForPlan lists the trips waiting on a plan, oldest first.
func (r *RepositoryImpl) TripIDsForPlan(ctx context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pgpool.Query(ctx, `SELECT id FROM trips WHERE plan_id = $1 ORDER BY created_at, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips for plan: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan trip id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trip rows: %w", err)
	}
	return ids, nil
}
