package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-trip-planner/app/db"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	DeleteStalePlans(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphanTrips(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteIncompleteDestinations(ctx context.Context, cutoff time.Time) (int64, error)
	ListActivitiesForDedup(ctx context.Context) ([]ActivityKey, error)
	MergeActivities(ctx context.Context, merge Merge) error
	DeleteActivitiesWithoutPlaceID(ctx context.Context) (int64, error)
	DeleteOrphanImages(ctx context.Context) (int64, error)
}

type RepositoryImpl struct {
	logger    *slog.Logger
	pgpool    database.Pool
	txTimeout time.Duration
}

func NewRepositoryImpl(pgpool database.Pool, txTimeout time.Duration, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger:    logger,
		pgpool:    pgpool,
		txTimeout: txTimeout,
	}
}

// Statements removing the rows hanging off a set of plans, children first.
var stalePlanChildren = []string{
	`DELETE FROM plan_day_section_details WHERE section_id IN (
        SELECT s.id FROM plan_day_sections s JOIN plan_days d ON d.id = s.plan_day_id WHERE d.plan_id = ANY($1))`,
	`DELETE FROM plan_day_sections WHERE plan_day_id IN (SELECT id FROM plan_days WHERE plan_id = ANY($1))`,
	`DELETE FROM plan_days WHERE plan_id = ANY($1)`,
	`DELETE FROM plan_activities WHERE plan_id = ANY($1)`,
}

var incompleteDestinationChildren = []string{
	`DELETE FROM destination_images WHERE destination_id = ANY($1)`,
	`DELETE FROM activities WHERE destination_id = ANY($1)`,
	`DELETE FROM hotels WHERE destination_id = ANY($1)`,
}

// DeleteStalePlans removes plans that never finished generating and are
// older than cutoff, together with every day, section and detail row.
func (r *RepositoryImpl) DeleteStalePlans(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteTree(ctx, "DeleteStalePlans",
		`SELECT id FROM plans WHERE generated = false AND created_at < $1 FOR UPDATE`,
		stalePlanChildren,
		`DELETE FROM plans WHERE id = ANY($1)`,
		cutoff,
	)
}

// DeleteIncompleteDestinations removes destinations still missing any
// enrichable field after cutoff, with their images, activities and hotels.
func (r *RepositoryImpl) DeleteIncompleteDestinations(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteTree(ctx, "DeleteIncompleteDestinations",
		`SELECT id FROM destinations
         WHERE created_at < $1
           AND (title = '' OR description = '' OR geocoder_results IS NULL OR place_details IS NULL
                OR climate_data IS NULL OR cost_of_living IS NULL)
         FOR UPDATE`,
		incompleteDestinationChildren,
		`DELETE FROM destinations WHERE id = ANY($1)`,
		cutoff,
	)
}

// deleteTree selects the parent ids, deletes the children and then the
// parents in one transaction.
func (r *RepositoryImpl) deleteTree(ctx context.Context, op, selectParents string, children []string, deleteParents string, cutoff time.Time) (int64, error) {
	ctx, span := otel.Tracer("RetentionRepository").Start(ctx, op, trace.WithAttributes(
		attribute.String("retention.cutoff", cutoff.Format(time.RFC3339)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.pgpool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	ids, err := collectIDs(tx.Query(ctx, selectParents, cutoff))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%s: failed to select rows: %w", op, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, stmt := range children {
		if _, err := tx.Exec(ctx, stmt, ids); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
			return 0, fmt.Errorf("%s: failed to delete dependent rows: %w", op, err)
		}
	}
	tag, err := tx.Exec(ctx, deleteParents, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return 0, fmt.Errorf("%s: failed to delete rows: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%s: failed to commit: %w", op, err)
	}
	span.SetAttributes(attribute.Int64("retention.deleted", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

func collectIDs(rows pgx.Rows, err error) ([]uuid.UUID, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteOrphanTrips removes trips that lost their plan or never had an
// owner once they are older than cutoff.
func (r *RepositoryImpl) DeleteOrphanTrips(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := otel.Tracer("RetentionRepository").Start(ctx, "DeleteOrphanTrips")
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`DELETE FROM trips WHERE (plan_id IS NULL OR user_id IS NULL) AND created_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return 0, fmt.Errorf("failed to delete orphan trips: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActivitiesForDedup reads every activity with an external id once, in
// creation order.
func (r *RepositoryImpl) ListActivitiesForDedup(ctx context.Context) ([]ActivityKey, error) {
	ctx, span := otel.Tracer("RetentionRepository").Start(ctx, "ListActivitiesForDedup")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, `
        SELECT id, external_place_id
        FROM activities
        WHERE external_place_id <> ''
        ORDER BY created_at, id
    `)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var keys []ActivityKey
	for rows.Next() {
		var k ActivityKey
		if err := rows.Scan(&k.ID, &k.ExternalPlaceID); err != nil {
			return nil, fmt.Errorf("failed to scan activity key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	span.SetAttributes(attribute.Int("activities.count", len(keys)))
	return keys, nil
}

// MergeActivities re-points plan associations from the duplicates to the
// kept activity and then deletes the duplicates.
func (r *RepositoryImpl) MergeActivities(ctx context.Context, merge Merge) error {
	ctx, span := otel.Tracer("RetentionRepository").Start(ctx, "MergeActivities", trace.WithAttributes(
		attribute.String("activity.keep", merge.Keep.String()),
		attribute.Int("activity.duplicates", len(merge.Duplicates)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.pgpool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin activity merge: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO plan_activities (plan_id, activity_id)
        SELECT plan_id, $1 FROM plan_activities WHERE activity_id = ANY($2)
        ON CONFLICT DO NOTHING
    `, merge.Keep, merge.Duplicates)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to re-point plan activities: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE id = ANY($1)`, merge.Duplicates); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete duplicate activities: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit activity merge: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) DeleteActivitiesWithoutPlaceID(ctx context.Context) (int64, error) {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM activities WHERE external_place_id = ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete activities without place id: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RepositoryImpl) DeleteOrphanImages(ctx context.Context) (int64, error) {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM destination_images WHERE destination_id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan images: %w", err)
	}
	return tag.RowsAffected(), nil
}
