package plan

import (
	"context"
	"errors"
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
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanAlreadyGenerated = errors.New("plan already generated")
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	FindEquivalent(ctx context.Context, params types.PlanParameters) (*types.Plan, error)
	CreatePlan(ctx context.Context, params types.PlanParameters) (*types.Plan, error)
	GetPlan(ctx context.Context, planID uuid.UUID) (*types.Plan, error)
	ConnectDestination(ctx context.Context, planID, destinationID uuid.UUID) error
	MarkFailed(ctx context.Context, planID uuid.UUID, reason string) error
	ClearFailure(ctx context.Context, planID uuid.UUID) (bool, error)
	ClaimStalled(ctx context.Context, planID uuid.UUID, idle time.Duration) (bool, error)
	CommitPlan(ctx context.Context, commit Commit) error
}

// Commit is everything written when a plan finishes generating.
type Commit struct {
	PlanID      uuid.UUID
	Outline     string
	Summary     string
	Days        [][]types.DaySection
	ActivityIDs []uuid.UUID
}

type RepositoryImpl struct {
	logger    *slog.Logger
	pgpool    database.Pool
	txMaxWait time.Duration
	txTimeout time.Duration
}

func NewRepositoryImpl(pgpool database.Pool, txMaxWait, txTimeout time.Duration, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger:    logger,
		pgpool:    pgpool,
		txMaxWait: txMaxWait,
		txTimeout: txTimeout,
	}
}

const planColumns = `id, destination, duration, trip_type, trip_budget, accommodation_booking,
       travelers_count, special_requests, content, summary, generated, failure_reason,
       destination_id, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var p types.Plan
	err := row.Scan(
		&p.ID, &p.Destination, &p.Duration, &p.TripType, &p.TripBudget, &p.AccommodationBooking,
		&p.TravelersCount, &p.SpecialRequests, &p.Content, &p.Summary, &p.Generated, &p.FailureReason,
		&p.DestinationID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindEquivalent returns a plan with the same parameters, preferring one that
// already finished generating.
func (r *RepositoryImpl) FindEquivalent(ctx context.Context, params types.PlanParameters) (*types.Plan, error) {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "FindEquivalent", trace.WithAttributes(
		attribute.String("plan.destination", params.Destination),
		attribute.String("plan.duration", params.Duration),
	))
	defer span.End()

	query := `
        SELECT ` + planColumns + `
        FROM plans
        WHERE destination = $1 AND duration = $2 AND trip_type = $3 AND trip_budget = $4
          AND accommodation_booking = $5 AND travelers_count = $6 AND special_requests = $7
        ORDER BY generated DESC, created_at ASC
        LIMIT 1
    `
	p, err := scanPlan(r.pgpool.QueryRow(ctx, query,
		params.Destination, params.Duration, params.TripType, params.TripBudget,
		params.AccommodationBooking, params.TravelersCount, params.SpecialRequests,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to look up equivalent plan: %w", err)
	}
	return p, nil
}

func (r *RepositoryImpl) CreatePlan(ctx context.Context, params types.PlanParameters) (*types.Plan, error) {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "CreatePlan")
	defer span.End()

	query := `
        INSERT INTO plans (destination, duration, trip_type, trip_budget, accommodation_booking,
                           travelers_count, special_requests, content, summary, generated)
        VALUES ($1, $2, $3, $4, $5, $6, $7, '', '', false)
        RETURNING ` + planColumns
	p, err := scanPlan(r.pgpool.QueryRow(ctx, query,
		params.Destination, params.Duration, params.TripType, params.TripBudget,
		params.AccommodationBooking, params.TravelersCount, params.SpecialRequests,
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	span.SetAttributes(attribute.String("plan.id", p.ID.String()))
	return p, nil
}

// GetPlan loads a plan with its days, sections and details in order.
func (r *RepositoryImpl) GetPlan(ctx context.Context, planID uuid.UUID) (*types.Plan, error) {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "GetPlan", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	p, err := scanPlan(r.pgpool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, planID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, `
        SELECT d.id, d.day, s.id, s.position, s.title, s.places, sd.id, sd.position, sd.content
        FROM plan_days d
        LEFT JOIN plan_day_sections s ON s.plan_day_id = d.id
        LEFT JOIN plan_day_section_details sd ON sd.section_id = s.id
        WHERE d.plan_id = $1
        ORDER BY d.day, s.position, sd.position
    `, planID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load plan days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dayID         uuid.UUID
			day           int
			sectionID     *uuid.UUID
			sectionPos    *int
			sectionTitle  *string
			sectionPlaces []string
			detailID      *uuid.UUID
			detailPos     *int
			detailContent *string
		)
		if err := rows.Scan(&dayID, &day, &sectionID, &sectionPos, &sectionTitle, &sectionPlaces,
			&detailID, &detailPos, &detailContent); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan plan day row: %w", err)
		}

		if n := len(p.Days); n == 0 || p.Days[n-1].ID != dayID {
			p.Days = append(p.Days, types.PlanDay{ID: dayID, Day: day, Sections: []types.PlanDaySection{}})
		}
		d := &p.Days[len(p.Days)-1]
		if sectionID == nil {
			continue
		}

		if n := len(d.Sections); n == 0 || d.Sections[n-1].ID != *sectionID {
			s := types.PlanDaySection{ID: *sectionID, Places: sectionPlaces, Details: []types.PlanDaySectionDetail{}}
			if sectionPos != nil {
				s.Position = *sectionPos
			}
			if sectionTitle != nil {
				s.Title = *sectionTitle
			}
			d.Sections = append(d.Sections, s)
		}
		if detailID == nil {
			continue
		}
		s := &d.Sections[len(d.Sections)-1]
		detail := types.PlanDaySectionDetail{ID: *detailID}
		if detailPos != nil {
			detail.Position = *detailPos
		}
		if detailContent != nil {
			detail.Content = *detailContent
		}
		s.Details = append(s.Details, detail)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating plan day rows: %w", err)
	}

	return p, nil
}

func (r *RepositoryImpl) ConnectDestination(ctx context.Context, planID, destinationID uuid.UUID) error {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "ConnectDestination", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
		attribute.String("destination.id", destinationID.String()),
	))
	defer span.End()

	_, err := r.pgpool.Exec(ctx, `
        UPDATE plans SET destination_id = $2, updated_at = NOW()
        WHERE id = $1 AND destination_id IS DISTINCT FROM $2
    `, planID, destinationID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to connect plan to destination: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) MarkFailed(ctx context.Context, planID uuid.UUID, reason string) error {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "MarkFailed", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	if reason == "" {
		reason = "generation failed"
	}
	_, err := r.pgpool.Exec(ctx, `
        UPDATE plans SET failure_reason = $2, updated_at = NOW()
        WHERE id = $1 AND generated = false
    `, planID, reason)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark plan as failed: %w", err)
	}
	return nil
}

// ClearFailure moves a failed plan back to pending. It reports false when the
// plan was not in the failed state, so only one caller resubmits it.
func (r *RepositoryImpl) ClearFailure(ctx context.Context, planID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "ClearFailure", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, `
        UPDATE plans SET failure_reason = '', updated_at = NOW()
        WHERE id = $1 AND generated = false AND failure_reason <> ''
    `, planID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to clear plan failure: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimStalled touches a pending plan that has not been updated for idle.
// It reports true only to the caller whose update won, so a plan orphaned by
// a restart is resubmitted once.
func (r *RepositoryImpl) ClaimStalled(ctx context.Context, planID uuid.UUID, idle time.Duration) (bool, error) {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "ClaimStalled", trace.WithAttributes(
		attribute.String("plan.id", planID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, `
        UPDATE plans SET updated_at = NOW()
        WHERE id = $1 AND generated = false AND failure_reason = ''
          AND updated_at < NOW() - make_interval(secs => $2)
    `, planID, idle.Seconds())
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to claim stalled plan: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CommitPlan writes the generated content and the full day tree in one
// transaction. Waiting for a connection is bounded by txMaxWait and the
// statements by txTimeout.
func (r *RepositoryImpl) CommitPlan(ctx context.Context, commit Commit) error {
	ctx, span := otel.Tracer("PlanRepository").Start(ctx, "CommitPlan", trace.WithAttributes(
		attribute.String("plan.id", commit.PlanID.String()),
		attribute.Int("plan.days", len(commit.Days)),
	))
	defer span.End()

	beginCtx, cancelBegin := context.WithTimeout(ctx, r.txMaxWait)
	tx, err := r.pgpool.BeginTx(beginCtx, pgx.TxOptions{})
	cancelBegin()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return fmt.Errorf("failed to begin plan commit: %w", err)
	}
	defer tx.Rollback(ctx)

	execCtx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tag, err := tx.Exec(execCtx, `
        UPDATE plans
        SET generated = true, content = $2, summary = $3, failure_reason = '', updated_at = NOW()
        WHERE id = $1 AND generated = false
    `, commit.PlanID, commit.Outline, commit.Summary)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanAlreadyGenerated
	}

	var details [][]any
	for i, sections := range commit.Days {
		var dayID uuid.UUID
		err := tx.QueryRow(execCtx,
			`INSERT INTO plan_days (plan_id, day) VALUES ($1, $2) RETURNING id`,
			commit.PlanID, i+1,
		).Scan(&dayID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert day %d: %w", i+1, err)
		}

		for j, section := range sections {
			places := section.Places
			if places == nil {
				places = []string{}
			}
			var sectionID uuid.UUID
			err := tx.QueryRow(execCtx,
				`INSERT INTO plan_day_sections (plan_day_id, position, title, places) VALUES ($1, $2, $3, $4) RETURNING id`,
				dayID, j, section.Title, places,
			).Scan(&sectionID)
			if err != nil {
				span.RecordError(err)
				return fmt.Errorf("failed to insert section %d of day %d: %w", j, i+1, err)
			}
			for k, content := range section.Content {
				details = append(details, []any{sectionID, k, content})
			}
		}
	}

	if len(details) > 0 {
		if _, err := tx.CopyFrom(execCtx,
			pgx.Identifier{"plan_day_section_details"},
			[]string{"section_id", "position", "content"},
			pgx.CopyFromRows(details),
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert section details: %w", err)
		}
	}

	if len(commit.ActivityIDs) > 0 {
		if _, err := tx.Exec(execCtx, `
            INSERT INTO plan_activities (plan_id, activity_id)
            SELECT $1, unnest($2::uuid[])
            ON CONFLICT DO NOTHING
        `, commit.PlanID, commit.ActivityIDs); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to link plan activities: %w", err)
		}
	}

	if err := tx.Commit(execCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("failed to commit plan: %w", err)
	}

	r.logger.InfoContext(ctx, "Plan committed",
		slog.String("plan_id", commit.PlanID.String()),
		slog.Int("days", len(commit.Days)),
		slog.Int("details", len(details)))
	span.SetStatus(codes.Ok, "")
	return nil
}
