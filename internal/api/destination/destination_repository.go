package destination

import (
	"context"
	"encoding/json"
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
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var ErrDestinationNotFound = errors.New("destination not found")

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	UpsertDestination(ctx context.Context, d types.Destination) (*types.Destination, error)
	FindByPlaceID(ctx context.Context, placeID string) (*types.Destination, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Destination, error)
	GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Destination, error)

	CountActivities(ctx context.Context, destinationID uuid.UUID) (int, error)
	InsertActivities(ctx context.Context, destinationID uuid.UUID, activities []types.Activity) (int64, error)
	ListActivities(ctx context.Context, destinationID uuid.UUID) ([]types.Activity, error)
	CountHotels(ctx context.Context, destinationID uuid.UUID) (int, error)
	InsertHotels(ctx context.Context, destinationID uuid.UUID, hotels []types.Hotel) (int64, error)

	UpdateClimate(ctx context.Context, destinationID uuid.UUID, climate json.RawMessage) error
	UpdateCostOfLiving(ctx context.Context, destinationID uuid.UUID, prices json.RawMessage) error
	UpdateDescription(ctx context.Context, destinationID uuid.UUID, description string) error

	CountImages(ctx context.Context, destinationID uuid.UUID) (int, error)
	InsertImage(ctx context.Context, destinationID uuid.UUID, image string) error
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

const destinationColumns = `id, title, google_place_id, geocoder_results, place_details, climate_data,
       cost_of_living, description, image, created_at, updated_at`

func scanDestination(row pgx.Row) (*types.Destination, error) {
	var d types.Destination
	var geocoder, details, climate, prices []byte
	err := row.Scan(
		&d.ID, &d.Title, &d.GooglePlaceID, &geocoder, &details, &climate,
		&prices, &d.Description, &d.Image, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.GeocoderResults = rawOrNil(geocoder)
	d.PlaceDetails = rawOrNil(details)
	d.ClimateData = rawOrNil(climate)
	d.CostOfLiving = rawOrNil(prices)
	return &d, nil
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// jsonbArg maps an empty payload to SQL NULL.
func jsonbArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// UpsertDestination creates the destination for a place id, or returns the
// row another request created first.
func (r *RepositoryImpl) UpsertDestination(ctx context.Context, d types.Destination) (*types.Destination, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "UpsertDestination", trace.WithAttributes(
		attribute.String("destination.place_id", d.GooglePlaceID),
	))
	defer span.End()

	query := `
        INSERT INTO destinations (title, google_place_id, geocoder_results, place_details, image)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (google_place_id) DO NOTHING
        RETURNING ` + destinationColumns
	created, err := scanDestination(r.pgpool.QueryRow(ctx, query,
		d.Title, d.GooglePlaceID, jsonbArg(d.GeocoderResults), jsonbArg(d.PlaceDetails), d.Image,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.DebugContext(ctx, "Destination created concurrently, reading winner", slog.String("place_id", d.GooglePlaceID))
		return r.FindByPlaceID(ctx, d.GooglePlaceID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	span.SetAttributes(attribute.String("destination.id", created.ID.String()))
	return created, nil
}

func (r *RepositoryImpl) FindByPlaceID(ctx context.Context, placeID string) (*types.Destination, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "FindByPlaceID", trace.WithAttributes(
		attribute.String("destination.place_id", placeID),
	))
	defer span.End()

	query := `SELECT ` + destinationColumns + ` FROM destinations WHERE google_place_id = $1`
	d, err := scanDestination(r.pgpool.QueryRow(ctx, query, placeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDestinationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to find destination by place id: %w", err)
	}
	return d, nil
}

func (r *RepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*types.Destination, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "GetByID", trace.WithAttributes(
		attribute.String("destination.id", id.String()),
	))
	defer span.End()

	query := `SELECT ` + destinationColumns + ` FROM destinations WHERE id = $1`
	d, err := scanDestination(r.pgpool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDestinationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to get destination: %w", err)
	}
	return d, nil
}

// GetByTripID follows trip -> plan -> destination. A missing trip yields
// trip.ErrTripNotFound; a trip whose plan has no destination yields
// ErrDestinationNotFound.
func (r *RepositoryImpl) GetByTripID(ctx context.Context, tripID uuid.UUID) (*types.Destination, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "GetByTripID", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
	))
	defer span.End()

	query := `
        SELECT p.destination_id
        FROM trips t
        LEFT JOIN plans p ON p.id = t.plan_id
        WHERE t.id = $1
    `
	var destinationID *uuid.UUID
	err := r.pgpool.QueryRow(ctx, query, tripID).Scan(&destinationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trip.ErrTripNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to look up trip destination: %w", err)
	}
	if destinationID == nil {
		return nil, ErrDestinationNotFound
	}
	return r.GetByID(ctx, *destinationID)
}

func (r *RepositoryImpl) count(ctx context.Context, table string, destinationID uuid.UUID) (int, error) {
	var n int
	err := r.pgpool.QueryRow(ctx, `SELECT count(*) FROM `+table+` WHERE destination_id = $1`, destinationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (r *RepositoryImpl) CountActivities(ctx context.Context, destinationID uuid.UUID) (int, error) {
	return r.count(ctx, "activities", destinationID)
}

func (r *RepositoryImpl) CountHotels(ctx context.Context, destinationID uuid.UUID) (int, error) {
	return r.count(ctx, "hotels", destinationID)
}

func (r *RepositoryImpl) CountImages(ctx context.Context, destinationID uuid.UUID) (int, error) {
	return r.count(ctx, "destination_images", destinationID)
}

func (r *RepositoryImpl) InsertActivities(ctx context.Context, destinationID uuid.UUID, activities []types.Activity) (int64, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "InsertActivities", trace.WithAttributes(
		attribute.String("destination.id", destinationID.String()),
		attribute.Int("activities.count", len(activities)),
	))
	defer span.End()

	rows := make([][]any, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, []any{
			destinationID, a.Category, a.Title, jsonbArg(a.Payload), a.Thumbnail, a.BookingLink, a.ExternalPlaceID,
		})
	}
	n, err := r.pgpool.CopyFrom(ctx,
		pgx.Identifier{"activities"},
		[]string{"destination_id", "category", "title", "payload", "thumbnail", "booking_link", "external_place_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "copy failed")
		return 0, fmt.Errorf("failed to insert activities: %w", err)
	}
	return n, nil
}

func (r *RepositoryImpl) ListActivities(ctx context.Context, destinationID uuid.UUID) ([]types.Activity, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "ListActivities", trace.WithAttributes(
		attribute.String("destination.id", destinationID.String()),
	))
	defer span.End()

	query := `
        SELECT id, destination_id, category, title, payload, thumbnail, booking_link, external_place_id, created_at
        FROM activities
        WHERE destination_id = $1
        ORDER BY created_at, id
    `
	rows, err := r.pgpool.Query(ctx, query, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []types.Activity
	for rows.Next() {
		var a types.Activity
		var payload []byte
		if err := rows.Scan(&a.ID, &a.DestinationID, &a.Category, &a.Title, &payload,
			&a.Thumbnail, &a.BookingLink, &a.ExternalPlaceID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		a.Payload = rawOrNil(payload)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return activities, nil
}

func (r *RepositoryImpl) InsertHotels(ctx context.Context, destinationID uuid.UUID, hotels []types.Hotel) (int64, error) {
	ctx, span := otel.Tracer("DestinationRepository").Start(ctx, "InsertHotels", trace.WithAttributes(
		attribute.String("destination.id", destinationID.String()),
		attribute.Int("hotels.count", len(hotels)),
	))
	defer span.End()

	rows := make([][]any, 0, len(hotels))
	for _, h := range hotels {
		rows = append(rows, []any{
			destinationID, h.Name, h.ChainCode, h.IATACode, h.DupeID, h.HotelID, jsonbArg(h.GeoCode), jsonbArg(h.Address),
		})
	}
	n, err := r.pgpool.CopyFrom(ctx,
		pgx.Identifier{"hotels"},
		[]string{"destination_id", "name", "chain_code", "iata_code", "dupe_id", "hotel_id", "geo_code", "address"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "copy failed")
		return 0, fmt.Errorf("failed to insert hotels: %w", err)
	}
	return n, nil
}

// UpdateClimate only fills an empty column so a concurrent enrichment
// cannot overwrite it.
func (r *RepositoryImpl) UpdateClimate(ctx context.Context, destinationID uuid.UUID, climate json.RawMessage) error {
	query := `
        UPDATE destinations SET climate_data = $2, updated_at = now()
        WHERE id = $1 AND climate_data IS NULL
    `
	if _, err := r.pgpool.Exec(ctx, query, destinationID, []byte(climate)); err != nil {
		return fmt.Errorf("failed to update climate data: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) UpdateCostOfLiving(ctx context.Context, destinationID uuid.UUID, prices json.RawMessage) error {
	query := `
        UPDATE destinations SET cost_of_living = $2, updated_at = now()
        WHERE id = $1 AND cost_of_living IS NULL
    `
	if _, err := r.pgpool.Exec(ctx, query, destinationID, []byte(prices)); err != nil {
		return fmt.Errorf("failed to update cost of living: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) UpdateDescription(ctx context.Context, destinationID uuid.UUID, description string) error {
	query := `
        UPDATE destinations SET description = $2, updated_at = now()
        WHERE id = $1 AND description = ''
    `
	if _, err := r.pgpool.Exec(ctx, query, destinationID, description); err != nil {
		return fmt.Errorf("failed to update description: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) InsertImage(ctx context.Context, destinationID uuid.UUID, image string) error {
	query := `INSERT INTO destination_images (destination_id, image) VALUES ($1, $2)`
	if _, err := r.pgpool.Exec(ctx, query, destinationID, image); err != nil {
		return fmt.Errorf("failed to insert destination image: %w", err)
	}
	return nil
}
