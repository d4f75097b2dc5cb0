package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-trip-planner/app/worker"
	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-trip-planner/internal/api/providers"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var ErrMissingPlace = errors.New("geocoded place has no place id")

const (
	ConcernActivities   = "activities"
	ConcernHotels       = "hotels"
	ConcernClimate      = "climate"
	ConcernCostOfLiving = "cost_of_living"
	ConcernDescription  = "description"
	ConcernImages       = "images"

	descriptionMaxTokens = 600
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Resolve(ctx context.Context, name string, place *types.GeocodedPlace) (*types.Destination, error)
	Enrich(ctx context.Context, destination *types.Destination)
	ListActivities(ctx context.Context, destinationID uuid.UUID) ([]types.Activity, error)
	RequestEnrichment(ctx context.Context, tripID uuid.UUID) error
}

type ListingsProvider interface {
	SearchPOIs(ctx context.Context, lat, lng float64) ([]providers.AmadeusPOI, error)
	SearchActivities(ctx context.Context, lat, lng float64) ([]providers.AmadeusActivity, error)
	SearchHotels(ctx context.Context, lat, lng float64) ([]providers.AmadeusHotel, error)
}

type PlacesProvider interface {
	Details(ctx context.Context, placeID string) (*providers.PlaceDetails, error)
	Photo(ctx context.Context, reference string) ([]byte, error)
}

type ClimateProvider interface {
	Normals(ctx context.Context, lat, lng float64) (json.RawMessage, error)
}

type PricesProvider interface {
	Prices(ctx context.Context, city, country string) (json.RawMessage, error)
}

// Conversation runs one logged completion.
type Conversation interface {
	Complete(ctx context.Context, client generativeAI.Client, purpose string, planID *uuid.UUID, req generativeAI.CompletionRequest) (string, error)
}

type Submitter interface {
	Submit(job worker.Job) error
}

type Providers struct {
	Listings     ListingsProvider
	Places       PlacesProvider
	Climate      ClimateProvider
	CostOfLiving PricesProvider
}

type ServiceImpl struct {
	logger         *slog.Logger
	repo           Repository
	providers      Providers
	client         generativeAI.Client
	conversation   Conversation
	jobs           Submitter
	maxImages      int
	thumbnailWidth int
}

func NewServiceImpl(
	repo Repository,
	p Providers,
	client generativeAI.Client,
	conversation Conversation,
	jobs Submitter,
	maxImages, thumbnailWidth int,
	logger *slog.Logger,
) *ServiceImpl {
	if maxImages <= 0 {
		maxImages = 4
	}
	return &ServiceImpl{
		logger:         logger,
		repo:           repo,
		providers:      p,
		client:         client,
		conversation:   conversation,
		jobs:           jobs,
		maxImages:      maxImages,
		thumbnailWidth: thumbnailWidth,
	}
}

// Resolve returns the destination for a geocoded place, creating it from the
// place details when it does not exist yet.
func (s *ServiceImpl) Resolve(ctx context.Context, name string, place *types.GeocodedPlace) (*types.Destination, error) {
	ctx, span := otel.Tracer("DestinationService").Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("destination.name", name),
	))
	defer span.End()

	if place == nil || place.PlaceID == "" {
		span.SetStatus(codes.Error, ErrMissingPlace.Error())
		return nil, ErrMissingPlace
	}
	l := s.logger.With(slog.String("method", "Resolve"), slog.String("place_id", place.PlaceID))

	existing, err := s.repo.FindByPlaceID(ctx, place.PlaceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrDestinationNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, err
	}

	details, err := s.providers.Places.Details(ctx, place.PlaceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place details failed")
		return nil, fmt.Errorf("failed to fetch place details: %w", err)
	}

	title := name
	if title == "" {
		title = details.Name
	}
	geocoder, err := json.Marshal(place)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geocoder result: %w", err)
	}

	created, err := s.repo.UpsertDestination(ctx, types.Destination{
		Title:           title,
		GooglePlaceID:   place.PlaceID,
		GeocoderResults: geocoder,
		PlaceDetails:    details.Raw,
		Image:           s.primaryImage(ctx, l, details),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	l.InfoContext(ctx, "Destination resolved", slog.String("destination_id", created.ID.String()))
	span.SetStatus(codes.Ok, "")
	return created, nil
}

// primaryImage fetches the first photo of the place as a thumbnail. A
// destination without one is still created.
func (s *ServiceImpl) primaryImage(ctx context.Context, l *slog.Logger, details *providers.PlaceDetails) string {
	refs := details.PhotoReferences(1)
	if len(refs) == 0 {
		return ""
	}
	photo, err := s.providers.Places.Photo(ctx, refs[0])
	if err != nil {
		l.WarnContext(ctx, "Could not fetch primary photo", slog.Any("error", err))
		return ""
	}
	thumb, err := Thumbnail(photo, s.thumbnailWidth)
	if err != nil {
		l.WarnContext(ctx, "Could not build thumbnail, storing photo as fetched", slog.Any("error", err))
		return EncodePhoto(photo)
	}
	return thumb
}

// Enrich fills every missing piece of a destination concurrently. Each
// concern re-reads what is stored, fetches only when it is empty and writes
// the result. A failing concern is logged and counted and never stops the
// others.
func (s *ServiceImpl) Enrich(ctx context.Context, destination *types.Destination) {
	ctx, span := otel.Tracer("DestinationService").Start(ctx, "Enrich", trace.WithAttributes(
		attribute.String("destination.id", destination.ID.String()),
	))
	defer span.End()

	concerns := []struct {
		name string
		run  func(ctx context.Context, d *types.Destination) error
	}{
		{ConcernActivities, s.enrichActivities},
		{ConcernHotels, s.enrichHotels},
		{ConcernClimate, s.enrichClimate},
		{ConcernCostOfLiving, s.enrichCostOfLiving},
		{ConcernDescription, s.enrichDescription},
		{ConcernImages, s.enrichImages},
	}

	var g errgroup.Group
	for _, c := range concerns {
		g.Go(func() error {
			s.runConcern(ctx, c.name, destination, c.run)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ServiceImpl) runConcern(ctx context.Context, concern string, d *types.Destination, run func(ctx context.Context, d *types.Destination) error) {
	ctx, span := otel.Tracer("DestinationService").Start(ctx, "Enrich."+concern)
	defer span.End()

	err := run(ctx, d)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "enrichment failed")
	metrics.Get().EnrichmentFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("concern", concern)))
	s.logger.WarnContext(ctx, "Enrichment step failed",
		slog.String("destination_id", d.ID.String()),
		slog.String("concern", concern),
		slog.Any("error", err))
}

func (s *ServiceImpl) skip(ctx context.Context, d *types.Destination, concern string) {
	s.logger.DebugContext(ctx, "Enrichment step already done",
		slog.String("destination_id", d.ID.String()), slog.String("concern", concern))
}

func coordinates(d *types.Destination) (types.LatLng, error) {
	if len(d.GeocoderResults) == 0 {
		return types.LatLng{}, errors.New("destination has no geocoder result")
	}
	place, err := types.ParseGeocodedPlace(d.GeocoderResults)
	if err != nil {
		return types.LatLng{}, fmt.Errorf("failed to parse geocoder result: %w", err)
	}
	if place.Location == (types.LatLng{}) {
		return types.LatLng{}, errors.New("geocoder result has no coordinates")
	}
	return place.Location, nil
}

func (s *ServiceImpl) enrichActivities(ctx context.Context, d *types.Destination) error {
	n, err := s.repo.CountActivities(ctx, d.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.skip(ctx, d, ConcernActivities)
		return nil
	}
	loc, err := coordinates(d)
	if err != nil {
		return err
	}

	var activities []types.Activity
	pois, poiErr := s.providers.Listings.SearchPOIs(ctx, loc.Lat, loc.Lng)
	for _, p := range pois {
		activities = append(activities, types.Activity{
			Category:        strings.ToLower(p.Category),
			Title:           p.Name,
			Payload:         p.Raw,
			ExternalPlaceID: p.ID,
		})
	}
	bookable, activityErr := s.providers.Listings.SearchActivities(ctx, loc.Lat, loc.Lng)
	for _, a := range bookable {
		var thumbnail string
		if len(a.Pictures) > 0 {
			thumbnail = a.Pictures[0]
		}
		activities = append(activities, types.Activity{
			Category:        types.ActivityCategoryActivity,
			Title:           a.Name,
			Payload:         a.Raw,
			Thumbnail:       thumbnail,
			BookingLink:     a.BookingLink,
			ExternalPlaceID: a.ID,
		})
	}
	searchErr := errors.Join(poiErr, activityErr)

	if len(activities) == 0 {
		if searchErr != nil {
			return searchErr
		}
		return fmt.Errorf("activities: %w", providers.ErrNoData)
	}
	if _, err := s.repo.InsertActivities(ctx, d.ID, activities); err != nil {
		return err
	}
	// Whatever one search returned is kept even when the other failed.
	return searchErr
}

func (s *ServiceImpl) enrichHotels(ctx context.Context, d *types.Destination) error {
	n, err := s.repo.CountHotels(ctx, d.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.skip(ctx, d, ConcernHotels)
		return nil
	}
	loc, err := coordinates(d)
	if err != nil {
		return err
	}

	found, err := s.providers.Listings.SearchHotels(ctx, loc.Lat, loc.Lng)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("hotels: %w", providers.ErrNoData)
	}
	hotels := make([]types.Hotel, 0, len(found))
	for _, h := range found {
		hotels = append(hotels, types.Hotel{
			Name:      h.Name,
			ChainCode: h.ChainCode,
			IATACode:  h.IATACode,
			DupeID:    h.DupeID,
			HotelID:   h.HotelID,
			GeoCode:   h.GeoCode,
			Address:   h.Address,
		})
	}
	_, err = s.repo.InsertHotels(ctx, d.ID, hotels)
	return err
}

func (s *ServiceImpl) enrichClimate(ctx context.Context, d *types.Destination) error {
	current, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if len(current.ClimateData) > 0 {
		s.skip(ctx, d, ConcernClimate)
		return nil
	}
	loc, err := coordinates(current)
	if err != nil {
		return err
	}
	normals, err := s.providers.Climate.Normals(ctx, loc.Lat, loc.Lng)
	if err != nil {
		return err
	}
	return s.repo.UpdateClimate(ctx, d.ID, normals)
}

func (s *ServiceImpl) enrichCostOfLiving(ctx context.Context, d *types.Destination) error {
	current, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if len(current.CostOfLiving) > 0 {
		s.skip(ctx, d, ConcernCostOfLiving)
		return nil
	}
	place, err := types.ParseGeocodedPlace(current.GeocoderResults)
	if err != nil {
		return fmt.Errorf("failed to parse geocoder result: %w", err)
	}
	city, country := CityCountry(place)
	if city == "" || country == "" {
		return fmt.Errorf("no city and country in %q", place.FormattedAddress)
	}
	prices, err := s.providers.CostOfLiving.Prices(ctx, city, country)
	if err != nil {
		return err
	}
	return s.repo.UpdateCostOfLiving(ctx, d.ID, prices)
}

func descriptionPrompt(title string) string {
	return "Generate HTML text for a description of " + title +
		". Add sections for safety, history, general knowledge. " +
		"Make it sound like a human written promotional text. " +
		"Skip the doctype, body, head and other such tags"
}

func (s *ServiceImpl) enrichDescription(ctx context.Context, d *types.Destination) error {
	current, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if current.Description != "" {
		s.skip(ctx, d, ConcernDescription)
		return nil
	}

	reply, err := s.conversation.Complete(ctx, s.client, types.LLMPurposeDescription, nil, generativeAI.CompletionRequest{
		Messages: []generativeAI.Message{
			{Role: generativeAI.RoleUser, Content: descriptionPrompt(current.Title)},
		},
		Temperature: generativeAI.Temperature(0.1),
		MaxTokens:   descriptionMaxTokens,
	})
	if err != nil {
		return err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return errors.New("empty description reply")
	}
	return s.repo.UpdateDescription(ctx, d.ID, reply)
}

func (s *ServiceImpl) enrichImages(ctx context.Context, d *types.Destination) error {
	n, err := s.repo.CountImages(ctx, d.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.skip(ctx, d, ConcernImages)
		return nil
	}

	details, err := s.providers.Places.Details(ctx, d.GooglePlaceID)
	if err != nil {
		return err
	}
	refs := details.PhotoReferences(s.maxImages)
	if len(refs) == 0 {
		return fmt.Errorf("images: %w", providers.ErrNoData)
	}

	var g errgroup.Group
	g.SetLimit(s.maxImages)
	for _, ref := range refs {
		g.Go(func() error {
			photo, err := s.providers.Places.Photo(ctx, ref)
			if err != nil {
				s.logger.WarnContext(ctx, "Skipping destination photo", slog.String("destination_id", d.ID.String()), slog.Any("error", err))
				return nil
			}
			return s.repo.InsertImage(ctx, d.ID, EncodePhoto(photo))
		})
	}
	return g.Wait()
}

func (s *ServiceImpl) ListActivities(ctx context.Context, destinationID uuid.UUID) ([]types.Activity, error) {
	return s.repo.ListActivities(ctx, destinationID)
}

// RequestEnrichment queues enrichment of the destination linked to a trip.
func (s *ServiceImpl) RequestEnrichment(ctx context.Context, tripID uuid.UUID) error {
	ctx, span := otel.Tracer("DestinationService").Start(ctx, "RequestEnrichment", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
	))
	defer span.End()

	destination, err := s.repo.GetByTripID(ctx, tripID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return s.jobs.Submit(worker.Job{
		Name: "enrich-destination:" + destination.ID.String(),
		Run: func(ctx context.Context) error {
			s.Enrich(ctx, destination)
			return nil
		},
	})
}
