package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/FACorreiaa/go-trip-planner/app/middleware"
	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-trip-planner/internal/api/destination"
	"github.com/FACorreiaa/go-trip-planner/internal/api/plan"
	"github.com/FACorreiaa/go-trip-planner/internal/api/retention"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

type fakePlans struct{ plan.Service }

func (fakePlans) GetPlanStatus(context.Context, uuid.UUID) (*types.PlanStatusResponse, error) {
	return nil, plan.ErrPlanNotFound
}

type fakeTrips struct {
	trip.Service
	viewer *uuid.UUID
}

func (f *fakeTrips) GetTrip(_ context.Context, _ uuid.UUID, viewer *uuid.UUID) (*types.TripWithPlan, error) {
	f.viewer = viewer
	return &types.TripWithPlan{}, nil
}

type fakeDestinations struct {
	destination.Service
	tripID uuid.UUID
}

func (f *fakeDestinations) RequestEnrichment(_ context.Context, tripID uuid.UUID) error {
	f.tripID = tripID
	return nil
}

type fakeSweeper struct{}

func (fakeSweeper) Sweep(context.Context) (*retention.Report, error) {
	return &retention.Report{}, nil
}

func newTestRouter(trips *fakeTrips, destinations *fakeDestinations) http.Handler {
	return SetupRouter(&Config{
		PlanHandler:        plan.NewHandler(fakePlans{}, nil, testLogger),
		TripHandler:        trip.NewHandler(trips, testLogger),
		DestinationHandler: destination.NewHandler(destinations, testLogger),
		RetentionHandler:   retention.NewHandler(fakeSweeper{}, testLogger),
		APIKey:             "secret",
	})
}

func TestRouter(t *testing.T) {
	trips := &fakeTrips{}
	destinations := &fakeDestinations{}
	router := newTestRouter(trips, destinations)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("ping", func(t *testing.T) {
		rr := serve(httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "pong", rr.Body.String())
	})

	t.Run("plan status", func(t *testing.T) {
		rr := serve(httptest.NewRequest(http.MethodGet, "/api/v1/plan/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("forwarded user reaches trip lookup", func(t *testing.T) {
		userID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/"+uuid.NewString(), nil)
		req.Header.Set(appMiddleware.UserIDHeader, userID.String())
		rr := serve(req)
		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, trips.viewer)
		assert.Equal(t, userID, *trips.viewer)
	})

	t.Run("operational routes need the key", func(t *testing.T) {
		tripID := uuid.New()
		target := "/api/v1/destination-details?tripid=" + tripID.String()

		rr := serve(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, uuid.Nil, destinations.tripID)

		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "secret")
		rr = serve(req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, tripID, destinations.tripID)

		req = httptest.NewRequest(http.MethodGet, "/api/v1/clean-up/run-crons", nil)
		req.Header.Set("Authorization", "secret")
		assert.Equal(t, http.StatusOK, serve(req).Code)
	})

	t.Run("unknown method", func(t *testing.T) {
		rr := serve(httptest.NewRequest(http.MethodDelete, "/api/v1/plan", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "http://b.example"}, ParseOrigins(" https://a.example, ,http://b.example"))
	assert.Nil(t, ParseOrigins(""))
}
