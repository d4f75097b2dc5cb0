package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	appLogger "github.com/FACorreiaa/go-trip-planner/app/logger"
	appMiddleware "github.com/FACorreiaa/go-trip-planner/app/middleware"
	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/internal/api/destination"
	"github.com/FACorreiaa/go-trip-planner/internal/api/events"
	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	llmInteraction "github.com/FACorreiaa/go-trip-planner/internal/api/llm_interaction"
	"github.com/FACorreiaa/go-trip-planner/internal/api/plan"
	"github.com/FACorreiaa/go-trip-planner/internal/api/retention"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
	api "github.com/FACorreiaa/go-trip-planner/internal/router"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

const testAPIKey = "e2e-key"

const dayReply = `[{"title":"Morning","content":["Walk the old town"],"places":["Main Square"]},{"title":"Evening","content":["Dinner"],"places":[]}]`

// scriptedModel answers by request shape: outline requests carry three
// messages, summaries two and day plans ask for JSON.
type scriptedModel struct {
	mu    sync.Mutex
	calls int
}

func (m *scriptedModel) Model() string { return "scripted" }

func (m *scriptedModel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *scriptedModel) Complete(_ context.Context, req generativeAI.CompletionRequest) (*generativeAI.Completion, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	switch {
	case req.JSON:
		return &generativeAI.Completion{Content: dayReply, Model: "scripted"}, nil
	case len(req.Messages) == 3:
		return &generativeAI.Completion{Content: "Day 1: old town. Day 2: river walk.", Model: "scripted"}, nil
	default:
		return &generativeAI.Completion{Content: "A trip to remember.", Model: "scripted"}, nil
	}
}

type memoryExchanges struct {
	mu        sync.Mutex
	exchanges []types.LLMExchange
}

func (m *memoryExchanges) SaveExchange(_ context.Context, exchange types.LLMExchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, exchange)
	return nil
}

func (m *memoryExchanges) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

type memoryPlans struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*types.Plan
}

func (m *memoryPlans) FindEquivalent(_ context.Context, params types.PlanParameters) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.PlanParameters == params {
			cp := *p
			return &cp, nil
		}
	}
	return nil, plan.ErrPlanNotFound
}

func (m *memoryPlans) CreatePlan(_ context.Context, params types.PlanParameters) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &types.Plan{ID: uuid.New(), PlanParameters: params, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.plans[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memoryPlans) GetPlan(_ context.Context, planID uuid.UUID) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return nil, plan.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryPlans) ConnectDestination(_ context.Context, planID, destinationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[planID].DestinationID = &destinationID
	return nil
}

func (m *memoryPlans) MarkFailed(_ context.Context, planID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.plans[planID]; !p.Generated {
		p.FailureReason = reason
	}
	return nil
}

func (m *memoryPlans) ClearFailure(_ context.Context, planID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plans[planID]
	if p.FailureReason == "" {
		return false, nil
	}
	p.FailureReason = ""
	return true, nil
}

func (m *memoryPlans) ClaimStalled(_ context.Context, planID uuid.UUID, idle time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plans[planID]
	if p.Generated || p.FailureReason != "" || time.Since(p.UpdatedAt) < idle {
		return false, nil
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memoryPlans) CommitPlan(_ context.Context, commit plan.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plans[commit.PlanID]
	if p.Generated {
		return plan.ErrPlanAlreadyGenerated
	}
	p.Content, p.Summary, p.Generated, p.FailureReason = commit.Outline, commit.Summary, true, ""
	p.Days = nil
	for i, sections := range commit.Days {
		day := types.PlanDay{ID: uuid.New(), Day: i + 1}
		for pos, s := range sections {
			section := types.PlanDaySection{ID: uuid.New(), Position: pos, Title: s.Title, Places: s.Places}
			for dpos, c := range s.Content {
				section.Details = append(section.Details, types.PlanDaySectionDetail{ID: uuid.New(), Position: dpos, Content: c})
			}
			day.Sections = append(day.Sections, section)
		}
		p.Days = append(p.Days, day)
	}
	return nil
}

type memoryTrips struct {
	mu    sync.Mutex
	trips []types.Trip
}

func (m *memoryTrips) CreateTrip(_ context.Context, t types.Trip) (*types.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID, t.CreatedAt = uuid.New(), time.Now()
	m.trips = append(m.trips, t)
	return &t, nil
}

func (m *memoryTrips) GetTrip(_ context.Context, tripID uuid.UUID) (*types.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.ID == tripID {
			return &t, nil
		}
	}
	return nil, trip.ErrTripNotFound
}

func (m *memoryTrips) TripIDsForPlan(_ context.Context, planID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, t := range m.trips {
		if t.PlanID != nil && *t.PlanID == planID {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// stubDestinations resolves every place to a fixed destination with a few
// known activities and records enrichment requests.
type stubDestinations struct {
	destination.Service
	id       uuid.UUID
	mu       sync.Mutex
	enriched int
}

func (s *stubDestinations) Resolve(_ context.Context, name string, place *types.GeocodedPlace) (*types.Destination, error) {
	return &types.Destination{ID: s.id, Title: name, GooglePlaceID: place.PlaceID}, nil
}

func (s *stubDestinations) Enrich(context.Context, *types.Destination) {
	s.mu.Lock()
	s.enriched++
	s.mu.Unlock()
}

func (s *stubDestinations) enrichCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enriched
}

func (s *stubDestinations) ListActivities(_ context.Context, destinationID uuid.UUID) ([]types.Activity, error) {
	return []types.Activity{
		{ID: uuid.New(), DestinationID: destinationID, Category: types.ActivityCategorySights, Title: "Castle"},
		{ID: uuid.New(), DestinationID: destinationID, Category: types.ActivityCategoryRestaurant, Title: "Milk bar"},
	}, nil
}

func (s *stubDestinations) RequestEnrichment(context.Context, uuid.UUID) error { return nil }

type noopSweeper struct{}

func (noopSweeper) Sweep(context.Context) (*retention.Report, error) { return &retention.Report{}, nil }

// testApp is the HTTP surface wired the way the container wires it, with
// in-memory stores and a scripted model in place of Postgres and the LLM.
type testApp struct {
	handler      http.Handler
	workers      *worker.Pool
	plans        *memoryPlans
	trips        *memoryTrips
	destinations *stubDestinations
	model        *scriptedModel
	exchanges    *memoryExchanges
}

func newTestApp(logger *slog.Logger) *testApp {
	metrics.InitAppMetrics()

	app := &testApp{
		workers:      worker.NewPool(2, 16, logger),
		plans:        &memoryPlans{plans: make(map[uuid.UUID]*types.Plan)},
		trips:        &memoryTrips{},
		destinations: &stubDestinations{id: uuid.New()},
		model:        &scriptedModel{},
		exchanges:    &memoryExchanges{},
	}
	hub := events.NewHub(logger)
	recorder := llmInteraction.NewRecorder(app.exchanges, logger)

	tripService := trip.NewServiceImpl(app.trips, app.plans, logger)
	planService := plan.NewServiceImpl(
		app.plans,
		app.destinations,
		tripService,
		plan.NewOutlineGenerator(app.model, recorder, logger),
		plan.NewDayPlanExpander(app.model, recorder, 2, logger),
		hub,
		app.workers,
		plan.Limits{MaxDays: 30, StaleAfter: 15 * time.Minute},
		logger,
	)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(appLogger.StructuredLogger(logger))
	router.Mount("/", api.SetupRouter(&api.Config{
		PlanHandler:        plan.NewHandler(planService, hub, logger),
		TripHandler:        trip.NewHandler(tripService, logger),
		DestinationHandler: destination.NewHandler(app.destinations, logger),
		RetentionHandler:   retention.NewHandler(noopSweeper{}, logger),
		APIKey:             testAPIKey,
	}))
	app.handler = router
	return app
}

func planBody(destinationName string, place bool) map[string]any {
	body := map[string]any{
		"destination": destinationName,
		"duration":    "2 days",
		"tripType":    "cultural",
	}
	if place {
		body["destinationPlace"] = map[string]any{
			"place_id":          "place-" + strings.ToLower(destinationName),
			"formatted_address": destinationName + ", Poland",
			"geometry":          map[string]any{"location": map[string]any{"lat": 50.06, "lng": 19.94}},
		}
	}
	return body
}

// E2ETestSuite drives the plan workflow over real HTTP and WebSocket
// connections against the in-memory application.
type E2ETestSuite struct {
	suite.Suite
	app     *testApp
	server  *httptest.Server
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	userID  uuid.UUID
}

func (suite *E2ETestSuite) SetupTest() {
	suite.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	suite.app = newTestApp(suite.logger)
	suite.server = httptest.NewServer(suite.app.handler)
	suite.baseURL = suite.server.URL + "/api/v1"
	suite.client = &http.Client{Timeout: 10 * time.Second}
	suite.userID = uuid.New()
}

func (suite *E2ETestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = suite.app.workers.Shutdown(ctx)
	suite.server.Close()
}

func (suite *E2ETestSuite) makeRequest(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(appMiddleware.UserIDHeader, suite.userID.String())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return suite.client.Do(req)
}

func (suite *E2ETestSuite) createPlan(body map[string]any) types.PlanAccepted {
	resp, err := suite.makeRequest(http.MethodPost, "/plan", body, nil)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var accepted types.PlanAccepted
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&accepted))
	suite.Equal("ok", accepted.Response)
	return accepted
}

// awaitEvent subscribes to the plan and returns the terminal event, whether
// it was published before or after the subscription.
func (suite *E2ETestSuite) awaitEvent(planID uuid.UUID) types.PlanEvent {
	wsURL := "ws" + strings.TrimPrefix(suite.baseURL, "http") + fmt.Sprintf("/plan/%s/events", planID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(10 * time.Second)))
	var event types.PlanEvent
	suite.Require().NoError(conn.ReadJSON(&event))
	return event
}

func (suite *E2ETestSuite) planStatus(planID uuid.UUID) types.PlanStatusResponse {
	resp, err := suite.makeRequest(http.MethodGet, "/plan/"+planID.String(), nil, nil)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var status types.PlanStatusResponse
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func (suite *E2ETestSuite) TestPlanGenerationWorkflow() {
	accepted := suite.createPlan(planBody("Krakow", true))

	event := suite.awaitEvent(accepted.PlanID)
	suite.Equal(types.PlanEventReady, event.Event)
	suite.Equal(accepted.PlanID, event.PlanID)
	suite.Contains(event.TripIDs, accepted.TripID)

	status := suite.planStatus(accepted.PlanID)
	suite.Equal(types.PlanStatusGenerated, status.Status)
	suite.Require().Len(status.Plan.Days, 2)
	for i, day := range status.Plan.Days {
		suite.Equal(i+1, day.Day)
		suite.Require().Len(day.Sections, 2)
		suite.Equal("Morning", day.Sections[0].Title)
		suite.Equal([]string{"Main Square"}, day.Sections[0].Places)
	}
	suite.Equal("A trip to remember.", status.Plan.Summary)
	suite.NotNil(status.Plan.DestinationID)
	suite.Equal(1, suite.app.destinations.enrichCount())

	// outline, summary and one request per day, all logged
	suite.Equal(4, suite.app.exchanges.count())
}

func (suite *E2ETestSuite) TestEquivalentRequestReusesPlan() {
	first := suite.createPlan(planBody("Gdansk", true))
	suite.Equal(types.PlanEventReady, suite.awaitEvent(first.PlanID).Event)
	calls := suite.app.model.count()

	second := suite.createPlan(planBody("Gdansk", true))
	suite.Equal(first.PlanID, second.PlanID)
	suite.NotEqual(first.TripID, second.TripID)

	event := suite.awaitEvent(second.PlanID)
	suite.Equal(types.PlanEventReady, event.Event)
	suite.ElementsMatch([]uuid.UUID{first.TripID, second.TripID}, event.TripIDs)
	suite.Equal(calls, suite.app.model.count(), "a generated plan is not generated again")
}

func (suite *E2ETestSuite) TestMissingPlaceFailsPlan() {
	accepted := suite.createPlan(planBody("Lodz", false))

	event := suite.awaitEvent(accepted.PlanID)
	suite.Equal(types.PlanEventFailed, event.Event)
	suite.NotEmpty(event.Reason)

	status := suite.planStatus(accepted.PlanID)
	suite.Equal(types.PlanStatusFailed, status.Status)
	suite.Zero(suite.app.model.count())
}

func (suite *E2ETestSuite) TestTripLookup() {
	accepted := suite.createPlan(planBody("Wroclaw", true))
	suite.awaitEvent(accepted.PlanID)

	resp, err := suite.makeRequest(http.MethodGet, "/trips/"+accepted.TripID.String(), nil, nil)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	var found types.TripWithPlan
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&found))
	suite.Equal(accepted.TripID, found.ID)
	suite.Equal("cultural trip to Wroclaw for 2 days", found.Title)
	suite.Require().NotNil(found.UserID)
	suite.Equal(suite.userID, *found.UserID)
	suite.Require().NotNil(found.Plan)
	suite.True(found.Plan.Generated)
}

func (suite *E2ETestSuite) TestErrorHandlingWorkflow() {
	testCases := []struct {
		name     string
		method   string
		path     string
		body     any
		headers  map[string]string
		expected int
	}{
		{"missing trip type", http.MethodPost, "/plan", map[string]any{"destination": "Krakow", "duration": "2 days"}, nil, http.StatusBadRequest},
		{"unknown trip type", http.MethodPost, "/plan", map[string]any{"destination": "Krakow", "duration": "2 days", "tripType": "space"}, nil, http.StatusBadRequest},
		{"too long", http.MethodPost, "/plan", map[string]any{"destination": "Krakow", "duration": "3 months", "tripType": "general"}, nil, http.StatusBadRequest},
		{"unknown plan", http.MethodGet, "/plan/" + uuid.NewString(), nil, nil, http.StatusNotFound},
		{"malformed plan id", http.MethodGet, "/plan/nope", nil, nil, http.StatusBadRequest},
		{"unknown trip", http.MethodGet, "/trips/" + uuid.NewString(), nil, nil, http.StatusNotFound},
		{"details without key", http.MethodGet, "/destination-details?tripid=" + uuid.NewString(), nil, nil, http.StatusUnauthorized},
		{"details with key", http.MethodGet, "/destination-details?tripid=" + uuid.NewString(), nil, map[string]string{"Authorization": testAPIKey}, http.StatusOK},
		{"sweep without key", http.MethodGet, "/clean-up/run-crons", nil, nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			resp, err := suite.makeRequest(tc.method, tc.path, tc.body, tc.headers)
			suite.Require().NoError(err)
			resp.Body.Close()
			suite.Equal(tc.expected, resp.StatusCode)
		})
	}
}

func (suite *E2ETestSuite) TestConcurrentPlanRequests() {
	destinations := []string{"Poznan", "Torun", "Lublin", "Katowice"}

	var wg sync.WaitGroup
	accepted := make([]types.PlanAccepted, len(destinations))
	errs := make([]error, len(destinations))
	for i, d := range destinations {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			resp, err := suite.makeRequest(http.MethodPost, "/plan", planBody(d, true), nil)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs[i] = fmt.Errorf("status %d", resp.StatusCode)
				return
			}
			errs[i] = json.NewDecoder(resp.Body).Decode(&accepted[i])
		}(i, d)
	}
	wg.Wait()
	suite.Require().NoError(errors.Join(errs...))

	for _, a := range accepted {
		suite.Equal(types.PlanEventReady, suite.awaitEvent(a.PlanID).Event)
	}
}

func TestE2E(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
