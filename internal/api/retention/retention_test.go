package retention

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

// memoryStore keeps just enough state to exercise the sweep end to end.
type memoryStore struct {
	mu             sync.Mutex
	plans          map[uuid.UUID]memoryPlan
	days           map[uuid.UUID]uuid.UUID // day id -> plan id
	activities     []memoryActivity
	planActivities map[[2]uuid.UUID]bool // {plan, activity}
	failMerge      map[uuid.UUID]bool
	failStep       string
}

type memoryPlan struct {
	generated bool
	createdAt time.Time
}

type memoryActivity struct {
	id         uuid.UUID
	externalID string
	createdAt  time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		plans:          make(map[uuid.UUID]memoryPlan),
		days:           make(map[uuid.UUID]uuid.UUID),
		planActivities: make(map[[2]uuid.UUID]bool),
		failMerge:      make(map[uuid.UUID]bool),
	}
}

func (m *memoryStore) DeleteStalePlans(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStep == KindStalePlans {
		return 0, errors.New("stale plans failed")
	}
	var n int64
	for id, p := range m.plans {
		if p.generated || !p.createdAt.Before(cutoff) {
			continue
		}
		for dayID, planID := range m.days {
			if planID == id {
				delete(m.days, dayID)
			}
		}
		delete(m.plans, id)
		n++
	}
	return n, nil
}

func (m *memoryStore) DeleteOrphanTrips(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryStore) DeleteIncompleteDestinations(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryStore) ListActivitiesForDedup(context.Context) ([]ActivityKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := slices.Clone(m.activities)
	slices.SortFunc(sorted, func(a, b memoryActivity) int { return a.createdAt.Compare(b.createdAt) })
	var keys []ActivityKey
	for _, a := range sorted {
		if a.externalID != "" {
			keys = append(keys, ActivityKey{ID: a.id, ExternalPlaceID: a.externalID})
		}
	}
	return keys, nil
}

func (m *memoryStore) MergeActivities(_ context.Context, merge Merge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMerge[merge.Keep] {
		return errors.New("merge failed")
	}
	for key := range m.planActivities {
		if slices.Contains(merge.Duplicates, key[1]) {
			delete(m.planActivities, key)
			m.planActivities[[2]uuid.UUID{key[0], merge.Keep}] = true
		}
	}
	m.activities = slices.DeleteFunc(m.activities, func(a memoryActivity) bool {
		return slices.Contains(merge.Duplicates, a.id)
	})
	return nil
}

func (m *memoryStore) DeleteActivitiesWithoutPlaceID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.activities)
	m.activities = slices.DeleteFunc(m.activities, func(a memoryActivity) bool { return a.externalID == "" })
	return int64(before - len(m.activities)), nil
}

func (m *memoryStore) DeleteOrphanImages(context.Context) (int64, error) {
	if m.failStep == KindOrphanImages {
		return 0, errors.New("images failed")
	}
	return 0, nil
}

func TestPlanDedup(t *testing.T) {
	a1, a2, a3, b1, c1, blank := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	merges := PlanDedup([]ActivityKey{
		{ID: a1, ExternalPlaceID: "poi-a"},
		{ID: b1, ExternalPlaceID: "poi-b"},
		{ID: a2, ExternalPlaceID: "poi-a"},
		{ID: blank, ExternalPlaceID: ""},
		{ID: c1, ExternalPlaceID: "poi-c"},
		{ID: a3, ExternalPlaceID: "poi-a"},
	})

	require.Len(t, merges, 1)
	assert.Equal(t, Merge{ExternalPlaceID: "poi-a", Keep: a1, Duplicates: []uuid.UUID{a2, a3}}, merges[0])
	assert.Empty(t, PlanDedup(nil))
}

func TestSweep_StalePlanWindow(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale, fresh, done := uuid.New(), uuid.New(), uuid.New()
	store.plans[stale] = memoryPlan{createdAt: now.Add(-25 * time.Hour)}
	store.plans[fresh] = memoryPlan{createdAt: now.Add(-1 * time.Hour)}
	store.plans[done] = memoryPlan{generated: true, createdAt: now.Add(-72 * time.Hour)}
	store.days[uuid.New()] = stale
	store.days[uuid.New()] = stale
	store.days[uuid.New()] = fresh

	svc := NewServiceImpl(store, 24*time.Hour, testLogger)
	svc.now = func() time.Time { return now }

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.StalePlans)
	assert.NotContains(t, store.plans, stale)
	assert.Contains(t, store.plans, fresh)
	assert.Contains(t, store.plans, done)
	assert.Len(t, store.days, 1)
	for _, planID := range store.days {
		assert.Equal(t, fresh, planID)
	}
}

func TestSweep_DedupRepointsPlans(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	first, second, other := uuid.New(), uuid.New(), uuid.New()
	planID := uuid.New()
	store.activities = []memoryActivity{
		{id: second, externalID: "poi-1", createdAt: now.Add(-time.Hour)},
		{id: first, externalID: "poi-1", createdAt: now.Add(-2 * time.Hour)},
		{id: other, externalID: "", createdAt: now},
	}
	store.planActivities[[2]uuid.UUID{planID, second}] = true

	report, err := NewServiceImpl(store, 24*time.Hour, testLogger).Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.DuplicateActivities)
	assert.EqualValues(t, 1, report.ActivitiesNoPlaceID)

	require.Len(t, store.activities, 1)
	assert.Equal(t, first, store.activities[0].id)
	assert.Equal(t, map[[2]uuid.UUID]bool{{planID, first}: true}, store.planActivities)
}

func TestSweep_StepsAreIndependent(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	keepA, dupA, keepB, dupB := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	store.failStep = KindStalePlans
	store.activities = []memoryActivity{
		{id: keepA, externalID: "a", createdAt: now.Add(-4 * time.Minute)},
		{id: keepB, externalID: "b", createdAt: now.Add(-3 * time.Minute)},
		{id: dupA, externalID: "a", createdAt: now.Add(-2 * time.Minute)},
		{id: dupB, externalID: "b", createdAt: now.Add(-1 * time.Minute)},
	}
	store.failMerge[keepA] = true

	report, err := NewServiceImpl(store, time.Hour, testLogger).Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), KindStalePlans)
	assert.Contains(t, err.Error(), "merge a")
	assert.EqualValues(t, 1, report.DuplicateActivities)
	assert.Len(t, store.activities, 3)
}

type blockingService struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingService) Sweep(ctx context.Context) (*Report, error) {
	b.calls.Add(1)
	if b.release != nil {
		<-b.release
	}
	return &Report{StalePlans: 2}, nil
}

func TestSweep_RefusesOverlap(t *testing.T) {
	svc := NewServiceImpl(newMemoryStore(), time.Hour, testLogger)
	svc.running.Lock()
	_, err := svc.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
	svc.running.Unlock()

	_, err = svc.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("every now and then", &blockingService{}, time.Second, testLogger)
	assert.Error(t, err)

	svc := &blockingService{}
	s, err := NewScheduler("@every 5m", svc, time.Second, testLogger)
	require.NoError(t, err)
	s.run()
	assert.EqualValues(t, 1, svc.calls.Load())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestHandler_RunCrons(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewHandler(&blockingService{}, testLogger).RunCrons(rr, httptest.NewRequest(http.MethodGet, "/clean-up/run-crons", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"response":"ok","report":{"stalePlans":2,"orphanTrips":0,"incompleteDestinations":0,
			"duplicateActivities":0,"activitiesWithoutPlaceId":0,"orphanImages":0}}`, rr.Body.String())
	})

	t.Run("already running", func(t *testing.T) {
		svc := NewServiceImpl(newMemoryStore(), time.Hour, testLogger)
		svc.running.Lock()
		defer svc.running.Unlock()

		rr := httptest.NewRecorder()
		NewHandler(svc, testLogger).RunCrons(rr, httptest.NewRequest(http.MethodGet, "/clean-up/run-crons", nil))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("step failure", func(t *testing.T) {
		store := newMemoryStore()
		store.failStep = KindOrphanImages
		rr := httptest.NewRecorder()
		NewHandler(NewServiceImpl(store, time.Hour, testLogger), testLogger).RunCrons(rr, httptest.NewRequest(http.MethodGet, "/clean-up/run-crons", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), `"report"`)
	})
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *RepositoryImpl) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewRepositoryImpl(mockPool, time.Second, testLogger)
}

func TestRepository_DeleteStalePlans(t *testing.T) {
	cutoff := time.Now().Add(-24 * time.Hour)

	t.Run("deletes children before plans", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		planID := uuid.New()
		ids := []uuid.UUID{planID}

		mockPool.ExpectBeginTx(pgx.TxOptions{})
		mockPool.ExpectQuery("SELECT id FROM plans WHERE generated = false AND created_at < \\$1").
			WithArgs(cutoff).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(planID))
		mockPool.ExpectExec("DELETE FROM plan_day_section_details").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 6))
		mockPool.ExpectExec("DELETE FROM plan_day_sections").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mockPool.ExpectExec("DELETE FROM plan_days").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectExec("DELETE FROM plan_activities").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec("DELETE FROM plans WHERE id").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectCommit()

		n, err := repo.DeleteStalePlans(context.Background(), cutoff)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("nothing to delete", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		mockPool.ExpectBeginTx(pgx.TxOptions{})
		mockPool.ExpectQuery("SELECT id FROM plans").WithArgs(cutoff).WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mockPool.ExpectRollback()

		n, err := repo.DeleteStalePlans(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("child delete failure rolls back", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)
		planID := uuid.New()
		dbErr := errors.New("lock timeout")
		mockPool.ExpectBeginTx(pgx.TxOptions{})
		mockPool.ExpectQuery("SELECT id FROM plans").WithArgs(cutoff).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(planID))
		mockPool.ExpectExec("DELETE FROM plan_day_section_details").WithArgs([]uuid.UUID{planID}).WillReturnError(dbErr)
		mockPool.ExpectRollback()

		_, err := repo.DeleteStalePlans(context.Background(), cutoff)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_DeleteIncompleteDestinations(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	destinationID := uuid.New()
	ids := []uuid.UUID{destinationID}

	mockPool.ExpectBeginTx(pgx.TxOptions{})
	mockPool.ExpectQuery("SELECT id FROM destinations WHERE created_at < \\$1 AND \\(title = ''").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(destinationID))
	mockPool.ExpectExec("DELETE FROM destination_images").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mockPool.ExpectExec("DELETE FROM activities").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 20))
	mockPool.ExpectExec("DELETE FROM hotels").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mockPool.ExpectExec("DELETE FROM destinations WHERE id").WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectCommit()

	n, err := repo.DeleteIncompleteDestinations(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_MergeActivities(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	keep, dup := uuid.New(), uuid.New()

	mockPool.ExpectBeginTx(pgx.TxOptions{})
	mockPool.ExpectExec("INSERT INTO plan_activities (.+) ON CONFLICT DO NOTHING").
		WithArgs(keep, []uuid.UUID{dup}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("DELETE FROM activities WHERE id").
		WithArgs([]uuid.UUID{dup}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectCommit()

	require.NoError(t, repo.MergeActivities(context.Background(), Merge{ExternalPlaceID: "poi-1", Keep: keep, Duplicates: []uuid.UUID{dup}}))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_SimpleDeletes(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	cutoff := time.Now()

	mockPool.ExpectExec("DELETE FROM trips WHERE \\(plan_id IS NULL OR user_id IS NULL\\)").
		WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mockPool.ExpectExec("DELETE FROM activities WHERE external_place_id = ''").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mockPool.ExpectExec("DELETE FROM destination_images WHERE destination_id IS NULL").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mockPool.ExpectQuery("SELECT id, external_place_id FROM activities").
		WillReturnRows(pgxmock.NewRows([]string{"id", "external_place_id"}).AddRow(uuid.New(), "poi-1"))

	ctx := context.Background()
	n, err := repo.DeleteOrphanTrips(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = repo.DeleteActivitiesWithoutPlaceID(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = repo.DeleteOrphanImages(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	keys, err := repo.ListActivitiesForDedup(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
