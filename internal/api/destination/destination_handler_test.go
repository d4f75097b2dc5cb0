package destination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

func TestHandler_DestinationDetails(t *testing.T) {
	tripID := uuid.New()

	t.Run("queues and answers ok", func(t *testing.T) {
		f := newFixture()
		f.repo.On("GetByTripID", mock.Anything, tripID).Return(&types.Destination{ID: uuid.New()}, nil).Once()

		rr := httptest.NewRecorder()
		NewHandler(f.service, testLogger).DestinationDetails(rr,
			httptest.NewRequest(http.MethodGet, "/destination-details?tripid="+tripID.String(), nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"response":"ok"}`, rr.Body.String())
		assert.Len(t, f.jobs.jobs, 1)
	})

	tests := []struct {
		name       string
		query      string
		lookupErr  error
		submitErr  error
		wantStatus int
		wantBody   string
	}{
		{name: "missing id", query: "", wantStatus: http.StatusBadRequest, wantBody: "missing tripid"},
		{name: "malformed id", query: "?tripid=abc", wantStatus: http.StatusBadRequest, wantBody: "missing tripid"},
		{name: "unknown trip", query: "?tripid=" + tripID.String(), lookupErr: trip.ErrTripNotFound, wantStatus: http.StatusNotFound, wantBody: "trip not found"},
		{name: "no destination", query: "?tripid=" + tripID.String(), lookupErr: ErrDestinationNotFound, wantStatus: http.StatusNotFound, wantBody: "destination not found"},
		{name: "queue full", query: "?tripid=" + tripID.String(), submitErr: worker.ErrQueueFull, wantStatus: http.StatusServiceUnavailable, wantBody: "busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.jobs.err = tt.submitErr
			if tt.lookupErr != nil {
				f.repo.On("GetByTripID", mock.Anything, tripID).Return(nil, tt.lookupErr).Once()
			} else {
				f.repo.On("GetByTripID", mock.Anything, tripID).Return(&types.Destination{ID: uuid.New()}, nil).Maybe()
			}

			rr := httptest.NewRecorder()
			NewHandler(f.service, testLogger).DestinationDetails(rr,
				httptest.NewRequest(http.MethodGet, "/destination-details"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
			assert.Empty(t, f.jobs.jobs)
		})
	}
}
