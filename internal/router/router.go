package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appMiddleware "github.com/FACorreiaa/go-trip-planner/app/middleware"
	"github.com/FACorreiaa/go-trip-planner/internal/api/destination"
	"github.com/FACorreiaa/go-trip-planner/internal/api/plan"
	"github.com/FACorreiaa/go-trip-planner/internal/api/retention"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
)

// Config contains dependencies needed for the router setup
type Config struct {
	PlanHandler        *plan.Handler
	TripHandler        *trip.Handler
	DestinationHandler *destination.Handler
	RetentionHandler   *retention.Handler
	// APIKey guards the operational routes. Empty leaves them open.
	APIKey         string
	AllowedOrigins []string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appMiddleware.UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(appMiddleware.ForwardedUser)

		r.Post("/plan", cfg.PlanHandler.CreatePlan)
		r.Get("/plan/{planID}", cfg.PlanHandler.GetPlan)
		r.Get("/plan/{planID}/events", cfg.PlanHandler.PlanEvents)
		r.Get("/trips/{tripID}", cfg.TripHandler.GetTrip)

		// Operational routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAPIKey(cfg.APIKey))
			r.Get("/destination-details", cfg.DestinationHandler.DestinationDetails)
			r.Get("/clean-up/run-crons", cfg.RetentionHandler.RunCrons)
		})
	})

	return r
}

// ParseOrigins splits a comma separated origin list, dropping blanks.
func ParseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
