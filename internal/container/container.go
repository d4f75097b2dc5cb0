package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-trip-planner/app/db"
	"github.com/FACorreiaa/go-trip-planner/app/worker"
	"github.com/FACorreiaa/go-trip-planner/config"
	"github.com/FACorreiaa/go-trip-planner/internal/api/destination"
	"github.com/FACorreiaa/go-trip-planner/internal/api/events"
	generativeAI "github.com/FACorreiaa/go-trip-planner/internal/api/generative_ai"
	llmInteraction "github.com/FACorreiaa/go-trip-planner/internal/api/llm_interaction"
	"github.com/FACorreiaa/go-trip-planner/internal/api/plan"
	"github.com/FACorreiaa/go-trip-planner/internal/api/providers"
	"github.com/FACorreiaa/go-trip-planner/internal/api/retention"
	"github.com/FACorreiaa/go-trip-planner/internal/api/trip"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Workers   *worker.Pool
	Events    *events.Hub
	Scheduler *retention.Scheduler

	PlanHandler        *plan.Handler
	TripHandler        *trip.Handler
	DestinationHandler *destination.Handler
	RetentionHandler   *retention.Handler
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	llmClient, err := generativeAI.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	workers := worker.NewPool(cfg.Plan.Workers, cfg.Plan.QueueSize, logger)
	hub := events.NewHub(logger)

	// LLM exchange log shared by every component that talks to the model
	llmRepo := llmInteraction.NewRepositoryImpl(pool, logger)
	recorder := llmInteraction.NewRecorder(llmRepo, logger)

	// destination
	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}
	destinationRepo := destination.NewRepositoryImpl(pool, logger)
	destinationService := destination.NewServiceImpl(
		destinationRepo,
		newProviders(cfg, httpClient, logger),
		llmClient,
		recorder,
		workers,
		cfg.Providers.Places.MaxImages,
		cfg.Providers.Places.ThumbnailWidth,
		logger,
	)
	destinationHandler := destination.NewHandler(destinationService, logger)

	// plan + trip
	planRepo := plan.NewRepositoryImpl(pool, cfg.Plan.TxMaxWait, cfg.Plan.TxTimeout, logger)
	tripRepo := trip.NewRepositoryImpl(pool, logger)
	tripService := trip.NewServiceImpl(tripRepo, planRepo, logger)
	tripHandler := trip.NewHandler(tripService, logger)

	planService := plan.NewServiceImpl(
		planRepo,
		destinationService,
		tripService,
		plan.NewOutlineGenerator(llmClient, recorder, logger),
		plan.NewDayPlanExpander(llmClient, recorder, cfg.LLM.MaxConcurrentDays, logger),
		hub,
		workers,
		plan.Limits{
			MaxDays:    cfg.Plan.MaxDays,
			Durations:  cfg.Plan.Durations,
			StaleAfter: cfg.Plan.StaleAfter,
		},
		logger,
	)
	planHandler := plan.NewHandler(planService, hub, logger)

	// retention
	retentionRepo := retention.NewRepositoryImpl(pool, cfg.Plan.TxTimeout, logger)
	retentionService := retention.NewServiceImpl(retentionRepo, cfg.Retention.Threshold, logger)
	scheduler, err := retention.NewScheduler(cfg.Retention.Schedule, retentionService, cfg.Server.Timeout, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	retentionHandler := retention.NewHandler(retentionService, logger)

	return &Container{
		Config:             cfg,
		Logger:             logger,
		Pool:               pool,
		Workers:            workers,
		Events:             hub,
		Scheduler:          scheduler,
		PlanHandler:        planHandler,
		TripHandler:        tripHandler,
		DestinationHandler: destinationHandler,
		RetentionHandler:   retentionHandler,
	}, nil
}

func newProviders(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) destination.Providers {
	p := cfg.Providers
	rapidKey := os.Getenv("RAPID_API_KEY")

	return destination.Providers{
		Listings: providers.NewAmadeusClient(providers.AmadeusConfig{
			BaseURL:           p.Amadeus.BaseURL,
			APIKey:            os.Getenv("AMADEUS_API_KEY"),
			APISecret:         os.Getenv("AMADEUS_API_SECRET"),
			RadiusKm:          p.Amadeus.RadiusKm,
			POIPageSize:       p.Amadeus.POIPageSize,
			POIMaxResults:     p.Amadeus.POIMaxResults,
			RequestsPerSecond: p.Amadeus.RequestsPerSecond,
			MaxRetries:        p.MaxRetries,
		}, httpClient, logger),
		Places: providers.NewPlacesClient(providers.PlacesConfig{
			BaseURL:       p.Places.BaseURL,
			APIKey:        os.Getenv("GOOGLE_PLACES_API_KEY"),
			PhotoMaxWidth: p.Places.PhotoMaxWidth,
			MaxRetries:    p.MaxRetries,
		}, httpClient, logger),
		Climate: providers.NewMeteostatClient(providers.RapidAPIConfig{
			BaseURL:    p.Meteostat.BaseURL,
			Host:       p.Meteostat.Host,
			APIKey:     rapidKey,
			MaxRetries: p.MaxRetries,
		}, p.Meteostat.StartYear, p.Meteostat.EndYear, httpClient, logger),
		CostOfLiving: providers.NewCostOfLivingClient(providers.RapidAPIConfig{
			BaseURL:    p.CostOfLiving.BaseURL,
			Host:       p.CostOfLiving.Host,
			APIKey:     rapidKey,
			MaxRetries: p.MaxRetries,
		}, httpClient, logger),
	}
}

// Start launches the background consumers: worker error logging and the
// retention schedule.
func (c *Container) Start() {
	go func() {
		for jobErr := range c.Workers.Errors() {
			c.Logger.Error("Background job failed", slog.String("job", jobErr.Job), slog.Any("error", jobErr.Err))
		}
	}()
	c.Scheduler.Start()
}

// Shutdown stops the schedule and drains queued jobs before closing the pool.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Scheduler.Stop(ctx)
	err := c.Workers.Shutdown(ctx)
	c.Close()
	if err != nil {
		return fmt.Errorf("worker pool did not drain: %w", err)
	}
	return nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}
