package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	PlansRequestedTotal         metric.Int64Counter
	PlansGeneratedTotal         metric.Int64Counter
	PlanGenerationFailuresTotal metric.Int64Counter
	PlanGenerationDuration      metric.Float64Histogram
	LLMRequestsTotal            metric.Int64Counter
	LLMRequestDuration          metric.Float64Histogram
	LLMReplyRejectionsTotal     metric.Int64Counter
	EnrichmentFailuresTotal     metric.Int64Counter
	RetentionDeletedTotal       metric.Int64Counter
	WorkerJobsTotal             metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("TripPlanner")
		m := &AppMetrics{}

		m.PlansRequestedTotal = int64Counter(meter, "plans_requested_total", "Plan requests accepted", "{plan}")
		m.PlansGeneratedTotal = int64Counter(meter, "plans_generated_total", "Plans committed with generated=true", "{plan}")
		m.PlanGenerationFailuresTotal = int64Counter(meter, "plan_generation_failures_total", "Plan pipelines that ended in failure", "{plan}")
		m.PlanGenerationDuration = float64Histogram(meter, "plan_generation_duration_seconds", "Wall time of a plan pipeline", "s")
		m.LLMRequestsTotal = int64Counter(meter, "llm_requests_total", "LLM completion calls", "{request}")
		m.LLMRequestDuration = float64Histogram(meter, "llm_request_duration_seconds", "Latency of LLM completion calls", "s")
		m.LLMReplyRejectionsTotal = int64Counter(meter, "llm_reply_rejections_total", "Day-plan replies rejected by the decoder", "{reply}")
		m.EnrichmentFailuresTotal = int64Counter(meter, "enrichment_failures_total", "Enrichment subtasks that failed", "{error}")
		m.RetentionDeletedTotal = int64Counter(meter, "retention_deleted_total", "Rows removed by the retention sweep", "{row}")
		m.WorkerJobsTotal = int64Counter(meter, "worker_jobs_total", "Background jobs by outcome", "{job}")

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}

func int64Counter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

func float64Histogram(meter metric.Meter, name, description, unit string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return h
}
