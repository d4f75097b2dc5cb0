package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the sweep on a cron schedule such as "@every 5m".
type Scheduler struct {
	cron    *cron.Cron
	service Service
	timeout time.Duration
	logger  *slog.Logger
}

func NewScheduler(schedule string, service Service, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger.With(slog.String("component", "retention_cron"))}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		service: service,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.service.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
		s.logger.ErrorContext(ctx, "Scheduled retention sweep failed", slog.Any("error", err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Retention scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop prevents new runs and waits for a running sweep or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Retention sweep still running at shutdown")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
