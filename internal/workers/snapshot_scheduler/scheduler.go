package snapshot_scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pool-service/pool_service/internal/domain/entities"
)

// SnapshotService is the slice of the snapshot service the scheduler drives
type SnapshotService interface {
	RecordDailyLiquidity(ctx context.Context, pool entities.Pool) (*entities.LiquiditySnapshot, bool, error)
	RecordPortfolio(ctx context.Context, pool entities.Pool) (*entities.PortfolioSnapshot, bool, error)
}

// Config tunes the daily snapshot jobs
type Config struct {
	// Cron expression for the day-start liquidity snapshot
	LiquiditySchedule string `json:"liquidity_schedule"`
	// Cron expression for the close-adjacent portfolio snapshot
	PortfolioSchedule string `json:"portfolio_schedule"`
	// Timezone the cron expressions are evaluated in
	Timezone string `json:"timezone"`
	// Per-job timeout
	JobTimeout time.Duration `json:"job_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LiquiditySchedule: "5 0 * * *",
		PortfolioSchedule: "0 18 * * *",
		Timezone:          "America/Argentina/Buenos_Aires",
		JobTimeout:        2 * time.Minute,
	}
}

// JobStatistics tracks scheduler runs across both job kinds
type JobStatistics struct {
	TotalRuns       int64         `json:"total_runs"`
	SuccessfulRuns  int64         `json:"successful_runs"`
	FailedRuns      int64         `json:"failed_runs"`
	SnapshotsTaken  int64         `json:"snapshots_taken"`
	DuplicatesSeen  int64         `json:"duplicates_seen"`
	LastRunTime     time.Time     `json:"last_run_time"`
	LastRunDuration time.Duration `json:"last_run_duration"`
}

// zapCronLogger wraps zap.Logger to implement cron's logger interface
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Printf(format string, args ...interface{}) {
	l.logger.Sugar().Infof(format, args...)
}

// Scheduler runs the daily liquidity and portfolio snapshot jobs for every
// pool. Both jobs are idempotent per day, so an extra trigger after a restart
// is harmless.
type Scheduler struct {
	cron      *cron.Cron
	snapshots SnapshotService
	config    *Config
	logger    *zap.Logger

	mu       sync.RWMutex
	running  bool
	nextRun  time.Time
	jobStats *JobStatistics
}

// NewScheduler creates a new snapshot scheduler
func NewScheduler(snapshots SnapshotService, config *Config, logger *zap.Logger) (*Scheduler, error) {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", config.Timezone, err)
	}

	cronLogger := &zapCronLogger{logger: logger}
	c := cron.New(cron.WithLocation(location), cron.WithLogger(cron.VerbosePrintfLogger(cronLogger)))

	scheduler := &Scheduler{
		cron:      c,
		snapshots: snapshots,
		config:    config,
		logger:    logger,
		jobStats:  &JobStatistics{},
	}

	logger.Info("Snapshot scheduler created",
		zap.String("liquidity_schedule", config.LiquiditySchedule),
		zap.String("portfolio_schedule", config.PortfolioSchedule),
		zap.String("timezone", config.Timezone),
	)

	return scheduler, nil
}

// Start begins the scheduled job execution
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if _, err := s.cron.AddFunc(s.config.LiquiditySchedule, s.runLiquidityJob); err != nil {
		return fmt.Errorf("failed to add liquidity snapshot job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.config.PortfolioSchedule, s.runPortfolioJob); err != nil {
		return fmt.Errorf("failed to add portfolio snapshot job: %w", err)
	}

	s.cron.Start()
	s.running = true

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.nextRun = entries[0].Next
	}

	s.logger.Info("Snapshot scheduler started", zap.Time("next_run", s.nextRun))
	return nil
}

// Stop halts the scheduled job execution
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info("Snapshot scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Snapshot scheduler stop timed out")
	}

	s.running = false
	return nil
}

// Stats returns a copy of the accumulated job statistics
func (s *Scheduler) Stats() JobStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.jobStats
}

func (s *Scheduler) runLiquidityJob() {
	s.runJob("liquidity", func(ctx context.Context, pool entities.Pool) (bool, error) {
		_, created, err := s.snapshots.RecordDailyLiquidity(ctx, pool)
		return created, err
	})
}

func (s *Scheduler) runPortfolioJob() {
	s.runJob("portfolio", func(ctx context.Context, pool entities.Pool) (bool, error) {
		_, created, err := s.snapshots.RecordPortfolio(ctx, pool)
		return created, err
	})
}

// runJob records one snapshot kind for every pool; a failure on one pool
// never blocks the others
func (s *Scheduler) runJob(kind string, record func(context.Context, entities.Pool) (bool, error)) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()

	failed := false
	for _, pool := range entities.AllPools() {
		created, err := record(ctx, pool)
		if err != nil {
			failed = true
			s.logger.Error("Snapshot job failed for pool",
				zap.String("kind", kind),
				zap.String("pool", string(pool)),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		if created {
			s.jobStats.SnapshotsTaken++
		} else {
			s.jobStats.DuplicatesSeen++
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.jobStats.TotalRuns++
	if failed {
		s.jobStats.FailedRuns++
	} else {
		s.jobStats.SuccessfulRuns++
	}
	s.jobStats.LastRunTime = start
	s.jobStats.LastRunDuration = time.Since(start)
	s.mu.Unlock()

	s.logger.Info("Snapshot job finished",
		zap.String("kind", kind),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("had_failures", failed),
	)
}
