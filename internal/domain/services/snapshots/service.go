package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/pkg/logger"
	"github.com/pool-service/pool_service/pkg/metrics"
)

// LedgerProvider supplies the current ledger state for a pool
type LedgerProvider interface {
	Get(ctx context.Context, pool entities.Pool) (*entities.LiquidityLedger, error)
}

// SnapshotRepository is the persistence port for snapshots. Insert* must be
// idempotent per (pool, date): the database uniqueness constraint turns a
// duplicate insert into created=false, never an error. Latest* return
// (nil, nil) when no snapshot qualifies.
type SnapshotRepository interface {
	InsertLiquidity(ctx context.Context, snapshot *entities.LiquiditySnapshot) (bool, error)
	InsertPortfolio(ctx context.Context, snapshot *entities.PortfolioSnapshot) (bool, error)
	LatestLiquidityOnOrBefore(ctx context.Context, pool entities.Pool, at time.Time) (*entities.LiquiditySnapshot, error)
	LatestPortfolioOnOrBefore(ctx context.Context, pool entities.Pool, at time.Time) (*entities.PortfolioSnapshot, error)
}

// Cache is a read-side cache for current-value projections
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service records daily snapshots and computes period returns against them
type Service struct {
	ledgers   LedgerProvider
	snapshots SnapshotRepository
	cache     Cache
	location  *time.Location
	cacheTTL  time.Duration
	logger    *logger.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewService creates a new snapshot service. location is the reference
// timezone that defines calendar days; cache may be nil.
func NewService(ledgers LedgerProvider, snapshots SnapshotRepository, cache Cache, location *time.Location, cacheTTL time.Duration, logger *logger.Logger) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		ledgers:   ledgers,
		snapshots: snapshots,
		cache:     cache,
		location:  location,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordDailyLiquidity copies the ledger's current totals into a snapshot
// dated to the start of today in the reference timezone. Safe to invoke any
// number of times per day; only the first call creates a row.
func (s *Service) RecordDailyLiquidity(ctx context.Context, pool entities.Pool) (*entities.LiquiditySnapshot, bool, error) {
	day := s.startOfToday()
	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load ledger for snapshot: %w", err)
	}

	snapshot := entities.SnapshotFromLedger(ledger, day)
	created, err := s.snapshots.InsertLiquidity(ctx, snapshot)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record liquidity snapshot: %w", err)
	}

	outcome := "created"
	if !created {
		outcome = "duplicate"
	}
	metrics.SnapshotsRecordedTotal.WithLabelValues(string(pool), "liquidity", outcome).Inc()
	s.logger.Info("Liquidity snapshot recorded",
		"pool", pool,
		"date", day.Format("2006-01-02"),
		"created", created,
		"total_liquidity", snapshot.TotalLiquidity.String(),
	)
	return snapshot, created, nil
}

// RecordPortfolio captures the close-adjacent portfolio snapshot for today.
// Same idempotence contract as RecordDailyLiquidity.
func (s *Service) RecordPortfolio(ctx context.Context, pool entities.Pool) (*entities.PortfolioSnapshot, bool, error) {
	day := s.startOfToday()
	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load ledger for snapshot: %w", err)
	}

	snapshot := entities.PortfolioSnapshotFromLedger(ledger, day)
	created, err := s.snapshots.InsertPortfolio(ctx, snapshot)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record portfolio snapshot: %w", err)
	}

	outcome := "created"
	if !created {
		outcome = "duplicate"
	}
	metrics.SnapshotsRecordedTotal.WithLabelValues(string(pool), "portfolio", outcome).Inc()
	s.logger.Info("Portfolio snapshot recorded",
		"pool", pool,
		"date", day.Format("2006-01-02"),
		"created", created,
	)
	return snapshot, created, nil
}

// CalculateReturns compares the ledger's current total liquidity against the
// most recent liquidity snapshot at or before each period's target date. A
// period with no qualifying snapshot, or whose historical total was zero,
// yields a nil value — never zero and never an error.
func (s *Service) CalculateReturns(ctx context.Context, pool entities.Pool, periods []entities.ReturnPeriod) ([]entities.PeriodReturn, error) {
	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for returns: %w", err)
	}
	current := ledger.TotalLiquidity
	now := s.now().In(s.location)

	results := make([]entities.PeriodReturn, 0, len(periods))
	for _, period := range periods {
		target := period.TargetDate(now)
		snapshot, err := s.snapshots.LatestLiquidityOnOrBefore(ctx, pool, target)
		if err != nil {
			return nil, fmt.Errorf("failed to look up snapshot for period %s: %w", period.Label, err)
		}

		result := entities.PeriodReturn{Period: period.Label}
		if snapshot != nil && snapshot.TotalLiquidity.IsPositive() {
			value := current.Sub(snapshot.TotalLiquidity).
				Div(snapshot.TotalLiquidity).Mul(decimal.NewFromInt(100))
			result.Value = &value
			date := snapshot.SnapshotDate
			result.SnapshotDate = &date
		}
		results = append(results, result)
	}
	return results, nil
}

// CalculatePortfolioReturns is the portfolio-snapshot variant of
// CalculateReturns, comparing valuation-at-close rather than liquidity-at-open.
func (s *Service) CalculatePortfolioReturns(ctx context.Context, pool entities.Pool, periods []entities.ReturnPeriod) ([]entities.PeriodReturn, error) {
	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for returns: %w", err)
	}
	current := ledger.TotalLiquidity
	now := s.now().In(s.location)

	results := make([]entities.PeriodReturn, 0, len(periods))
	for _, period := range periods {
		target := period.TargetDate(now)
		snapshot, err := s.snapshots.LatestPortfolioOnOrBefore(ctx, pool, target)
		if err != nil {
			return nil, fmt.Errorf("failed to look up snapshot for period %s: %w", period.Label, err)
		}

		result := entities.PeriodReturn{Period: period.Label}
		if snapshot != nil && snapshot.TotalLiquidity.IsPositive() {
			value := current.Sub(snapshot.TotalLiquidity).
				Div(snapshot.TotalLiquidity).Mul(decimal.NewFromInt(100))
			result.Value = &value
			date := snapshot.SnapshotDate
			result.SnapshotDate = &date
		}
		results = append(results, result)
	}
	return results, nil
}

// CurrentValue returns the read-side projection of a pool's value, served
// from cache when fresh.
func (s *Service) CurrentValue(ctx context.Context, pool entities.Pool) (*entities.CurrentValue, error) {
	cacheKey := fmt.Sprintf("pool:current-value:%s", pool)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil && raw != nil {
			var cached entities.CurrentValue
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, err
	}
	value := &entities.CurrentValue{
		Pool:                      pool,
		TotalLiquidity:            ledger.TotalLiquidity,
		AvailableLiquidity:        ledger.AvailableLiquidity,
		DistributedLiquidity:      ledger.DistributedLiquidity,
		TotalProfitLoss:           ledger.TotalProfitLoss,
		TotalProfitLossPercentage: ledger.TotalProfitLossPercentage,
		ActiveDistributions:       len(ledger.ActiveDistributions()),
		AsOf:                      s.now().UTC(),
	}

	if s.cache != nil {
		if raw, err := json.Marshal(value); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL); err != nil {
				s.logger.Warn("Failed to cache current value", "pool", pool, "error", err)
			}
		}
	}
	return value, nil
}

func (s *Service) startOfToday() time.Time {
	now := s.now().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
}
