package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/pkg/logger"
)

type stubLedgerProvider struct {
	ledger *entities.LiquidityLedger
}

func (s *stubLedgerProvider) Get(_ context.Context, _ entities.Pool) (*entities.LiquidityLedger, error) {
	return s.ledger, nil
}

// memSnapshotRepo mimics the (pool, date) uniqueness constraint of the
// postgres implementation
type memSnapshotRepo struct {
	liquidity []*entities.LiquiditySnapshot
	portfolio []*entities.PortfolioSnapshot
}

func (r *memSnapshotRepo) InsertLiquidity(_ context.Context, snapshot *entities.LiquiditySnapshot) (bool, error) {
	for _, existing := range r.liquidity {
		if existing.Pool == snapshot.Pool && existing.SnapshotDate.Equal(snapshot.SnapshotDate) {
			return false, nil
		}
	}
	r.liquidity = append(r.liquidity, snapshot)
	return true, nil
}

func (r *memSnapshotRepo) InsertPortfolio(_ context.Context, snapshot *entities.PortfolioSnapshot) (bool, error) {
	for _, existing := range r.portfolio {
		if existing.Pool == snapshot.Pool && existing.SnapshotDate.Equal(snapshot.SnapshotDate) {
			return false, nil
		}
	}
	r.portfolio = append(r.portfolio, snapshot)
	return true, nil
}

func (r *memSnapshotRepo) LatestLiquidityOnOrBefore(_ context.Context, pool entities.Pool, at time.Time) (*entities.LiquiditySnapshot, error) {
	var best *entities.LiquiditySnapshot
	for _, snapshot := range r.liquidity {
		if snapshot.Pool != pool || snapshot.SnapshotDate.After(at) {
			continue
		}
		if best == nil || snapshot.SnapshotDate.After(best.SnapshotDate) {
			best = snapshot
		}
	}
	return best, nil
}

func (r *memSnapshotRepo) LatestPortfolioOnOrBefore(_ context.Context, pool entities.Pool, at time.Time) (*entities.PortfolioSnapshot, error) {
	var best *entities.PortfolioSnapshot
	for _, snapshot := range r.portfolio {
		if snapshot.Pool != pool || snapshot.SnapshotDate.After(at) {
			continue
		}
		if best == nil || snapshot.SnapshotDate.After(best.SnapshotDate) {
			best = snapshot
		}
	}
	return best, nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func fundedLedger(t *testing.T, amount float64) *entities.LiquidityLedger {
	t.Helper()
	ledger := entities.NewLiquidityLedger(entities.PoolTraderCall)
	require.NoError(t, ledger.Fund(dec(amount)))
	return ledger
}

func newTestService(t *testing.T, ledger *entities.LiquidityLedger) (*Service, *memSnapshotRepo) {
	t.Helper()
	repo := &memSnapshotRepo{}
	service := NewService(
		&stubLedgerProvider{ledger: ledger},
		repo,
		nil,
		time.UTC,
		time.Minute,
		logger.New("error", "test"),
	)
	return service, repo
}

func TestRecordDailyLiquidity_IdempotentPerDay(t *testing.T) {
	service, repo := newTestService(t, fundedLedger(t, 1000))
	ctx := context.Background()

	_, created, err := service.RecordDailyLiquidity(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.True(t, created)

	// Second call the same day is a no-op, not an error
	_, created, err = service.RecordDailyLiquidity(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, repo.liquidity, 1)
}

func TestRecordDailyLiquidity_CopiesLedgerTotals(t *testing.T) {
	ledger := fundedLedger(t, 1000)
	service, repo := newTestService(t, ledger)

	snapshot, _, err := service.RecordDailyLiquidity(context.Background(), entities.PoolTraderCall)
	require.NoError(t, err)

	assert.True(t, snapshot.TotalLiquidity.Equal(ledger.TotalLiquidity))
	assert.True(t, snapshot.AvailableLiquidity.Equal(ledger.AvailableLiquidity))
	assert.Equal(t, repo.liquidity[0].ID, snapshot.ID)
}

func TestRecordPortfolio_IdempotentPerDay(t *testing.T) {
	service, repo := newTestService(t, fundedLedger(t, 1000))
	ctx := context.Background()

	_, created, err := service.RecordPortfolio(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = service.RecordPortfolio(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, repo.portfolio, 1)
}

func TestCalculateReturns_NearestBackwardSearch(t *testing.T) {
	ledger := fundedLedger(t, 1100)
	service, repo := newTestService(t, ledger)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	// Snapshot 9 days back; the 7d target date (24th) falls back to it
	repo.liquidity = append(repo.liquidity, &entities.LiquiditySnapshot{
		Pool:           entities.PoolTraderCall,
		SnapshotDate:   time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC),
		TotalLiquidity: dec(1000),
	})

	results, err := service.CalculateReturns(context.Background(), entities.PoolTraderCall,
		[]entities.ReturnPeriod{{Label: "7d", Days: 7}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Value)
	assert.True(t, results[0].Value.Equal(dec(10)), "got %s", results[0].Value.String())
	assert.Equal(t, 22, results[0].SnapshotDate.Day())
}

func TestCalculateReturns_NeverUsesFutureSnapshot(t *testing.T) {
	ledger := fundedLedger(t, 1100)
	service, repo := newTestService(t, ledger)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	// Only snapshot is newer than the 30d target date
	repo.liquidity = append(repo.liquidity, &entities.LiquiditySnapshot{
		Pool:           entities.PoolTraderCall,
		SnapshotDate:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		TotalLiquidity: dec(1000),
	})

	results, err := service.CalculateReturns(context.Background(), entities.PoolTraderCall,
		[]entities.ReturnPeriod{{Label: "30d", Days: 30}})
	require.NoError(t, err)
	assert.Nil(t, results[0].Value)
}

func TestCalculateReturns_MissingSnapshotYieldsNil(t *testing.T) {
	service, _ := newTestService(t, fundedLedger(t, 1000))

	results, err := service.CalculateReturns(context.Background(), entities.PoolTraderCall,
		entities.DefaultReturnPeriods())
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, result := range results {
		assert.Nil(t, result.Value, "period %s should be nil without snapshots", result.Period)
	}
}

func TestCalculateReturns_ZeroHistoricalYieldsNil(t *testing.T) {
	service, repo := newTestService(t, fundedLedger(t, 1000))
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	repo.liquidity = append(repo.liquidity, &entities.LiquiditySnapshot{
		Pool:           entities.PoolTraderCall,
		SnapshotDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		TotalLiquidity: decimal.Zero,
	})

	results, err := service.CalculateReturns(context.Background(), entities.PoolTraderCall,
		[]entities.ReturnPeriod{{Label: "30d", Days: 30}})
	require.NoError(t, err)
	assert.Nil(t, results[0].Value)
}

func TestCurrentValue_ProjectsLedger(t *testing.T) {
	ledger := fundedLedger(t, 1000)
	service, _ := newTestService(t, ledger)

	value, err := service.CurrentValue(context.Background(), entities.PoolTraderCall)
	require.NoError(t, err)
	assert.True(t, value.TotalLiquidity.Equal(dec(1000)))
	assert.Equal(t, 0, value.ActiveDistributions)
}
