package liquidity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pool-service/pool_service/internal/domain/entities"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
)

// memLedgerRepo is an in-memory LedgerRepository with optimistic locking,
// mirroring the behavior of the postgres implementation
type memLedgerRepo struct {
	ledgers   map[entities.Pool]*entities.LiquidityLedger
	saveCalls int
	failNext  error
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{ledgers: make(map[entities.Pool]*entities.LiquidityLedger)}
}

func (r *memLedgerRepo) GetByPool(_ context.Context, pool entities.Pool) (*entities.LiquidityLedger, error) {
	ledger, ok := r.ledgers[pool]
	if !ok {
		return nil, apperrors.LedgerNotFound(string(pool))
	}
	copied := *ledger
	copied.Distributions = append([]entities.Distribution(nil), ledger.Distributions...)
	return &copied, nil
}

func (r *memLedgerRepo) Save(_ context.Context, ledger *entities.LiquidityLedger) error {
	r.saveCalls++
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if stored, ok := r.ledgers[ledger.Pool]; ok && stored.Version != ledger.Version {
		return apperrors.VersionConflict(string(ledger.Pool))
	}
	ledger.Version++
	copied := *ledger
	copied.Distributions = append([]entities.Distribution(nil), ledger.Distributions...)
	r.ledgers[ledger.Pool] = &copied
	return nil
}

func newTestService() (*Service, *memLedgerRepo) {
	repo := newMemLedgerRepo()
	return NewService(repo, logger.New("error", "test")), repo
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestGet_LazyInitialization(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()

	ledger, err := service.Get(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.Equal(t, entities.PoolTraderCall, ledger.Pool)
	assert.True(t, ledger.TotalLiquidity.IsZero())
	assert.Empty(t, ledger.Distributions)
	assert.Equal(t, 1, repo.saveCalls, "first access persists the empty ledger")

	// Second access loads the stored ledger, no re-init
	_, err = service.Get(ctx, entities.PoolTraderCall)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.saveCalls)
}

func TestFund_PersistsAndRecalculates(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()

	ledger, err := service.Fund(ctx, entities.PoolTraderCall, dec(1000))
	require.NoError(t, err)
	assert.True(t, ledger.TotalLiquidity.Equal(dec(1000)))
	assert.True(t, ledger.AvailableLiquidity.Equal(dec(1000)))

	stored := repo.ledgers[entities.PoolTraderCall]
	assert.True(t, stored.InitialLiquidity.Equal(dec(1000)))
}

func TestFund_RejectsNonPositive(t *testing.T) {
	service, _ := newTestService()

	_, err := service.Fund(context.Background(), entities.PoolTraderCall, decimal.Zero)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestAllocateSellRemove_EndToEnd(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	pool := entities.PoolSmartMoney
	positionID := uuid.New()

	_, err := service.Fund(ctx, pool, dec(1000))
	require.NoError(t, err)

	dist, err := service.Allocate(ctx, pool, positionID, "NVDA", dec(10), dec(10))
	require.NoError(t, err)
	assert.True(t, dist.AllocatedAmount.Equal(dec(100)))
	assert.True(t, dist.Shares.Equal(dec(10)))

	_, err = service.RevaluePosition(ctx, pool, positionID, dec(12))
	require.NoError(t, err)

	sellResult, err := service.Sell(ctx, pool, positionID, dec(5), dec(12))
	require.NoError(t, err)
	assert.True(t, sellResult.RealizedPL.Equal(dec(10)))
	assert.False(t, sellResult.Closed)

	removeResult, err := service.Remove(ctx, pool, positionID)
	require.NoError(t, err)
	assert.True(t, removeResult.CashReturned.Equal(dec(60)))

	ledger, err := service.Get(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, ledger.Distributions)
	assert.True(t, ledger.TotalProfitLoss.Equal(dec(20)))
	assert.True(t, ledger.AvailableLiquidity.Equal(dec(1020)))
	require.NoError(t, ledger.CheckInvariants())
}

func TestSell_InsufficientShares_NoSideEffects(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	pool := entities.PoolTraderCall
	positionID := uuid.New()

	_, err := service.Fund(ctx, pool, dec(1000))
	require.NoError(t, err)
	_, err = service.Allocate(ctx, pool, positionID, "AAPL", dec(10), dec(10))
	require.NoError(t, err)
	savesBefore := repo.saveCalls

	_, err = service.Sell(ctx, pool, positionID, dec(999), dec(12))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInsufficientShares))
	assert.Equal(t, savesBefore, repo.saveCalls, "rejected sell must not persist")
}

func TestRevalueAll_UpdatesAggregateOnce(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	pool := entities.PoolTraderCall
	p1, p2 := uuid.New(), uuid.New()

	_, err := service.Fund(ctx, pool, dec(1000))
	require.NoError(t, err)
	_, err = service.Allocate(ctx, pool, p1, "AAPL", dec(10), dec(10))
	require.NoError(t, err)
	_, err = service.Allocate(ctx, pool, p2, "TSLA", dec(10), dec(30))
	require.NoError(t, err)

	ledger, updated, err := service.RevalueAll(ctx, pool, map[uuid.UUID]decimal.Decimal{
		p1: dec(12),
		p2: dec(27),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	require.NoError(t, ledger.CheckInvariants())
}

func TestSave_VersionConflictSurfaces(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()

	_, err := service.Fund(ctx, entities.PoolTraderCall, dec(1000))
	require.NoError(t, err)

	repo.failNext = apperrors.VersionConflict(string(entities.PoolTraderCall))
	_, err = service.Fund(ctx, entities.PoolTraderCall, dec(2000))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeVersionConflict))
}

func TestVerify_ReportsMatch(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	pool := entities.PoolTraderCall

	_, err := service.Fund(ctx, pool, dec(1000))
	require.NoError(t, err)
	_, err = service.Allocate(ctx, pool, uuid.New(), "AAPL", dec(10), dec(10))
	require.NoError(t, err)

	result, err := service.Verify(ctx, pool)
	require.NoError(t, err)
	assert.True(t, result.Match)

	// Drift the stored aggregate behind the service's back
	repo.ledgers[pool].TotalLiquidity = repo.ledgers[pool].TotalLiquidity.Add(dec(42))
	result, err = service.Verify(ctx, pool)
	require.NoError(t, err)
	assert.False(t, result.Match)
}
