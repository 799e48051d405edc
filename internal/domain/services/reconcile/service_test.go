package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/internal/domain/services/liquidity"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
)

type MockPositionSource struct {
	mock.Mock
}

func (m *MockPositionSource) GetPosition(ctx context.Context, positionID uuid.UUID) (*entities.Position, error) {
	args := m.Called(ctx, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Position), args.Error(1)
}

// memLedgerRepo backs a real liquidity service so apply mode exercises the
// actual sell/remove commands
type memLedgerRepo struct {
	ledgers map[entities.Pool]*entities.LiquidityLedger
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
	ledger.Version++
	copied := *ledger
	copied.Distributions = append([]entities.Distribution(nil), ledger.Distributions...)
	r.ledgers[ledger.Pool] = &copied
	return nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func setup(t *testing.T) (*Service, *liquidity.Service, *MockPositionSource) {
	t.Helper()
	log := logger.New("error", "test")
	repo := &memLedgerRepo{ledgers: make(map[entities.Pool]*entities.LiquidityLedger)}
	ledgerService := liquidity.NewService(repo, log)
	positions := new(MockPositionSource)
	return NewService(ledgerService, positions, log), ledgerService, positions
}

func allocate(t *testing.T, ledgers *liquidity.Service, pool entities.Pool, positionID uuid.UUID, symbol string) {
	t.Helper()
	ctx := context.Background()
	if ledger, err := ledgers.Get(ctx, pool); err == nil && ledger.InitialLiquidity.IsZero() {
		_, err = ledgers.Fund(ctx, pool, dec(1000))
		require.NoError(t, err)
	}
	_, err := ledgers.Allocate(ctx, pool, positionID, symbol, dec(10), dec(10))
	require.NoError(t, err)
}

func TestRun_DryRun_ListsOrphansWithoutMutation(t *testing.T) {
	service, ledgers, positions := setup(t)
	ctx := context.Background()
	pool := entities.PoolTraderCall
	orphanID, healthyID := uuid.New(), uuid.New()

	allocate(t, ledgers, pool, orphanID, "AAPL")
	allocate(t, ledgers, pool, healthyID, "TSLA")

	positions.On("GetPosition", ctx, orphanID).
		Return(nil, apperrors.New(apperrors.ErrCodePositionNotFound, "position deleted"))
	positions.On("GetPosition", ctx, healthyID).
		Return(&entities.Position{ID: healthyID, Status: entities.PositionStatusOpen}, nil)

	report, err := service.Run(ctx, pool, false)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Scanned)
	require.Len(t, report.Candidates, 1)
	assert.Equal(t, orphanID, report.Candidates[0].PositionID)
	assert.Equal(t, 0, report.Reconciled)

	// No mutation: both distributions still present and active
	ledger, err := ledgers.Get(ctx, pool)
	require.NoError(t, err)
	assert.Len(t, ledger.ActiveDistributions(), 2)
}

func TestRun_Apply_LiquidatesAndRemovesOrphan(t *testing.T) {
	service, ledgers, positions := setup(t)
	ctx := context.Background()
	pool := entities.PoolTraderCall
	orphanID := uuid.New()

	allocate(t, ledgers, pool, orphanID, "AAPL")
	// Backing position closed at a higher price
	positions.On("GetPosition", ctx, orphanID).Return(&entities.Position{
		ID:        orphanID,
		Status:    entities.PositionStatusClosed,
		LastPrice: dec(12),
	}, nil)

	report, err := service.Run(ctx, pool, true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Reconciled)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.FreedCash.Equal(dec(120)), "got %s", report.FreedCash.String())

	ledger, err := ledgers.Get(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, ledger.Distributions)
	assert.True(t, ledger.AvailableLiquidity.Equal(dec(1020)))
	assert.True(t, ledger.TotalProfitLoss.Equal(dec(20)))
	require.NoError(t, ledger.CheckInvariants())
}

func TestRun_Apply_FallsBackToDistributionPrice(t *testing.T) {
	service, ledgers, positions := setup(t)
	ctx := context.Background()
	pool := entities.PoolSmartMoney
	orphanID := uuid.New()

	allocate(t, ledgers, pool, orphanID, "NVDA")
	// Position deleted entirely: no last known price, liquidate at current price
	positions.On("GetPosition", ctx, orphanID).
		Return(nil, apperrors.New(apperrors.ErrCodePositionNotFound, "position deleted"))

	report, err := service.Run(ctx, pool, true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Reconciled)
	assert.True(t, report.FreedCash.Equal(dec(100)))

	ledger, err := ledgers.Get(ctx, pool)
	require.NoError(t, err)
	assert.True(t, ledger.AvailableLiquidity.Equal(dec(1000)))
}

func TestRun_LookupFailureSkipsDistribution(t *testing.T) {
	service, ledgers, positions := setup(t)
	ctx := context.Background()
	pool := entities.PoolTraderCall
	positionID := uuid.New()

	allocate(t, ledgers, pool, positionID, "AAPL")
	positions.On("GetPosition", ctx, positionID).
		Return(nil, apperrors.New(apperrors.ErrCodeServiceUnavailable, "signals service unreachable"))

	report, err := service.Run(ctx, pool, true)
	require.NoError(t, err)

	// Unreachable is not orphaned: nothing flagged, nothing touched
	assert.Empty(t, report.Candidates)
	ledger, err := ledgers.Get(ctx, pool)
	require.NoError(t, err)
	assert.Len(t, ledger.ActiveDistributions(), 1)
}

// failingLedgerService forces a per-item failure to prove the batch continues
type failingLedgerService struct {
	*liquidity.Service
	failFor uuid.UUID
}

func (f *failingLedgerService) Remove(ctx context.Context, pool entities.Pool, positionID uuid.UUID) (*entities.RemoveResult, error) {
	if positionID == f.failFor {
		return nil, apperrors.Internal("storage unavailable")
	}
	return f.Service.Remove(ctx, pool, positionID)
}

func TestRun_Apply_PartialFailureContinuesBatch(t *testing.T) {
	log := logger.New("error", "test")
	repo := &memLedgerRepo{ledgers: make(map[entities.Pool]*entities.LiquidityLedger)}
	ledgerService := liquidity.NewService(repo, log)
	positions := new(MockPositionSource)

	ctx := context.Background()
	pool := entities.PoolTraderCall
	failingID, okID := uuid.New(), uuid.New()

	allocate(t, ledgerService, pool, failingID, "AAPL")
	allocate(t, ledgerService, pool, okID, "TSLA")

	notFound := apperrors.New(apperrors.ErrCodePositionNotFound, "position deleted")
	positions.On("GetPosition", ctx, failingID).Return(nil, notFound)
	positions.On("GetPosition", ctx, okID).Return(nil, notFound)

	service := NewService(&failingLedgerService{Service: ledgerService, failFor: failingID}, positions, log)
	report, err := service.Run(ctx, pool, true)
	require.NoError(t, err, "batch completes despite per-item failure")

	assert.Equal(t, 1, report.Reconciled)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, failingID, report.Errors[0].PositionID)
}
