package liquidity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pool-service/pool_service/internal/domain/entities"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
	"github.com/pool-service/pool_service/pkg/metrics"
)

// LedgerRepository is the persistence port for liquidity ledgers. Save must
// bump the version and fail with a version-conflict error when the stored
// version no longer matches the loaded one.
type LedgerRepository interface {
	GetByPool(ctx context.Context, pool entities.Pool) (*entities.LiquidityLedger, error)
	Save(ctx context.Context, ledger *entities.LiquidityLedger) error
}

// Service is the distribution manager: every ledger mutation loads the
// aggregate, applies one command, revalidates the monetary invariants and
// persists with optimistic locking. Concurrent writers on the same pool are
// serialized by version conflicts rather than silently overwriting each other.
type Service struct {
	ledgerRepo LedgerRepository
	logger     *logger.Logger
}

// NewService creates a new liquidity service
func NewService(ledgerRepo LedgerRepository, logger *logger.Logger) *Service {
	return &Service{
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// Get returns the current ledger for a pool, lazily creating an empty one with
// zero totals on first access.
func (s *Service) Get(ctx context.Context, pool entities.Pool) (*entities.LiquidityLedger, error) {
	ledger, err := s.ledgerRepo.GetByPool(ctx, pool)
	if err == nil {
		return ledger, nil
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeLedgerNotFound) {
		return nil, fmt.Errorf("failed to load ledger for pool %s: %w", pool, err)
	}

	ledger = entities.NewLiquidityLedger(pool)
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger for pool %s: %w", pool, err)
	}
	s.logger.Info("Initialized empty ledger", "pool", pool)
	return ledger, nil
}

// Fund re-bases a pool's capital. The amount becomes the new initial
// liquidity; total and available liquidity are recomputed from it.
func (s *Service) Fund(ctx context.Context, pool entities.Pool, amount decimal.Decimal) (*entities.LiquidityLedger, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	if err := ledger.Fund(amount); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, ledger); err != nil {
		return nil, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "fund", "success").Inc()
	s.logger.Info("Pool funded",
		"pool", pool,
		"initial_liquidity", ledger.InitialLiquidity.String(),
		"total_liquidity", ledger.TotalLiquidity.String(),
	)
	return ledger, nil
}

// Allocate commits a percentage of the pool's available liquidity to a newly
// opened position.
func (s *Service) Allocate(ctx context.Context, pool entities.Pool, positionID uuid.UUID, symbol string, percentage, entryPrice decimal.Decimal) (*entities.Distribution, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	dist, err := ledger.Allocate(positionID, symbol, percentage, entryPrice)
	if err != nil {
		metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "allocate", "rejected").Inc()
		return nil, err
	}
	if err := s.persist(ctx, ledger); err != nil {
		return nil, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "allocate", "success").Inc()
	s.logger.Info("Liquidity allocated",
		"pool", pool,
		"position_id", positionID.String(),
		"symbol", symbol,
		"allocated_amount", dist.AllocatedAmount.String(),
		"shares", dist.Shares.String(),
		"available_liquidity", ledger.AvailableLiquidity.String(),
	)
	out := *dist
	return &out, nil
}

// RevaluePosition marks a single distribution to a new price
func (s *Service) RevaluePosition(ctx context.Context, pool entities.Pool, positionID uuid.UUID, price decimal.Decimal) (*entities.LiquidityLedger, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	if err := ledger.Revalue(positionID, price); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, ledger); err != nil {
		return nil, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "revalue", "success").Inc()
	return ledger, nil
}

// RevalueAll applies a bulk price map over the pool's active distributions and
// recomputes the aggregate counters once.
func (s *Service) RevalueAll(ctx context.Context, pool entities.Pool, prices map[uuid.UUID]decimal.Decimal) (*entities.LiquidityLedger, int, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, 0, err
	}

	updated := ledger.RevalueAll(prices)
	if err := s.persist(ctx, ledger); err != nil {
		return nil, 0, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "revalue_all", "success").Inc()
	s.logger.Info("Bulk revaluation applied",
		"pool", pool,
		"prices_received", len(prices),
		"distributions_updated", updated,
		"total_profit_loss", ledger.TotalProfitLoss.String(),
	)
	return ledger, updated, nil
}

// Sell liquidates part or all of a distribution's remaining shares
func (s *Service) Sell(ctx context.Context, pool entities.Pool, positionID uuid.UUID, shares, price decimal.Decimal) (*entities.SellResult, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	result, err := ledger.Sell(positionID, shares, price)
	if err != nil {
		metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "sell", "rejected").Inc()
		return nil, err
	}
	if err := s.persist(ctx, ledger); err != nil {
		return nil, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "sell", "success").Inc()
	s.logger.Info("Distribution sold",
		"pool", pool,
		"position_id", positionID.String(),
		"shares_sold", result.SharesSold.String(),
		"realized_pl", result.RealizedPL.String(),
		"cash_returned", result.CashReturned.String(),
		"closed", result.Closed,
	)
	return result, nil
}

// Remove force-closes a distribution, returning its market value to available
// liquidity. Used for orphan cleanup and manual correction.
func (s *Service) Remove(ctx context.Context, pool entities.Pool, positionID uuid.UUID) (*entities.RemoveResult, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	result, err := ledger.Remove(positionID)
	if err != nil {
		metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "remove", "rejected").Inc()
		return nil, err
	}
	if err := s.persist(ctx, ledger); err != nil {
		return nil, err
	}

	metrics.LedgerOperationsTotal.WithLabelValues(string(pool), "remove", "success").Inc()
	s.logger.Info("Distribution removed",
		"pool", pool,
		"position_id", positionID.String(),
		"cash_returned", result.CashReturned.String(),
	)
	return result, nil
}

// Verify recomputes the aggregates from the stored distributions and compares
// them to the stored counters without mutating anything. A mismatch means a
// concurrent write drifted the ledger (spec'd as detectable, not self-healing).
func (s *Service) Verify(ctx context.Context, pool entities.Pool) (*entities.VerificationResult, error) {
	ledger, err := s.Get(ctx, pool)
	if err != nil {
		return nil, err
	}

	result := ledger.Verify()
	if !result.Match {
		s.logger.Warn("Ledger drift detected",
			"pool", pool,
			"stored_total", result.StoredTotal.String(),
			"expected_total", result.ExpectedTotal.String(),
		)
	}
	return result, nil
}

// persist checks invariants and writes the ledger back as one unit
func (s *Service) persist(ctx context.Context, ledger *entities.LiquidityLedger) error {
	if err := ledger.CheckInvariants(); err != nil {
		return err
	}
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeVersionConflict) {
			metrics.LedgerConflictsTotal.WithLabelValues(string(ledger.Pool)).Inc()
			return err
		}
		return fmt.Errorf("failed to persist ledger for pool %s: %w", ledger.Pool, err)
	}
	total, _ := ledger.TotalLiquidity.Float64()
	metrics.LedgerTotalLiquidity.WithLabelValues(string(ledger.Pool)).Set(total)
	return nil
}
