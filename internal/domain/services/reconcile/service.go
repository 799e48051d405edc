package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pool-service/pool_service/internal/domain/entities"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
	"github.com/pool-service/pool_service/pkg/metrics"
)

// PositionSource looks up the backing position for a distribution in the
// signals service. Implementations return a position-not-found error when the
// position has been deleted.
type PositionSource interface {
	GetPosition(ctx context.Context, positionID uuid.UUID) (*entities.Position, error)
}

// LedgerService is the slice of the liquidity service reconciliation needs
type LedgerService interface {
	Get(ctx context.Context, pool entities.Pool) (*entities.LiquidityLedger, error)
	Sell(ctx context.Context, pool entities.Pool, positionID uuid.UUID, shares, price decimal.Decimal) (*entities.SellResult, error)
	Remove(ctx context.Context, pool entities.Pool, positionID uuid.UUID) (*entities.RemoveResult, error)
}

// Candidate is one orphaned distribution found during a scan
type Candidate struct {
	PositionID       uuid.UUID       `json:"position_id"`
	Symbol           string          `json:"symbol"`
	RemainingShares  decimal.Decimal `json:"remaining_shares"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Reason           string          `json:"reason"`
}

// ItemError records a per-candidate failure during apply mode
type ItemError struct {
	PositionID uuid.UUID `json:"position_id"`
	Error      string    `json:"error"`
}

// Report summarizes one reconciliation run. In apply mode partial success is
// expected and reported, never escalated to a batch failure.
type Report struct {
	Pool       entities.Pool   `json:"pool"`
	DryRun     bool            `json:"dry_run"`
	Scanned    int             `json:"scanned"`
	Candidates []Candidate     `json:"candidates"`
	Reconciled int             `json:"reconciled"`
	Failed     int             `json:"failed"`
	FreedCash  decimal.Decimal `json:"freed_cash"`
	Errors     []ItemError     `json:"errors,omitempty"`
	RanAt      time.Time       `json:"ran_at"`
}

// Service finds distributions whose backing position has closed or vanished
// and, in apply mode, liquidates and removes them through the ledger commands.
type Service struct {
	ledgers   LedgerService
	positions PositionSource
	logger    *logger.Logger
}

// NewService creates a new reconciliation service
func NewService(ledgers LedgerService, positions PositionSource, logger *logger.Logger) *Service {
	return &Service{
		ledgers:   ledgers,
		positions: positions,
		logger:    logger,
	}
}

// Run scans the pool's active distributions for orphans. With apply=false it
// only reports; with apply=true each orphan is liquidated at the best known
// price and removed, collecting per-item failures without aborting the batch.
func (s *Service) Run(ctx context.Context, pool entities.Pool, apply bool) (*Report, error) {
	ledger, err := s.ledgers.Get(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for reconciliation: %w", err)
	}

	report := &Report{
		Pool:       pool,
		DryRun:     !apply,
		Candidates: []Candidate{},
		FreedCash:  decimal.Zero,
		RanAt:      time.Now().UTC(),
	}

	for _, dist := range ledger.ActiveDistributions() {
		report.Scanned++

		candidate, orphaned := s.inspect(ctx, &dist)
		if !orphaned {
			continue
		}
		report.Candidates = append(report.Candidates, *candidate)

		if !apply {
			continue
		}
		freed, err := s.reconcile(ctx, pool, candidate)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{
				PositionID: candidate.PositionID,
				Error:      err.Error(),
			})
			metrics.OrphansReconciledTotal.WithLabelValues(string(pool), "failed").Inc()
			s.logger.Warn("Failed to reconcile orphan distribution, skipping",
				"pool", pool,
				"position_id", candidate.PositionID.String(),
				"error", err,
			)
			continue
		}
		report.Reconciled++
		report.FreedCash = report.FreedCash.Add(freed)
		metrics.OrphansReconciledTotal.WithLabelValues(string(pool), "reconciled").Inc()
	}

	s.logger.Info("Orphan reconciliation finished",
		"pool", pool,
		"dry_run", report.DryRun,
		"scanned", report.Scanned,
		"candidates", len(report.Candidates),
		"reconciled", report.Reconciled,
		"failed", report.Failed,
		"freed_cash", report.FreedCash.String(),
	)
	return report, nil
}

// inspect decides whether a distribution is orphaned and picks its
// liquidation price: the position's last known price when available,
// otherwise the distribution's own current price.
func (s *Service) inspect(ctx context.Context, dist *entities.Distribution) (*Candidate, bool) {
	candidate := &Candidate{
		PositionID:       dist.PositionID,
		Symbol:           dist.Symbol,
		RemainingShares:  dist.RemainingShares(),
		LiquidationPrice: dist.CurrentPrice,
	}

	position, err := s.positions.GetPosition(ctx, dist.PositionID)
	switch {
	case err != nil && apperrors.IsCode(err, apperrors.ErrCodePositionNotFound):
		candidate.Reason = "backing position not found"
		return candidate, true
	case err != nil:
		// Lookup failure is not proof of orphanhood; leave the distribution alone
		s.logger.Warn("Position lookup failed, skipping distribution",
			"position_id", dist.PositionID.String(),
			"error", err,
		)
		return nil, false
	case position.IsClosed():
		candidate.Reason = "backing position closed"
		if position.LastPrice.IsPositive() {
			candidate.LiquidationPrice = position.LastPrice
		}
		return candidate, true
	default:
		return nil, false
	}
}

// reconcile liquidates any remaining shares, then removes the distribution.
// Returns the cash freed back to available liquidity.
func (s *Service) reconcile(ctx context.Context, pool entities.Pool, candidate *Candidate) (decimal.Decimal, error) {
	freed := decimal.Zero

	if candidate.RemainingShares.IsPositive() && candidate.LiquidationPrice.IsPositive() {
		sellResult, err := s.ledgers.Sell(ctx, pool, candidate.PositionID, candidate.RemainingShares, candidate.LiquidationPrice)
		if err != nil {
			return decimal.Zero, fmt.Errorf("liquidation sell failed: %w", err)
		}
		freed = freed.Add(sellResult.CashReturned)
	}

	removeResult, err := s.ledgers.Remove(ctx, pool, candidate.PositionID)
	if err != nil {
		return freed, fmt.Errorf("removal failed: %w", err)
	}
	return freed.Add(removeResult.CashReturned), nil
}
