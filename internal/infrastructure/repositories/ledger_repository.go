package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pool-service/pool_service/internal/domain/entities"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
)

const uniqueViolationCode = "23505"

// LedgerRepository persists liquidity ledgers with optimistic locking. The
// ledger row carries a version column; Save only applies when the caller's
// version still matches, otherwise a version-conflict error is returned and
// the caller reloads and retries.
type LedgerRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB, logger *logger.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

// GetByPool loads a ledger and its distributions. Returns a ledger-not-found
// error when no row exists for the pool.
func (r *LedgerRepository) GetByPool(ctx context.Context, pool entities.Pool) (*entities.LiquidityLedger, error) {
	query := `
		SELECT id, pool, initial_liquidity, total_liquidity, distributed_liquidity,
		       available_liquidity, total_profit_loss, total_profit_loss_percentage,
		       realized_profit_loss, version, created_at, updated_at
		FROM liquidity_ledgers
		WHERE pool = $1
	`

	var ledger entities.LiquidityLedger
	err := r.db.GetContext(ctx, &ledger, query, pool)
	if err == sql.ErrNoRows {
		return nil, apperrors.LedgerNotFound(string(pool))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	distQuery := `
		SELECT position_id, symbol, allocated_amount, entry_price, current_price,
		       shares, sold_shares, realized_profit_loss, profit_loss,
		       profit_loss_percentage, is_active, created_at, updated_at
		FROM ledger_distributions
		WHERE ledger_id = $1
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &ledger.Distributions, distQuery, ledger.ID); err != nil {
		return nil, fmt.Errorf("failed to get distributions: %w", err)
	}

	return &ledger, nil
}

// Save writes the ledger and replaces its distribution rows in one
// transaction. On success the in-memory version is advanced to match the
// stored row.
func (r *LedgerRepository) Save(ctx context.Context, ledger *entities.LiquidityLedger) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if ledger.Version == 0 {
		if err := r.insertLedger(ctx, tx, ledger, now); err != nil {
			return err
		}
	} else {
		if err := r.updateLedger(ctx, tx, ledger, now); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_distributions WHERE ledger_id = $1`, ledger.ID); err != nil {
		return fmt.Errorf("failed to clear distributions: %w", err)
	}

	distQuery := `
		INSERT INTO ledger_distributions (
			ledger_id, position_id, symbol, allocated_amount, entry_price,
			current_price, shares, sold_shares, realized_profit_loss,
			profit_loss, profit_loss_percentage, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	for _, dist := range ledger.Distributions {
		_, err := tx.ExecContext(ctx, distQuery,
			ledger.ID,
			dist.PositionID,
			dist.Symbol,
			dist.AllocatedAmount,
			dist.EntryPrice,
			dist.CurrentPrice,
			dist.Shares,
			dist.SoldShares,
			dist.RealizedProfitLoss,
			dist.ProfitLoss,
			dist.ProfitLossPercentage,
			dist.IsActive,
			dist.CreatedAt,
			dist.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert distribution %s: %w", dist.PositionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger save: %w", err)
	}

	ledger.Version++
	ledger.UpdatedAt = now
	return nil
}

func (r *LedgerRepository) insertLedger(ctx context.Context, tx *sqlx.Tx, ledger *entities.LiquidityLedger, now time.Time) error {
	query := `
		INSERT INTO liquidity_ledgers (
			id, pool, initial_liquidity, total_liquidity, distributed_liquidity,
			available_liquidity, total_profit_loss, total_profit_loss_percentage,
			realized_profit_loss, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		ledger.ID,
		ledger.Pool,
		ledger.InitialLiquidity,
		ledger.TotalLiquidity,
		ledger.DistributedLiquidity,
		ledger.AvailableLiquidity,
		ledger.TotalProfitLoss,
		ledger.TotalProfitLossPercentage,
		ledger.RealizedProfitLoss,
		now,
	)
	if err != nil {
		// A concurrent first-write races on the pool uniqueness constraint
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolationCode {
			return apperrors.VersionConflict(string(ledger.Pool))
		}
		return fmt.Errorf("failed to insert ledger: %w", err)
	}
	return nil
}

func (r *LedgerRepository) updateLedger(ctx context.Context, tx *sqlx.Tx, ledger *entities.LiquidityLedger, now time.Time) error {
	query := `
		UPDATE liquidity_ledgers
		SET initial_liquidity = $1,
		    total_liquidity = $2,
		    distributed_liquidity = $3,
		    available_liquidity = $4,
		    total_profit_loss = $5,
		    total_profit_loss_percentage = $6,
		    realized_profit_loss = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9 AND version = $10
	`
	result, err := tx.ExecContext(ctx, query,
		ledger.InitialLiquidity,
		ledger.TotalLiquidity,
		ledger.DistributedLiquidity,
		ledger.AvailableLiquidity,
		ledger.TotalProfitLoss,
		ledger.TotalProfitLossPercentage,
		ledger.RealizedProfitLoss,
		now,
		ledger.ID,
		ledger.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("Ledger version conflict",
			"pool", ledger.Pool,
			"version", ledger.Version,
		)
		return apperrors.VersionConflict(string(ledger.Pool))
	}
	return nil
}
