package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/pkg/logger"
)

// SnapshotRepository persists daily liquidity and portfolio snapshots. The
// (pool, snapshot_date) uniqueness constraint makes inserts idempotent per
// day: a duplicate reports created=false instead of failing.
type SnapshotRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sqlx.DB, logger *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// InsertLiquidity stores a liquidity snapshot, reporting whether a new row
// was created
func (r *SnapshotRepository) InsertLiquidity(ctx context.Context, snapshot *entities.LiquiditySnapshot) (bool, error) {
	query := `
		INSERT INTO liquidity_snapshots (
			id, pool, snapshot_date, total_liquidity, available_liquidity,
			distributed_liquidity, total_profit_loss, total_profit_loss_percentage,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pool, snapshot_date) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.Pool,
		snapshot.SnapshotDate,
		snapshot.TotalLiquidity,
		snapshot.AvailableLiquidity,
		snapshot.DistributedLiquidity,
		snapshot.TotalProfitLoss,
		snapshot.TotalProfitLossPercentage,
		snapshot.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert liquidity snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// InsertPortfolio stores a portfolio snapshot with the same idempotence
// contract as InsertLiquidity
func (r *SnapshotRepository) InsertPortfolio(ctx context.Context, snapshot *entities.PortfolioSnapshot) (bool, error) {
	query := `
		INSERT INTO portfolio_snapshots (
			id, pool, snapshot_date, total_liquidity, available_liquidity,
			distributed_liquidity, total_profit_loss, total_profit_loss_percentage,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pool, snapshot_date) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.Pool,
		snapshot.SnapshotDate,
		snapshot.TotalLiquidity,
		snapshot.AvailableLiquidity,
		snapshot.DistributedLiquidity,
		snapshot.TotalProfitLoss,
		snapshot.TotalProfitLossPercentage,
		snapshot.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// LatestLiquidityOnOrBefore returns the most recent liquidity snapshot at or
// before the given instant, or (nil, nil) when none qualifies
func (r *SnapshotRepository) LatestLiquidityOnOrBefore(ctx context.Context, pool entities.Pool, at time.Time) (*entities.LiquiditySnapshot, error) {
	query := `
		SELECT id, pool, snapshot_date, total_liquidity, available_liquidity,
		       distributed_liquidity, total_profit_loss, total_profit_loss_percentage,
		       created_at
		FROM liquidity_snapshots
		WHERE pool = $1 AND snapshot_date <= $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`
	var snapshot entities.LiquiditySnapshot
	err := r.db.GetContext(ctx, &snapshot, query, pool, at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get liquidity snapshot: %w", err)
	}
	return &snapshot, nil
}

// LatestPortfolioOnOrBefore returns the most recent portfolio snapshot at or
// before the given instant, or (nil, nil) when none qualifies
func (r *SnapshotRepository) LatestPortfolioOnOrBefore(ctx context.Context, pool entities.Pool, at time.Time) (*entities.PortfolioSnapshot, error) {
	query := `
		SELECT id, pool, snapshot_date, total_liquidity, available_liquidity,
		       distributed_liquidity, total_profit_loss, total_profit_loss_percentage,
		       created_at
		FROM portfolio_snapshots
		WHERE pool = $1 AND snapshot_date <= $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`
	var snapshot entities.PortfolioSnapshot
	err := r.db.GetContext(ctx, &snapshot, query, pool, at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio snapshot: %w", err)
	}
	return &snapshot, nil
}
