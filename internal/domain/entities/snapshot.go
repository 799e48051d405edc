package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LiquiditySnapshot is an immutable copy of a ledger's totals taken at the
// start of a calendar day in the reference timezone. At most one exists per
// (pool, date); the database enforces this.
type LiquiditySnapshot struct {
	ID                        uuid.UUID       `json:"id" db:"id"`
	Pool                      Pool            `json:"pool" db:"pool"`
	SnapshotDate              time.Time       `json:"snapshot_date" db:"snapshot_date"`
	TotalLiquidity            decimal.Decimal `json:"total_liquidity" db:"total_liquidity"`
	AvailableLiquidity        decimal.Decimal `json:"available_liquidity" db:"available_liquidity"`
	DistributedLiquidity      decimal.Decimal `json:"distributed_liquidity" db:"distributed_liquidity"`
	TotalProfitLoss           decimal.Decimal `json:"total_profit_loss" db:"total_profit_loss"`
	TotalProfitLossPercentage decimal.Decimal `json:"total_profit_loss_percentage" db:"total_profit_loss_percentage"`
	CreatedAt                 time.Time       `json:"created_at" db:"created_at"`
}

// PortfolioSnapshot has the same shape as LiquiditySnapshot but is captured at
// a fixed market-close-adjacent time of day, so portfolio-value returns compare
// valuation-at-close rather than liquidity-at-open.
type PortfolioSnapshot struct {
	ID                        uuid.UUID       `json:"id" db:"id"`
	Pool                      Pool            `json:"pool" db:"pool"`
	SnapshotDate              time.Time       `json:"snapshot_date" db:"snapshot_date"`
	TotalLiquidity            decimal.Decimal `json:"total_liquidity" db:"total_liquidity"`
	AvailableLiquidity        decimal.Decimal `json:"available_liquidity" db:"available_liquidity"`
	DistributedLiquidity      decimal.Decimal `json:"distributed_liquidity" db:"distributed_liquidity"`
	TotalProfitLoss           decimal.Decimal `json:"total_profit_loss" db:"total_profit_loss"`
	TotalProfitLossPercentage decimal.Decimal `json:"total_profit_loss_percentage" db:"total_profit_loss_percentage"`
	CreatedAt                 time.Time       `json:"created_at" db:"created_at"`
}

// SnapshotFromLedger copies the current totals of a ledger into a liquidity
// snapshot dated to day (already truncated to day-start in the reference zone)
func SnapshotFromLedger(ledger *LiquidityLedger, day time.Time) *LiquiditySnapshot {
	return &LiquiditySnapshot{
		ID:                        uuid.New(),
		Pool:                      ledger.Pool,
		SnapshotDate:              day,
		TotalLiquidity:            ledger.TotalLiquidity,
		AvailableLiquidity:        ledger.AvailableLiquidity,
		DistributedLiquidity:      ledger.DistributedLiquidity,
		TotalProfitLoss:           ledger.TotalProfitLoss,
		TotalProfitLossPercentage: ledger.TotalProfitLossPercentage,
		CreatedAt:                 time.Now().UTC(),
	}
}

// PortfolioSnapshotFromLedger copies the current totals into a portfolio snapshot
func PortfolioSnapshotFromLedger(ledger *LiquidityLedger, day time.Time) *PortfolioSnapshot {
	return &PortfolioSnapshot{
		ID:                        uuid.New(),
		Pool:                      ledger.Pool,
		SnapshotDate:              day,
		TotalLiquidity:            ledger.TotalLiquidity,
		AvailableLiquidity:        ledger.AvailableLiquidity,
		DistributedLiquidity:      ledger.DistributedLiquidity,
		TotalProfitLoss:           ledger.TotalProfitLoss,
		TotalProfitLossPercentage: ledger.TotalProfitLossPercentage,
		CreatedAt:                 time.Now().UTC(),
	}
}

// ReturnPeriod is a fixed look-back window for period returns
type ReturnPeriod struct {
	Label  string `json:"label"`
	Days   int    `json:"days"`
	Months int    `json:"months"`
	Years  int    `json:"years"`
}

// TargetDate subtracts the period from now, calendar-aware for months/years
func (p ReturnPeriod) TargetDate(now time.Time) time.Time {
	return now.AddDate(-p.Years, -p.Months, -p.Days)
}

// DefaultReturnPeriods are the windows reported by the returns endpoint
func DefaultReturnPeriods() []ReturnPeriod {
	return []ReturnPeriod{
		{Label: "1d", Days: 1},
		{Label: "7d", Days: 7},
		{Label: "15d", Days: 15},
		{Label: "30d", Days: 30},
		{Label: "6m", Months: 6},
		{Label: "1y", Years: 1},
	}
}

// PeriodReturn is the percentage return over one look-back window. Value is
// nil when no qualifying snapshot exists or the historical total was zero.
type PeriodReturn struct {
	Period       string           `json:"period"`
	Value        *decimal.Decimal `json:"value"`
	SnapshotDate *time.Time       `json:"snapshot_date,omitempty"`
}

// CurrentValue is the read-side projection combining ledger totals with
// distribution counts, served from cache when fresh
type CurrentValue struct {
	Pool                      Pool            `json:"pool"`
	TotalLiquidity            decimal.Decimal `json:"total_liquidity"`
	AvailableLiquidity        decimal.Decimal `json:"available_liquidity"`
	DistributedLiquidity      decimal.Decimal `json:"distributed_liquidity"`
	TotalProfitLoss           decimal.Decimal `json:"total_profit_loss"`
	TotalProfitLossPercentage decimal.Decimal `json:"total_profit_loss_percentage"`
	ActiveDistributions       int             `json:"active_distributions"`
	AsOf                      time.Time       `json:"as_of"`
}
