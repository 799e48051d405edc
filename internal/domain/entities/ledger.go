package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/pool-service/pool_service/pkg/errors"
)

// Pool identifies a named capital program with its own ledger
type Pool string

const (
	PoolTraderCall Pool = "trader-call"
	PoolSmartMoney Pool = "smart-money"
)

// AllPools returns every known pool
func AllPools() []Pool {
	return []Pool{PoolTraderCall, PoolSmartMoney}
}

// ParsePool validates a pool identifier
func ParsePool(s string) (Pool, error) {
	switch Pool(s) {
	case PoolTraderCall, PoolSmartMoney:
		return Pool(s), nil
	default:
		return "", apperrors.ValidationError(fmt.Sprintf("unknown pool %q", s))
	}
}

// Epsilon is the tolerance for monetary invariant checks (0.01 currency units)
var Epsilon = decimal.New(1, -2)

var oneHundred = decimal.NewFromInt(100)

// Distribution is one allocation of pool capital backing one open trading position.
// PositionID is a weak reference into the signals service; the position is looked
// up on demand and may vanish independently of this record.
type Distribution struct {
	PositionID           uuid.UUID       `json:"position_id" db:"position_id"`
	Symbol               string          `json:"symbol" db:"symbol"`
	AllocatedAmount      decimal.Decimal `json:"allocated_amount" db:"allocated_amount"`
	EntryPrice           decimal.Decimal `json:"entry_price" db:"entry_price"`
	CurrentPrice         decimal.Decimal `json:"current_price" db:"current_price"`
	Shares               decimal.Decimal `json:"shares" db:"shares"`
	SoldShares           decimal.Decimal `json:"sold_shares" db:"sold_shares"`
	RealizedProfitLoss   decimal.Decimal `json:"realized_profit_loss" db:"realized_profit_loss"`
	ProfitLoss           decimal.Decimal `json:"profit_loss" db:"profit_loss"`
	ProfitLossPercentage decimal.Decimal `json:"profit_loss_percentage" db:"profit_loss_percentage"`
	IsActive             bool            `json:"is_active" db:"is_active"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// RemainingShares returns shares still held
func (d *Distribution) RemainingShares() decimal.Decimal {
	return d.Shares.Sub(d.SoldShares)
}

// MarketValue returns the current market value of the remaining shares
func (d *Distribution) MarketValue() decimal.Decimal {
	return d.RemainingShares().Mul(d.CurrentPrice)
}

// UnrealizedProfitLoss returns mark-to-market P/L on shares still held
func (d *Distribution) UnrealizedProfitLoss() decimal.Decimal {
	return d.CurrentPrice.Sub(d.EntryPrice).Mul(d.RemainingShares())
}

// SellResult summarizes a (partial) sale of a distribution
type SellResult struct {
	PositionID      uuid.UUID       `json:"position_id"`
	Symbol          string          `json:"symbol"`
	SharesSold      decimal.Decimal `json:"shares_sold"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	RealizedPL      decimal.Decimal `json:"realized_profit_loss"`
	CashReturned    decimal.Decimal `json:"cash_returned"`
	RemainingShares decimal.Decimal `json:"remaining_shares"`
	Closed          bool            `json:"closed"`
}

// RemoveResult summarizes a forced distribution closure
type RemoveResult struct {
	PositionID   uuid.UUID       `json:"position_id"`
	Symbol       string          `json:"symbol"`
	RealizedPL   decimal.Decimal `json:"realized_profit_loss"`
	CashReturned decimal.Decimal `json:"cash_returned"`
}

// VerificationResult compares stored aggregate counters against a recomputation
// from the distributions. A mismatch indicates drift from a concurrent write.
type VerificationResult struct {
	Pool                 Pool            `json:"pool"`
	Match                bool            `json:"match"`
	StoredTotal          decimal.Decimal `json:"stored_total_liquidity"`
	ExpectedTotal        decimal.Decimal `json:"expected_total_liquidity"`
	StoredDistributed    decimal.Decimal `json:"stored_distributed_liquidity"`
	ExpectedDistributed  decimal.Decimal `json:"expected_distributed_liquidity"`
	StoredAvailable      decimal.Decimal `json:"stored_available_liquidity"`
	ExpectedAvailable    decimal.Decimal `json:"expected_available_liquidity"`
	StoredProfitLoss     decimal.Decimal `json:"stored_total_profit_loss"`
	ExpectedProfitLoss   decimal.Decimal `json:"expected_total_profit_loss"`
	VerifiedAt           time.Time       `json:"verified_at"`
}

// LiquidityLedger is the aggregate root for one pool's capital accounting.
// All mutation goes through its command methods; every command finishes with
// Recalculate so the aggregate counters are always a function of the
// distributions plus the realized P/L accumulator.
type LiquidityLedger struct {
	ID                        uuid.UUID       `json:"id" db:"id"`
	Pool                      Pool            `json:"pool" db:"pool"`
	InitialLiquidity          decimal.Decimal `json:"initial_liquidity" db:"initial_liquidity"`
	TotalLiquidity            decimal.Decimal `json:"total_liquidity" db:"total_liquidity"`
	DistributedLiquidity      decimal.Decimal `json:"distributed_liquidity" db:"distributed_liquidity"`
	AvailableLiquidity        decimal.Decimal `json:"available_liquidity" db:"available_liquidity"`
	TotalProfitLoss           decimal.Decimal `json:"total_profit_loss" db:"total_profit_loss"`
	TotalProfitLossPercentage decimal.Decimal `json:"total_profit_loss_percentage" db:"total_profit_loss_percentage"`
	RealizedProfitLoss        decimal.Decimal `json:"realized_profit_loss" db:"realized_profit_loss"`
	Distributions             []Distribution  `json:"distributions"`
	Version                   int64           `json:"version" db:"version"`
	CreatedAt                 time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at" db:"updated_at"`
}

// NewLiquidityLedger creates an empty ledger for a pool with zero totals
func NewLiquidityLedger(pool Pool) *LiquidityLedger {
	now := time.Now().UTC()
	return &LiquidityLedger{
		ID:                        uuid.New(),
		Pool:                      pool,
		InitialLiquidity:          decimal.Zero,
		TotalLiquidity:            decimal.Zero,
		DistributedLiquidity:      decimal.Zero,
		AvailableLiquidity:        decimal.Zero,
		TotalProfitLoss:           decimal.Zero,
		TotalProfitLossPercentage: decimal.Zero,
		RealizedProfitLoss:        decimal.Zero,
		Distributions:             []Distribution{},
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// Fund re-bases the ledger's capital: initial liquidity is set to amount, not
// added to it. Existing distributions and accumulated P/L are preserved.
func (l *LiquidityLedger) Fund(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return apperrors.ValidationError("funding amount must be greater than zero").
			AddDetail("amount", amount.String())
	}
	l.InitialLiquidity = amount
	l.Recalculate()
	return nil
}

// Allocate commits a percentage of available liquidity to a newly opened position
func (l *LiquidityLedger) Allocate(positionID uuid.UUID, symbol string, percentage, entryPrice decimal.Decimal) (*Distribution, error) {
	if percentage.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ValidationError("allocation percentage must be greater than zero").
			AddDetail("percentage", percentage.String())
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ValidationError("entry price must be greater than zero").
			AddDetail("entry_price", entryPrice.String())
	}
	if existing, _ := l.Distribution(positionID); existing != nil {
		return nil, apperrors.New(apperrors.ErrCodeDuplicateEntry,
			fmt.Sprintf("position %s already has a distribution", positionID)).
			AddDetail("position_id", positionID.String())
	}

	allocated := l.AvailableLiquidity.Mul(percentage).Div(oneHundred)
	if allocated.GreaterThan(l.AvailableLiquidity.Add(Epsilon)) || allocated.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.InsufficientLiquidity(
			fmt.Sprintf("cannot allocate %s: available liquidity is %s",
				allocated.String(), l.AvailableLiquidity.String())).
			AddDetail("available_liquidity", l.AvailableLiquidity.String())
	}

	now := time.Now().UTC()
	dist := Distribution{
		PositionID:         positionID,
		Symbol:             symbol,
		AllocatedAmount:    allocated,
		EntryPrice:         entryPrice,
		CurrentPrice:       entryPrice,
		Shares:             allocated.Div(entryPrice),
		SoldShares:         decimal.Zero,
		RealizedProfitLoss: decimal.Zero,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	l.Distributions = append(l.Distributions, dist)
	l.Recalculate()
	return l.mustDistribution(positionID), nil
}

// Revalue updates a distribution's current price. Idempotent for repeated
// calls with the same price.
func (l *LiquidityLedger) Revalue(positionID uuid.UUID, currentPrice decimal.Decimal) error {
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return apperrors.ValidationError("price must be greater than zero").
			AddDetail("price", currentPrice.String())
	}
	dist, err := l.Distribution(positionID)
	if err != nil {
		return err
	}
	dist.CurrentPrice = currentPrice
	dist.UpdatedAt = time.Now().UTC()
	l.Recalculate()
	return nil
}

// RevalueAll applies a bulk price update to matching active distributions and
// returns the number updated. Positions absent from the map are left untouched.
func (l *LiquidityLedger) RevalueAll(prices map[uuid.UUID]decimal.Decimal) int {
	updated := 0
	now := time.Now().UTC()
	for i := range l.Distributions {
		dist := &l.Distributions[i]
		if !dist.IsActive {
			continue
		}
		price, ok := prices[dist.PositionID]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			continue
		}
		dist.CurrentPrice = price
		dist.UpdatedAt = now
		updated++
	}
	l.Recalculate()
	return updated
}

// Sell liquidates part or all of a distribution's remaining shares at sellPrice.
// Realized P/L accrues on the distribution and on the ledger accumulator; the
// proportional cost basis plus the realized P/L returns to available liquidity.
func (l *LiquidityLedger) Sell(positionID uuid.UUID, sharesToSell, sellPrice decimal.Decimal) (*SellResult, error) {
	if sharesToSell.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ValidationError("shares to sell must be greater than zero").
			AddDetail("shares", sharesToSell.String())
	}
	if sellPrice.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ValidationError("sell price must be greater than zero").
			AddDetail("price", sellPrice.String())
	}
	dist, err := l.Distribution(positionID)
	if err != nil {
		return nil, err
	}
	if !dist.IsActive {
		return nil, apperrors.InsufficientShares(
			fmt.Sprintf("distribution for position %s is no longer active", positionID))
	}
	remaining := dist.RemainingShares()
	if sharesToSell.GreaterThan(remaining) {
		return nil, apperrors.InsufficientShares(
			fmt.Sprintf("requested %s shares but only %s remain", sharesToSell.String(), remaining.String())).
			AddDetail("remaining_shares", remaining.String())
	}

	realized := sellPrice.Sub(dist.EntryPrice).Mul(sharesToSell)
	costReturned := dist.AllocatedAmount.Mul(sharesToSell).Div(dist.Shares)

	dist.SoldShares = dist.SoldShares.Add(sharesToSell)
	dist.RealizedProfitLoss = dist.RealizedProfitLoss.Add(realized)
	dist.CurrentPrice = sellPrice
	dist.UpdatedAt = time.Now().UTC()
	l.RealizedProfitLoss = l.RealizedProfitLoss.Add(realized)

	closed := false
	if dist.RemainingShares().LessThanOrEqual(shareEpsilon) {
		dist.SoldShares = dist.Shares
		dist.IsActive = false
		closed = true
	}
	l.Recalculate()

	return &SellResult{
		PositionID:      dist.PositionID,
		Symbol:          dist.Symbol,
		SharesSold:      sharesToSell,
		SellPrice:       sellPrice,
		RealizedPL:      realized,
		CashReturned:    costReturned.Add(realized),
		RemainingShares: dist.RemainingShares(),
		Closed:          closed,
	}, nil
}

// Remove force-closes a distribution regardless of remaining shares. The
// unrealized P/L at the current price is realized into the ledger accumulator
// so total P/L survives the deletion, then the entry is dropped.
func (l *LiquidityLedger) Remove(positionID uuid.UUID) (*RemoveResult, error) {
	idx := -1
	for i := range l.Distributions {
		if l.Distributions[i].PositionID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperrors.DistributionNotFound(positionID.String())
	}

	dist := l.Distributions[idx]
	freed := decimal.Zero
	realized := decimal.Zero
	if dist.IsActive {
		realized = dist.UnrealizedProfitLoss()
		freed = dist.MarketValue()
		l.RealizedProfitLoss = l.RealizedProfitLoss.Add(realized)
	}

	l.Distributions = append(l.Distributions[:idx], l.Distributions[idx+1:]...)
	l.Recalculate()

	return &RemoveResult{
		PositionID:   dist.PositionID,
		Symbol:       dist.Symbol,
		RealizedPL:   realized,
		CashReturned: freed,
	}, nil
}

// shareEpsilon tolerates decimal residue when a sell exhausts a distribution
var shareEpsilon = decimal.New(1, -8)

// Recalculate is the revaluation engine: it recomputes every aggregate counter
// as a pure function of the distributions and the realized P/L accumulator.
// It runs after every distribution-level mutation and is safe to call
// redundantly.
func (l *LiquidityLedger) Recalculate() {
	unrealized := decimal.Zero
	distributed := decimal.Zero

	for i := range l.Distributions {
		dist := &l.Distributions[i]
		if !dist.IsActive {
			dist.ProfitLoss = decimal.Zero
			dist.ProfitLossPercentage = decimal.Zero
			continue
		}
		dist.ProfitLoss = dist.UnrealizedProfitLoss()
		if dist.EntryPrice.IsPositive() {
			dist.ProfitLossPercentage = dist.CurrentPrice.Sub(dist.EntryPrice).
				Div(dist.EntryPrice).Mul(oneHundred)
		} else {
			dist.ProfitLossPercentage = decimal.Zero
		}
		unrealized = unrealized.Add(dist.ProfitLoss)
		distributed = distributed.Add(dist.MarketValue())
	}

	l.TotalProfitLoss = l.RealizedProfitLoss.Add(unrealized)
	l.TotalLiquidity = l.InitialLiquidity.Add(l.TotalProfitLoss)
	l.DistributedLiquidity = distributed
	l.AvailableLiquidity = l.TotalLiquidity.Sub(l.DistributedLiquidity)
	if l.InitialLiquidity.IsPositive() {
		l.TotalProfitLossPercentage = l.TotalProfitLoss.Div(l.InitialLiquidity).Mul(oneHundred)
	} else {
		l.TotalProfitLossPercentage = decimal.Zero
	}
	l.UpdatedAt = time.Now().UTC()
}

// CheckInvariants validates the ledger's monetary identities within Epsilon
func (l *LiquidityLedger) CheckInvariants() error {
	if diff := l.AvailableLiquidity.Add(l.DistributedLiquidity).Sub(l.TotalLiquidity); diff.Abs().GreaterThan(Epsilon) {
		return apperrors.Internal(
			fmt.Sprintf("ledger invariant broken for pool %s: available + distributed differs from total by %s",
				l.Pool, diff.String()))
	}
	if diff := l.InitialLiquidity.Add(l.TotalProfitLoss).Sub(l.TotalLiquidity); diff.Abs().GreaterThan(Epsilon) {
		return apperrors.Internal(
			fmt.Sprintf("ledger invariant broken for pool %s: initial + pnl differs from total by %s",
				l.Pool, diff.String()))
	}
	return nil
}

// Verify recomputes the aggregates from the stored distributions without
// mutating the ledger and compares them to the stored counters. Drift here
// means a concurrent write clobbered a previous recalculation.
func (l *LiquidityLedger) Verify() *VerificationResult {
	unrealized := decimal.Zero
	distributed := decimal.Zero
	for i := range l.Distributions {
		dist := &l.Distributions[i]
		if !dist.IsActive {
			continue
		}
		unrealized = unrealized.Add(dist.UnrealizedProfitLoss())
		distributed = distributed.Add(dist.MarketValue())
	}
	expectedPL := l.RealizedProfitLoss.Add(unrealized)
	expectedTotal := l.InitialLiquidity.Add(expectedPL)
	expectedAvailable := expectedTotal.Sub(distributed)

	match := l.TotalLiquidity.Sub(expectedTotal).Abs().LessThanOrEqual(Epsilon) &&
		l.DistributedLiquidity.Sub(distributed).Abs().LessThanOrEqual(Epsilon) &&
		l.AvailableLiquidity.Sub(expectedAvailable).Abs().LessThanOrEqual(Epsilon) &&
		l.TotalProfitLoss.Sub(expectedPL).Abs().LessThanOrEqual(Epsilon)

	return &VerificationResult{
		Pool:                l.Pool,
		Match:               match,
		StoredTotal:         l.TotalLiquidity,
		ExpectedTotal:       expectedTotal,
		StoredDistributed:   l.DistributedLiquidity,
		ExpectedDistributed: distributed,
		StoredAvailable:     l.AvailableLiquidity,
		ExpectedAvailable:   expectedAvailable,
		StoredProfitLoss:    l.TotalProfitLoss,
		ExpectedProfitLoss:  expectedPL,
		VerifiedAt:          time.Now().UTC(),
	}
}

// Distribution returns the distribution backing positionID
func (l *LiquidityLedger) Distribution(positionID uuid.UUID) (*Distribution, error) {
	for i := range l.Distributions {
		if l.Distributions[i].PositionID == positionID {
			return &l.Distributions[i], nil
		}
	}
	return nil, apperrors.DistributionNotFound(positionID.String())
}

// ActiveDistributions returns the distributions still holding shares
func (l *LiquidityLedger) ActiveDistributions() []Distribution {
	var active []Distribution
	for _, d := range l.Distributions {
		if d.IsActive {
			active = append(active, d)
		}
	}
	return active
}

func (l *LiquidityLedger) mustDistribution(positionID uuid.UUID) *Distribution {
	dist, err := l.Distribution(positionID)
	if err != nil {
		panic(err)
	}
	return dist
}
