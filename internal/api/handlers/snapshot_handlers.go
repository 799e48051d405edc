package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/internal/domain/services/snapshots"
	"github.com/pool-service/pool_service/pkg/logger"
)

// SnapshotHandler exposes snapshot recording, period returns, and the
// current-value read model
type SnapshotHandler struct {
	snapshots *snapshots.Service
	logger    *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(snapshots *snapshots.Service, logger *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		logger:    logger,
	}
}

// CurrentValue returns the pool's live valuation projection
func (h *SnapshotHandler) CurrentValue(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	value, err := h.snapshots.CurrentValue(c.Request.Context(), pool)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// Returns computes percentage returns over the standard periods. Pass
// ?kind=portfolio to compare against close-time portfolio snapshots instead
// of day-start liquidity snapshots.
func (h *SnapshotHandler) Returns(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	periods := entities.DefaultReturnPeriods()
	var (
		results []entities.PeriodReturn
		err     error
	)
	if c.Query("kind") == "portfolio" {
		results, err = h.snapshots.CalculatePortfolioReturns(c.Request.Context(), pool, periods)
	} else {
		results, err = h.snapshots.CalculateReturns(c.Request.Context(), pool, periods)
	}
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool":    pool,
		"returns": results,
	})
}

// RecordLiquiditySnapshot triggers today's liquidity snapshot on demand,
// outside the scheduled run. Duplicate triggers are no-ops.
func (h *SnapshotHandler) RecordLiquiditySnapshot(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	snapshot, created, err := h.snapshots.RecordDailyLiquidity(c.Request.Context(), pool)
	if err != nil {
		respondAppError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"created":  created,
		"snapshot": snapshot,
	})
}

// RecordPortfolioSnapshot triggers today's portfolio snapshot on demand
func (h *SnapshotHandler) RecordPortfolioSnapshot(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	snapshot, created, err := h.snapshots.RecordPortfolio(c.Request.Context(), pool)
	if err != nil {
		respondAppError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"created":  created,
		"snapshot": snapshot,
	})
}
