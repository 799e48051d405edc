package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pool-service/pool_service/internal/domain/services/liquidity"
	"github.com/pool-service/pool_service/pkg/logger"
)

// LedgerHandler exposes the capital-allocation commands and queries for a pool
type LedgerHandler struct {
	ledgers *liquidity.Service
	logger  *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgers *liquidity.Service, logger *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledgers: ledgers,
		logger:  logger,
	}
}

// FundRequest sets a pool's initial liquidity base
type FundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// AllocateRequest opens a distribution against a signals position
type AllocateRequest struct {
	PositionID uuid.UUID       `json:"position_id" binding:"required"`
	Symbol     string          `json:"symbol" binding:"required"`
	Percentage decimal.Decimal `json:"percentage" binding:"required"`
	EntryPrice decimal.Decimal `json:"entry_price" binding:"required"`
}

// SellRequest liquidates part or all of a distribution
type SellRequest struct {
	Shares decimal.Decimal `json:"shares" binding:"required"`
	Price  decimal.Decimal `json:"price" binding:"required"`
}

// RevalueRequest updates a single distribution's market price
type RevalueRequest struct {
	Price decimal.Decimal `json:"price" binding:"required"`
}

// RevalueAllRequest carries a batch of position prices
type RevalueAllRequest struct {
	Prices map[uuid.UUID]decimal.Decimal `json:"prices" binding:"required"`
}

// GetLedger returns the full ledger state including distributions
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	ledger, err := h.ledgers.Get(c.Request.Context(), pool)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// Fund re-bases the pool's initial liquidity
func (h *LedgerHandler) Fund(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	var req FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	ledger, err := h.ledgers.Fund(c.Request.Context(), pool, req.Amount)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// Allocate carves a percentage of available liquidity into a new distribution
func (h *LedgerHandler) Allocate(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	dist, err := h.ledgers.Allocate(c.Request.Context(), pool, req.PositionID, req.Symbol, req.Percentage, req.EntryPrice)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dist)
}

// Sell liquidates shares of a distribution at the given price
func (h *LedgerHandler) Sell(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}
	positionID, err := uuid.Parse(c.Param("positionId"))
	if err != nil {
		respondBadRequest(c, "Invalid position ID", nil)
		return
	}

	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	result, err := h.ledgers.Sell(c.Request.Context(), pool, positionID, req.Shares, req.Price)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Remove deletes a distribution, realizing its remaining profit or loss
func (h *LedgerHandler) Remove(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}
	positionID, err := uuid.Parse(c.Param("positionId"))
	if err != nil {
		respondBadRequest(c, "Invalid position ID", nil)
		return
	}

	result, err := h.ledgers.Remove(c.Request.Context(), pool, positionID)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Revalue updates one distribution's market price
func (h *LedgerHandler) Revalue(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}
	positionID, err := uuid.Parse(c.Param("positionId"))
	if err != nil {
		respondBadRequest(c, "Invalid position ID", nil)
		return
	}

	var req RevalueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	ledger, err := h.ledgers.RevaluePosition(c.Request.Context(), pool, positionID, req.Price)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// RevalueAll applies a batch of market prices in one ledger write
func (h *LedgerHandler) RevalueAll(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	var req RevalueAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	ledger, updated, err := h.ledgers.RevalueAll(c.Request.Context(), pool, req.Prices)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updated": updated,
		"ledger":  ledger,
	})
}

// Verify recomputes the aggregate totals and reports any drift
func (h *LedgerHandler) Verify(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	result, err := h.ledgers.Verify(c.Request.Context(), pool)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
