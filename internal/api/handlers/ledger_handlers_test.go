package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/internal/domain/services/liquidity"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
)

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

func setupLedgerTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("error", "test")
	repo := &memLedgerRepo{ledgers: make(map[entities.Pool]*entities.LiquidityLedger)}
	handler := NewLedgerHandler(liquidity.NewService(repo, log), log)

	router := gin.New()
	pools := router.Group("/api/v1/pools/:pool")
	pools.GET("/ledger", handler.GetLedger)
	pools.POST("/ledger", handler.Fund)
	pools.POST("/distributions", handler.Allocate)
	pools.POST("/distributions/:positionId/sell", handler.Sell)
	pools.DELETE("/distributions/:positionId", handler.Remove)
	pools.GET("/verify", handler.Verify)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetLedger_InitializesEmptyLedger(t *testing.T) {
	router := setupLedgerTest(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/pools/trader-call/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ledger entities.LiquidityLedger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ledger))
	assert.Equal(t, entities.PoolTraderCall, ledger.Pool)
	assert.True(t, ledger.TotalLiquidity.IsZero())
}

func TestGetLedger_UnknownPoolRejected(t *testing.T) {
	router := setupLedgerTest(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/pools/unknown-pool/ledger", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFundAllocateSell_FullFlow(t *testing.T) {
	router := setupLedgerTest(t)
	positionID := uuid.New()

	w := doJSON(t, router, http.MethodPost, "/api/v1/pools/trader-call/ledger",
		gin.H{"amount": "1000"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/pools/trader-call/distributions", gin.H{
		"position_id": positionID,
		"symbol":      "AAPL",
		"percentage":  "10",
		"entry_price": "10",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var dist entities.Distribution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dist))
	assert.True(t, dist.AllocatedAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, dist.Shares.Equal(decimal.NewFromInt(10)))

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/pools/trader-call/distributions/%s/sell", positionID),
		gin.H{"shares": "10", "price": "12"})
	require.Equal(t, http.StatusOK, w.Code)

	var sellResult entities.SellResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sellResult))
	assert.True(t, sellResult.RealizedPL.Equal(decimal.NewFromInt(20)))
	assert.True(t, sellResult.Closed)
}

func TestSell_InsufficientSharesMapsTo422(t *testing.T) {
	router := setupLedgerTest(t)
	positionID := uuid.New()

	doJSON(t, router, http.MethodPost, "/api/v1/pools/smart-money/ledger", gin.H{"amount": "1000"})
	doJSON(t, router, http.MethodPost, "/api/v1/pools/smart-money/distributions", gin.H{
		"position_id": positionID,
		"symbol":      "NVDA",
		"percentage":  "10",
		"entry_price": "10",
	})

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/pools/smart-money/distributions/%s/sell", positionID),
		gin.H{"shares": "999", "price": "12"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp entities.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(apperrors.ErrCodeInsufficientShares), resp.Code)
}

func TestRemove_UnknownPositionMapsTo404(t *testing.T) {
	router := setupLedgerTest(t)

	doJSON(t, router, http.MethodPost, "/api/v1/pools/trader-call/ledger", gin.H{"amount": "1000"})
	w := doJSON(t, router, http.MethodDelete,
		fmt.Sprintf("/api/v1/pools/trader-call/distributions/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerify_ReportsMatch(t *testing.T) {
	router := setupLedgerTest(t)

	doJSON(t, router, http.MethodPost, "/api/v1/pools/trader-call/ledger", gin.H{"amount": "1000"})
	w := doJSON(t, router, http.MethodGet, "/api/v1/pools/trader-call/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result entities.VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Match)
}
