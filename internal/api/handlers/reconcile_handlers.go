package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pool-service/pool_service/internal/domain/services/reconcile"
	"github.com/pool-service/pool_service/pkg/logger"
)

// ReconcileHandler exposes orphan-distribution scans and reconciliation
type ReconcileHandler struct {
	reconciler *reconcile.Service
	logger     *logger.Logger
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(reconciler *reconcile.Service, logger *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// ListOrphans runs a dry-run scan and reports orphan candidates
func (h *ReconcileHandler) ListOrphans(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), pool, false)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reconcile liquidates and removes orphaned distributions. Per-item failures
// are reported in the response rather than failing the batch.
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	pool, ok := poolParam(c)
	if !ok {
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), pool, true)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
