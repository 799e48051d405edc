package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pool-service/pool_service/internal/api/handlers"
	"github.com/pool-service/pool_service/internal/api/middleware"
	"github.com/pool-service/pool_service/internal/infrastructure/di"
	"github.com/pool-service/pool_service/pkg/metrics"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()

	// Global middleware - order matters
	router.Use(middleware.RequestID())
	router.Use(metrics.Middleware())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	ledgerHandlers := handlers.NewLedgerHandler(container.LiquidityService, container.Logger)
	snapshotHandlers := handlers.NewSnapshotHandler(container.SnapshotService, container.Logger)
	reconcileHandlers := handlers.NewReconcileHandler(container.ReconcileService, container.Logger)
	healthHandlers := handlers.NewHealthHandler(container.DB, container.Cache, container.Logger)

	// Health and observability (no auth required)
	router.GET("/health", healthHandlers.Health)
	router.GET("/ready", healthHandlers.Ready)
	router.GET("/live", healthHandlers.Live)
	router.GET("/version", handlers.VersionHandler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	pools := v1.Group("/pools/:pool")
	{
		// Read side
		pools.GET("/ledger", ledgerHandlers.GetLedger)
		pools.GET("/verify", ledgerHandlers.Verify)
		pools.GET("/current-value", snapshotHandlers.CurrentValue)
		pools.GET("/returns", snapshotHandlers.Returns)
		pools.GET("/orphans", reconcileHandlers.ListOrphans)

		// Mutations require the admin token
		admin := pools.Group("")
		admin.Use(middleware.AdminAuth(container.Config.Server.AdminToken))
		{
			admin.POST("/ledger", ledgerHandlers.Fund)
			admin.POST("/distributions", ledgerHandlers.Allocate)
			admin.POST("/distributions/:positionId/sell", ledgerHandlers.Sell)
			admin.POST("/distributions/:positionId/revalue", ledgerHandlers.Revalue)
			admin.DELETE("/distributions/:positionId", ledgerHandlers.Remove)
			admin.POST("/revalue", ledgerHandlers.RevalueAll)
			admin.POST("/snapshots/liquidity", snapshotHandlers.RecordLiquiditySnapshot)
			admin.POST("/snapshots/portfolio", snapshotHandlers.RecordPortfolioSnapshot)
			admin.POST("/orphans/reconcile", reconcileHandlers.Reconcile)
		}
	}

	return router
}
