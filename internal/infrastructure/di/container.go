package di

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pool-service/pool_service/internal/domain/services/liquidity"
	"github.com/pool-service/pool_service/internal/domain/services/reconcile"
	"github.com/pool-service/pool_service/internal/domain/services/snapshots"
	"github.com/pool-service/pool_service/internal/infrastructure/adapters"
	"github.com/pool-service/pool_service/internal/infrastructure/cache"
	"github.com/pool-service/pool_service/internal/infrastructure/config"
	"github.com/pool-service/pool_service/internal/infrastructure/repositories"
	"github.com/pool-service/pool_service/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Logger *logger.Logger
	Cache  *cache.RedisCache

	// Repositories
	LedgerRepo   *repositories.LedgerRepository
	SnapshotRepo *repositories.SnapshotRepository

	// External services
	SignalsClient *adapters.SignalsClient

	// Domain services
	LiquidityService *liquidity.Service
	SnapshotService  *snapshots.Service
	ReconcileService *reconcile.Service
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	ledgerRepo := repositories.NewLedgerRepository(db, log)
	snapshotRepo := repositories.NewSnapshotRepository(db, log)

	signalsClient := adapters.NewSignalsClient(cfg.Signals, log)

	// The read cache is optional; the service degrades to direct reads
	var snapshotCache snapshots.Cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, current-value caching disabled", "error", err)
		redisCache = nil
	} else {
		snapshotCache = redisCache
	}

	location, err := cfg.Ledger.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load reference timezone: %w", err)
	}

	liquidityService := liquidity.NewService(ledgerRepo, log)
	snapshotService := snapshots.NewService(
		liquidityService,
		snapshotRepo,
		snapshotCache,
		location,
		cfg.Redis.CurrentValueTTLDuration(),
		log,
	)
	reconcileService := reconcile.NewService(liquidityService, signalsClient, log)

	return &Container{
		Config: cfg,
		DB:     db,
		Logger: log,
		Cache:  redisCache,

		LedgerRepo:   ledgerRepo,
		SnapshotRepo: snapshotRepo,

		SignalsClient: signalsClient,

		LiquidityService: liquidityService,
		SnapshotService:  snapshotService,
		ReconcileService: reconcileService,
	}, nil
}

// Close releases held resources
func (c *Container) Close() error {
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.Logger.Warn("Failed to close redis client", "error", err)
		}
	}
	return nil
}
