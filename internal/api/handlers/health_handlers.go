package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/pool-service/pool_service/internal/infrastructure/cache"
	"github.com/pool-service/pool_service/pkg/logger"
	"github.com/pool-service/pool_service/pkg/version"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db     *sqlx.DB
	cache  *cache.RedisCache
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sqlx.DB, cache *cache.RedisCache, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// HealthCheck represents a health check result
type HealthCheck struct {
	Service   string        `json:"service"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
}

var startTime = time.Now()

// Health performs health checks on all critical services
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	overallStatus := "healthy"

	dbCheck := h.checkDatabase(ctx)
	checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		overallStatus = "unhealthy"
	}

	// Redis is a read cache; a failure degrades but does not take us down
	if h.cache != nil {
		redisCheck := h.checkRedis(ctx)
		checks["redis"] = redisCheck
		if redisCheck.Status != "healthy" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Version:   version.Get().Version,
		Uptime:    time.Since(startTime),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// Ready checks if the application is ready to serve traffic
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbCheck := h.checkDatabase(ctx)

	ready := dbCheck.Status == "healthy"
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"checks": map[string]interface{}{
			"database": dbCheck,
		},
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// Live is a simple liveness check for container orchestration
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime),
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Service:   "database",
		Timestamp: start,
	}

	err := h.db.PingContext(ctx)
	check.Latency = time.Since(start)

	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	} else {
		check.Status = "healthy"
	}

	return check
}

func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Service:   "redis",
		Timestamp: start,
	}

	err := h.cache.Ping(ctx)
	check.Latency = time.Since(start)

	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	} else {
		check.Status = "healthy"
	}

	return check
}
