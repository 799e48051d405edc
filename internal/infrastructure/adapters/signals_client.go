package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/pool-service/pool_service/internal/domain/entities"
	"github.com/pool-service/pool_service/internal/infrastructure/config"
	"github.com/pool-service/pool_service/pkg/circuitbreaker"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
	"github.com/pool-service/pool_service/pkg/logger"
)

// SignalsClient looks up positions in the signals service that owns the
// trading-call lifecycle. Calls go through a circuit breaker so a flapping
// signals service cannot stall reconciliation scans.
type SignalsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewSignalsClient creates a new signals service client
func NewSignalsClient(cfg config.SignalsConfig, log *logger.Logger) *SignalsClient {
	return &SignalsClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		breaker: circuitbreaker.New("signals-service", circuitbreaker.DefaultConfig()),
		logger:  log,
	}
}

// GetPosition fetches a position by ID. A 404 maps to a position-not-found
// error so callers can distinguish deleted positions from transport failures.
func (c *SignalsClient) GetPosition(ctx context.Context, positionID uuid.UUID) (*entities.Position, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchPosition(ctx, positionID)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "signals service circuit open")
	}
	if err != nil {
		return nil, err
	}
	return result.(*entities.Position), nil
}

func (c *SignalsClient) fetchPosition(ctx context.Context, positionID uuid.UUID) (*entities.Position, error) {
	url := fmt.Sprintf("%s/api/v1/positions/%s", c.baseURL, positionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "signals service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.ErrCodePositionNotFound,
			fmt.Sprintf("position %s not found", positionID))
	case resp.StatusCode >= 400:
		c.logger.Warn("Signals service returned error",
			"status", resp.StatusCode,
			"position_id", positionID.String(),
		)
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable,
			fmt.Sprintf("signals service error %d", resp.StatusCode))
	}

	var position entities.Position
	if err := json.Unmarshal(body, &position); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return &position, nil
}
