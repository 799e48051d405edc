package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pool-service/pool_service/internal/domain/entities"
	apperrors "github.com/pool-service/pool_service/pkg/errors"
)

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// poolParam parses and validates the :pool path parameter
func poolParam(c *gin.Context) (entities.Pool, bool) {
	pool, err := entities.ParsePool(c.Param("pool"))
	if err != nil {
		respondAppError(c, err)
		return "", false
	}
	return pool, true
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondAppError maps a domain error onto its HTTP representation
func respondAppError(c *gin.Context, err error) {
	if poolErr, ok := apperrors.AsPoolError(err); ok {
		respondError(c, poolErr.StatusCode, string(poolErr.Code), poolErr.Message, poolErr.Details)
		return
	}
	respondError(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), "Internal server error", nil)
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respondError(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message, details)
}
