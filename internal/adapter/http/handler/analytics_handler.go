package handler

import (
	"time"

	"units-ledger/internal/adapter/http/dto"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"
	"units-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultReciprocityWindow bounds the flow totals used for the
// per-user reciprocity ratio.
const defaultReciprocityWindow = 90 * 24 * time.Hour

// AnalyticsHandler handles read-only aggregate endpoints.
type AnalyticsHandler struct {
	analyticsSvc ports.Analytics
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsSvc ports.Analytics) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsSvc: analyticsSvc}
}

// GetSystemMetrics handles GET /api/v1/analytics/system.
func (h *AnalyticsHandler) GetSystemMetrics(c *gin.Context) {
	metrics, err := h.analyticsSvc.SystemMetrics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	perCategory := make(map[string]string, len(metrics.PerCategoryVolume))
	for t, v := range metrics.PerCategoryVolume {
		perCategory[string(t)] = v.String()
	}
	response.OK(c, dto.SystemMetricsResponse{
		TotalCirculation:  metrics.TotalCirculation.String(),
		TransactionCount:  metrics.TransactionCount,
		PerCategoryVolume: perCategory,
		ActiveWalletCount: metrics.ActiveWalletCount,
	})
}

// GetReciprocity handles GET /api/v1/analytics/users/:userID/reciprocity.
func (h *AnalyticsHandler) GetReciprocity(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user id"))
		return
	}

	window := defaultReciprocityWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, apperror.Validation("invalid window duration"))
			return
		}
		window = parsed
	}

	ratio, err := h.analyticsSvc.ReciprocityRatio(c.Request.Context(), userID, window)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReciprocityResponse{
		UserID:           userID.String(),
		Window:           window.String(),
		ReciprocityRatio: ratio.String(),
	})
}
