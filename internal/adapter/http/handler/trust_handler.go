package handler

import (
	"units-ledger/internal/adapter/http/dto"
	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"
	"units-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TrustHandler handles rating submission and trust summaries.
type TrustHandler struct {
	trustSvc ports.TrustEngine
}

// NewTrustHandler creates a new TrustHandler.
func NewTrustHandler(trustSvc ports.TrustEngine) *TrustHandler {
	return &TrustHandler{trustSvc: trustSvc}
}

// SubmitRating handles POST /api/v1/ratings.
func (h *TrustHandler) SubmitRating(c *gin.Context) {
	var req dto.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	raterID, err := uuid.Parse(req.RaterID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid rater_id"))
		return
	}
	ratedID, err := uuid.Parse(req.RatedID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid rated_id"))
		return
	}
	var txID *uuid.UUID
	if req.TransactionID != nil {
		id, err := uuid.Parse(*req.TransactionID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid transaction_id"))
			return
		}
		txID = &id
	}

	rating, err := h.trustSvc.SubmitRating(c.Request.Context(), ports.RatingRequest{
		RaterID:       raterID,
		RatedID:       ratedID,
		TransactionID: txID,
		Rating:        req.Rating,
		Subscores: domain.Subscores{
			Communication: req.Communication,
			Delivery:      req.Delivery,
			Quality:       req.Quality,
		},
		Comment: req.Comment,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, rating)
}

// GetSummary handles GET /api/v1/trust/:userID.
func (h *TrustHandler) GetSummary(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user id"))
		return
	}

	summary, err := h.trustSvc.Summary(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, summary)
}
