package handler

import (
	"units-ledger/internal/adapter/http/dto"
	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"
	"units-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferHandler handles transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// CreateTransfer handles POST /api/v1/transfers.
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	fromID, err := uuid.Parse(req.FromUserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid from_user_id"))
		return
	}
	toID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid to_user_id"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount("amount must be a decimal number"))
		return
	}

	tx, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		FromUserID:     fromID,
		ToUserID:       toID,
		Amount:         amount,
		Type:           domain.TransactionType(req.Type),
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromTransaction(tx))
}
