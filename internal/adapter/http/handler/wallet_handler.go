package handler

import (
	"strconv"

	"units-ledger/internal/adapter/http/dto"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"
	"units-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet and history endpoints.
type WalletHandler struct {
	wallets   ports.WalletStore
	transfers ports.TransferService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets ports.WalletStore, transfers ports.TransferService) *WalletHandler {
	return &WalletHandler{wallets: wallets, transfers: transfers}
}

// GetWallet handles GET /api/v1/wallets/:userID.
// The wallet is created with defaults on first reference.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user id"))
		return
	}

	wallet, err := h.wallets.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

// GetHistory handles GET /api/v1/wallets/:userID/transactions.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user id"))
		return
	}

	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Error(c, apperror.Validation("invalid limit"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, apperror.Validation("invalid offset"))
		return
	}

	entries, err := h.transfers.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	result := make([]dto.TransactionResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, dto.FromHistoryEntry(e))
	}
	response.OK(c, result)
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
