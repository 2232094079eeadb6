package dto

import (
	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
)

// TransferRequest is the request body for a Units transfer.
type TransferRequest struct {
	FromUserID     string            `json:"from_user_id" binding:"required,uuid"`
	ToUserID       string            `json:"to_user_id" binding:"required,uuid"`
	Amount         string            `json:"amount" binding:"required"`
	Type           string            `json:"type" binding:"required"`
	Description    string            `json:"description" binding:"max=500"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key" binding:"max=100"`
}

// RatingRequest is the request body for a trust rating submission.
type RatingRequest struct {
	RaterID       string  `json:"rater_id" binding:"required,uuid"`
	RatedID       string  `json:"rated_id" binding:"required,uuid"`
	TransactionID *string `json:"transaction_id,omitempty" binding:"omitempty,uuid"`
	Rating        int     `json:"rating" binding:"required"`
	Communication *int    `json:"communication,omitempty"`
	Delivery      *int    `json:"delivery,omitempty"`
	Quality       *int    `json:"quality,omitempty"`
	Comment       string  `json:"comment" binding:"max=1000"`
}

// WalletResponse is the response for a wallet query.
type WalletResponse struct {
	UserID          string  `json:"user_id"`
	Balance         string  `json:"balance"`
	CreditLimit     string  `json:"credit_limit"`
	TrustScore      float64 `json:"trust_score"`
	AvailableCredit string  `json:"available_credit"`
}

// TransactionResponse is the response body for transfer results and
// history entries.
type TransactionResponse struct {
	ID             string            `json:"id"`
	SequenceID     int64             `json:"sequence_id"`
	FromUserID     string            `json:"from_user_id"`
	ToUserID       string            `json:"to_user_id"`
	Amount         string            `json:"amount"`
	Type           string            `json:"type"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         string            `json:"status"`
	Direction      string            `json:"direction,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

// ReciprocityResponse is the response for a per-user reciprocity
// query.
type ReciprocityResponse struct {
	UserID           string `json:"user_id"`
	Window           string `json:"window"`
	ReciprocityRatio string `json:"reciprocity_ratio"`
}

// SystemMetricsResponse is the response for system-wide analytics.
type SystemMetricsResponse struct {
	TotalCirculation  string            `json:"total_circulation"`
	TransactionCount  int64             `json:"transaction_count"`
	PerCategoryVolume map[string]string `json:"per_category_volume"`
	ActiveWalletCount int64             `json:"active_wallet_count"`
}

// FromTransaction maps a domain transaction into its response shape.
func FromTransaction(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             t.ID.String(),
		SequenceID:     t.SequenceID,
		FromUserID:     t.FromUserID.String(),
		ToUserID:       t.ToUserID.String(),
		Amount:         t.Amount.String(),
		Type:           string(t.Type),
		Description:    t.Description,
		Metadata:       t.Metadata,
		Status:         string(t.Status),
		IdempotencyKey: t.IdempotencyKey,
		CreatedAt:      t.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// FromHistoryEntry maps a direction-annotated ledger entry.
func FromHistoryEntry(e ports.HistoryEntry) TransactionResponse {
	resp := FromTransaction(&e.Transaction)
	resp.Direction = string(e.Direction)
	return resp
}

// FromWallet maps a domain wallet into its response shape.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		UserID:          w.UserID.String(),
		Balance:         w.Balance.String(),
		CreditLimit:     w.CreditLimit.String(),
		TrustScore:      w.TrustScore,
		AvailableCredit: w.AvailableCredit().String(),
	}
}
