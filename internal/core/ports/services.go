package ports

//go:generate mockgen -source=services.go -destination=mocks/services_mock.go -package=mocks

import (
	"context"
	"time"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletStore owns per-account state and is the only writer of
// balances. Reads create missing wallets lazily with defaults.
type WalletStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// ApplyDelta atomically adds delta (any sign) to the balance
	// inside tx, rejecting the change if it would push the balance
	// below -creditLimit. On rejection the wallet is untouched.
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta decimal.Decimal) (*domain.Wallet, error)
	SetCreditLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error
	SetTrustScore(ctx context.Context, userID uuid.UUID, score float64) error
}

// TransferRequest carries one peer-to-peer Units transfer attempt.
type TransferRequest struct {
	FromUserID     uuid.UUID
	ToUserID       uuid.UUID
	Amount         decimal.Decimal
	Type           domain.TransactionType
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// HistoryEntry is a ledger entry annotated with its direction
// relative to the queried user.
type HistoryEntry struct {
	domain.Transaction
	Direction domain.Direction `json:"direction"`
}

// TransferService orchestrates atomic two-account transfers and the
// ledger append.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]HistoryEntry, error)
}

// RatingRequest carries one peer rating submission.
type RatingRequest struct {
	RaterID       uuid.UUID
	RatedID       uuid.UUID
	TransactionID *uuid.UUID
	Rating        int
	Subscores     domain.Subscores
	Comment       string
}

// TrustEngine aggregates peer ratings into trust scores and derives
// credit limits. Recomputation is asynchronous; Flush waits for all
// recomputations enqueued so far to land.
type TrustEngine interface {
	SubmitRating(ctx context.Context, req RatingRequest) (*domain.TrustRating, error)
	Summary(ctx context.Context, userID uuid.UUID) (*domain.TrustSummary, error)
	Flush(ctx context.Context) error
}

// SystemMetrics is the read-only system-wide aggregate view.
type SystemMetrics struct {
	TotalCirculation  decimal.Decimal                            `json:"total_circulation"`
	TransactionCount  int64                                      `json:"transaction_count"`
	PerCategoryVolume map[domain.TransactionType]decimal.Decimal `json:"per_category_volume"`
	ActiveWalletCount int64                                      `json:"active_wallet_count"`
}

// Analytics produces reciprocity and circulation metrics from ledger
// and wallet snapshots. Never used to gate credit decisions.
type Analytics interface {
	ReciprocityRatio(ctx context.Context, userID uuid.UUID, window time.Duration) (decimal.Decimal, error)
	SystemMetrics(ctx context.Context) (*SystemMetrics, error)
}

// HealthChecker verifies connectivity of a backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
