package ports

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrDuplicateIdempotencyKey is returned by LedgerRepository.Append
// when another transaction already holds the idempotency key. The
// caller resolves the race by re-reading the recorded transaction.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside transaction blocks so the row
// stays locked between read and write.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, newBalance decimal.Decimal) error
	SetCreditLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error
	SetTrustScore(ctx context.Context, userID uuid.UUID, score float64) error
	// Aggregates for system metrics.
	SumPositiveBalances(ctx context.Context) (decimal.Decimal, error)
	CountActive(ctx context.Context) (int64, error)
}

// LedgerRepository is the append-only transaction log. Entries are
// never updated or deleted once written.
type LedgerRepository interface {
	// Append persists t and returns its assigned sequence id.
	// A nil tx appends outside any surrounding transaction (used for
	// failed-attempt audit records).
	Append(ctx context.Context, tx pgx.Tx, t *domain.Transaction) (int64, error)
	// History returns userID's entries newest-first by sequence id.
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	// FindByIdempotencyKey returns the recorded transaction for key,
	// or nil if the key has never been seen.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	// FlowTotals sums Completed outgoing and incoming amounts for
	// userID since the given time.
	FlowTotals(ctx context.Context, userID uuid.UUID, since time.Time) (outgoing, incoming decimal.Decimal, err error)
	Stats(ctx context.Context) (*LedgerStats, error)
}

// LedgerStats holds ledger-wide aggregates.
type LedgerStats struct {
	TransactionCount  int64
	PerCategoryVolume map[domain.TransactionType]decimal.Decimal
}

// RatingRepository defines persistence for trust ratings, with a
// secondary index on the rated user.
type RatingRepository interface {
	Create(ctx context.Context, rating *domain.TrustRating) error
	// ListByRatedID returns the most recent ratings of userID,
	// newest-first, at most limit entries.
	ListByRatedID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustRating, error)
}

// IdempotencyCache is a best-effort fast path for transfer replay
// detection in front of the ledger's durable idempotency index.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
