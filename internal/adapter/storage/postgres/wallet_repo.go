package postgres

import (
	"context"
	"errors"
	"fmt"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. Concurrent creation of the same wallet
// is resolved by the caller re-reading after a unique violation.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, balance, credit_limit, trust_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		w.UserID, w.Balance, w.CreditLimit, w.TrustScore, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet without locking. Returns nil, nil when
// the wallet does not exist.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, balance, credit_limit, trust_score, created_at, updated_at
		FROM wallets WHERE user_id = $1`

	return scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// GetForUpdate fetches a wallet with a row lock.
// This MUST be called within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, balance, credit_limit, trust_score, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE`

	return scanWallet(tx.QueryRow(ctx, query, userID))
}

// UpdateBalance writes a new balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, newBalance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, newBalance, userID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// SetCreditLimit writes a recomputed credit limit. Balance is never
// touched here; a wallet already below a lowered limit keeps its
// balance and simply cannot spend further.
func (r *WalletRepo) SetCreditLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error {
	query := `UPDATE wallets SET credit_limit = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := r.pool.Exec(ctx, query, limit, userID)
	if err != nil {
		return fmt.Errorf("set credit limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// SetTrustScore writes a recomputed trust score.
func (r *WalletRepo) SetTrustScore(ctx context.Context, userID uuid.UUID, score float64) error {
	query := `UPDATE wallets SET trust_score = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := r.pool.Exec(ctx, query, score, userID)
	if err != nil {
		return fmt.Errorf("set trust score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// SumPositiveBalances totals the Units currently held above zero,
// the circulating supply in a mutual-credit system.
func (r *WalletRepo) SumPositiveBalances(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(balance) FILTER (WHERE balance > 0), 0) FROM wallets`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum positive balances: %w", err)
	}
	return sum, nil
}

// CountActive counts wallets with a non-zero balance.
func (r *WalletRepo) CountActive(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM wallets WHERE balance <> 0`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active wallets: %w", err)
	}
	return n, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.UserID, &w.Balance, &w.CreditLimit, &w.TrustScore, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}
