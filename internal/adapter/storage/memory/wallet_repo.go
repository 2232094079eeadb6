// Package memory provides an in-memory implementation of the storage
// ports. It backs tests and single-process development setups and is
// selected at construction time, never via a runtime flag.
//
// The repositories guard their maps with mutexes but provide no
// row-level locking; callers rely on the service-layer account locks
// for transfer serialization.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository with a mutex-guarded
// map. All reads return copies so callers hold snapshots.
type WalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

// NewWalletRepo creates an empty in-memory wallet repository.
func NewWalletRepo() *WalletRepo {
	return &WalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; ok {
		return nil // mirrors ON CONFLICT DO NOTHING
	}
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, newBalance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	w.Balance = newBalance
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) SetCreditLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	w.CreditLimit = limit
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) SetTrustScore(ctx context.Context, userID uuid.UUID, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	w.TrustScore = score
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WalletRepo) SumPositiveBalances(ctx context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, w := range r.wallets {
		if w.Balance.IsPositive() {
			sum = sum.Add(w.Balance)
		}
	}
	return sum, nil
}

func (r *WalletRepo) CountActive(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, w := range r.wallets {
		if !w.Balance.IsZero() {
			n++
		}
	}
	return n, nil
}
