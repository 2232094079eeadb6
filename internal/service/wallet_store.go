package service

import (
	"context"
	"fmt"
	"time"

	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTrustScore is assigned to lazily created wallets. It sits at
// the midpoint of the normalized [0,1] scale: a new participant is
// neither trusted nor distrusted.
const DefaultTrustScore = 0.5

// WalletStoreImpl implements ports.WalletStore. It is the only
// component that writes balances.
type WalletStoreImpl struct {
	walletRepo         ports.WalletRepository
	defaultCreditLimit decimal.Decimal
	log                zerolog.Logger
}

// NewWalletStore creates a new WalletStoreImpl.
func NewWalletStore(walletRepo ports.WalletRepository, defaultCreditLimit decimal.Decimal, log zerolog.Logger) *WalletStoreImpl {
	return &WalletStoreImpl{
		walletRepo:         walletRepo,
		defaultCreditLimit: defaultCreditLimit,
		log:                log,
	}
}

// Get returns the wallet for userID, creating it with defaults on
// first reference. Wallets are never deleted.
func (s *WalletStoreImpl) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("get wallet: %w", err))
	}
	if w != nil {
		return w, nil
	}

	now := time.Now().UTC()
	w = &domain.Wallet{
		UserID:      userID,
		Balance:     decimal.Zero,
		CreditLimit: s.defaultCreditLimit,
		TrustScore:  DefaultTrustScore,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.walletRepo.Create(ctx, w); err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("create wallet: %w", err))
	}

	// Re-read so a concurrent creation race always yields the row
	// that actually won.
	w, err = s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("reread wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("wallet %s missing after create", userID))
	}

	s.log.Debug().Str("user_id", userID.String()).Msg("wallet created with defaults")
	return w, nil
}

// ApplyDelta atomically adds delta to the balance inside tx. The
// change is rejected with InsufficientCredit if the resulting balance
// would drop below -creditLimit; on rejection nothing is written.
// The caller must hold the account lock and have ensured the wallet
// exists.
func (s *WalletStoreImpl) ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta decimal.Decimal) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("wallet %s not found for delta", userID))
	}

	newBalance := w.Balance.Add(delta)
	if newBalance.LessThan(w.CreditLimit.Neg()) {
		return nil, apperror.ErrInsufficientCredit()
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, userID, newBalance); err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("update balance: %w", err))
	}

	w.Balance = newBalance
	return w, nil
}

// SetCreditLimit writes a recomputed credit limit. The balance is
// never modified: a wallet already deeper in credit than a lowered
// limit keeps its balance and simply cannot draw further.
func (s *WalletStoreImpl) SetCreditLimit(ctx context.Context, userID uuid.UUID, limit decimal.Decimal) error {
	if limit.IsNegative() {
		return apperror.Validation("credit limit must be non-negative")
	}
	if err := s.walletRepo.SetCreditLimit(ctx, userID, limit); err != nil {
		return apperror.ErrStorageFault(fmt.Errorf("set credit limit: %w", err))
	}
	return nil
}

// SetTrustScore writes a recomputed trust score in [0,1].
func (s *WalletStoreImpl) SetTrustScore(ctx context.Context, userID uuid.UUID, score float64) error {
	if score < 0 || score > 1 {
		return apperror.Validation("trust score must be within [0,1]")
	}
	if err := s.walletRepo.SetTrustScore(ctx, userID, score); err != nil {
		return apperror.ErrStorageFault(fmt.Errorf("set trust score: %w", err))
	}
	return nil
}

var _ ports.WalletStore = (*WalletStoreImpl)(nil)
