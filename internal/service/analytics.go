package service

import (
	"context"
	"fmt"
	"time"

	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnalyticsImpl implements ports.Analytics. It only reads committed
// snapshots of the wallets and ledger, never takes account locks and
// never feeds credit decisions.
type AnalyticsImpl struct {
	wallets ports.WalletRepository
	ledger  ports.LedgerRepository
}

// NewAnalytics creates a new AnalyticsImpl.
func NewAnalytics(wallets ports.WalletRepository, ledger ports.LedgerRepository) *AnalyticsImpl {
	return &AnalyticsImpl{wallets: wallets, ledger: ledger}
}

// ReciprocityRatio is the sum of Units given divided by the sum of
// Units received over the window ending now. A user who has received
// nothing is scored against a denominator of one, so pure givers
// still get a finite, comparable number.
func (a *AnalyticsImpl) ReciprocityRatio(ctx context.Context, userID uuid.UUID, window time.Duration) (decimal.Decimal, error) {
	since := time.Now().UTC().Add(-window)
	outgoing, incoming, err := a.ledger.FlowTotals(ctx, userID, since)
	if err != nil {
		return decimal.Zero, apperror.ErrStorageFault(fmt.Errorf("flow totals: %w", err))
	}

	if incoming.IsZero() {
		return outgoing, nil
	}
	return outgoing.DivRound(incoming, 4), nil
}

// SystemMetrics aggregates the whole ledger and wallet set. The view
// is eventually consistent with in-flight transfers.
func (a *AnalyticsImpl) SystemMetrics(ctx context.Context) (*ports.SystemMetrics, error) {
	circulation, err := a.wallets.SumPositiveBalances(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("sum balances: %w", err))
	}
	activeCount, err := a.wallets.CountActive(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("count active wallets: %w", err))
	}
	stats, err := a.ledger.Stats(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("ledger stats: %w", err))
	}

	return &ports.SystemMetrics{
		TotalCirculation:  circulation,
		TransactionCount:  stats.TransactionCount,
		PerCategoryVolume: stats.PerCategoryVolume,
		ActiveWalletCount: activeCount,
	}, nil
}

var _ ports.Analytics = (*AnalyticsImpl)(nil)
