package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository as an append-only
// slice with a monotonic sequence counter.
type LedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.Transaction
	byKey   map[string]int // idempotency key -> index into entries
	nextSeq int64
}

// NewLedgerRepo creates an empty in-memory ledger.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		byKey:   make(map[string]int),
		nextSeq: 1,
	}
}

func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, t *domain.Transaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.IdempotencyKey != "" {
		if _, ok := r.byKey[t.IdempotencyKey]; ok {
			return 0, fmt.Errorf("append transaction: %w", ports.ErrDuplicateIdempotencyKey)
		}
	}

	cp := *t
	cp.SequenceID = r.nextSeq
	r.nextSeq++
	r.entries = append(r.entries, cp)
	if cp.IdempotencyKey != "" {
		r.byKey[cp.IdempotencyKey] = len(r.entries) - 1
	}
	return cp.SequenceID, nil
}

func (r *LedgerRepo) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	skipped := 0
	// entries are already ordered by sequence; walk backwards for
	// newest-first.
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		t := r.entries[i]
		if t.FromUserID != userID && t.ToUserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *LedgerRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := r.entries[idx]
	return &cp, nil
}

func (r *LedgerRepo) FlowTotals(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outgoing, incoming := decimal.Zero, decimal.Zero
	for _, t := range r.entries {
		if t.Status != domain.TransactionStatusCompleted || t.CreatedAt.Before(since) {
			continue
		}
		if t.FromUserID == userID {
			outgoing = outgoing.Add(t.Amount)
		}
		if t.ToUserID == userID {
			incoming = incoming.Add(t.Amount)
		}
	}
	return outgoing, incoming, nil
}

func (r *LedgerRepo) Stats(ctx context.Context) (*ports.LedgerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &ports.LedgerStats{
		TransactionCount:  int64(len(r.entries)),
		PerCategoryVolume: make(map[domain.TransactionType]decimal.Decimal),
	}
	for _, t := range r.entries {
		if t.Status != domain.TransactionStatusCompleted {
			continue
		}
		stats.PerCategoryVolume[t.Type] = stats.PerCategoryVolume[t.Type].Add(t.Amount)
	}
	return stats, nil
}
