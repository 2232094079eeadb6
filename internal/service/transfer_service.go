package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/internal/service/accountlock"
	"units-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// TransferServiceImpl implements ports.TransferService. A transfer
// debits the sender, credits the receiver and appends exactly one
// ledger entry, all under both account locks.
type TransferServiceImpl struct {
	wallets     ports.WalletStore
	ledger      ports.LedgerRepository
	idempCache  ports.IdempotencyCache // nil disables the cache fast path
	transactor  ports.DBTransactor
	locks       *accountlock.Manager
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	wallets ports.WalletStore,
	ledger ports.LedgerRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	locks *accountlock.Manager,
	lockTimeout time.Duration,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		wallets:     wallets,
		ledger:      ledger,
		idempCache:  idempCache,
		transactor:  transactor,
		locks:       locks,
		lockTimeout: lockTimeout,
		log:         log,
	}
}

// Transfer moves Units between two accounts. Either both balance legs
// happen and a Completed entry is appended, or neither leg sticks.
// Replays carrying a known idempotency key return the recorded
// transaction unchanged.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("amount must be positive")
	}
	if req.FromUserID == req.ToUserID {
		return nil, apperror.ErrInvalidAmount("sender and receiver must differ")
	}
	if !domain.ValidTransactionType(req.Type) {
		return nil, apperror.ErrInvalidAmount(fmt.Sprintf("unknown transaction type %q", req.Type))
	}

	if req.IdempotencyKey != "" {
		if txn, ok := s.replay(ctx, req.IdempotencyKey); ok {
			return txn, nil
		}
	}

	// Serialize both accounts, lower uuid first. Bounded wait: a
	// contended account surfaces a retryable error instead of queueing.
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	release, err := s.locks.AcquirePair(lockCtx, req.FromUserID, req.ToUserID)
	if err != nil {
		return nil, apperror.ErrContention(err)
	}
	defer release()

	// Re-check under the locks: a concurrent attempt carrying the same
	// key may have committed between the unlocked check above and
	// acquiring the pair. The loser stays read-only.
	if req.IdempotencyKey != "" {
		if txn, ok := s.replay(ctx, req.IdempotencyKey); ok {
			return txn, nil
		}
	}

	// Lazily create both wallets before opening the transaction so
	// the locked reads below always find a row.
	if _, err := s.wallets.Get(ctx, req.FromUserID); err != nil {
		return nil, err
	}
	if _, err := s.wallets.Get(ctx, req.ToUserID); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Debit leg.
	if _, err := s.wallets.ApplyDelta(ctx, dbTx, req.FromUserID, req.Amount.Neg()); err != nil {
		if apperror.IsCode(err, apperror.CodeInsufficientCredit) {
			_ = dbTx.Rollback(ctx)
			return nil, s.recordRejection(ctx, req)
		}
		return nil, err
	}

	// Credit leg. The limit only bounds negative balances, so this
	// cannot be rejected under correct bookkeeping; if it still fails
	// the debit is compensated before the error surfaces.
	if _, err := s.wallets.ApplyDelta(ctx, dbTx, req.ToUserID, req.Amount); err != nil {
		if _, compErr := s.wallets.ApplyDelta(ctx, dbTx, req.FromUserID, req.Amount); compErr != nil {
			s.log.Error().Err(compErr).
				Str("from", req.FromUserID.String()).
				Msg("compensating debit rollback failed inside aborting tx")
		}
		return nil, err
	}

	txn := newTransaction(req, domain.TransactionStatusCompleted)
	seq, err := s.ledger.Append(ctx, dbTx, txn)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateIdempotencyKey) {
			// A concurrent attempt with the same key committed first;
			// abandon this one and return what was recorded.
			_ = dbTx.Rollback(ctx)
			return s.recorded(ctx, req.IdempotencyKey)
		}
		return nil, apperror.ErrStorageFault(fmt.Errorf("append transaction: %w", err))
	}
	txn.SequenceID = seq

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheResult(ctx, req.IdempotencyKey, txn)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Int64("seq", txn.SequenceID).
		Str("from", req.FromUserID.String()).
		Str("to", req.ToUserID.String()).
		Str("amount", req.Amount.String()).
		Msg("transfer completed")

	return txn, nil
}

// History returns userID's ledger entries newest-first, annotated
// with their direction relative to userID.
func (s *TransferServiceImpl) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ports.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := s.ledger.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("ledger history: %w", err))
	}

	entries := make([]ports.HistoryEntry, 0, len(txns))
	for _, t := range txns {
		entries = append(entries, ports.HistoryEntry{
			Transaction: t,
			Direction:   t.DirectionFor(userID),
		})
	}
	return entries, nil
}

// replay checks the idempotency layers, cache first then ledger.
// Returns ok=false when the key has never been recorded.
func (s *TransferServiceImpl) replay(ctx context.Context, key string) (*domain.Transaction, bool) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache check failed, falling through to ledger")
		}
		if cached != nil {
			txn := &domain.Transaction{}
			if err := json.Unmarshal(cached, txn); err == nil {
				return txn, true
			}
			s.log.Warn().Str("key", key).Msg("discarding malformed cached idempotency entry")
		}
	}

	txn, err := s.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("ledger idempotency check failed")
		return nil, false
	}
	if txn == nil {
		return nil, false
	}
	s.cacheResult(ctx, key, txn)
	return txn, true
}

// recorded re-reads the transaction that won an idempotency-key race.
func (s *TransferServiceImpl) recorded(ctx context.Context, key string) (*domain.Transaction, error) {
	txn, err := s.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("read recorded transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("idempotency key %q raced but no transaction recorded", key))
	}
	return txn, nil
}

// recordRejection appends a Failed entry for audit and returns the
// InsufficientCredit error. The append runs outside the rolled-back
// transfer transaction; its failure is logged but does not mask the
// credit rejection.
func (s *TransferServiceImpl) recordRejection(ctx context.Context, req ports.TransferRequest) error {
	txn := newTransaction(req, domain.TransactionStatusFailed)
	if _, err := s.ledger.Append(ctx, nil, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateIdempotencyKey) {
			s.log.Debug().Str("key", req.IdempotencyKey).Msg("rejection already recorded under idempotency key")
		} else {
			s.log.Error().Err(err).Str("from", req.FromUserID.String()).Msg("failed to record rejected transfer")
		}
	} else {
		s.cacheResult(ctx, req.IdempotencyKey, txn)
	}

	s.log.Info().
		Str("from", req.FromUserID.String()).
		Str("to", req.ToUserID.String()).
		Str("amount", req.Amount.String()).
		Msg("transfer rejected for insufficient credit")

	return apperror.ErrInsufficientCredit()
}

// cacheResult stores the outcome under the idempotency key,
// best-effort.
func (s *TransferServiceImpl) cacheResult(ctx context.Context, key string, txn *domain.Transaction) {
	if s.idempCache == nil || key == "" {
		return
	}
	payload, err := json.Marshal(txn)
	if err != nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, payload, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency result")
	}
}

func newTransaction(req ports.TransferRequest, status domain.TransactionStatus) *domain.Transaction {
	return &domain.Transaction{
		ID:             uuid.New(),
		FromUserID:     req.FromUserID,
		ToUserID:       req.ToUserID,
		Amount:         req.Amount,
		Type:           req.Type,
		Description:    req.Description,
		Metadata:       req.Metadata,
		Status:         status,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
}

var _ ports.TransferService = (*TransferServiceImpl)(nil)
