package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"units-ledger/internal/adapter/storage/memory"
	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/internal/core/ports/mocks"
	"units-ledger/internal/service/accountlock"
	"units-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transferTestDeps struct {
	svc        *TransferServiceImpl
	wallets    *mocks.MockWalletStore
	ledger     *mocks.MockLedgerRepository
	idempCache *mocks.MockIdempotencyCache
	transactor *mocks.MockDBTransactor
	locks      *accountlock.Manager
	ctrl       *gomock.Controller
}

func setupTransferService(t *testing.T) *transferTestDeps {
	ctrl := gomock.NewController(t)
	d := &transferTestDeps{
		wallets:    mocks.NewMockWalletStore(ctrl),
		ledger:     mocks.NewMockLedgerRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		locks:      accountlock.NewManager(),
		ctrl:       ctrl,
	}
	d.svc = NewTransferService(
		d.wallets, d.ledger, d.idempCache, d.transactor,
		d.locks, 100*time.Millisecond, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// ==================== Transfer Tests ====================

func TestTransferService_Transfer_Success(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	tx := &mockTx{}
	amount := decimal.NewFromInt(10)

	req := ports.TransferRequest{
		FromUserID:     fromID,
		ToUserID:       toID,
		Amount:         amount,
		Type:           domain.TransactionTypeExchange,
		Description:    "garden tools",
		IdempotencyKey: "key-001",
	}

	// Redis cache miss, once before the locks and once under them
	d.idempCache.EXPECT().Get(ctx, "key-001").Return(nil, nil).Times(2)
	// Ledger idempotency miss
	d.ledger.EXPECT().FindByIdempotencyKey(ctx, "key-001").Return(nil, nil).Times(2)
	// Lazy wallet creation for both sides
	d.wallets.EXPECT().Get(ctx, fromID).Return(&domain.Wallet{UserID: fromID}, nil)
	d.wallets.EXPECT().Get(ctx, toID).Return(&domain.Wallet{UserID: toID}, nil)
	// Begin tx
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// Debit and credit legs
	d.wallets.EXPECT().ApplyDelta(ctx, tx, fromID, amount.Neg()).
		Return(&domain.Wallet{UserID: fromID, Balance: amount.Neg()}, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, toID, amount).
		Return(&domain.Wallet{UserID: toID, Balance: amount}, nil)
	// Ledger append assigns the sequence id
	d.ledger.EXPECT().Append(ctx, tx, gomock.Any()).Return(int64(7), nil)
	// Cache in Redis
	d.idempCache.EXPECT().Set(ctx, "key-001", gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
	assert.Equal(t, int64(7), result.SequenceID)
	assert.Equal(t, fromID, result.FromUserID)
	assert.Equal(t, toID, result.ToUserID)
	assert.True(t, amount.Equal(result.Amount))
}

func TestTransferService_Transfer_InvalidAmount(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	for _, amount := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-5),
	} {
		req := ports.TransferRequest{
			FromUserID: uuid.New(),
			ToUserID:   uuid.New(),
			Amount:     amount,
			Type:       domain.TransactionTypeExchange,
		}
		result, err := d.svc.Transfer(context.Background(), req)
		assert.Nil(t, result)
		assertAppError(t, err, apperror.CodeInvalidAmount)
	}
}

func TestTransferService_Transfer_SelfTransfer(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	userID := uuid.New()
	req := ports.TransferRequest{
		FromUserID: userID,
		ToUserID:   userID,
		Amount:     decimal.NewFromInt(10),
		Type:       domain.TransactionTypeExchange,
	}

	result, err := d.svc.Transfer(context.Background(), req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeInvalidAmount)
}

func TestTransferService_Transfer_UnknownType(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	req := ports.TransferRequest{
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Amount:     decimal.NewFromInt(10),
		Type:       domain.TransactionType("BARTER"),
	}

	result, err := d.svc.Transfer(context.Background(), req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeInvalidAmount)
}

func TestTransferService_Transfer_InsufficientCredit(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	tx := &mockTx{}
	amount := decimal.NewFromInt(500)

	req := ports.TransferRequest{
		FromUserID:     fromID,
		ToUserID:       toID,
		Amount:         amount,
		Type:           domain.TransactionTypeService,
		IdempotencyKey: "key-over",
	}

	d.idempCache.EXPECT().Get(ctx, "key-over").Return(nil, nil).Times(2)
	d.ledger.EXPECT().FindByIdempotencyKey(ctx, "key-over").Return(nil, nil).Times(2)
	d.wallets.EXPECT().Get(ctx, fromID).Return(&domain.Wallet{UserID: fromID}, nil)
	d.wallets.EXPECT().Get(ctx, toID).Return(&domain.Wallet{UserID: toID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, fromID, amount.Neg()).
		Return(nil, apperror.ErrInsufficientCredit())
	// Failed audit entry appended outside the rolled-back tx
	d.ledger.EXPECT().Append(ctx, nil, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) (int64, error) {
			assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
			assert.Equal(t, "key-over", txn.IdempotencyKey)
			return 3, nil
		})
	d.idempCache.EXPECT().Set(ctx, "key-over", gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.Transfer(ctx, req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeInsufficientCredit)
}

func TestTransferService_Transfer_IdempotentCacheHit(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	recorded := &domain.Transaction{
		ID:         uuid.New(),
		SequenceID: 42,
		Status:     domain.TransactionStatusCompleted,
		Amount:     decimal.NewFromInt(10),
	}
	cachedJSON, _ := json.Marshal(recorded)

	d.idempCache.EXPECT().Get(ctx, "key-cached").Return(cachedJSON, nil)

	req := ports.TransferRequest{
		FromUserID:     uuid.New(),
		ToUserID:       uuid.New(),
		Amount:         decimal.NewFromInt(10),
		Type:           domain.TransactionTypeExchange,
		IdempotencyKey: "key-cached",
	}

	result, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, result.ID)
	assert.Equal(t, int64(42), result.SequenceID)
}

func TestTransferService_Transfer_IdempotentLedgerHit(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	recorded := &domain.Transaction{
		ID:         uuid.New(),
		SequenceID: 9,
		Status:     domain.TransactionStatusCompleted,
	}

	d.idempCache.EXPECT().Get(ctx, "key-durable").Return(nil, nil)
	d.ledger.EXPECT().FindByIdempotencyKey(ctx, "key-durable").Return(recorded, nil)
	// Cache gets backfilled from the durable hit
	d.idempCache.EXPECT().Set(ctx, "key-durable", gomock.Any(), idempotencyTTL).Return(nil)

	req := ports.TransferRequest{
		FromUserID:     uuid.New(),
		ToUserID:       uuid.New(),
		Amount:         decimal.NewFromInt(10),
		Type:           domain.TransactionTypeExchange,
		IdempotencyKey: "key-durable",
	}

	result, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, result.ID)
}

func TestTransferService_Transfer_DuplicateKeyRace(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	tx := &mockTx{}
	amount := decimal.NewFromInt(10)
	winner := &domain.Transaction{ID: uuid.New(), SequenceID: 5, Status: domain.TransactionStatusCompleted}

	req := ports.TransferRequest{
		FromUserID:     fromID,
		ToUserID:       toID,
		Amount:         amount,
		Type:           domain.TransactionTypeExchange,
		IdempotencyKey: "key-race",
	}

	d.idempCache.EXPECT().Get(ctx, "key-race").Return(nil, nil).Times(2)
	d.ledger.EXPECT().FindByIdempotencyKey(ctx, "key-race").Return(nil, nil).Times(2)
	d.wallets.EXPECT().Get(ctx, fromID).Return(&domain.Wallet{UserID: fromID}, nil)
	d.wallets.EXPECT().Get(ctx, toID).Return(&domain.Wallet{UserID: toID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, fromID, amount.Neg()).Return(&domain.Wallet{}, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, toID, amount).Return(&domain.Wallet{}, nil)
	// A concurrent attempt committed the same key first
	d.ledger.EXPECT().Append(ctx, tx, gomock.Any()).Return(int64(0), ports.ErrDuplicateIdempotencyKey)
	d.ledger.EXPECT().FindByIdempotencyKey(ctx, "key-race").Return(winner, nil)

	result, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, result.ID)
}

func TestTransferService_Transfer_SameKeyFirstAttemptRace(t *testing.T) {
	locks := accountlock.NewManager()
	wallets := NewWalletStore(memory.NewWalletRepo(), decimal.NewFromInt(20), zerolog.Nop())
	ledger := memory.NewLedgerRepo()
	svc := NewTransferService(wallets, ledger, nil, memory.NewTransactor(), locks, 2*time.Second, zerolog.Nop())

	fromID := uuid.New()
	toID := uuid.New()
	req := ports.TransferRequest{
		FromUserID:     fromID,
		ToUserID:       toID,
		Amount:         decimal.NewFromInt(5),
		Type:           domain.TransactionTypeExchange,
		IdempotencyKey: "dup-first",
	}

	// Hold both account locks so each attempt passes the unlocked
	// replay check before either can write.
	release, err := locks.AcquirePair(context.Background(), fromID, toID)
	require.NoError(t, err)

	results := make(chan *domain.Transaction, 2)
	transferErrs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := svc.Transfer(context.Background(), req)
			results <- txn
			transferErrs <- err
		}()
	}

	// Let both attempts reach lock acquisition, then let them through.
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()
	close(results)
	close(transferErrs)

	for err := range transferErrs {
		require.NoError(t, err)
	}
	ids := make([]uuid.UUID, 0, 2)
	for txn := range results {
		require.NotNil(t, txn)
		assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
		ids = append(ids, txn.ID)
	}
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1], "both attempts must resolve to the same recorded transaction")

	// One net balance change and a single ledger entry for the key.
	ctx := context.Background()
	sender, err := wallets.Get(ctx, fromID)
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(decimal.NewFromInt(-5)), "sender balance = %s", sender.Balance)
	receiver, err := wallets.Get(ctx, toID)
	require.NoError(t, err)
	assert.True(t, receiver.Balance.Equal(decimal.NewFromInt(5)), "receiver balance = %s", receiver.Balance)
	entries, err := ledger.History(ctx, fromID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTransferService_Transfer_BeginFails(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()

	d.wallets.EXPECT().Get(ctx, fromID).Return(&domain.Wallet{UserID: fromID}, nil)
	d.wallets.EXPECT().Get(ctx, toID).Return(&domain.Wallet{UserID: toID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("connection refused"))

	req := ports.TransferRequest{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     decimal.NewFromInt(10),
		Type:       domain.TransactionTypeExchange,
	}

	result, err := d.svc.Transfer(ctx, req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeStorageFault)
}

func TestTransferService_Transfer_CreditLegCompensated(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	tx := &mockTx{}
	amount := decimal.NewFromInt(10)

	d.wallets.EXPECT().Get(ctx, fromID).Return(&domain.Wallet{UserID: fromID}, nil)
	d.wallets.EXPECT().Get(ctx, toID).Return(&domain.Wallet{UserID: toID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, fromID, amount.Neg()).Return(&domain.Wallet{}, nil)
	d.wallets.EXPECT().ApplyDelta(ctx, tx, toID, amount).
		Return(nil, apperror.ErrStorageFault(errors.New("row vanished")))
	// Compensating debit reversal before the error surfaces
	d.wallets.EXPECT().ApplyDelta(ctx, tx, fromID, amount).Return(&domain.Wallet{}, nil)

	req := ports.TransferRequest{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     amount,
		Type:       domain.TransactionTypeExchange,
	}

	result, err := d.svc.Transfer(ctx, req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeStorageFault)
}

func TestTransferService_Transfer_Contention(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	fromID := uuid.New()
	toID := uuid.New()

	// Hold the sender's lock so the transfer cannot acquire it within
	// the lock timeout.
	release, err := d.locks.Acquire(context.Background(), fromID)
	require.NoError(t, err)
	defer release()

	req := ports.TransferRequest{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     decimal.NewFromInt(10),
		Type:       domain.TransactionTypeExchange,
	}

	result, err := d.svc.Transfer(context.Background(), req)
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeContention)
}

// ==================== History Tests ====================

func TestTransferService_History_DirectionAnnotation(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()

	d.ledger.EXPECT().History(ctx, userID, defaultHistoryLimit, 0).Return([]domain.Transaction{
		{ID: uuid.New(), SequenceID: 2, FromUserID: userID, ToUserID: otherID},
		{ID: uuid.New(), SequenceID: 1, FromUserID: otherID, ToUserID: userID},
	}, nil)

	entries, err := d.svc.History(ctx, userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.DirectionOutgoing, entries[0].Direction)
	assert.Equal(t, domain.DirectionIncoming, entries[1].Direction)
}

func TestTransferService_History_LimitClamped(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.ledger.EXPECT().History(ctx, userID, maxHistoryLimit, 0).Return(nil, nil)

	_, err := d.svc.History(ctx, userID, 100000, -3)
	require.NoError(t, err)
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
