package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType categorizes what a transfer of Units was for.
type TransactionType string

const (
	TransactionTypeExchange   TransactionType = "EXCHANGE"
	TransactionTypeService    TransactionType = "SERVICE"
	TransactionTypeGoods      TransactionType = "GOODS"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the lifecycle state of a transfer.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Direction marks a ledger entry relative to the user whose history
// was queried.
type Direction string

const (
	DirectionOutgoing Direction = "OUTGOING"
	DirectionIncoming Direction = "INCOMING"
)

// Transaction is an immutable ledger entry for a Units transfer
// attempt. SequenceID is assigned by the ledger on append and is
// strictly increasing.
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	SequenceID     int64             `json:"sequence_id"`
	FromUserID     uuid.UUID         `json:"from_user_id"`
	ToUserID       uuid.UUID         `json:"to_user_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Type           TransactionType   `json:"type"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IsTerminal returns true once the transaction can no longer change.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// DirectionFor returns the entry's direction relative to userID.
func (t *Transaction) DirectionFor(userID uuid.UUID) Direction {
	if t.FromUserID == userID {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// ValidTransactionType reports whether t is one of the known transfer
// categories.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypeExchange, TransactionTypeService, TransactionTypeGoods, TransactionTypeAdjustment:
		return true
	}
	return false
}
