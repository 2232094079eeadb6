package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a participant's mutual-credit account state.
// Balance may be negative down to -CreditLimit; Units are created at
// transfer time, not drawn from a reserve.
type Wallet struct {
	UserID      uuid.UUID       `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	TrustScore  float64         `json:"trust_score"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AvailableCredit returns how many Units the wallet can still spend
// before reaching its credit floor.
func (w *Wallet) AvailableCredit() decimal.Decimal {
	return w.Balance.Add(w.CreditLimit)
}

// CanDebit reports whether subtracting amount keeps the balance at or
// above -CreditLimit.
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.Sub(amount).GreaterThanOrEqual(w.CreditLimit.Neg())
}
