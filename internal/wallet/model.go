package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
)

// Wallet holds an account's credit and cash balances. Neither balance is ever negative.
type Wallet struct {
	OwnerID   string          `json:"owner_id"`
	Credits   decimal.Decimal `json:"credits"`
	Cash      decimal.Decimal `json:"cash"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Amounts is a pair of credit and cash quantities. Zero means "leave untouched".
type Amounts struct {
	Credits decimal.Decimal `json:"credits"`
	Cash    decimal.Decimal `json:"cash"`
}

// Neg returns the amounts with both signs flipped.
func (a Amounts) Neg() Amounts {
	return Amounts{Credits: a.Credits.Neg(), Cash: a.Cash.Neg()}
}

// Apply adds delta to w, failing without change if either balance would go negative.
// The credits check runs before the cash check.
func (w Wallet) Apply(delta Amounts) (Wallet, error) {
	credits := w.Credits.Add(delta.Credits)
	if credits.IsNegative() {
		return w, apperrors.ErrInsufficientCredits
	}
	cash := w.Cash.Add(delta.Cash)
	if cash.IsNegative() {
		return w, apperrors.ErrInsufficientFunds
	}
	w.Credits = credits
	w.Cash = cash
	return w, nil
}
