// Package money holds the precision rule shared by credit quantities, prices and cash.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
)

// Places is the number of decimals stored for tonnes and rupees.
const Places = 2

// Round rounds d to Places decimals, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Exact reports whether d carries no digits beyond Places decimals.
func Exact(d decimal.Decimal) bool {
	return d.Equal(d.Round(Places))
}

// CheckPositive fails with apperrors.ErrValidation unless d is positive and exact to Places decimals.
func CheckPositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrValidation, field)
	}
	return CheckExact(field, d)
}

// CheckExact fails with apperrors.ErrValidation if d has more than Places decimals.
func CheckExact(field string, d decimal.Decimal) error {
	if !Exact(d) {
		return fmt.Errorf("%w: %s allows at most %d decimal places", apperrors.ErrValidation, field, Places)
	}
	return nil
}
