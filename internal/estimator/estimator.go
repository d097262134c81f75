package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/reference"
)

// BaseRate is the credit yield in tonnes per hectare per year before multipliers.
var BaseRate = decimal.RequireFromString("2.5")

// FarmProfile is the farm-practice questionnaire a seller fills in.
type FarmProfile struct {
	LandArea       decimal.Decimal `json:"land_area"`
	CropCode       string          `json:"crop"`
	SoilCode       string          `json:"soil"`
	PracticeCodes  []string        `json:"practices"`
	ResidueCode    string          `json:"residue"`
	IrrigationCode string          `json:"irrigation"`
}

// EstimationResult is the estimated credit quantity and what it would fetch at the given price.
type EstimationResult struct {
	CreditQuantity decimal.Decimal `json:"credit_quantity"`
	ProjectedValue decimal.Decimal `json:"projected_value"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// Estimator computes credit estimates against a fixed set of reference tables.
type Estimator struct {
	tables *reference.Tables
}

// New builds an estimator. A nil tables argument uses reference.Default().
func New(tables *reference.Tables) *Estimator {
	if tables == nil {
		tables = reference.Default()
	}
	return &Estimator{tables: tables}
}

// Estimate maps a profile to a credit quantity and projected value. It has no side effects.
// Unknown crop, soil, residue and irrigation codes resolve to the table default; unknown
// practices are ignored and repeated practices count once.
func (e *Estimator) Estimate(profile FarmProfile, price decimal.Decimal) (EstimationResult, error) {
	if !profile.LandArea.IsPositive() {
		return EstimationResult{}, fmt.Errorf("land area must be greater than zero: %w", apperrors.ErrValidation)
	}
	if price.IsNegative() {
		return EstimationResult{}, fmt.Errorf("market price must not be negative: %w", apperrors.ErrValidation)
	}

	credits := profile.LandArea.
		Mul(BaseRate).
		Mul(e.tables.Crops.LookupOrDefault(profile.CropCode).Factor).
		Mul(e.tables.Soils.LookupOrDefault(profile.SoilCode).Factor).
		Mul(e.tables.ResidueMethods.LookupOrDefault(profile.ResidueCode).Factor).
		Mul(e.tables.IrrigationMethods.LookupOrDefault(profile.IrrigationCode).Factor).
		Mul(e.practiceBonus(profile.PracticeCodes))

	// Round is half away from zero, which is half-up for the non-negative values here.
	credits = credits.Round(2)

	return EstimationResult{
		CreditQuantity: credits,
		ProjectedValue: credits.Mul(price).Round(2),
		UnitPrice:      price,
	}, nil
}

func (e *Estimator) practiceBonus(codes []string) decimal.Decimal {
	bonus := decimal.NewFromInt(1)
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		if p, ok := e.tables.Practices.Lookup(code); ok {
			bonus = bonus.Mul(p.Factor)
		}
	}
	return bonus
}
