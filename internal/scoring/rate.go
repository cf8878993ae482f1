package scoring

import (
	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// RecommendRate places the optimal bid inside the job's budget in proportion
// to skill coverage and widens it by ±band, clamped to the budget. Each value
// carries its take-home after fees. Negotiable budgets, and budgets with no
// bounds at all, get no recommendation. A single bound is used for both ends.
func RecommendRate(budget store.Budget, skill, band float64, calc *fees.Calculator) (*store.RecommendedRate, error) {
	if budget.Type == store.BudgetNegotiable {
		return nil, nil
	}
	lo, hi := budget.Min, budget.Max
	switch {
	case lo == nil && hi == nil:
		return nil, nil
	case lo == nil:
		lo = hi
	case hi == nil:
		hi = lo
	}
	if hi.LessThan(*lo) {
		return nil, bzerrors.IncompleteJobData("budget max %s below min %s", hi, lo)
	}

	optimal := lo.Add(hi.Sub(*lo).Mul(decimal.NewFromFloat(skill)))
	optimal = clampDecimal(optimal, *lo, *hi).Round(fees.Precision)

	b := decimal.NewFromFloat(band)
	one := decimal.NewFromInt(1)
	min := clampDecimal(optimal.Mul(one.Sub(b)), *lo, *hi).Round(fees.Precision)
	max := clampDecimal(optimal.Mul(one.Add(b)), *lo, *hi).Round(fees.Precision)

	return &store.RecommendedRate{
		Min:        min,
		Optimal:    optimal,
		Max:        max,
		NetMin:     takeHome(calc, min),
		NetOptimal: takeHome(calc, optimal),
		NetMax:     takeHome(calc, max),
	}, nil
}

// takeHome is the net after fees, or zero for a non-positive amount.
func takeHome(calc *fees.Calculator, amount decimal.Decimal) decimal.Decimal {
	net, err := calc.Net(amount)
	if err != nil {
		return decimal.Zero
	}
	return net
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
