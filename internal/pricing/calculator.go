// Package pricing computes estimate totals from line items. It is the only
// place totals are produced; anything the model reports about sums is
// discarded.
package pricing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/model"
)

// Rates holds the business constants applied to every estimate.
type Rates struct {
	RushK             float64 `yaml:"rush_k" mapstructure:"rush_k"`
	ManagementCapRate float64 `yaml:"mgmt_fee_cap_rate" mapstructure:"mgmt_fee_cap_rate"`
	TaxRate           float64 `yaml:"tax_rate" mapstructure:"tax_rate"`
	BufferDays        int     `yaml:"buffer_days" mapstructure:"buffer_days"`
}

// DefaultRates returns the standard rates: up to 75% rush surcharge, a 15%
// management fee cap and 10% consumption tax.
func DefaultRates() Rates {
	return Rates{
		RushK:             0.75,
		ManagementCapRate: 0.15,
		TaxRate:           0.10,
		BufferDays:        5,
	}
}

// Calculator prices line items. It holds no state beyond its rates, so
// repeated calls with the same input give the same output.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the calculator's rates.
func (c *Calculator) Rates() Rates {
	return c.rates
}

// BaseDays is the normal schedule for a job: shooting plus editing plus a
// fixed buffer.
func (c *Calculator) BaseDays(shootDays, editDays int) int {
	return shootDays + editDays + c.rates.BufferDays
}

// TargetDays is the number of calendar days from today to delivery. It is
// negative when the delivery date has passed.
func TargetDays(today, delivery model.Date) int {
	return delivery.DaysSince(today)
}

// RushCoefficient returns the price multiplier for delivering in targetDays
// instead of baseDays, rounded to two decimals. It is 1.0 when there is no
// rush or no meaningful base.
func (c *Calculator) RushCoefficient(baseDays, targetDays int) float64 {
	if targetDays >= baseDays || baseDays <= 0 {
		return 1.0
	}
	ratio := decimal.NewFromInt(int64(baseDays - targetDays)).Div(decimal.NewFromInt(int64(baseDays)))
	coeff := decimal.NewFromInt(1).Add(decimal.NewFromFloat(c.rates.RushK).Mul(ratio))
	return coeff.RoundBank(2).InexactFloat64()
}

// Compute prices items for the given schedule and returns the adjusted items
// with their totals. The input slice is not modified.
//
// Non-management rows get subtotal = round(qty × unit_price × rush). The
// management fee is capped at ManagementCapRate of those rows; a proposed fee
// of zero or less is replaced by the cap. The result always has exactly one
// management fee row: the first one found is kept, later ones are dropped and
// a missing one is appended.
func (c *Calculator) Compute(items []model.LineItem, baseDays, targetDays int) ([]model.LineItem, model.Totals) {
	rush := c.RushCoefficient(baseDays, targetDays)
	rushDec := decimal.NewFromFloat(rush)

	out := make([]model.LineItem, 0, len(items)+1)
	mgmtIdx := -1
	var subtotal int64

	for _, it := range items {
		if it.IsManagementFee() {
			if mgmtIdx >= 0 {
				zap.L().Warn("pricing: dropping extra management fee row",
					zap.String("task", it.Task),
					zap.Int64("unit_price", it.UnitPrice),
				)
				continue
			}
			mgmtIdx = len(out)
			it.Subtotal = lineAmount(it)
			out = append(out, it)
			continue
		}

		it.Subtotal = roundBank(decimal.NewFromInt(lineAmount(it)).Mul(rushDec))
		subtotal += it.Subtotal
		out = append(out, it)
	}

	if mgmtIdx < 0 {
		mgmtIdx = len(out)
		out = append(out, model.LineItem{
			Category: model.CategoryManagementFee,
			Task:     "管理費（固定）",
			Unit:     model.UnitLot,
		})
	}

	feeCap := roundBank(decimal.NewFromInt(subtotal).Mul(decimal.NewFromFloat(c.rates.ManagementCapRate)))
	fee := feeCap
	if proposed := out[mgmtIdx].Subtotal; proposed > 0 && proposed < feeCap {
		fee = proposed
	}

	mgmt := &out[mgmtIdx]
	mgmt.UnitPrice = fee
	mgmt.Quantity = 1
	mgmt.Subtotal = fee

	taxable := subtotal + fee
	tax := roundBank(decimal.NewFromInt(taxable).Mul(decimal.NewFromFloat(c.rates.TaxRate)))

	return out, model.Totals{
		RushCoefficient:        rush,
		SubtotalExclManagement: subtotal,
		ManagementFeeFinal:     fee,
		TaxableSubtotal:        taxable,
		Tax:                    tax,
		Total:                  taxable + tax,
	}
}

// lineAmount is round(qty × unit_price) before any rush adjustment.
func lineAmount(it model.LineItem) int64 {
	return roundBank(decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromInt(it.UnitPrice)))
}

// roundBank rounds to a whole yen, half to even.
func roundBank(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}
