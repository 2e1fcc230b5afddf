package pricing

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"github.com/sells-group/estimator/internal/model"
)

// ScaleOptions bounds budget fitting.
type ScaleOptions struct {
	Low      float64 `yaml:"budget_scale_low" mapstructure:"budget_scale_low"`
	High     float64 `yaml:"budget_scale_high" mapstructure:"budget_scale_high"`
	Rounding int64   `yaml:"budget_rounding" mapstructure:"budget_rounding"`
}

// DefaultScaleOptions allows scaling between 0.6× and 5× with prices rounded
// to the nearest 1,000 yen.
func DefaultScaleOptions() ScaleOptions {
	return ScaleOptions{Low: 0.6, High: 5.0, Rounding: 1000}
}

// FitBudget rescales every non-management unit price so the taxable subtotal
// lands near targetTaxable, then recomputes. The management fee is reset so it
// is recalculated from the new subtotal. When the current subtotal or the
// target is not positive the items are priced unchanged and the scale is 1.
func (c *Calculator) FitBudget(items []model.LineItem, baseDays, targetDays int, targetTaxable int64, opts ScaleOptions) ([]model.LineItem, model.Totals, float64) {
	priced, totals := c.Compute(items, baseDays, targetDays)
	if totals.SubtotalExclManagement <= 0 || targetTaxable <= 0 {
		return priced, totals, 1.0
	}

	desired := decimal.NewFromInt(targetTaxable).
		Div(decimal.NewFromInt(1).Add(decimal.NewFromFloat(c.rates.ManagementCapRate)))
	scale := desired.Div(decimal.NewFromInt(totals.SubtotalExclManagement))
	scale = decimal.Max(decimal.NewFromFloat(opts.Low), decimal.Min(decimal.NewFromFloat(opts.High), scale))

	rounding := decimal.NewFromInt(max(opts.Rounding, 1))
	scaled := make([]model.LineItem, len(items))
	for i, it := range items {
		if it.IsManagementFee() {
			it.UnitPrice = 0
		} else {
			it.UnitPrice = decimal.NewFromInt(it.UnitPrice).Mul(scale).Div(rounding).Round(0).Mul(rounding).IntPart()
		}
		scaled[i] = it
	}

	out, newTotals := c.Compute(scaled, baseDays, targetDays)
	return out, newTotals, scale.InexactFloat64()
}

var budgetMultipliers = map[rune]int64{
	'億': 100_000_000,
	'万': 10_000,
	'千': 1_000,
}

var budgetNoise = strings.NewReplacer(
	",", "", "，", "", "¥", "", "円", "", " ", "", "\t", "",
	"約", "", "程度", "", "以内", "", "以下", "", "前後", "", "くらい", "", "ぐらい", "",
)

// ParseBudget reads a yen amount from free text such as "500万円",
// "2億円", "1億5000万" or "¥3,000,000". It returns false when the text holds
// no usable positive amount, meaning no budget constraint.
func ParseBudget(text string) (int64, bool) {
	s := budgetNoise.Replace(strings.TrimSpace(width.Fold.String(text)))
	if s == "" {
		return 0, false
	}

	total := decimal.Zero
	for s != "" {
		n := 0
		for n < len(s) && (s[n] == '.' || (s[n] >= '0' && s[n] <= '9')) {
			n++
		}
		if n == 0 {
			return 0, false
		}
		num, err := decimal.NewFromString(s[:n])
		if err != nil {
			return 0, false
		}
		s = s[n:]

		r, size := utf8.DecodeRuneInString(s)
		if mul, ok := budgetMultipliers[r]; ok {
			num = num.Mul(decimal.NewFromInt(mul))
			s = s[size:]
		} else if s != "" {
			return 0, false
		}
		total = total.Add(num)
	}

	yen := total.Round(0).IntPart()
	if yen <= 0 {
		return 0, false
	}
	return yen, true
}
