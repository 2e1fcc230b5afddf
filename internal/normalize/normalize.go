// Package normalize turns the loosely typed item list recovered from model
// output into validated line items.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/estimator/internal/model"
)

// Normalize converts raw items into line items. Elements that are not
// objects are skipped. The result is never empty and always carries a
// management fee row.
func Normalize(raw []any) []model.LineItem {
	items := make([]model.LineItem, 0, len(raw)+1)
	for i, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			zap.L().Warn("normalize: skipping non-object item",
				zap.Int("index", i),
				zap.String("type", fmt.Sprintf("%T", r)),
			)
			continue
		}
		items = append(items, Item(i, obj))
	}

	if len(items) == 0 {
		zap.L().Warn("normalize: no usable items, substituting minimal set")
		return MinimalItems()
	}
	return EnsureManagementFee(items)
}

// Upper bounds for coerced values. Anything above them is treated as
// unreadable rather than written into the estimate.
const (
	maxQuantity  = 1e4
	maxUnitPrice = 1e10
)

// Item builds one line item from a raw object. Missing text fields default to
// empty strings. A quantity or price that is missing or cannot be read as a
// number, or that exceeds its ceiling, becomes 0 and marks the row for
// review; management fee rows are exempt because their price is computed
// later. Prices round to the nearest yen.
func Item(index int, obj map[string]any) model.LineItem {
	li := model.LineItem{
		Category: Category(text(obj["category"])),
		Task:     text(obj["task"]),
		Unit:     Unit(text(obj["unit"])),
		Note:     text(obj["note"]),
	}

	rawQty := first(obj, "qty", "quantity")
	rawPrice := first(obj, "unit_price", "price")
	qty, qtyOK := bounded(index, "qty", rawQty, maxQuantity)
	price, priceOK := bounded(index, "unit_price", rawPrice, maxUnitPrice)
	li.Quantity = qty
	li.UnitPrice = int64(math.Round(price))

	if !li.IsManagementFee() {
		if !qtyOK {
			logCoercion(index, "qty", rawQty)
			li.NeedsReview = true
		}
		if !priceOK {
			logCoercion(index, "unit_price", rawPrice)
			li.NeedsReview = true
		}
	}
	return li
}

// bounded reads v with Number and rejects values above ceiling.
func bounded(index int, field string, v any, ceiling float64) (float64, bool) {
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	if f > ceiling {
		zap.L().Warn("normalize: value out of range",
			zap.Int("index", index),
			zap.String("field", field),
			zap.Float64("value", f),
			zap.Float64("max", ceiling),
		)
		return 0, false
	}
	return f, true
}

func logCoercion(index int, field string, v any) {
	zap.L().Warn("normalize: field coerced to zero",
		zap.Int("index", index),
		zap.String("field", field),
		zap.Any("value", v),
	)
}

func first(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// Number coerces a JSON-ish value to a non-negative float. The second result
// is false when the value was missing or not numeric; negatives clamp to 0
// and still count as read.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	case string:
		parsed, ok := parseNumberText(n)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	return f, true
}

var numberNoise = strings.NewReplacer(
	",", "",
	"¥", "",
	"\\", "",
	"円", "",
	" ", "",
)

func parseNumberText(s string) (float64, bool) {
	s = numberNoise.Replace(strings.TrimSpace(width.Fold.String(s)))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
