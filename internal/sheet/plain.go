package sheet

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/normalize"
)

// PlainSheetName is the sheet WriteEstimate creates.
const PlainSheetName = "見積もり"

const (
	colCategory  = "カテゴリ"
	colTask      = "項目"
	colUnitPrice = "単価（円）"
	colQuantity  = "数量"
	colUnit      = "単位"
	colAmount    = "金額（円）"

	labelTaxable = "小計（税抜）"
	labelTax     = "消費税"
	labelTotal   = "合計"

	yenFormat = "#,##0"
)

var plainHeader = []string{colCategory, colTask, colUnitPrice, colQuantity, colUnit, colAmount}

// WriteEstimate renders priced items as a single-sheet workbook with a
// subtotal, tax and total block under the items.
func WriteEstimate(items []model.LineItem, totals model.Totals) ([]byte, error) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet(PlainSheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	header := sh.AddRow()
	for _, h := range plainHeader {
		header.AddCell().SetString(h)
	}

	for _, it := range items {
		row := sh.AddRow()
		row.AddCell().SetString(it.Category.Label())
		row.AddCell().SetString(it.Task)
		row.AddCell().SetFloatWithFormat(float64(it.UnitPrice), yenFormat)
		row.AddCell().SetFloat(it.Quantity)
		row.AddCell().SetString(it.Unit)
		row.AddCell().SetFloatWithFormat(float64(it.Subtotal), yenFormat)
	}

	sh.AddRow()
	for _, t := range []struct {
		label string
		value int64
	}{
		{labelTaxable, totals.TaxableSubtotal},
		{labelTax, totals.Tax},
		{labelTotal, totals.Total},
	} {
		row := sh.AddRow()
		for i := 0; i < 4; i++ {
			row.AddCell()
		}
		row.AddCell().SetString(t.label)
		row.AddCell().SetFloatWithFormat(float64(t.value), yenFormat)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "xlsx: write workbook")
	}
	return buf.Bytes(), nil
}

// ReadEstimate reads line items back from a workbook in the WriteEstimate
// layout, typically after a person edited it. Columns are matched by header
// so they may be reordered. Reading stops at the first blank row, which
// separates the items from the totals block. Amounts are ignored; callers
// reprice the result.
func ReadEstimate(data []byte) ([]model.LineItem, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sh, err := getSheet(f, PlainSheetName)
	if err != nil {
		return nil, err
	}
	if len(sh.Rows) == 0 {
		return nil, eris.New("xlsx: empty sheet")
	}

	idx := headerIndex(rowToStrings(sh.Rows[0]))
	for _, required := range []string{colTask, colUnitPrice, colQuantity} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("xlsx: missing column %q", required)
		}
	}

	var items []model.LineItem
	for i, row := range sh.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			j, ok := idx[col]
			if !ok || j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}

		if get(colTask) == "" && get(colCategory) == "" {
			break
		}

		li := normalize.Item(i, map[string]any{
			"category":   get(colCategory),
			"task":       get(colTask),
			"qty":        get(colQuantity),
			"unit":       get(colUnit),
			"unit_price": get(colUnitPrice),
		})
		items = append(items, li)
	}
	return items, nil
}

// getSheet returns the named sheet, or the first sheet when there is no sheet
// by that name.
func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if sh, ok := f.Sheet[name]; ok {
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := idx[h]; !dup && h != "" {
			idx[h] = i
		}
	}
	return idx
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}
