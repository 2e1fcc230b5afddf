package sheet

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/estimator/internal/model"
)

const testSheet = "Sheet1"

type templateShape struct {
	tokenCell   string // empty: no token
	subtotalRow int    // 0: no SUM formula
	startRow    int
	formulas    bool // per-row amount formulas in the detail range
}

// buildTemplate creates a quote template resembling the company workbook:
// B:N merged task cells, a "小計" label and a SUM formula in column W.
func buildTemplate(t *testing.T, shape templateShape) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	require.NoError(t, f.SetCellValue(testSheet, "B2", "御見積書"))
	if shape.tokenCell != "" {
		require.NoError(t, f.SetCellValue(testSheet, shape.tokenCell, "{{ITEMS_START}}"))
	}

	end := shape.subtotalRow
	if end == 0 {
		end = 72
	}
	for r := shape.startRow; r < end; r++ {
		require.NoError(t, f.MergeCell(testSheet, fmt.Sprintf("B%d", r), fmt.Sprintf("N%d", r)))
		if shape.formulas {
			require.NoError(t, f.SetCellFormula(testSheet, fmt.Sprintf("W%d", r), fmt.Sprintf("O%d*S%d", r, r)))
		}
	}
	// Leftover values from a previous quote.
	require.NoError(t, f.SetCellValue(testSheet, fmt.Sprintf("O%d", shape.startRow+1), 9))
	require.NoError(t, f.SetCellValue(testSheet, fmt.Sprintf("S%d", shape.startRow+1), 999))

	if shape.subtotalRow > 0 {
		require.NoError(t, f.SetCellValue(testSheet, fmt.Sprintf("S%d", shape.subtotalRow), "小計"))
		require.NoError(t, f.SetCellFormula(testSheet, fmt.Sprintf("W%d", shape.subtotalRow),
			fmt.Sprintf("SUM(W%d:W%d)", shape.startRow, shape.subtotalRow-1)))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func standardTemplate(t *testing.T) []byte {
	t.Helper()
	return buildTemplate(t, templateShape{tokenCell: "B19", startRow: 19, subtotalRow: 72, formulas: true})
}

func testItems(n int) []model.LineItem {
	items := make([]model.LineItem, n)
	for i := range items {
		items[i] = model.LineItem{
			Category:  model.CategoryShooting,
			Task:      "item " + strconv.Itoa(i+1),
			Quantity:  float64(i%3 + 1),
			Unit:      model.UnitDay,
			UnitPrice: int64(1000 * (i + 1)),
		}
	}
	return items
}

func openResult(t *testing.T, res *Result) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(res.Data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() }) //nolint:errcheck
	return f
}

func value(t *testing.T, f *excelize.File, name string) string {
	t.Helper()
	v, err := f.GetCellValue(testSheet, name)
	require.NoError(t, err)
	return v
}

func formula(t *testing.T, f *excelize.File, name string) string {
	t.Helper()
	v, err := f.GetCellFormula(testSheet, name)
	require.NoError(t, err)
	return v
}

func TestFill_TruncatesOverCapacity(t *testing.T) {
	t.Parallel()

	res, err := Fill(standardTemplate(t), testItems(60), DefaultLayout())
	require.NoError(t, err)

	assert.Equal(t, 53, res.Binding.Capacity)
	assert.Equal(t, 53, res.Written)
	assert.Equal(t, 0, res.Inserted)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "template capacity (53 rows) exceeded, writing first 53 only", res.Warnings[0])

	f := openResult(t, res)
	assert.Equal(t, "item 1", value(t, f, "B19"))
	assert.Equal(t, "item 53", value(t, f, "B71"))
	assert.Equal(t, "SUM(W19:W71)", formula(t, f, "W72"))
	assert.Equal(t, "小計", value(t, f, "S72"))
}

func TestFill_ExactCapacity(t *testing.T) {
	t.Parallel()

	res, err := Fill(standardTemplate(t), testItems(53), DefaultLayout())
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.Equal(t, 53, res.Written)
	assert.Equal(t, 0, res.Inserted)

	f := openResult(t, res)
	assert.Equal(t, "SUM(W19:W71)", formula(t, f, "W72"))
}

func TestFill_OneOverCapacity(t *testing.T) {
	t.Parallel()

	t.Run("pre-extended truncates one", func(t *testing.T) {
		t.Parallel()
		res, err := Fill(standardTemplate(t), testItems(54), DefaultLayout())
		require.NoError(t, err)
		assert.Equal(t, 53, res.Written)
		assert.Len(t, res.Warnings, 1)
	})

	t.Run("growable inserts one", func(t *testing.T) {
		t.Parallel()
		layout := DefaultLayout()
		layout.Growable = true

		res, err := Fill(standardTemplate(t), testItems(54), layout)
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, 54, res.Written)
		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 73, res.Binding.SubtotalRow)
		assert.Equal(t, 54, res.Binding.Capacity)

		f := openResult(t, res)
		assert.Equal(t, "item 54", value(t, f, "B72"))
		assert.Equal(t, "O72*S72", formula(t, f, "W72"))
		assert.Equal(t, "SUM(W19:W72)", formula(t, f, "W73"))
		assert.Equal(t, "小計", value(t, f, "S73"))

		merged, err := f.GetMergeCells(testSheet)
		require.NoError(t, err)
		var found bool
		for _, m := range merged {
			if m.GetStartAxis() == "B72" && m.GetEndAxis() == "N72" {
				found = true
			}
		}
		assert.True(t, found, "inserted row keeps the B:N merge")
	})
}

func TestFill_RoundTrip(t *testing.T) {
	t.Parallel()

	items := []model.LineItem{
		{Task: "カメラマン", Quantity: 2, Unit: model.UnitDay, UnitPrice: 80000},
		{Task: "編集", Quantity: 1.5, Unit: model.UnitDay, UnitPrice: 70000},
		{Task: "管理費（固定）", Quantity: 1, Unit: model.UnitLot, UnitPrice: 24000},
	}
	res, err := Fill(standardTemplate(t), items, DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)

	f := openResult(t, res)
	var sum int64
	for i, it := range items {
		r := 19 + i
		assert.Equal(t, it.Task, value(t, f, fmt.Sprintf("B%d", r)))
		assert.Equal(t, it.Unit, value(t, f, fmt.Sprintf("Q%d", r)))

		got, err := f.CalcCellValue(testSheet, fmt.Sprintf("W%d", r), excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		want := int64(it.Quantity * float64(it.UnitPrice))
		assert.Equal(t, strconv.FormatInt(want, 10), got)
		sum += want
	}

	assert.Equal(t, "SUM(W19:W21)", formula(t, f, "W72"))
	total, err := f.CalcCellValue(testSheet, "W72", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(sum, 10), total)

	// Leftover values are cleared but the row formulas stay.
	assert.Empty(t, value(t, f, "B22"))
	assert.Equal(t, "O22*S22", formula(t, f, "W22"))
}

func TestFill_ClearsStaleValues(t *testing.T) {
	t.Parallel()

	res, err := Fill(standardTemplate(t), testItems(1), DefaultLayout())
	require.NoError(t, err)

	f := openResult(t, res)
	assert.Empty(t, value(t, f, "O20"))
	assert.Empty(t, value(t, f, "S20"))
	assert.Equal(t, "item 1", value(t, f, "B19"))
}

func TestFill_ZeroItems(t *testing.T) {
	t.Parallel()

	res, err := Fill(standardTemplate(t), nil, DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)

	f := openResult(t, res)
	assert.Empty(t, formula(t, f, "W72"))
	assert.Equal(t, "0", value(t, f, "W72"))
	assert.Empty(t, value(t, f, "B19"))
}

func TestFill_AddsMissingFormulasOnly(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(testSheet, "B5", "{{ITEMS_START}}"))
	require.NoError(t, f.SetCellFormula(testSheet, "W6", "ROUND(O6*S6,-2)"))
	require.NoError(t, f.SetCellFormula(testSheet, "W10", "SUM(W5:W9)"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Fill(buf.Bytes(), testItems(2), DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Binding.StartRow)
	assert.Equal(t, 10, res.Binding.SubtotalRow)

	out := openResult(t, res)
	assert.Equal(t, "O5*S5", formula(t, out, "W5"))
	assert.Equal(t, "ROUND(O6*S6,-2)", formula(t, out, "W6"))
	assert.Equal(t, "O9*S9", formula(t, out, "W9"))
	assert.Equal(t, "SUM(W5:W6)", formula(t, out, "W10"))
}

func TestFill_FallsBackToDefaultRows(t *testing.T) {
	t.Parallel()

	tmpl := buildTemplate(t, templateShape{startRow: 19})
	res, err := Fill(tmpl, testItems(2), DefaultLayout())
	require.NoError(t, err)

	assert.False(t, res.Binding.TokenFound)
	assert.False(t, res.Binding.SubtotalFound)
	assert.Empty(t, res.Binding.TokenCol)
	assert.Equal(t, 19, res.Binding.StartRow)
	assert.Equal(t, 72, res.Binding.SubtotalRow)
	assert.Len(t, res.Warnings, 2)

	f := openResult(t, res)
	assert.Equal(t, "item 1", value(t, f, "B19"))
	assert.Equal(t, "SUM(W19:W20)", formula(t, f, "W72"))
}

func TestFill_TokenWithWhitespace(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(testSheet, "B3", "  {{ITEMS_START}} "))
	require.NoError(t, f.SetCellFormula(testSheet, "W8", "sum(W3:W7)"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Fill(buf.Bytes(), testItems(1), DefaultLayout())
	require.NoError(t, err)
	assert.True(t, res.Binding.TokenFound)
	assert.Equal(t, 3, res.Binding.StartRow)
	assert.Equal(t, 8, res.Binding.SubtotalRow)
	assert.Equal(t, 5, res.Binding.Capacity)
}

func TestFill_TokenColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		tokenCell    string
		wantCol      string
		wantWarnings int
	}{
		{name: "task column", tokenCell: "B19", wantCol: "B"},
		{name: "left of task column", tokenCell: "A19", wantCol: "A", wantWarnings: 1},
		{name: "right of amount column", tokenCell: "AA19", wantCol: "AA", wantWarnings: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmpl := buildTemplate(t, templateShape{tokenCell: tt.tokenCell, startRow: 19, subtotalRow: 72, formulas: true})

			res, err := Fill(tmpl, testItems(2), DefaultLayout())
			require.NoError(t, err)
			assert.True(t, res.Binding.TokenFound)
			assert.Equal(t, tt.wantCol, res.Binding.TokenCol)
			assert.Equal(t, 19, res.Binding.StartRow)
			require.Len(t, res.Warnings, tt.wantWarnings)
			if tt.wantWarnings > 0 {
				assert.Contains(t, res.Warnings[0], tt.tokenCell)
			}

			f := openResult(t, res)
			assert.Equal(t, "item 1", value(t, f, "B19"))
			assert.Equal(t, "item 2", value(t, f, "B20"))
			if tt.tokenCell != "B19" {
				assert.Empty(t, value(t, f, tt.tokenCell))
			}
		})
	}
}

func TestFill_InvalidTemplate(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(testSheet, "B19", "{{ITEMS_START}}"))
	require.NoError(t, f.SetCellFormula(testSheet, "W10", "SUM(W1:W9)"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Fill(buf.Bytes(), testItems(3), DefaultLayout())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestFill_DoesNotModifyTemplate(t *testing.T) {
	t.Parallel()

	tmpl := standardTemplate(t)
	orig := append([]byte(nil), tmpl...)

	_, err := Fill(tmpl, testItems(10), DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, orig, tmpl)
}

func TestFill_BadInput(t *testing.T) {
	t.Parallel()

	_, err := Fill([]byte("not a workbook"), testItems(1), DefaultLayout())
	assert.Error(t, err)

	layout := DefaultLayout()
	layout.QtyCol = "1"
	_, err = Fill(standardTemplate(t), testItems(1), layout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column")
}
