// Package sheet writes estimates into spreadsheets: the company quote
// template (excelize) and a plain one-sheet export (tealeg/xlsx).
package sheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/model"
)

// ErrInvalidTemplate reports a template with no usable detail range: the
// subtotal row is at or above the first detail row.
var ErrInvalidTemplate = eris.New("sheet: invalid template")

// numFmtThousands is the built-in "#,##0" number format.
const numFmtThousands = 3

// Layout maps line-item fields to template columns and supplies the rows used
// when the template carries no token or subtotal formula.
type Layout struct {
	Token              string
	TaskCol            string
	QtyCol             string
	UnitCol            string
	PriceCol           string
	AmountCol          string
	DefaultStartRow    int
	DefaultSubtotalRow int

	// Growable inserts rows above the subtotal when the items do not fit.
	// Otherwise the items are truncated to the template's capacity.
	Growable bool
}

// DefaultLayout is the layout of the standard company quote template.
func DefaultLayout() Layout {
	return Layout{
		Token:              "{{ITEMS_START}}",
		TaskCol:            "B",
		QtyCol:             "O",
		UnitCol:            "Q",
		PriceCol:           "S",
		AmountCol:          "W",
		DefaultStartRow:    19,
		DefaultSubtotalRow: 72,
	}
}

// Binding is where the detail range was found on a particular workbook.
type Binding struct {
	Sheet         string
	StartRow      int
	SubtotalRow   int
	Capacity      int
	TokenFound    bool
	SubtotalFound bool

	// TokenCol is the column the token sat in, empty when it was not found.
	// Items are always written from the layout's task column.
	TokenCol string
}

// Result is a filled workbook.
type Result struct {
	Data     []byte
	Binding  Binding
	Warnings []string
	Written  int
	Inserted int
}

type columns struct {
	task, qty, unit, price, amount string
}

// Fill writes items into the detail rows of template and returns the new
// workbook. The template bytes are not modified. Styles, merged cells and
// formulas outside the detail values are kept.
func Fill(template []byte, items []model.LineItem, layout Layout) (*Result, error) {
	cols, err := layout.columns()
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(template))
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open template")
	}
	defer f.Close() //nolint:errcheck

	w := &filler{
		f:      f,
		sheet:  f.GetSheetName(f.GetActiveSheetIndex()),
		cols:   cols,
		layout: layout,
		styles: make(map[int]int),
	}

	res := &Result{}
	if err := w.bind(res); err != nil {
		return nil, err
	}

	n := len(items)
	if n > res.Binding.Capacity {
		if layout.Growable {
			if err := w.grow(res, n-res.Binding.Capacity); err != nil {
				return nil, err
			}
		} else {
			msg := fmt.Sprintf("template capacity (%d rows) exceeded, writing first %d only", res.Binding.Capacity, res.Binding.Capacity)
			zap.L().Warn("sheet: "+msg, zap.Int("items", n))
			res.Warnings = append(res.Warnings, msg)
			n = res.Binding.Capacity
		}
	}

	if err := w.clearDetail(res.Binding); err != nil {
		return nil, err
	}
	if err := w.writeItems(res.Binding.StartRow, items[:n]); err != nil {
		return nil, err
	}
	if err := w.writeSubtotal(res.Binding, n); err != nil {
		return nil, err
	}
	res.Written = n

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "sheet: serialize workbook")
	}
	res.Data = buf.Bytes()
	return res, nil
}

func (l Layout) columns() (columns, error) {
	c := columns{
		task:   strings.ToUpper(strings.TrimSpace(l.TaskCol)),
		qty:    strings.ToUpper(strings.TrimSpace(l.QtyCol)),
		unit:   strings.ToUpper(strings.TrimSpace(l.UnitCol)),
		price:  strings.ToUpper(strings.TrimSpace(l.PriceCol)),
		amount: strings.ToUpper(strings.TrimSpace(l.AmountCol)),
	}
	for _, name := range []string{c.task, c.qty, c.unit, c.price, c.amount} {
		if _, err := excelize.ColumnNameToNumber(name); err != nil {
			return columns{}, eris.Wrapf(err, "sheet: invalid column %q", name)
		}
	}
	return c, nil
}

type filler struct {
	f      *excelize.File
	sheet  string
	cols   columns
	layout Layout

	// styles caches template style id -> same style with "#,##0".
	styles map[int]int
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// bind locates the token and the subtotal anchor and clears the token cell.
func (w *filler) bind(res *Result) error {
	rows, err := w.f.GetRows(w.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return eris.Wrapf(err, "sheet: read rows of %s", w.sheet)
	}

	b := Binding{Sheet: w.sheet, StartRow: w.layout.DefaultStartRow, SubtotalRow: w.layout.DefaultSubtotalRow}

	if row, col, ok := findToken(rows, w.layout.Token); ok {
		name, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return eris.Wrap(err, "sheet: token cell name")
		}
		if err := w.f.SetCellValue(w.sheet, name, nil); err != nil {
			return eris.Wrapf(err, "sheet: clear token at %s", name)
		}
		b.StartRow = row
		b.TokenFound = true
		if b.TokenCol, err = excelize.ColumnNumberToName(col); err != nil {
			return eris.Wrap(err, "sheet: token column name")
		}
		if b.TokenCol != w.cols.task {
			zap.L().Warn("sheet: token column differs from task column",
				zap.String("token_cell", name),
				zap.String("task_col", w.cols.task),
			)
			res.Warnings = append(res.Warnings, fmt.Sprintf("token found at %s, writing items from column %s", name, w.cols.task))
		}
	} else {
		res.Warnings = append(res.Warnings, fmt.Sprintf("token %s not found, starting at row %d", w.layout.Token, b.StartRow))
	}

	maxRow := max(len(rows), w.dimensionRows(), w.layout.DefaultSubtotalRow)
	if row, ok, err := w.findSubtotal(maxRow); err != nil {
		return err
	} else if ok {
		b.SubtotalRow = row
		b.SubtotalFound = true
	} else {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no SUM formula in column %s, using subtotal row %d", w.cols.amount, b.SubtotalRow))
	}

	b.Capacity = b.SubtotalRow - b.StartRow
	if b.Capacity <= 0 {
		return eris.Wrapf(ErrInvalidTemplate, "subtotal row %d is not below start row %d", b.SubtotalRow, b.StartRow)
	}

	zap.L().Debug("sheet: template bound",
		zap.String("sheet", b.Sheet),
		zap.Int("start_row", b.StartRow),
		zap.Int("subtotal_row", b.SubtotalRow),
		zap.Int("capacity", b.Capacity),
		zap.String("token_col", b.TokenCol),
	)
	res.Binding = b
	return nil
}

func findToken(rows [][]string, token string) (row, col int, ok bool) {
	for r, cells := range rows {
		for c, v := range cells {
			if strings.TrimSpace(v) == token {
				return r + 1, c + 1, true
			}
		}
	}
	return 0, 0, false
}

// dimensionRows returns the last row of the sheet's used range, or 0.
func (w *filler) dimensionRows() int {
	dim, err := w.f.GetSheetDimension(w.sheet)
	if err != nil || dim == "" {
		return 0
	}
	parts := strings.Split(dim, ":")
	_, row, err := excelize.SplitCellName(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return row
}

// findSubtotal returns the first row whose amount cell holds a SUM formula.
func (w *filler) findSubtotal(maxRow int) (int, bool, error) {
	for r := 1; r <= maxRow; r++ {
		name := cell(w.cols.amount, r)
		formula, err := w.f.GetCellFormula(w.sheet, name)
		if err != nil {
			return 0, false, eris.Wrapf(err, "sheet: read formula at %s", name)
		}
		if formula == "" {
			// Formulas typed as text still count.
			v, err := w.f.GetCellValue(w.sheet, name, excelize.Options{RawCellValue: true})
			if err != nil {
				return 0, false, eris.Wrapf(err, "sheet: read value at %s", name)
			}
			if !strings.HasPrefix(v, "=") {
				continue
			}
			formula = v
		}
		if strings.Contains(strings.ToUpper(formula), "SUM(") {
			return r, true, nil
		}
	}
	return 0, false, nil
}

// grow inserts extra copies of the last detail row directly above the
// subtotal row, keeping its style and merged ranges.
func (w *filler) grow(res *Result, extra int) error {
	b := &res.Binding
	tmplRow := b.SubtotalRow - 1

	merges, err := w.rowMerges(tmplRow)
	if err != nil {
		return err
	}

	for i := 0; i < extra; i++ {
		row := b.SubtotalRow
		if err := w.f.DuplicateRowTo(w.sheet, tmplRow, row); err != nil {
			return eris.Wrapf(err, "sheet: insert row %d", row)
		}
		for _, m := range merges {
			if err := w.f.MergeCell(w.sheet, cell(m[0], row), cell(m[1], row)); err != nil {
				return eris.Wrapf(err, "sheet: merge %s:%s on row %d", m[0], m[1], row)
			}
		}
		// The copied amount formula still points at the template row.
		if err := w.setAmountFormula(row); err != nil {
			return err
		}
		b.SubtotalRow++
	}

	b.Capacity = b.SubtotalRow - b.StartRow
	res.Inserted = extra
	zap.L().Info("sheet: grew template",
		zap.Int("inserted", extra),
		zap.Int("subtotal_row", b.SubtotalRow),
	)
	return nil
}

// rowMerges returns the column spans of single-row merges on row.
func (w *filler) rowMerges(row int) ([][2]string, error) {
	merged, err := w.f.GetMergeCells(w.sheet)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read merged cells")
	}
	var out [][2]string
	for _, m := range merged {
		startCol, startRow, err := excelize.SplitCellName(m.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.SplitCellName(m.GetEndAxis())
		if err != nil {
			continue
		}
		if startRow == row && endRow == row {
			out = append(out, [2]string{startCol, endCol})
		}
	}
	return out, nil
}

// coveredCells returns cells hidden inside a merged range, i.e. every merged
// cell except the top-left anchor.
func (w *filler) coveredCells() (map[string]bool, error) {
	merged, err := w.f.GetMergeCells(w.sheet)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read merged cells")
	}
	covered := make(map[string]bool)
	for _, m := range merged {
		c1, r1, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		for r := r1; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				if r == r1 && c == c1 {
					continue
				}
				name, _ := excelize.CoordinatesToCellName(c, r)
				covered[name] = true
			}
		}
	}
	return covered, nil
}

// clearDetail empties the value cells of every detail row and makes sure each
// row has an amount formula.
func (w *filler) clearDetail(b Binding) error {
	covered, err := w.coveredCells()
	if err != nil {
		return err
	}

	for r := b.StartRow; r < b.SubtotalRow; r++ {
		for _, col := range []string{w.cols.task, w.cols.qty, w.cols.unit, w.cols.price} {
			name := cell(col, r)
			if covered[name] {
				continue
			}
			if err := w.f.SetCellValue(w.sheet, name, nil); err != nil {
				return eris.Wrapf(err, "sheet: clear %s", name)
			}
		}
		if err := w.ensureAmountFormula(r); err != nil {
			return err
		}
	}
	return nil
}

// ensureAmountFormula adds qty×price to the amount cell unless it already
// holds a formula.
func (w *filler) ensureAmountFormula(row int) error {
	name := cell(w.cols.amount, row)
	formula, err := w.f.GetCellFormula(w.sheet, name)
	if err != nil {
		return eris.Wrapf(err, "sheet: read formula at %s", name)
	}
	if formula != "" {
		return nil
	}
	return w.setAmountFormula(row)
}

func (w *filler) setAmountFormula(row int) error {
	name := cell(w.cols.amount, row)
	formula := fmt.Sprintf("%s*%s", cell(w.cols.qty, row), cell(w.cols.price, row))
	if err := w.f.SetCellFormula(w.sheet, name, formula); err != nil {
		return eris.Wrapf(err, "sheet: set formula at %s", name)
	}
	return w.formatThousands(name)
}

// formatThousands applies "#,##0" to a cell while keeping the rest of its
// template style.
func (w *filler) formatThousands(name string) error {
	base, err := w.f.GetCellStyle(w.sheet, name)
	if err != nil {
		return eris.Wrapf(err, "sheet: read style at %s", name)
	}
	id, ok := w.styles[base]
	if !ok {
		style, err := w.f.GetStyle(base)
		if err != nil {
			return eris.Wrapf(err, "sheet: load style %d", base)
		}
		style.NumFmt = numFmtThousands
		style.CustomNumFmt = nil
		if id, err = w.f.NewStyle(style); err != nil {
			return eris.Wrap(err, "sheet: create number style")
		}
		w.styles[base] = id
	}
	return w.f.SetCellStyle(w.sheet, name, name, id)
}

func (w *filler) writeItems(start int, items []model.LineItem) error {
	for i, it := range items {
		r := start + i
		values := []struct {
			col string
			v   any
		}{
			{w.cols.task, it.Task},
			{w.cols.qty, it.Quantity},
			{w.cols.unit, it.Unit},
			{w.cols.price, it.UnitPrice},
		}
		for _, v := range values {
			if err := w.f.SetCellValue(w.sheet, cell(v.col, r), v.v); err != nil {
				return eris.Wrapf(err, "sheet: write %s", cell(v.col, r))
			}
		}
	}
	return nil
}

// writeSubtotal points the subtotal at the written rows, or sets it to 0 when
// nothing was written.
func (w *filler) writeSubtotal(b Binding, written int) error {
	name := cell(w.cols.amount, b.SubtotalRow)
	if written == 0 {
		if err := w.f.SetCellFormula(w.sheet, name, ""); err != nil {
			return eris.Wrapf(err, "sheet: drop subtotal formula at %s", name)
		}
		if err := w.f.SetCellValue(w.sheet, name, 0); err != nil {
			return eris.Wrapf(err, "sheet: zero subtotal at %s", name)
		}
		return w.formatThousands(name)
	}

	last := b.StartRow + written - 1
	formula := fmt.Sprintf("SUM(%s:%s)", cell(w.cols.amount, b.StartRow), cell(w.cols.amount, last))
	if err := w.f.SetCellFormula(w.sheet, name, formula); err != nil {
		return eris.Wrapf(err, "sheet: set subtotal at %s", name)
	}
	return w.formatThousands(name)
}
