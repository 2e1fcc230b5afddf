package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sells-group/estimator/internal/model"
)

const (
	colorRed     lipgloss.Color = "#f38ba8"
	colorYellow  lipgloss.Color = "#f9e2af"
	colorOverlay lipgloss.Color = "#7f849c"
	colorText    lipgloss.Color = "#cdd6f4"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorText).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	reviewStyle = cellStyle.Foreground(colorYellow)
	borderStyle = lipgloss.NewStyle().Foreground(colorOverlay)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
)

const reviewMarker = "要確認"

var tableHeaders = []string{"カテゴリ", "項目", "単価", "数量", "単位", "金額（円）", "備考"}

// Table renders priced items and their totals for the terminal. Rows that
// need review are marked in the last column.
func Table(items []model.LineItem, totals model.Totals) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		note := it.Note
		if it.NeedsReview {
			note = strings.TrimSpace(reviewMarker + " " + note)
		}
		rows = append(rows, []string{
			it.Category.Label(),
			it.Task,
			Yen(it.UnitPrice),
			Quantity(it.Quantity),
			it.Unit,
			Yen(it.Subtotal),
			note,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(items) && items[row].NeedsReview:
				return reviewStyle
			case col == 2 || col == 3 || col == 5:
				return numberStyle
			default:
				return cellStyle
			}
		})

	summary := lipgloss.JoinVertical(lipgloss.Right,
		labelStyle.Render("短納期係数")+" "+Quantity(totals.RushCoefficient),
		labelStyle.Render("管理費")+" "+Yen(totals.ManagementFeeFinal),
		labelStyle.Render("小計（税抜）")+" "+Yen(totals.TaxableSubtotal),
		labelStyle.Render("消費税")+" "+Yen(totals.Tax),
		labelStyle.Render("合計")+" "+totalStyle.Render(Yen(totals.Total)+"円"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, t.String(), summary)
}
